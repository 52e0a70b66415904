package s3

import (
	"context"
	"fmt"
	"io"
	"mime"
	"path"
	"strings"

	"beehive/internal/storage"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Config 包含 S3/MinIO 存储所需的配置。
type Config struct {
	Endpoint  string // 不含协议，如 "localhost:9000" 或 "s3.amazonaws.com"
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
	PathStyle bool // MinIO 需要 true
}

// Storage 实现了 storage.Storage 接口，使用 S3 兼容存储。
type Storage struct {
	client *minio.Client
	bucket string
}

// New 创建 S3 存储实例，bucket 不存在时自动创建。
func New(ctx context.Context, cfg Config) (*Storage, error) {
	lookup := minio.BucketLookupAuto
	if cfg.PathStyle {
		lookup = minio.BucketLookupPath
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:        credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:       cfg.UseSSL,
		Region:       cfg.Region,
		BucketLookup: lookup,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket exists: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
			return nil, fmt.Errorf("create bucket: %w", err)
		}
	}

	return &Storage{client: client, bucket: cfg.Bucket}, nil
}

func (s *Storage) Write(ctx context.Context, key string, r io.Reader) (storage.Location, error) {
	if s == nil || s.client == nil {
		return storage.Location{}, fmt.Errorf("s3 storage uninitialized")
	}
	cleanKey, err := objectKey(key)
	if err != nil {
		return storage.Location{}, err
	}

	// 大小未知时 SDK 走分片上传
	info, err := s.client.PutObject(ctx, s.bucket, cleanKey, r, -1, minio.PutObjectOptions{
		ContentType: contentType(cleanKey),
	})
	if err != nil {
		return storage.Location{}, fmt.Errorf("put object: %w", err)
	}

	return storage.Location{
		Path: cleanKey,
		URL:  fmt.Sprintf("s3://%s/%s", s.bucket, info.Key),
	}, nil
}

func (s *Storage) Read(ctx context.Context, key string) (io.ReadCloser, error) {
	if s == nil || s.client == nil {
		return nil, fmt.Errorf("s3 storage uninitialized")
	}
	cleanKey, err := objectKey(key)
	if err != nil {
		return nil, err
	}

	obj, err := s.client.GetObject(ctx, s.bucket, cleanKey, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get object: %w", err)
	}

	// GetObject 是惰性的，Stat 才会真正确认对象存在
	if _, err := obj.Stat(); err != nil {
		obj.Close()
		return nil, translate(err, key)
	}
	return obj, nil
}

// Delete 删除对象。RemoveObject 对不存在的 key 不报错，因此先 Stat。
func (s *Storage) Delete(ctx context.Context, key string) error {
	if s == nil || s.client == nil {
		return fmt.Errorf("s3 storage uninitialized")
	}
	cleanKey, err := objectKey(key)
	if err != nil {
		return err
	}

	if _, err := s.client.StatObject(ctx, s.bucket, cleanKey, minio.StatObjectOptions{}); err != nil {
		return translate(err, key)
	}
	if err := s.client.RemoveObject(ctx, s.bucket, cleanKey, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("remove object: %w", err)
	}
	return nil
}

func objectKey(key string) (string, error) {
	cleaned := strings.TrimPrefix(path.Clean("/"+strings.TrimSpace(key)), "/")
	if cleaned == "" {
		return "", storage.ErrInvalidKey
	}
	return cleaned, nil
}

func contentType(key string) string {
	if ct := mime.TypeByExtension(path.Ext(key)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

func translate(err error, key string) error {
	if minio.ToErrorResponse(err).Code == "NoSuchKey" {
		return fmt.Errorf("%w: %s", storage.ErrNotFound, key)
	}
	return fmt.Errorf("stat object: %w", err)
}
