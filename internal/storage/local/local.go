package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"beehive/internal/storage"
)

// Store 将对象保存在本地文件系统。
type Store struct {
	BaseDir string
	BaseURL string
}

func New(baseDir, baseURL string) *Store {
	return &Store{BaseDir: baseDir, BaseURL: baseURL}
}

func (s *Store) Write(ctx context.Context, key string, r io.Reader) (storage.Location, error) {
	if s == nil {
		return storage.Location{}, fmt.Errorf("local store uninitialized")
	}
	if err := ctx.Err(); err != nil {
		return storage.Location{}, err
	}

	targetPath, err := s.resolve(key)
	if err != nil {
		return storage.Location{}, err
	}
	if err := os.MkdirAll(filepath.Dir(targetPath), 0o755); err != nil {
		return storage.Location{}, fmt.Errorf("ensure dir: %w", err)
	}

	// 先写临时文件再原子重命名，读方不会看到半截内容。
	file, err := os.CreateTemp(filepath.Dir(targetPath), ".upload-*")
	if err != nil {
		return storage.Location{}, fmt.Errorf("create temp file: %w", err)
	}
	tempPath := file.Name()
	cleanup := func() {
		file.Close()
		os.Remove(tempPath)
	}

	if _, err := io.Copy(file, r); err != nil {
		cleanup()
		return storage.Location{}, fmt.Errorf("write file: %w", err)
	}
	if err := file.Sync(); err != nil {
		cleanup()
		return storage.Location{}, fmt.Errorf("sync file: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tempPath)
		return storage.Location{}, fmt.Errorf("close file: %w", err)
	}
	if err := os.Chmod(tempPath, 0o644); err != nil {
		os.Remove(tempPath)
		return storage.Location{}, fmt.Errorf("chmod file: %w", err)
	}
	if err := os.Rename(tempPath, targetPath); err != nil {
		os.Remove(tempPath)
		return storage.Location{}, fmt.Errorf("rename temp file: %w", err)
	}

	loc := storage.Location{Path: targetPath}
	if s.BaseURL != "" {
		if u, err := url.JoinPath(s.BaseURL, filepath.ToSlash(key)); err == nil {
			loc.URL = u
		}
	}
	return loc, nil
}

// Read 打开并返回指定 key 对应的文件内容。
func (s *Store) Read(ctx context.Context, key string) (io.ReadCloser, error) {
	if s == nil {
		return nil, fmt.Errorf("local store uninitialized")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	targetPath, err := s.resolve(key)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(targetPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", storage.ErrNotFound, key)
		}
		return nil, fmt.Errorf("open file: %w", err)
	}
	return file, nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if s == nil {
		return fmt.Errorf("local store uninitialized")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	targetPath, err := s.resolve(key)
	if err != nil {
		return err
	}
	if err := os.Remove(targetPath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", storage.ErrNotFound, key)
		}
		return fmt.Errorf("remove file: %w", err)
	}
	return nil
}

// resolve 把 key 映射到 BaseDir 下的绝对路径，拒绝 ".." 逃逸。
func (s *Store) resolve(key string) (string, error) {
	cleaned := filepath.Clean("/" + filepath.FromSlash(strings.TrimSpace(key)))
	if cleaned == string(filepath.Separator) {
		return "", storage.ErrInvalidKey
	}
	return filepath.Join(s.BaseDir, cleaned), nil
}
