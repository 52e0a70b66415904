package storage

import (
	"context"
	"errors"
	"io"
)

// ErrNotFound 表示对象不存在。
var ErrNotFound = errors.New("storage: object not found")

// ErrInvalidKey 表示 key 试图逃逸出存储根目录或为空。
var ErrInvalidKey = errors.New("storage: invalid key")

// Writer 定义对象存储写接口，支持流式写入。
type Writer interface {
	Write(ctx context.Context, key string, r io.Reader) (Location, error)
}

// Reader 定义对象存储读接口，支持流式读取。
type Reader interface {
	Read(ctx context.Context, key string) (io.ReadCloser, error)
}

// Deleter 删除对象，对象不存在时返回 ErrNotFound。
type Deleter interface {
	Delete(ctx context.Context, key string) error
}

// Storage 组合了读写删能力的完整存储接口。
type Storage interface {
	Writer
	Reader
	Deleter
}

// Location 描述已经写入对象的可访问信息。
type Location struct {
	Path string
	URL  string
}
