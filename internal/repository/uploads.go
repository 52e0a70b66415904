package repository

import (
	"context"
	"time"
)

// UploadRecord 一次上传对应的一条记录，Filename 始终带服务端生成的 UUID 前缀。
type UploadRecord struct {
	ID            string    `json:"_id"`
	OwnerID       string    `json:"user_id"`
	Filename      string    `json:"filename"`
	Title         string    `json:"title"`
	Description   string    `json:"description"`
	Sentiment     *string   `json:"sentiment,omitempty"`
	AudioFilename *string   `json:"audio_filename,omitempty"`
	CreatedAt     time.Time `json:"timestamp"`
}

// UploadChanges 编辑时允许修改的字段，Sentiment 为 nil 表示保持不变。
type UploadChanges struct {
	Title       string
	Description string
	Sentiment   *string
}

// UploadRepository 上传记录持久层接口。
type UploadRepository interface {
	Create(ctx context.Context, record *UploadRecord) (*UploadRecord, error)
	GetByID(ctx context.Context, id string) (*UploadRecord, error)
	Update(ctx context.Context, id string, changes UploadChanges) error
	Delete(ctx context.Context, id string) error
	ListByOwner(ctx context.Context, ownerID string, limit, offset int) ([]UploadRecord, error)
	CountByOwner(ctx context.Context, ownerID string) (int, error)
}
