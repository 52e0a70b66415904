package repository

import (
	"context"
	"time"
)

const NotificationTypeUpload = "upload"

// NotificationRecord 管理员看到的上传提醒，只会被批量标记已读。
type NotificationRecord struct {
	ID        string    `json:"_id"`
	Type      string    `json:"type"`
	UserID    string    `json:"user_id"`
	Username  string    `json:"username"`
	Filename  string    `json:"filename"`
	Title     string    `json:"title"`
	Sentiment *string   `json:"sentiment,omitempty"`
	CreatedAt time.Time `json:"timestamp"`
	Seen      bool      `json:"seen"`
}

type NotificationRepository interface {
	Create(ctx context.Context, record *NotificationRecord) (*NotificationRecord, error)
	List(ctx context.Context, limit, offset int) ([]NotificationRecord, error)
	CountUnseen(ctx context.Context) (int, error)
	MarkSeen(ctx context.Context, ids []string) (int64, error)
}
