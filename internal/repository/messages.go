package repository

import (
	"context"
	"time"
)

// MessageRecord 用户与管理员之间的一条消息。
type MessageRecord struct {
	ID        string    `json:"_id"`
	FromID    string    `json:"from_id"`
	FromRole  string    `json:"from_role"`
	ToID      string    `json:"to_id"`
	ToRole    string    `json:"to_role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"timestamp"`
}

type MessageRepository interface {
	Create(ctx context.Context, record *MessageRecord) (*MessageRecord, error)
	// ListConversation 返回某个用户与管理员之间的全部往来，按时间升序。
	ListConversation(ctx context.Context, userID string) ([]MessageRecord, error)
}
