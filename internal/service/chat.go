package service

import (
	"context"

	"beehive/internal/apperror"
	"beehive/internal/auth"
	"beehive/internal/repository"
	"beehive/internal/sanitize"

	"github.com/rs/zerolog"
)

// MaxMessageLength 单条消息清洗后的最大长度。
const MaxMessageLength = 2000

// SendInput 是一条待发送的消息，发送方来自已验证的身份。
type SendInput struct {
	ToID    string
	ToRole  string
	Content string
}

// ChatService 用户与管理员之间的简单消息。
type ChatService struct {
	repo repository.MessageRepository
	log  zerolog.Logger
}

func NewChatService(repo repository.MessageRepository, log zerolog.Logger) *ChatService {
	return &ChatService{repo: repo, log: log}
}

func (s *ChatService) Send(ctx context.Context, from auth.Identity, in SendInput) (*repository.MessageRecord, error) {
	content := sanitize.Truncate(sanitize.Text(in.Content), MaxMessageLength)
	toID := sanitize.Text(in.ToID)
	toRole := sanitize.Text(in.ToRole)
	if toID == "" || toRole == "" || content == "" {
		return nil, apperror.Validation("Missing required fields")
	}
	if toRole != auth.RoleAdmin && toRole != auth.RoleUser {
		return nil, apperror.Validation("Invalid recipient role")
	}

	msg, err := s.repo.Create(ctx, &repository.MessageRecord{
		FromID:   from.ID,
		FromRole: from.Role,
		ToID:     toID,
		ToRole:   toRole,
		Content:  content,
	})
	if err != nil {
		return nil, apperror.Wrap(apperror.KindInternal, err, "Failed to send message. Please try again.")
	}
	s.log.Debug().Str("from", from.ID).Str("to", toID).Msg("message sent")
	return msg, nil
}

// Conversation 管理员需要指定 userID，普通用户始终只能看到自己的会话。
func (s *ChatService) Conversation(ctx context.Context, viewer auth.Identity, userID string) ([]repository.MessageRecord, error) {
	target := viewer.ID
	if viewer.IsAdmin() {
		target = sanitize.Text(userID)
		if target == "" {
			return nil, apperror.Validation("user_id is required")
		}
	}

	msgs, err := s.repo.ListConversation(ctx, target)
	if err != nil {
		return nil, apperror.Wrap(apperror.KindInternal, err, "Failed to fetch messages. Please try again.")
	}
	if msgs == nil {
		msgs = []repository.MessageRecord{}
	}
	return msgs, nil
}
