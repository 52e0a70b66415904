package service

import (
	"context"
	"errors"

	"beehive/internal/apperror"
	"beehive/internal/repository"

	"github.com/rs/zerolog"
)

// NotificationPage 管理员通知列表及未读数。
type NotificationPage struct {
	Notifications []repository.NotificationRecord
	UnseenCount   int
	Page          int
}

// NotificationService 面向管理员的上传提醒。
type NotificationService struct {
	repo repository.NotificationRepository
	log  zerolog.Logger
}

func NewNotificationService(repo repository.NotificationRepository, log zerolog.Logger) *NotificationService {
	return &NotificationService{repo: repo, log: log}
}

// List 按时间倒序分页，page/limit 已由调用方夹紧。
func (s *NotificationService) List(ctx context.Context, page, limit int) (*NotificationPage, error) {
	items, err := s.repo.List(ctx, limit, (page-1)*limit)
	if err != nil {
		return nil, apperror.Wrap(apperror.KindInternal, err, "Failed to fetch notifications. Please try again.")
	}
	unseen, err := s.repo.CountUnseen(ctx)
	if err != nil {
		return nil, apperror.Wrap(apperror.KindInternal, err, "Failed to fetch notifications. Please try again.")
	}
	if items == nil {
		items = []repository.NotificationRecord{}
	}
	return &NotificationPage{Notifications: items, UnseenCount: unseen, Page: page}, nil
}

// MarkSeen 批量标记已读。ids 为空时返回 false 且不访问存储。
func (s *NotificationService) MarkSeen(ctx context.Context, ids []string) (bool, error) {
	if len(ids) == 0 {
		return false, nil
	}
	n, err := s.repo.MarkSeen(ctx, ids)
	if err != nil {
		if errors.Is(err, repository.ErrInvalidID) {
			return false, apperror.Validation("Invalid ID format")
		}
		return false, apperror.Wrap(apperror.KindInternal, err, "Failed to update notifications. Please try again.")
	}
	s.log.Debug().Int("requested", len(ids)).Int64("updated", n).Msg("notifications marked seen")
	return true, nil
}
