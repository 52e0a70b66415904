package api

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"beehive/internal/repository"
	"beehive/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

const defaultNotificationLimit = 5

// AdminHandler 管理员通知与内容审核端点，需挂在 RequireAdmin 之后。
type AdminHandler struct {
	service *service.NotificationService
	uploads *service.UploadService
	log     zerolog.Logger
}

func NewAdminHandler(s *service.NotificationService, uploads *service.UploadService, log zerolog.Logger) *AdminHandler {
	return &AdminHandler{service: s, uploads: uploads, log: log}
}

func (h *AdminHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/admin/notifications", func(r chi.Router) {
		r.Get("/", h.List)
		r.Post("/mark_seen", h.MarkSeen)
	})
	if h.uploads != nil {
		r.Get("/api/admin/user_uploads/{user_id}", h.UserUploads)
	}
}

// UserUploads 按用户查看其上传，分页规则与 /api/user/user_uploads 相同。
func (h *AdminHandler) UserUploads(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(chi.URLParam(r, "user_id"))
	if userID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	listUploads(w, r, h.uploads, h.log, userID)
}

type notificationsResponse struct {
	Notifications []repository.NotificationRecord `json:"notifications"`
	UnseenCount   int                             `json:"unseen_count"`
	Page          int                             `json:"page"`
}

func (h *AdminHandler) List(w http.ResponseWriter, r *http.Request) {
	page, pageErr := queryInt(r, "page", 1)
	limit, limitErr := queryInt(r, "limit", defaultNotificationLimit)
	if pageErr != nil || limitErr != nil {
		writeError(w, http.StatusBadRequest, "Invalid 'page' or 'limit' parameter. Must be an integer.")
		return
	}
	page, limit = service.ClampPage(page, limit, maxPageSize)

	result, err := h.service.List(r.Context(), page, limit)
	if err != nil {
		writeAppError(w, h.log, err, "Failed to fetch notifications. Please try again.")
		return
	}
	writeJSON(w, http.StatusOK, notificationsResponse{
		Notifications: result.Notifications,
		UnseenCount:   result.UnseenCount,
		Page:          result.Page,
	})
}

type markSeenRequest struct {
	IDs []string `json:"ids"`
}

type statusResponse struct {
	Status string `json:"status"`
}

func (h *AdminHandler) MarkSeen(w http.ResponseWriter, r *http.Request) {
	var req markSeenRequest
	// 空请求体按未提供 ids 处理
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	updated, err := h.service.MarkSeen(r.Context(), req.IDs)
	if err != nil {
		writeAppError(w, h.log, err, "Failed to update notifications. Please try again.")
		return
	}
	if !updated {
		writeJSON(w, http.StatusOK, statusResponse{Status: "no_ids"})
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Status: "ok"})
}
