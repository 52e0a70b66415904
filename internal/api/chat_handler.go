package api

import (
	"net/http"

	"beehive/internal/middleware"
	"beehive/internal/repository"
	"beehive/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// ChatHandler 用户与管理员之间的消息端点。
type ChatHandler struct {
	service *service.ChatService
	log     zerolog.Logger
}

func NewChatHandler(s *service.ChatService, log zerolog.Logger) *ChatHandler {
	return &ChatHandler{service: s, log: log}
}

func (h *ChatHandler) RegisterRoutes(r chi.Router) {
	r.Post("/api/chat/send", h.Send)
	r.Get("/api/chat/messages", h.Messages)
}

type sendMessageRequest struct {
	ToID    string `json:"to_id" validate:"required"`
	ToRole  string `json:"to_role" validate:"required,oneof=admin user"`
	Content string `json:"content" validate:"required"`
}

func (h *ChatHandler) Send(w http.ResponseWriter, r *http.Request) {
	identity, _ := middleware.IdentityFrom(r.Context())

	var req sendMessageRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Missing required fields")
		return
	}

	_, err := h.service.Send(r.Context(), identity, service.SendInput{
		ToID:    req.ToID,
		ToRole:  req.ToRole,
		Content: req.Content,
	})
	if err != nil {
		writeAppError(w, h.log, err, "Failed to send message. Please try again.")
		return
	}
	writeJSON(w, http.StatusOK, messageEnvelope{Message: "Message sent"})
}

type messagesResponse struct {
	Messages []repository.MessageRecord `json:"messages"`
}

func (h *ChatHandler) Messages(w http.ResponseWriter, r *http.Request) {
	identity, _ := middleware.IdentityFrom(r.Context())

	msgs, err := h.service.Conversation(r.Context(), identity, r.URL.Query().Get("user_id"))
	if err != nil {
		writeAppError(w, h.log, err, "Failed to fetch messages. Please try again.")
		return
	}
	writeJSON(w, http.StatusOK, messagesResponse{Messages: msgs})
}
