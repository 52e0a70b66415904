package api

import (
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"path"
	"time"

	"beehive/internal/middleware"
	"beehive/internal/repository"
	"beehive/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

const (
	multipartMemoryBudget int64 = 8 * 1024 * 1024
	defaultPageSize             = 12
	maxPageSize                 = 50
)

// UploadHandler 提供上传、编辑、删除、列表与音频读取端点。
type UploadHandler struct {
	service         *service.UploadService
	maxRequestBytes int64
	log             zerolog.Logger
}

func NewUploadHandler(s *service.UploadService, maxRequestBytes int64, log zerolog.Logger) *UploadHandler {
	return &UploadHandler{service: s, maxRequestBytes: maxRequestBytes, log: log}
}

func (h *UploadHandler) RegisterRoutes(r chi.Router) {
	r.Post("/api/user/upload", h.Upload)
	r.Get("/api/user/user_uploads", h.ListOwn)
	r.Patch("/edit/{id}", h.Edit)
	r.Delete("/delete/{id}", h.Delete)
	r.Get("/audio/{filename}", h.Audio)
}

// Upload 接受 multipart/form-data：files[]、title、description、sentiment、username，
// 以及可选的 audioData（data URL）或 audio 文件。
func (h *UploadHandler) Upload(w http.ResponseWriter, r *http.Request) {
	identity, _ := middleware.IdentityFrom(r.Context())

	form, ok := h.parseMultipart(w, r)
	if !ok {
		return
	}
	defer form.RemoveAll()

	headers := form.File["files"]
	files := make([]service.UploadFile, 0, len(headers))
	for _, fh := range headers {
		if fh.Filename == "" {
			continue
		}
		f, err := fh.Open()
		if err != nil {
			writeAppError(w, h.log, err, "Failed to upload file. Please try again.")
			return
		}
		defer f.Close()
		files = append(files, service.UploadFile{Name: fh.Filename, Content: f})
	}

	in := service.UploadInput{
		OwnerID:      identity.ID,
		Username:     r.FormValue("username"),
		Title:        r.FormValue("title"),
		Description:  r.FormValue("description"),
		Sentiment:    r.FormValue("sentiment"),
		Files:        files,
		AudioDataURL: r.FormValue("audioData"),
	}
	if audioHeaders := form.File["audio"]; len(audioHeaders) > 0 && audioHeaders[0].Filename != "" {
		af, err := audioHeaders[0].Open()
		if err != nil {
			writeAppError(w, h.log, err, "Failed to upload file. Please try again.")
			return
		}
		defer af.Close()
		in.AudioFile = af
		in.AudioHeader = audioHeaders[0]
	}

	if _, err := h.service.Upload(r.Context(), in); err != nil {
		writeAppError(w, h.log.With().Str("user_id", identity.ID).Logger(), err, "Failed to upload file. Please try again.")
		return
	}
	writeJSON(w, http.StatusOK, messageEnvelope{Message: "Upload successful"})
}

func (h *UploadHandler) parseMultipart(w http.ResponseWriter, r *http.Request) (*multipart.Form, bool) {
	if h.maxRequestBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxRequestBytes)
	}
	if err := r.ParseMultipartForm(multipartMemoryBudget); err != nil {
		if isBodyTooLarge(err) {
			writeError(w, http.StatusRequestEntityTooLarge, "Request body too large")
			return nil, false
		}
		writeError(w, http.StatusBadRequest, "No file selected")
		return nil, false
	}
	return r.MultipartForm, true
}

type uploadView struct {
	ID            string    `json:"id"`
	Filename      string    `json:"filename"`
	Title         string    `json:"title"`
	Description   string    `json:"description"`
	AudioFilename string    `json:"audio_filename"`
	Sentiment     string    `json:"sentiment"`
	CreatedAt     time.Time `json:"created_at"`
}

type uploadListResponse struct {
	Images     []uploadView `json:"images"`
	UserID     string       `json:"user_id"`
	TotalCount int          `json:"total_count"`
	Page       int          `json:"page"`
	PageSize   int          `json:"pageSize"`
	TotalPages int          `json:"totalPages"`
	Message    string       `json:"message"`
}

func toUploadView(rec repository.UploadRecord) uploadView {
	v := uploadView{
		ID:          rec.ID,
		Filename:    rec.Filename,
		Title:       rec.Title,
		Description: rec.Description,
		CreatedAt:   rec.CreatedAt,
	}
	if rec.AudioFilename != nil {
		v.AudioFilename = *rec.AudioFilename
	}
	if rec.Sentiment != nil {
		v.Sentiment = *rec.Sentiment
	}
	return v
}

// ListOwn 只返回调用者自己的上传，不接受任何 user_id 参数。
func (h *UploadHandler) ListOwn(w http.ResponseWriter, r *http.Request) {
	identity, _ := middleware.IdentityFrom(r.Context())
	listUploads(w, r, h.service, h.log, identity.ID)
}

// listUploads 读取 page 与 page_size，返回 ownerID 名下的一页上传。
func listUploads(w http.ResponseWriter, r *http.Request, svc *service.UploadService, log zerolog.Logger, ownerID string) {
	page, pageErr := queryInt(r, "page", 1)
	size, sizeErr := queryInt(r, "page_size", defaultPageSize)
	if pageErr != nil || sizeErr != nil {
		writeError(w, http.StatusBadRequest, "Invalid 'page' or 'page_size' parameter. Must be an integer.")
		return
	}
	page, size = service.ClampPage(page, size, maxPageSize)

	result, err := svc.ListOwn(r.Context(), ownerID, page, size)
	if err != nil {
		writeAppError(w, log, err, "Failed to fetch uploads. Please try again.")
		return
	}

	images := make([]uploadView, 0, len(result.Uploads))
	for _, rec := range result.Uploads {
		images = append(images, toUploadView(rec))
	}
	writeJSON(w, http.StatusOK, uploadListResponse{
		Images:     images,
		UserID:     ownerID,
		TotalCount: result.TotalCount,
		Page:       result.Page,
		PageSize:   result.PageSize,
		TotalPages: result.TotalPages,
		Message:    "Success",
	})
}

type editForm struct {
	Title       string `validate:"required"`
	Description string `validate:"required"`
}

// Edit 读取表单字段 title、description 与可选的 sentiment。
func (h *UploadHandler) Edit(w http.ResponseWriter, r *http.Request) {
	identity, _ := middleware.IdentityFrom(r.Context())

	if err := parseForm(r); err != nil {
		writeError(w, http.StatusBadRequest, "Title and description are required.")
		return
	}
	form := editForm{Title: r.PostFormValue("title"), Description: r.PostFormValue("description")}
	if err := validate.Struct(form); err != nil {
		writeError(w, http.StatusBadRequest, "Title and description are required.")
		return
	}

	in := service.EditInput{Title: form.Title, Description: form.Description}
	if values, ok := r.PostForm["sentiment"]; ok && len(values) > 0 {
		in.Sentiment = &values[0]
	}

	if err := h.service.Edit(r.Context(), identity, chi.URLParam(r, "id"), in); err != nil {
		writeAppError(w, h.log, err, "Failed to update image. Please try again.")
		return
	}
	writeJSON(w, http.StatusOK, messageEnvelope{Message: "Image updated successfully!"})
}

func (h *UploadHandler) Delete(w http.ResponseWriter, r *http.Request) {
	identity, _ := middleware.IdentityFrom(r.Context())

	if err := h.service.Delete(r.Context(), identity, chi.URLParam(r, "id")); err != nil {
		writeAppError(w, h.log, err, "Failed to delete image. Please try again.")
		return
	}
	writeJSON(w, http.StatusOK, messageEnvelope{Message: "Image deleted successfully!"})
}

// Audio 流式返回已保存的音频文件。
func (h *UploadHandler) Audio(w http.ResponseWriter, r *http.Request) {
	content, name, err := h.service.OpenAudio(r.Context(), chi.URLParam(r, "filename"))
	if err != nil {
		writeAppError(w, h.log, err, "Failed to read audio.")
		return
	}
	defer content.Close()

	contentType := mime.TypeByExtension(path.Ext(name))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, content); err != nil {
		// 客户端可能已断开，无法再写入错误响应
		h.log.Debug().Err(err).Str("file", name).Msg("audio stream interrupted")
	}
}

// parseForm 同时支持 urlencoded 与 multipart 表单。
func parseForm(r *http.Request) error {
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if ct == "multipart/form-data" {
		return r.ParseMultipartForm(multipartMemoryBudget)
	}
	return r.ParseForm()
}
