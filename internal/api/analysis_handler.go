package api

import (
	"bytes"
	"errors"
	"io"
	"mime/multipart"
	"net/http"

	"beehive/internal/analysis"
	"beehive/internal/media"
	"beehive/internal/middleware"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// AnalysisHandler 为上传前的媒体生成标题、描述与情感建议。analyzer 为 nil 表示未配置。
type AnalysisHandler struct {
	analyzer        analysis.Analyzer
	sniffer         *media.Sniffer
	maxRequestBytes int64
	log             zerolog.Logger
}

func NewAnalysisHandler(analyzer analysis.Analyzer, sniffer *media.Sniffer, maxRequestBytes int64, log zerolog.Logger) *AnalysisHandler {
	return &AnalysisHandler{analyzer: analyzer, sniffer: sniffer, maxRequestBytes: maxRequestBytes, log: log}
}

func (h *AnalysisHandler) RegisterRoutes(r chi.Router) {
	r.Post("/api/analyze-media", h.Analyze)
}

func (h *AnalysisHandler) Analyze(w http.ResponseWriter, r *http.Request) {
	identity, _ := middleware.IdentityFrom(r.Context())
	log := h.log.With().Str("user_id", identity.ID).Logger()

	if h.analyzer == nil {
		writeError(w, http.StatusServiceUnavailable, "AI analysis not configured on server. Set a valid AI_API_KEY.")
		return
	}

	if h.maxRequestBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxRequestBytes)
	}
	if err := r.ParseMultipartForm(multipartMemoryBudget); err != nil {
		if isBodyTooLarge(err) {
			writeError(w, http.StatusRequestEntityTooLarge, "Request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, "No media provided for analysis")
		return
	}
	defer r.MultipartForm.RemoveAll()

	imageHeader := firstFile(r.MultipartForm, "image")
	audioHeader := firstFile(r.MultipartForm, "audio")

	var in analysis.Media
	if imageHeader != nil {
		data, contentType, err := h.readImage(imageHeader)
		if err != nil {
			log.Error().Err(err).Msg("read analysis image failed")
			writeError(w, http.StatusInternalServerError, "Failed to analyze media. Please try again.")
			return
		}
		if contentType == "application/pdf" {
			writeJSON(w, http.StatusOK, analysis.PDFSuggestion)
			return
		}
		in.Image = data
		in.ImageType = contentType
	}
	if imageHeader == nil && audioHeader == nil {
		writeError(w, http.StatusBadRequest, "No media provided for analysis")
		return
	}
	in.HasAudio = audioHeader != nil

	suggestion, err := h.analyzer.Analyze(r.Context(), in)
	if err != nil {
		status, message := analysisFailure(err)
		log.Error().Err(err).Int("status", status).Msg("media analysis failed")
		writeError(w, status, message)
		return
	}
	writeJSON(w, http.StatusOK, suggestion)
}

// readImage 读取图片内容，类型以嗅探结果为准，嗅探不可用时退回客户端声明的类型。
func (h *AnalysisHandler) readImage(fh *multipart.FileHeader) ([]byte, string, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, "", err
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, "", err
	}

	contentType := media.BaseType(fh.Header.Get("Content-Type"))
	if h.sniffer.Available() {
		sniffed, err := h.sniffer.Sniff(bytes.NewReader(data))
		if err != nil {
			return nil, "", err
		}
		contentType = sniffed
	}
	return data, contentType, nil
}

func analysisFailure(err error) (int, string) {
	switch {
	case errors.Is(err, analysis.ErrBlocked):
		return http.StatusBadRequest, "Content blocked by safety filters"
	case errors.Is(err, analysis.ErrMissingKeys):
		return http.StatusInternalServerError, "AI response JSON missing required keys"
	case errors.Is(err, analysis.ErrMalformed):
		return http.StatusInternalServerError, "Failed to parse AI response JSON"
	case errors.Is(err, analysis.ErrNoJSON):
		return http.StatusInternalServerError, "No JSON object found in AI response"
	default:
		return http.StatusInternalServerError, "Failed to analyze media. Please try again."
	}
}

func firstFile(form *multipart.Form, field string) *multipart.FileHeader {
	if form == nil {
		return nil
	}
	headers := form.File[field]
	if len(headers) == 0 || headers[0].Filename == "" {
		return nil
	}
	return headers[0]
}
