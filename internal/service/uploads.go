package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime/multipart"

	"beehive/internal/apperror"
	"beehive/internal/auth"
	"beehive/internal/events"
	"beehive/internal/media"
	"beehive/internal/repository"
	"beehive/internal/sanitize"
	"beehive/internal/storage"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

const (
	msgNoFile            = "No file selected"
	msgMissingFields     = "Title and description are required"
	msgMissingEditFields = "Title and description are required."
	msgSniffUnavailable  = "Server MIME detection unavailable; contact administrator."
	msgInvalidID         = "Invalid image ID format."
	msgNotFound          = "Image not found."
	msgNotOwner          = "Unauthorized: You do not own this image."
	msgUploadFailed      = "Failed to upload file. Please try again."
)

// uploadOutcomes 按结果统计上传的文件数。
var uploadOutcomes = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "beehive",
		Name:      "upload_files_total",
		Help:      "Uploaded files by outcome",
	},
	[]string{"outcome"},
)

// UploadFile 是 multipart 中的一个待上传文件。
type UploadFile struct {
	Name    string
	Content io.ReadSeeker
}

// UploadInput 是一次上传请求。文本字段为原始值，由服务负责清洗。
type UploadInput struct {
	OwnerID      string
	Username     string
	Title        string
	Description  string
	Sentiment    string
	Files        []UploadFile
	AudioDataURL string
	AudioFile    multipart.File
	AudioHeader  *multipart.FileHeader
}

// EditInput 是编辑请求，Sentiment 为 nil 表示不修改。
type EditInput struct {
	Title       string
	Description string
	Sentiment   *string
}

// UploadPage 是分页后的上传列表。
type UploadPage struct {
	Uploads    []repository.UploadRecord
	TotalCount int
	Page       int
	PageSize   int
	TotalPages int
}

// UploadDeps 汇总 UploadService 的依赖，由组合根注入。
type UploadDeps struct {
	Uploads       repository.UploadRepository
	Notifications repository.NotificationRepository
	Store         storage.Storage
	Sniffer       *media.Sniffer
	Validator     *media.Validator
	Audio         *media.AudioIntake
	Thumbnailer   media.Thumbnailer
	Events        events.Publisher
	Logger        zerolog.Logger
}

// UploadService 负责上传编排以及上传记录的编辑、删除与查询。
type UploadService struct {
	uploads       repository.UploadRepository
	notifications repository.NotificationRepository
	store         storage.Storage
	sniffer       *media.Sniffer
	validator     *media.Validator
	audio         *media.AudioIntake
	thumbnailer   media.Thumbnailer
	events        events.Publisher
	log           zerolog.Logger
}

func NewUploadService(deps UploadDeps) *UploadService {
	if deps.Validator == nil {
		deps.Validator = media.NewValidator()
	}
	if deps.Sniffer == nil {
		deps.Sniffer = media.NewSniffer(nil, deps.Logger)
	}
	if deps.Audio == nil {
		deps.Audio = media.NewAudioIntake(deps.Sniffer)
	}
	if deps.Events == nil {
		deps.Events = events.NopPublisher{}
	}
	return &UploadService{
		uploads:       deps.Uploads,
		notifications: deps.Notifications,
		store:         deps.Store,
		sniffer:       deps.Sniffer,
		validator:     deps.Validator,
		audio:         deps.Audio,
		thumbnailer:   deps.Thumbnailer,
		events:        deps.Events,
		log:           deps.Logger,
	}
}

// Upload 逐个校验并保存文件，遇到第一个失败立即返回。
// 之前已经成功的文件、记录与通知不会回滚。
func (s *UploadService) Upload(ctx context.Context, in UploadInput) ([]repository.UploadRecord, error) {
	if len(in.Files) == 0 || in.Files[0].Content == nil {
		return nil, apperror.Validation(msgNoFile)
	}

	title := sanitize.Text(in.Title)
	description := sanitize.Text(in.Description)
	if title == "" || description == "" {
		return nil, apperror.Validation(msgMissingFields)
	}
	sentiment := optional(sanitize.Text(in.Sentiment))
	username := sanitize.Text(in.Username)

	if !s.sniffer.Available() {
		s.log.Error().Msg("mime detection unavailable, rejecting upload")
		return nil, apperror.Server(msgSniffUnavailable)
	}

	log := s.log.With().Str("user_id", in.OwnerID).Logger()
	audio := &audioSource{intake: s.audio, dataURL: in.AudioDataURL, file: in.AudioFile, header: in.AudioHeader}

	created := make([]repository.UploadRecord, 0, len(in.Files))
	for _, file := range in.Files {
		if file.Content == nil {
			continue
		}
		rec, err := s.uploadOne(ctx, log, file, audio, uploadMeta{
			owner:       in.OwnerID,
			username:    username,
			title:       title,
			description: description,
			sentiment:   sentiment,
		})
		if err != nil {
			uploadOutcomes.WithLabelValues(outcomeOf(err)).Inc()
			return created, err
		}
		uploadOutcomes.WithLabelValues("stored").Inc()
		created = append(created, *rec)
	}
	return created, nil
}

type uploadMeta struct {
	owner       string
	username    string
	title       string
	description string
	sentiment   *string
}

func (s *UploadService) uploadOne(ctx context.Context, log zerolog.Logger, file UploadFile, audio *audioSource, meta uploadMeta) (*repository.UploadRecord, error) {
	name := sanitize.Filename(file.Name)
	storedName := uuid.NewString() + "_" + name

	if err := s.validator.CheckExtension(name); err != nil {
		return nil, err
	}
	sniffed, err := s.sniffer.Sniff(file.Content)
	if err != nil {
		return nil, apperror.Wrap(apperror.KindInternal, err, msgUploadFailed)
	}
	size, err := s.validator.Validate(media.FileMeta{Name: name, Reader: file.Content}, sniffed)
	if err != nil {
		log.Info().Err(err).Str("file", name).Str("mime", sniffed).Msg("upload rejected")
		return nil, err
	}

	if _, err := s.store.Write(ctx, storedName, file.Content); err != nil {
		return nil, apperror.Wrap(apperror.KindInternal, err, msgUploadFailed)
	}

	audioName, err := s.storeAudio(ctx, audio, meta.title)
	if err != nil {
		return nil, err
	}

	rec, err := s.uploads.Create(ctx, &repository.UploadRecord{
		OwnerID:       meta.owner,
		Filename:      storedName,
		Title:         meta.title,
		Description:   meta.description,
		Sentiment:     meta.sentiment,
		AudioFilename: audioName,
	})
	if err != nil {
		return nil, apperror.Wrap(apperror.KindInternal, err, msgUploadFailed)
	}

	if _, err := s.notifications.Create(ctx, &repository.NotificationRecord{
		Type:      repository.NotificationTypeUpload,
		UserID:    meta.owner,
		Username:  meta.username,
		Filename:  storedName,
		Title:     meta.title,
		Sentiment: meta.sentiment,
	}); err != nil {
		return nil, apperror.Wrap(apperror.KindInternal, err, msgUploadFailed)
	}

	if err := s.events.Publish(ctx, events.UploadCreatedRoutingKey, events.UploadEvent{
		UploadID:  rec.ID,
		UserID:    meta.owner,
		Filename:  storedName,
		Title:     meta.title,
		MimeType:  sniffed,
		SizeBytes: size,
		HasAudio:  audioName != nil,
	}); err != nil {
		log.Warn().Err(err).Str("upload_id", rec.ID).Msg("publish upload event failed")
	}

	if media.IsPDF(storedName) {
		s.generateThumbnail(ctx, log, storedName)
	}

	log.Info().Str("upload_id", rec.ID).Str("file", storedName).Int64("bytes", size).Msg("upload stored")
	return rec, nil
}

// storeAudio 每个文件各保存一份音频副本，data URL 优先于文件。
func (s *UploadService) storeAudio(ctx context.Context, audio *audioSource, title string) (*string, error) {
	clip, err := audio.load()
	if err != nil || clip == nil {
		return nil, err
	}

	r, err := clip.Open()
	if err != nil {
		return nil, apperror.Wrap(apperror.KindInternal, err, msgUploadFailed)
	}
	name := s.audio.Filename(title, clip.MimeType)
	if _, err := s.store.Write(ctx, name, r); err != nil {
		return nil, apperror.Wrap(apperror.KindInternal, err, msgUploadFailed)
	}
	return &name, nil
}

// generateThumbnail 失败只记录日志，不影响上传结果。
func (s *UploadService) generateThumbnail(ctx context.Context, log zerolog.Logger, storedName string) {
	if s.thumbnailer == nil {
		return
	}
	rc, err := s.store.Read(ctx, storedName)
	if err != nil {
		log.Warn().Err(err).Str("file", storedName).Msg("read pdf for thumbnail failed")
		return
	}
	defer rc.Close()

	jpg, err := s.thumbnailer.Render(rc)
	if err != nil {
		log.Warn().Err(err).Str("file", storedName).Msg("render pdf thumbnail failed")
		return
	}
	if _, err := s.store.Write(ctx, media.ThumbnailKey(storedName), bytes.NewReader(jpg)); err != nil {
		log.Warn().Err(err).Str("file", storedName).Msg("store pdf thumbnail failed")
	}
}

// Edit 先确认记录存在，再校验所有权。
func (s *UploadService) Edit(ctx context.Context, actor auth.Identity, id string, in EditInput) error {
	title := sanitize.Text(in.Title)
	description := sanitize.Text(in.Description)
	if title == "" || description == "" {
		return apperror.Validation(msgMissingEditFields)
	}

	if _, err := s.ownedUpload(ctx, actor, id); err != nil {
		return err
	}

	changes := repository.UploadChanges{Title: title, Description: description}
	if in.Sentiment != nil {
		v := sanitize.Text(*in.Sentiment)
		changes.Sentiment = &v
	}
	if err := s.uploads.Update(ctx, id, changes); err != nil {
		return mapRepoError(err, "Failed to update image. Please try again.")
	}
	return nil
}

// Delete 删除存储对象、PDF 缩略图与关联音频后删除记录。对象缺失不视为错误。
func (s *UploadService) Delete(ctx context.Context, actor auth.Identity, id string) error {
	rec, err := s.ownedUpload(ctx, actor, id)
	if err != nil {
		return err
	}

	keys := []string{rec.Filename}
	if media.IsPDF(rec.Filename) {
		keys = append(keys, media.ThumbnailKey(rec.Filename))
	}
	if rec.AudioFilename != nil && *rec.AudioFilename != "" {
		keys = append(keys, *rec.AudioFilename)
	}
	for _, key := range keys {
		if err := s.store.Delete(ctx, key); err != nil && !errors.Is(err, storage.ErrNotFound) {
			return apperror.Wrap(apperror.KindInternal, err, "Failed to delete image. Please try again.")
		}
	}

	if err := s.uploads.Delete(ctx, id); err != nil {
		return mapRepoError(err, "Failed to delete image. Please try again.")
	}

	if err := s.events.Publish(ctx, events.UploadDeletedRoutingKey, events.UploadEvent{
		UploadID: rec.ID,
		UserID:   rec.OwnerID,
		Filename: rec.Filename,
		Title:    rec.Title,
	}); err != nil {
		s.log.Warn().Err(err).Str("upload_id", rec.ID).Msg("publish delete event failed")
	}
	return nil
}

// ListOwn 返回调用者自己的上传，page/pageSize 已由调用方夹紧。
func (s *UploadService) ListOwn(ctx context.Context, ownerID string, page, pageSize int) (*UploadPage, error) {
	total, err := s.uploads.CountByOwner(ctx, ownerID)
	if err != nil {
		return nil, apperror.Wrap(apperror.KindInternal, err, "Failed to fetch uploads. Please try again.")
	}
	items, err := s.uploads.ListByOwner(ctx, ownerID, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, apperror.Wrap(apperror.KindInternal, err, "Failed to fetch uploads. Please try again.")
	}
	return &UploadPage{
		Uploads:    items,
		TotalCount: total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: (total + pageSize - 1) / pageSize,
	}, nil
}

// OpenAudio 读取已保存的音频，文件名会先做安全化处理。
func (s *UploadService) OpenAudio(ctx context.Context, filename string) (io.ReadCloser, string, error) {
	name := sanitize.Filename(filename)
	if name == "" {
		return nil, "", apperror.NotFound("Audio not found.")
	}
	rc, err := s.store.Read(ctx, name)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, "", apperror.NotFound("Audio not found.")
		}
		return nil, "", apperror.Wrap(apperror.KindInternal, err, "Failed to read audio.")
	}
	return rc, name, nil
}

func (s *UploadService) ownedUpload(ctx context.Context, actor auth.Identity, id string) (*repository.UploadRecord, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, apperror.Validation(msgInvalidID)
	}
	rec, err := s.uploads.GetByID(ctx, id)
	if err != nil {
		return nil, mapRepoError(err, "Failed to load image. Please try again.")
	}
	if !auth.IsOwner(actor.ID, rec.OwnerID) {
		s.log.Info().Str("user_id", actor.ID).Str("upload_id", id).Msg("ownership check failed")
		return nil, apperror.Forbidden(msgNotOwner)
	}
	return rec, nil
}

// audioSource 延迟解析音频，并在同一请求的多个文件间复用解析结果。
type audioSource struct {
	intake  *media.AudioIntake
	dataURL string
	file    multipart.File
	header  *multipart.FileHeader

	loaded bool
	clip   *media.Audio
	err    error
}

func (a *audioSource) load() (*media.Audio, error) {
	if a.loaded {
		return a.clip, a.err
	}
	a.loaded = true
	switch {
	case a.dataURL != "":
		a.clip, a.err = a.intake.FromDataURL(a.dataURL)
	case a.file != nil:
		a.clip, a.err = a.intake.FromFile(a.file, a.header)
	}
	return a.clip, a.err
}

func mapRepoError(err error, fallback string) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return apperror.NotFound(msgNotFound)
	case errors.Is(err, repository.ErrInvalidID):
		return apperror.Validation(msgInvalidID)
	default:
		return apperror.Wrap(apperror.KindInternal, err, fallback)
	}
}

func outcomeOf(err error) string {
	switch apperror.As(err).Kind() {
	case apperror.KindValidation:
		return "rejected"
	case apperror.KindTooLarge:
		return "too_large"
	default:
		return "failed"
	}
}

func optional(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

// ClampPage 把分页参数夹到 [1, ∞) 与 [1, maxSize]。
func ClampPage(page, size, maxSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = 1
	}
	if maxSize > 0 && size > maxSize {
		size = maxSize
	}
	return page, size
}
