package service

import (
	"bytes"
	"context"
	"encoding/base64"
	"net/http"
	"strings"
	"testing"

	"beehive/internal/apperror"
	"beehive/internal/auth"
	"beehive/internal/events"
	"beehive/internal/media"
	"beehive/internal/repository"
	"beehive/internal/testutil"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type uploadFixture struct {
	svc           *UploadService
	uploads       *fakeUploadRepo
	notifications *fakeNotificationRepo
	store         *memStore
	events        *recordingPublisher
	thumbs        *stubThumbnailer
}

func newUploadFixture(t *testing.T, detector media.Detector) *uploadFixture {
	t.Helper()
	f := &uploadFixture{
		uploads:       newFakeUploadRepo(),
		notifications: &fakeNotificationRepo{},
		store:         newMemStore(),
		events:        &recordingPublisher{},
		thumbs:        &stubThumbnailer{},
	}
	sniffer := media.NewSniffer(detector, zerolog.Nop())
	f.svc = NewUploadService(UploadDeps{
		Uploads:       f.uploads,
		Notifications: f.notifications,
		Store:         f.store,
		Sniffer:       sniffer,
		Audio:         media.NewAudioIntake(sniffer),
		Thumbnailer:   f.thumbs,
		Events:        f.events,
		Logger:        zerolog.Nop(),
	})
	return f
}

func basicInput(files ...UploadFile) UploadInput {
	return UploadInput{
		OwnerID:     "user_1",
		Username:    "alice",
		Title:       "Trip",
		Description: "Nice",
		Files:       files,
	}
}

func file(name string, data []byte) UploadFile {
	return UploadFile{Name: name, Content: bytes.NewReader(data)}
}

func TestUpload_StoresFileRecordAndNotification(t *testing.T) {
	f := newUploadFixture(t, media.NewMimetypeDetector())
	jpg := testutil.JPEG(t, 2*1024*1024)

	in := basicInput(file("trip.jpg", jpg))
	in.Title = "<b>Trip</b>"
	in.Sentiment = "positive"
	created, err := f.svc.Upload(context.Background(), in)
	require.NoError(t, err)
	require.Len(t, created, 1)

	rec := created[0]
	assert.Equal(t, "user_1", rec.OwnerID)
	assert.Equal(t, "Trip", rec.Title)
	assert.True(t, strings.HasSuffix(rec.Filename, "_trip.jpg"))
	require.NotNil(t, rec.Sentiment)
	assert.Equal(t, "positive", *rec.Sentiment)
	assert.Nil(t, rec.AudioFilename)

	assert.Equal(t, []string{rec.Filename}, f.store.keys())
	assert.Equal(t, jpg, f.store.objects[rec.Filename])

	require.Len(t, f.notifications.records, 1)
	n := f.notifications.records[0]
	assert.Equal(t, repository.NotificationTypeUpload, n.Type)
	assert.Equal(t, "alice", n.Username)
	assert.Equal(t, rec.Filename, n.Filename)

	assert.Equal(t, []string{events.UploadCreatedRoutingKey}, f.events.keys)
	assert.Zero(t, f.thumbs.calls)
}

func TestUpload_RejectsBeforeTouchingStorage(t *testing.T) {
	tests := []struct {
		name    string
		input   UploadInput
		status  int
		message string
	}{
		{
			name:    "no files",
			input:   basicInput(),
			status:  http.StatusBadRequest,
			message: "No file selected",
		},
		{
			name: "missing title",
			input: func() UploadInput {
				in := basicInput(file("a.png", nil))
				in.Title = "  "
				return in
			}(),
			status:  http.StatusBadRequest,
			message: "Title and description are required",
		},
		{
			name:    "extension not allowed",
			input:   basicInput(file("notes.txt", []byte("hello"))),
			status:  http.StatusBadRequest,
			message: "File type not allowed",
		},
		{
			name:    "content does not match an allowed type",
			input:   basicInput(file("fake.jpg", []byte("just some text pretending to be a jpeg"))),
			status:  http.StatusBadRequest,
			message: "File content validation failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newUploadFixture(t, media.NewMimetypeDetector())
			_, err := f.svc.Upload(context.Background(), tt.input)
			require.Error(t, err)
			assert.Equal(t, tt.status, apperror.Status(err))
			assert.Contains(t, apperror.As(err).Message(), tt.message)
			assert.Empty(t, f.store.keys())
			assert.Empty(t, f.notifications.records)
		})
	}
}

func TestUpload_TooLarge(t *testing.T) {
	f := newUploadFixture(t, media.NewMimetypeDetector())
	_, err := f.svc.Upload(context.Background(), basicInput(file("big.png", testutil.PNG(t, 10*1024*1024+1))))
	require.Error(t, err)
	assert.Equal(t, http.StatusRequestEntityTooLarge, apperror.Status(err))
	assert.Contains(t, err.Error(), "(10MB)")
}

func TestUpload_SnifferUnavailable(t *testing.T) {
	f := newUploadFixture(t, nil)
	_, err := f.svc.Upload(context.Background(), basicInput(file("trip.jpg", testutil.JPEG(t, 0))))
	require.Error(t, err)
	assert.Equal(t, http.StatusInternalServerError, apperror.Status(err))
	assert.True(t, apperror.As(err).Public())
	assert.Empty(t, f.store.keys())
}

func TestUpload_StopsAtFirstInvalidFileWithoutRollback(t *testing.T) {
	f := newUploadFixture(t, media.NewMimetypeDetector())
	in := basicInput(
		file("ok.png", testutil.PNG(t, 0)),
		file("bad.gif", []byte("not a gif")),
		file("never.png", testutil.PNG(t, 0)),
	)

	created, err := f.svc.Upload(context.Background(), in)
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, apperror.Status(err))
	require.Len(t, created, 1)
	assert.Len(t, f.uploads.records, 1)
	assert.Len(t, f.notifications.records, 1)
	assert.Len(t, f.store.keys(), 1)
}

func TestUpload_AudioDataURLStoredPerFile(t *testing.T) {
	f := newUploadFixture(t, media.NewMimetypeDetector())
	in := basicInput(file("a.png", testutil.PNG(t, 0)), file("b.png", testutil.PNG(t, 0)))
	in.AudioDataURL = "data:audio/wav;base64," + base64.StdEncoding.EncodeToString(testutil.WAV(64))

	created, err := f.svc.Upload(context.Background(), in)
	require.NoError(t, err)
	require.Len(t, created, 2)

	require.NotNil(t, created[0].AudioFilename)
	require.NotNil(t, created[1].AudioFilename)
	assert.NotEqual(t, *created[0].AudioFilename, *created[1].AudioFilename)
	for _, rec := range created {
		assert.True(t, strings.HasPrefix(*rec.AudioFilename, "Trip_"))
		assert.True(t, strings.HasSuffix(*rec.AudioFilename, ".wav"))
		assert.Equal(t, testutil.WAV(64), f.store.objects[*rec.AudioFilename])
	}
}

func TestUpload_InvalidAudioAbortsAfterFileWritten(t *testing.T) {
	f := newUploadFixture(t, media.NewMimetypeDetector())
	in := basicInput(file("a.png", testutil.PNG(t, 0)))
	in.AudioDataURL = "data:audio/mpeg;base64,AAAA"

	_, err := f.svc.Upload(context.Background(), in)
	require.Error(t, err)
	assert.Equal(t, "Unsupported audio MIME type", apperror.As(err).Message())
	assert.Empty(t, f.uploads.records)
}

func TestUpload_PDFGetsThumbnail(t *testing.T) {
	f := newUploadFixture(t, media.NewMimetypeDetector())
	created, err := f.svc.Upload(context.Background(), basicInput(file("doc.pdf", testutil.PDF())))
	require.NoError(t, err)
	require.Len(t, created, 1)

	assert.Equal(t, 1, f.thumbs.calls)
	_, ok := f.store.objects[media.ThumbnailKey(created[0].Filename)]
	assert.True(t, ok)
}

func TestUpload_ThumbnailFailureIsNotFatal(t *testing.T) {
	f := newUploadFixture(t, media.NewMimetypeDetector())
	f.thumbs.err = errBoom
	created, err := f.svc.Upload(context.Background(), basicInput(file("doc.pdf", testutil.PDF())))
	require.NoError(t, err)
	assert.Len(t, created, 1)
	assert.Len(t, f.store.keys(), 1)
}

func TestUpload_PublishFailureIsNotFatal(t *testing.T) {
	f := newUploadFixture(t, media.NewMimetypeDetector())
	f.events.err = errBoom
	created, err := f.svc.Upload(context.Background(), basicInput(file("a.png", testutil.PNG(t, 0))))
	require.NoError(t, err)
	assert.Len(t, created, 1)
}

func TestUpload_StorageFailureIsInternal(t *testing.T) {
	f := newUploadFixture(t, media.NewMimetypeDetector())
	f.store.writeErr = errBoom
	_, err := f.svc.Upload(context.Background(), basicInput(file("a.png", testutil.PNG(t, 0))))
	require.Error(t, err)
	assert.Equal(t, http.StatusInternalServerError, apperror.Status(err))
	assert.False(t, apperror.As(err).Public())
}

func seedUpload(t *testing.T, f *uploadFixture, owner, filename string, audio *string) repository.UploadRecord {
	t.Helper()
	rec, err := f.uploads.Create(context.Background(), &repository.UploadRecord{
		OwnerID: owner, Filename: filename, Title: "T", Description: "D", AudioFilename: audio,
	})
	require.NoError(t, err)
	f.store.objects[filename] = []byte("x")
	return *rec
}

func TestEdit(t *testing.T) {
	owner := auth.Identity{ID: "user_1", Role: auth.RoleUser}

	t.Run("owner updates and keeps sentiment when absent", func(t *testing.T) {
		f := newUploadFixture(t, media.NewMimetypeDetector())
		rec := seedUpload(t, f, "user_1", "id_a.png", nil)
		pos := "positive"
		f.uploads.records[rec.ID].Sentiment = &pos

		err := f.svc.Edit(context.Background(), owner, rec.ID, EditInput{Title: "New", Description: "<i>Desc</i>"})
		require.NoError(t, err)

		got := f.uploads.records[rec.ID]
		assert.Equal(t, "New", got.Title)
		assert.Equal(t, "Desc", got.Description)
		require.NotNil(t, got.Sentiment)
		assert.Equal(t, "positive", *got.Sentiment)
	})

	t.Run("explicit empty sentiment clears it", func(t *testing.T) {
		f := newUploadFixture(t, media.NewMimetypeDetector())
		rec := seedUpload(t, f, "user_1", "id_a.png", nil)
		empty := ""
		require.NoError(t, f.svc.Edit(context.Background(), owner, rec.ID, EditInput{Title: "a", Description: "b", Sentiment: &empty}))
		require.Len(t, f.uploads.updated, 1)
		require.NotNil(t, f.uploads.updated[0].Sentiment)
		assert.Equal(t, "", *f.uploads.updated[0].Sentiment)
	})

	tests := []struct {
		name   string
		actor  auth.Identity
		id     func(rec repository.UploadRecord) string
		input  EditInput
		status int
	}{
		{"not owner", auth.Identity{ID: "user_2"}, func(r repository.UploadRecord) string { return r.ID }, EditInput{Title: "a", Description: "b"}, http.StatusForbidden},
		{"admin is not owner", auth.Identity{ID: "admin_1", Role: auth.RoleAdmin}, func(r repository.UploadRecord) string { return r.ID }, EditInput{Title: "a", Description: "b"}, http.StatusForbidden},
		{"missing", owner, func(repository.UploadRecord) string { return "11111111-1111-1111-1111-111111111111" }, EditInput{Title: "a", Description: "b"}, http.StatusNotFound},
		{"bad id", owner, func(repository.UploadRecord) string { return "not-a-uuid" }, EditInput{Title: "a", Description: "b"}, http.StatusBadRequest},
		{"empty title", owner, func(r repository.UploadRecord) string { return r.ID }, EditInput{Title: "", Description: "b"}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newUploadFixture(t, media.NewMimetypeDetector())
			rec := seedUpload(t, f, "user_1", "id_a.png", nil)
			err := f.svc.Edit(context.Background(), tt.actor, tt.id(rec), tt.input)
			require.Error(t, err)
			assert.Equal(t, tt.status, apperror.Status(err))
			assert.Equal(t, "T", f.uploads.records[rec.ID].Title)
		})
	}
}

func TestDelete_RemovesObjectsThenRecord(t *testing.T) {
	f := newUploadFixture(t, media.NewMimetypeDetector())
	audio := "Trip_abc.wav"
	rec := seedUpload(t, f, "user_1", "id_doc.pdf", &audio)
	f.store.objects[audio] = []byte("a")
	f.store.objects[media.ThumbnailKey(rec.Filename)] = []byte("t")

	err := f.svc.Delete(context.Background(), auth.Identity{ID: "user_1"}, rec.ID)
	require.NoError(t, err)

	assert.Equal(t, []string{"id_doc.pdf", "thumbnails/id_doc.jpg", audio}, f.store.deleted)
	assert.Empty(t, f.store.keys())
	assert.Empty(t, f.uploads.records)
	assert.Equal(t, []string{events.UploadDeletedRoutingKey}, f.events.keys)
}

func TestDelete_ToleratesMissingObjects(t *testing.T) {
	f := newUploadFixture(t, media.NewMimetypeDetector())
	rec := seedUpload(t, f, "user_1", "id_a.png", nil)
	delete(f.store.objects, rec.Filename)

	require.NoError(t, f.svc.Delete(context.Background(), auth.Identity{ID: "user_1"}, rec.ID))
	assert.Empty(t, f.uploads.records)
}

func TestDelete_Errors(t *testing.T) {
	t.Run("not owner keeps everything", func(t *testing.T) {
		f := newUploadFixture(t, media.NewMimetypeDetector())
		rec := seedUpload(t, f, "user_1", "id_a.png", nil)
		err := f.svc.Delete(context.Background(), auth.Identity{ID: "user_2"}, rec.ID)
		assert.Equal(t, http.StatusForbidden, apperror.Status(err))
		assert.Len(t, f.uploads.records, 1)
		assert.Empty(t, f.store.deleted)
	})

	t.Run("storage failure keeps record", func(t *testing.T) {
		f := newUploadFixture(t, media.NewMimetypeDetector())
		rec := seedUpload(t, f, "user_1", "id_a.png", nil)
		f.store.deleteErr = errBoom
		err := f.svc.Delete(context.Background(), auth.Identity{ID: "user_1"}, rec.ID)
		assert.Equal(t, http.StatusInternalServerError, apperror.Status(err))
		assert.Equal(t, "Failed to delete image. Please try again.", apperror.As(err).Message())
		assert.Len(t, f.uploads.records, 1)
	})
}

func TestListOwn_Paginates(t *testing.T) {
	f := newUploadFixture(t, media.NewMimetypeDetector())
	for i := 0; i < 15; i++ {
		seedUpload(t, f, "user_1", "f.png", nil)
	}
	seedUpload(t, f, "user_2", "other.png", nil)

	page, err := f.svc.ListOwn(context.Background(), "user_1", 2, 12)
	require.NoError(t, err)
	assert.Equal(t, 15, page.TotalCount)
	assert.Equal(t, 2, page.TotalPages)
	assert.Len(t, page.Uploads, 3)
	for _, rec := range page.Uploads {
		assert.Equal(t, "user_1", rec.OwnerID)
	}

	empty, err := f.svc.ListOwn(context.Background(), "nobody", 1, 12)
	require.NoError(t, err)
	assert.Zero(t, empty.TotalPages)
	assert.Empty(t, empty.Uploads)
}

func TestClampPage(t *testing.T) {
	tests := []struct {
		page, size, wantPage, wantSize int
	}{
		{1, 12, 1, 12},
		{0, 0, 1, 1},
		{-3, 500, 1, 50},
		{4, 50, 4, 50},
	}
	for _, tt := range tests {
		p, s := ClampPage(tt.page, tt.size, 50)
		assert.Equal(t, tt.wantPage, p)
		assert.Equal(t, tt.wantSize, s)
	}
}

func TestOpenAudio(t *testing.T) {
	f := newUploadFixture(t, media.NewMimetypeDetector())
	f.store.objects["clip_1.webm"] = []byte("webm")

	rc, name, err := f.svc.OpenAudio(context.Background(), "clip_1.webm")
	require.NoError(t, err)
	defer rc.Close()
	assert.Equal(t, "clip_1.webm", name)

	_, _, err = f.svc.OpenAudio(context.Background(), "../../etc/passwd")
	assert.Equal(t, http.StatusNotFound, apperror.Status(err))
}
