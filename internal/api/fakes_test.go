package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"beehive/internal/analysis"
	"beehive/internal/auth"
	"beehive/internal/repository"
	"beehive/internal/storage"
)

// tokenVerifier 把固定令牌映射到身份。
type tokenVerifier map[string]auth.Claims

func (v tokenVerifier) Verify(_ context.Context, token string) (*auth.Claims, error) {
	claims, ok := v[token]
	if !ok {
		return nil, auth.ErrUnverifiable
	}
	return &claims, nil
}

type uploadRepo struct {
	mu      sync.Mutex
	records map[string]*repository.UploadRecord
	seq     int
}

func (f *uploadRepo) Create(_ context.Context, record *repository.UploadRecord) (*repository.UploadRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	rec := *record
	rec.ID = fmt.Sprintf("00000000-0000-0000-0000-%012d", f.seq)
	rec.CreatedAt = time.Now().UTC()
	f.records[rec.ID] = &rec
	return &rec, nil
}

func (f *uploadRepo) GetByID(_ context.Context, id string) (*repository.UploadRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (f *uploadRepo) Update(_ context.Context, id string, changes repository.UploadChanges) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[id]
	if !ok {
		return repository.ErrNotFound
	}
	rec.Title, rec.Description = changes.Title, changes.Description
	if changes.Sentiment != nil {
		rec.Sentiment = changes.Sentiment
	}
	return nil
}

func (f *uploadRepo) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.records, id)
	return nil
}

func (f *uploadRepo) ListByOwner(_ context.Context, ownerID string, limit, offset int) ([]repository.UploadRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []repository.UploadRecord
	for _, rec := range f.records {
		if rec.OwnerID == ownerID {
			out = append(out, *rec)
		}
	}
	if offset >= len(out) {
		return nil, nil
	}
	if end := offset + limit; end < len(out) {
		out = out[:end]
	}
	return out[offset:], nil
}

func (f *uploadRepo) CountByOwner(_ context.Context, ownerID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, rec := range f.records {
		if rec.OwnerID == ownerID {
			n++
		}
	}
	return n, nil
}

type notificationRepo struct {
	records []repository.NotificationRecord
	marked  []string
}

func (f *notificationRepo) Create(_ context.Context, record *repository.NotificationRecord) (*repository.NotificationRecord, error) {
	rec := *record
	rec.ID = fmt.Sprintf("n-%d", len(f.records)+1)
	f.records = append(f.records, rec)
	return &rec, nil
}

func (f *notificationRepo) List(_ context.Context, limit, offset int) ([]repository.NotificationRecord, error) {
	return f.records, nil
}

func (f *notificationRepo) CountUnseen(context.Context) (int, error) {
	n := 0
	for _, rec := range f.records {
		if !rec.Seen {
			n++
		}
	}
	return n, nil
}

func (f *notificationRepo) MarkSeen(_ context.Context, ids []string) (int64, error) {
	for _, id := range ids {
		if id == "bad" {
			return 0, repository.ErrInvalidID
		}
	}
	f.marked = append(f.marked, ids...)
	return int64(len(ids)), nil
}

type messageRepo struct {
	created []repository.MessageRecord
}

func (f *messageRepo) Create(_ context.Context, record *repository.MessageRecord) (*repository.MessageRecord, error) {
	f.created = append(f.created, *record)
	return record, nil
}

func (f *messageRepo) ListConversation(_ context.Context, userID string) ([]repository.MessageRecord, error) {
	var out []repository.MessageRecord
	for _, m := range f.created {
		if m.FromID == userID || m.ToID == userID {
			out = append(out, m)
		}
	}
	return out, nil
}

type objectStore struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (m *objectStore) Write(_ context.Context, key string, r io.Reader) (storage.Location, error) {
	body, err := io.ReadAll(r)
	if err != nil {
		return storage.Location{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = body
	return storage.Location{Path: key}, nil
}

func (m *objectStore) Read(_ context.Context, key string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	body, ok := m.objects[key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(body)), nil
}

func (m *objectStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.objects[key]; !ok {
		return storage.ErrNotFound
	}
	delete(m.objects, key)
	return nil
}

type stubAnalyzer struct {
	got        analysis.Media
	suggestion *analysis.Suggestion
	err        error
}

func (s *stubAnalyzer) Analyze(_ context.Context, m analysis.Media) (*analysis.Suggestion, error) {
	s.got = m
	if s.err != nil {
		return nil, s.err
	}
	return s.suggestion, nil
}

var errUpstream = errors.New("upstream exploded")
