package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"beehive/internal/events"
	"beehive/internal/repository"
	"beehive/internal/storage"
)

type fakeUploadRepo struct {
	mu        sync.Mutex
	records   map[string]*repository.UploadRecord
	seq       int
	createErr error
	updated   []repository.UploadChanges
}

func newFakeUploadRepo() *fakeUploadRepo {
	return &fakeUploadRepo{records: map[string]*repository.UploadRecord{}}
}

func (f *fakeUploadRepo) Create(ctx context.Context, record *repository.UploadRecord) (*repository.UploadRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.seq++
	rec := *record
	rec.ID = fmt.Sprintf("00000000-0000-0000-0000-%012d", f.seq)
	rec.CreatedAt = time.Date(2026, 1, 1, 0, 0, f.seq, 0, time.UTC)
	f.records[rec.ID] = &rec
	return &rec, nil
}

func (f *fakeUploadRepo) GetByID(ctx context.Context, id string) (*repository.UploadRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (f *fakeUploadRepo) Update(ctx context.Context, id string, changes repository.UploadChanges) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[id]
	if !ok {
		return repository.ErrNotFound
	}
	f.updated = append(f.updated, changes)
	rec.Title = changes.Title
	rec.Description = changes.Description
	if changes.Sentiment != nil {
		rec.Sentiment = changes.Sentiment
	}
	return nil
}

func (f *fakeUploadRepo) Delete(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.records[id]; !ok {
		return repository.ErrNotFound
	}
	delete(f.records, id)
	return nil
}

func (f *fakeUploadRepo) owned(ownerID string) []repository.UploadRecord {
	var out []repository.UploadRecord
	for _, rec := range f.records {
		if rec.OwnerID == ownerID {
			out = append(out, *rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (f *fakeUploadRepo) ListByOwner(ctx context.Context, ownerID string, limit, offset int) ([]repository.UploadRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	all := f.owned(ownerID)
	if offset >= len(all) {
		return []repository.UploadRecord{}, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], nil
}

func (f *fakeUploadRepo) CountByOwner(ctx context.Context, ownerID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.owned(ownerID)), nil
}

type fakeNotificationRepo struct {
	records []repository.NotificationRecord
	listErr error
	markErr error
	marked  []string
	limit   int
	offset  int
	unseen  int
}

func (f *fakeNotificationRepo) Create(ctx context.Context, record *repository.NotificationRecord) (*repository.NotificationRecord, error) {
	rec := *record
	rec.ID = fmt.Sprintf("n-%d", len(f.records)+1)
	f.records = append(f.records, rec)
	return &rec, nil
}

func (f *fakeNotificationRepo) List(ctx context.Context, limit, offset int) ([]repository.NotificationRecord, error) {
	f.limit, f.offset = limit, offset
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.records, nil
}

func (f *fakeNotificationRepo) CountUnseen(ctx context.Context) (int, error) {
	return f.unseen, nil
}

func (f *fakeNotificationRepo) MarkSeen(ctx context.Context, ids []string) (int64, error) {
	if f.markErr != nil {
		return 0, f.markErr
	}
	f.marked = append(f.marked, ids...)
	return int64(len(ids)), nil
}

type fakeMessageRepo struct {
	created   []repository.MessageRecord
	requested string
	err       error
}

func (f *fakeMessageRepo) Create(ctx context.Context, record *repository.MessageRecord) (*repository.MessageRecord, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.created = append(f.created, *record)
	return record, nil
}

func (f *fakeMessageRepo) ListConversation(ctx context.Context, userID string) ([]repository.MessageRecord, error) {
	f.requested = userID
	if f.err != nil {
		return nil, f.err
	}
	return nil, nil
}

// memStore 是内存对象存储。
type memStore struct {
	mu        sync.Mutex
	objects   map[string][]byte
	writeErr  error
	deleteErr error
	deleted   []string
}

func newMemStore() *memStore {
	return &memStore{objects: map[string][]byte{}}
}

func (m *memStore) Write(ctx context.Context, key string, r io.Reader) (storage.Location, error) {
	if m.writeErr != nil {
		return storage.Location{}, m.writeErr
	}
	body, err := io.ReadAll(r)
	if err != nil {
		return storage.Location{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = body
	return storage.Location{Path: key}, nil
}

func (m *memStore) Read(ctx context.Context, key string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	body, ok := m.objects[key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(body)), nil
}

func (m *memStore) Delete(ctx context.Context, key string) error {
	if m.deleteErr != nil {
		return m.deleteErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted = append(m.deleted, key)
	if _, ok := m.objects[key]; !ok {
		return storage.ErrNotFound
	}
	delete(m.objects, key)
	return nil
}

func (m *memStore) keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.objects))
	for k := range m.objects {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

type recordingPublisher struct {
	keys []string
	err  error
}

func (p *recordingPublisher) Publish(ctx context.Context, routingKey string, event events.UploadEvent) error {
	p.keys = append(p.keys, routingKey)
	return p.err
}

func (p *recordingPublisher) Close() error { return nil }

type stubThumbnailer struct {
	calls int
	err   error
}

func (s *stubThumbnailer) Render(r io.Reader) ([]byte, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return []byte{0xFF, 0xD8, 0xFF, 0xD9}, nil
}

var errBoom = errors.New("boom")
