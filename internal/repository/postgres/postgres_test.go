package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"beehive/internal/repository"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const uploadID = "5b0a1f4e-2c7d-4f0e-9d55-0a8f6f1f2b3c"

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})
	return db, mock
}

func uploadRows() *sqlmock.Rows {
	return sqlmock.NewRows(uploadSelectColumns)
}

func strPtr(s string) *string { return &s }

func TestUploadRepository_Create(t *testing.T) {
	db, mock := newMock(t)
	repo := NewUploadRepository(db)
	now := time.Now().UTC()

	mock.ExpectQuery(`(?s)^INSERT\s+INTO\s+uploads\s+\(id,owner_id,filename,title,description,sentiment,audio_filename\).*RETURNING`).
		WithArgs(sqlmock.AnyArg(), "user_1", "abc_trip.jpg", "Trip", "Nice", "happy", nil).
		WillReturnRows(uploadRows().AddRow(uploadID, "user_1", "abc_trip.jpg", "Trip", "Nice", "happy", nil, now))

	rec, err := repo.Create(context.Background(), &repository.UploadRecord{
		OwnerID:     "user_1",
		Filename:    "abc_trip.jpg",
		Title:       "Trip",
		Description: "Nice",
		Sentiment:   strPtr("happy"),
	})
	require.NoError(t, err)
	assert.Equal(t, uploadID, rec.ID)
	assert.Equal(t, "happy", *rec.Sentiment)
	assert.Nil(t, rec.AudioFilename)
	assert.Equal(t, now, rec.CreatedAt)
}

func TestUploadRepository_GetByID(t *testing.T) {
	db, mock := newMock(t)
	repo := NewUploadRepository(db)

	t.Run("invalid id never reaches the database", func(t *testing.T) {
		_, err := repo.GetByID(context.Background(), "not-a-uuid")
		assert.ErrorIs(t, err, repository.ErrInvalidID)
	})

	t.Run("not found", func(t *testing.T) {
		mock.ExpectQuery(`SELECT .* FROM uploads WHERE id = \$1`).
			WithArgs(uploadID).
			WillReturnError(sql.ErrNoRows)

		_, err := repo.GetByID(context.Background(), uploadID)
		assert.ErrorIs(t, err, repository.ErrNotFound)
	})

	t.Run("found", func(t *testing.T) {
		mock.ExpectQuery(`SELECT .* FROM uploads WHERE id = \$1`).
			WithArgs(uploadID).
			WillReturnRows(uploadRows().AddRow(uploadID, "user_1", "abc_doc.pdf", "Doc", "Desc", nil, "memo_1.wav", time.Now()))

		rec, err := repo.GetByID(context.Background(), uploadID)
		require.NoError(t, err)
		assert.Equal(t, "memo_1.wav", *rec.AudioFilename)
		assert.Nil(t, rec.Sentiment)
	})
}

func TestUploadRepository_Update(t *testing.T) {
	db, mock := newMock(t)
	repo := NewUploadRepository(db)
	q := `UPDATE uploads SET title = \$1, description = \$2, sentiment = COALESCE\(\$3, sentiment\) WHERE id = \$4`

	mock.ExpectExec(q).
		WithArgs("New", "Better", nil, uploadID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.Update(context.Background(), uploadID, repository.UploadChanges{Title: "New", Description: "Better"}))

	mock.ExpectExec(q).
		WithArgs("New", "Better", "sad", uploadID).
		WillReturnResult(sqlmock.NewResult(0, 0))
	err := repo.Update(context.Background(), uploadID, repository.UploadChanges{Title: "New", Description: "Better", Sentiment: strPtr("sad")})
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestUploadRepository_Delete(t *testing.T) {
	db, mock := newMock(t)
	repo := NewUploadRepository(db)

	mock.ExpectExec(`DELETE FROM uploads WHERE id = \$1`).
		WithArgs(uploadID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.Delete(context.Background(), uploadID))

	mock.ExpectExec(`DELETE FROM uploads WHERE id = \$1`).
		WithArgs(uploadID).
		WillReturnError(errors.New("connection reset"))
	assert.EqualError(t, repo.Delete(context.Background(), uploadID), "connection reset")
}

func TestUploadRepository_ListAndCount(t *testing.T) {
	db, mock := newMock(t)
	repo := NewUploadRepository(db)

	mock.ExpectQuery(`SELECT .* FROM uploads WHERE owner_id = \$1 ORDER BY created_at DESC LIMIT \$2 OFFSET \$3`).
		WithArgs("user_1", 12, 24).
		WillReturnRows(uploadRows().
			AddRow(uploadID, "user_1", "a_x.png", "X", "x", nil, nil, time.Now()).
			AddRow("6c1b2f5e-3d8e-4f1f-8e66-1b9a7a2a3c4d", "user_1", "b_y.png", "Y", "y", nil, nil, time.Now()))

	list, err := repo.ListByOwner(context.Background(), "user_1", 12, 24)
	require.NoError(t, err)
	assert.Len(t, list, 2)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM uploads WHERE owner_id = \$1`).
		WithArgs("user_1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(26))

	total, err := repo.CountByOwner(context.Background(), "user_1")
	require.NoError(t, err)
	assert.Equal(t, 26, total)
}

func TestNotificationRepository(t *testing.T) {
	db, mock := newMock(t)
	repo := NewNotificationRepository(db)
	ctx := context.Background()

	mock.ExpectQuery(`(?s)INSERT INTO notifications .*RETURNING`).
		WithArgs(sqlmock.AnyArg(), "upload", "user_1", "alice", "abc_trip.jpg", "Trip", nil).
		WillReturnRows(sqlmock.NewRows(notificationSelectColumns).
			AddRow(uploadID, "upload", "user_1", "alice", "abc_trip.jpg", "Trip", nil, time.Now(), false))

	rec, err := repo.Create(ctx, &repository.NotificationRecord{UserID: "user_1", Username: "alice", Filename: "abc_trip.jpg", Title: "Trip"})
	require.NoError(t, err)
	assert.False(t, rec.Seen)

	mock.ExpectQuery(`SELECT .* FROM notifications ORDER BY created_at DESC LIMIT \$1 OFFSET \$2`).
		WithArgs(5, 5).
		WillReturnRows(sqlmock.NewRows(notificationSelectColumns))
	list, err := repo.List(ctx, 5, 5)
	require.NoError(t, err)
	assert.Empty(t, list)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM notifications WHERE seen = FALSE`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))
	unseen, err := repo.CountUnseen(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, unseen)
}

func TestNotificationRepository_MarkSeen(t *testing.T) {
	db, mock := newMock(t)
	repo := NewNotificationRepository(db)
	ctx := context.Background()
	other := "6c1b2f5e-3d8e-4f1f-8e66-1b9a7a2a3c4d"

	n, err := repo.MarkSeen(ctx, nil)
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = repo.MarkSeen(ctx, []string{uploadID, "bogus"})
	assert.ErrorIs(t, err, repository.ErrInvalidID)

	mock.ExpectExec(`UPDATE notifications SET seen = TRUE WHERE id IN \(\$1,\$2\)`).
		WithArgs(uploadID, other).
		WillReturnResult(sqlmock.NewResult(0, 2))
	n, err = repo.MarkSeen(ctx, []string{uploadID, other})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestMessageRepository(t *testing.T) {
	db, mock := newMock(t)
	repo := NewMessageRepository(db)
	ctx := context.Background()

	mock.ExpectQuery(`(?s)INSERT INTO messages .*RETURNING`).
		WithArgs(sqlmock.AnyArg(), "user_1", "user", "", "admin", "hello").
		WillReturnRows(sqlmock.NewRows(messageSelectColumns).
			AddRow(uploadID, "user_1", "user", "", "admin", "hello", time.Now()))
	_, err := repo.Create(ctx, &repository.MessageRecord{FromID: "user_1", FromRole: "user", ToRole: "admin", Content: "hello"})
	require.NoError(t, err)

	mock.ExpectQuery(`(?s)SELECT .* FROM messages\s+WHERE \(from_id = \$1 AND to_role = \$2\) OR \(to_id = \$1 AND from_role = \$2\)\s+ORDER BY created_at ASC`).
		WithArgs("user_1", "admin").
		WillReturnRows(sqlmock.NewRows(messageSelectColumns).
			AddRow(uploadID, "user_1", "user", "", "admin", "hello", time.Now()).
			AddRow("6c1b2f5e-3d8e-4f1f-8e66-1b9a7a2a3c4d", "admin_1", "admin", "user_1", "user", "hi", time.Now()))

	thread, err := repo.ListConversation(ctx, "user_1")
	require.NoError(t, err)
	require.Len(t, thread, 2)
	assert.Equal(t, "admin", thread[1].FromRole)
}

func TestPlaceholders(t *testing.T) {
	assert.Equal(t, "$3,$4,$5", placeholders(3, 3))
	assert.Equal(t, "", placeholders(1, 0))
}
