package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"beehive/internal/repository"
)

func NewNotificationRepository(db *sql.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// NotificationRepository 实现 repository.NotificationRepository。
type NotificationRepository struct {
	db *sql.DB
}

var notificationSelectColumns = []string{
	"id",
	"type",
	"user_id",
	"username",
	"filename",
	"title",
	"sentiment",
	"created_at",
	"seen",
}

func (r *NotificationRepository) Create(ctx context.Context, record *repository.NotificationRecord) (*repository.NotificationRecord, error) {
	if record == nil {
		return nil, fmt.Errorf("notification record is nil")
	}
	kind := record.Type
	if kind == "" {
		kind = repository.NotificationTypeUpload
	}

	query := fmt.Sprintf(`INSERT INTO notifications (id, type, user_id, username, filename, title, sentiment)
	VALUES ($1,$2,$3,$4,$5,$6,$7)
	RETURNING %s`, columns(notificationSelectColumns))

	return scanNotification(r.db.QueryRowContext(
		ctx,
		query,
		newID(record.ID),
		kind,
		record.UserID,
		record.Username,
		record.Filename,
		record.Title,
		nullString(record.Sentiment),
	))
}

// List 按时间倒序分页。
func (r *NotificationRepository) List(ctx context.Context, limit, offset int) ([]repository.NotificationRecord, error) {
	if limit <= 0 {
		limit = 5
	}
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(`SELECT %s FROM notifications ORDER BY created_at DESC LIMIT $1 OFFSET $2`,
		columns(notificationSelectColumns))
	rows, err := r.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]repository.NotificationRecord, 0, limit)
	for rows.Next() {
		rec, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *NotificationRepository) CountUnseen(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM notifications WHERE seen = FALSE`).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// MarkSeen 批量标记已读，任一 ID 非法时整体拒绝。
func (r *NotificationRepository) MarkSeen(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	args := make([]any, len(ids))
	for i, raw := range ids {
		id, err := parseID(raw)
		if err != nil {
			return 0, err
		}
		args[i] = id
	}

	query := fmt.Sprintf(`UPDATE notifications SET seen = TRUE WHERE id IN (%s)`, placeholders(1, len(args)))
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func scanNotification(rs rowScanner) (*repository.NotificationRecord, error) {
	var (
		rec       repository.NotificationRecord
		sentiment sql.NullString
	)
	if err := rs.Scan(
		&rec.ID,
		&rec.Type,
		&rec.UserID,
		&rec.Username,
		&rec.Filename,
		&rec.Title,
		&sentiment,
		&rec.CreatedAt,
		&rec.Seen,
	); err != nil {
		return nil, err
	}
	rec.Sentiment = stringPtr(sentiment)
	return &rec, nil
}
