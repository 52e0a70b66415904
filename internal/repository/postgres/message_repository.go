package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"beehive/internal/repository"
)

func NewMessageRepository(db *sql.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

type MessageRepository struct {
	db *sql.DB
}

const adminRole = "admin"

var messageSelectColumns = []string{"id", "from_id", "from_role", "to_id", "to_role", "content", "created_at"}

func (r *MessageRepository) Create(ctx context.Context, record *repository.MessageRecord) (*repository.MessageRecord, error) {
	if record == nil {
		return nil, fmt.Errorf("message record is nil")
	}

	query := fmt.Sprintf(`INSERT INTO messages (id, from_id, from_role, to_id, to_role, content)
	VALUES ($1,$2,$3,$4,$5,$6)
	RETURNING %s`, columns(messageSelectColumns))

	return scanMessage(r.db.QueryRowContext(ctx, query,
		newID(record.ID),
		record.FromID,
		record.FromRole,
		record.ToID,
		record.ToRole,
		record.Content,
	))
}

func (r *MessageRepository) ListConversation(ctx context.Context, userID string) ([]repository.MessageRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM messages
	WHERE (from_id = $1 AND to_role = $2) OR (to_id = $1 AND from_role = $2)
	ORDER BY created_at ASC`, columns(messageSelectColumns))

	rows, err := r.db.QueryContext(ctx, query, userID, adminRole)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []repository.MessageRecord
	for rows.Next() {
		rec, err := scanMessage(rows)
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

func scanMessage(rs rowScanner) (*repository.MessageRecord, error) {
	var rec repository.MessageRecord
	if err := rs.Scan(
		&rec.ID,
		&rec.FromID,
		&rec.FromRole,
		&rec.ToID,
		&rec.ToRole,
		&rec.Content,
		&rec.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &rec, nil
}
