package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"beehive/internal/repository"
)

// NewUploadRepository 返回基于 *sql.DB 的 Postgres 实现。
func NewUploadRepository(db *sql.DB) *UploadRepository {
	return &UploadRepository{db: db}
}

// UploadRepository 实现 repository.UploadRepository。
type UploadRepository struct {
	db *sql.DB
}

var uploadSelectColumns = []string{
	"id",
	"owner_id",
	"filename",
	"title",
	"description",
	"sentiment",
	"audio_filename",
	"created_at",
}

var uploadInsertColumns = uploadSelectColumns[:len(uploadSelectColumns)-1]

// Create 插入上传记录并返回数据库生成的时间戳。
func (r *UploadRepository) Create(ctx context.Context, record *repository.UploadRecord) (*repository.UploadRecord, error) {
	if record == nil {
		return nil, fmt.Errorf("upload record is nil")
	}

	query := fmt.Sprintf(`INSERT INTO uploads (%s)
	VALUES (%s)
	RETURNING %s`,
		columns(uploadInsertColumns),
		placeholders(1, len(uploadInsertColumns)),
		columns(uploadSelectColumns),
	)

	row := r.db.QueryRowContext(
		ctx,
		query,
		newID(record.ID),
		record.OwnerID,
		record.Filename,
		record.Title,
		record.Description,
		nullString(record.Sentiment),
		nullString(record.AudioFilename),
	)
	return scanUpload(row)
}

// GetByID 通过主键查询上传记录。
func (r *UploadRepository) GetByID(ctx context.Context, id string) (*repository.UploadRecord, error) {
	id, err := parseID(id)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`SELECT %s FROM uploads WHERE id = $1`, columns(uploadSelectColumns))
	rec, err := scanUpload(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return rec, nil
}

// Update 只修改标题、描述与（可选的）情感标签。
func (r *UploadRepository) Update(ctx context.Context, id string, changes repository.UploadChanges) error {
	id, err := parseID(id)
	if err != nil {
		return err
	}

	query := `UPDATE uploads SET title = $1, description = $2, sentiment = COALESCE($3, sentiment) WHERE id = $4`
	res, err := r.db.ExecContext(ctx, query, changes.Title, changes.Description, nullString(changes.Sentiment), id)
	if err != nil {
		return err
	}
	return affectedOrNotFound(res)
}

func (r *UploadRepository) Delete(ctx context.Context, id string) error {
	id, err := parseID(id)
	if err != nil {
		return err
	}

	res, err := r.db.ExecContext(ctx, `DELETE FROM uploads WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return affectedOrNotFound(res)
}

// ListByOwner 按创建时间倒序分页。
func (r *UploadRepository) ListByOwner(ctx context.Context, ownerID string, limit, offset int) ([]repository.UploadRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(`SELECT %s FROM uploads WHERE owner_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		columns(uploadSelectColumns))
	rows, err := r.db.QueryContext(ctx, query, ownerID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]repository.UploadRecord, 0, limit)
	for rows.Next() {
		rec, err := scanUpload(rows)
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

func (r *UploadRepository) CountByOwner(ctx context.Context, ownerID string) (int, error) {
	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM uploads WHERE owner_id = $1`, ownerID).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

func scanUpload(rs rowScanner) (*repository.UploadRecord, error) {
	var (
		rec       repository.UploadRecord
		sentiment sql.NullString
		audio     sql.NullString
	)
	if err := rs.Scan(
		&rec.ID,
		&rec.OwnerID,
		&rec.Filename,
		&rec.Title,
		&rec.Description,
		&sentiment,
		&audio,
		&rec.CreatedAt,
	); err != nil {
		return nil, err
	}
	rec.Sentiment = stringPtr(sentiment)
	rec.AudioFilename = stringPtr(audio)
	return &rec, nil
}
