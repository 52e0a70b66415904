package postgres

import (
	"database/sql"
	"fmt"
	"strings"

	"beehive/internal/repository"

	"github.com/google/uuid"
)

type rowScanner interface {
	Scan(dest ...any) error
}

// placeholders 生成 "$start,$start+1,..." 共 n 个占位符。
func placeholders(start, n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = fmt.Sprintf("$%d", start+i)
	}
	return strings.Join(parts, ",")
}

func columns(cols []string) string {
	return strings.Join(cols, ",")
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}

// parseID 校验 UUID 主键，避免把非法输入交给数据库报类型错误。
func parseID(id string) (string, error) {
	parsed, err := uuid.Parse(strings.TrimSpace(id))
	if err != nil {
		return "", repository.ErrInvalidID
	}
	return parsed.String(), nil
}

func newID(id string) string {
	if id != "" {
		return id
	}
	return uuid.NewString()
}

func affectedOrNotFound(res sql.Result) error {
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return repository.ErrNotFound
	}
	return nil
}
