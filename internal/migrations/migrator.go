package migrations

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	dbmigrations "beehive/db/migrations"

	"github.com/rs/zerolog"
)

// advisoryLockKey 串行化多个实例同时启动时的迁移。
const advisoryLockKey int64 = 0x62656568697665

const upSuffix = ".up.sql"

type script struct {
	name string
	body string
}

// Apply 执行内嵌的 up 脚本，返回本次新执行的脚本名。
func Apply(ctx context.Context, db *sql.DB, log zerolog.Logger) ([]string, error) {
	scripts, err := readScripts(embeddedFS())
	if err != nil {
		return nil, err
	}
	return run(ctx, db, scripts, log)
}

func embeddedFS() fs.FS {
	return dbmigrations.UpFiles
}

// readScripts 只收集 *.up.sql，按文件名排序。
func readScripts(fsys fs.FS) ([]script, error) {
	names, err := fs.Glob(fsys, "*"+upSuffix)
	if err != nil {
		return nil, fmt.Errorf("list migrations: %w", err)
	}
	sort.Strings(names)

	scripts := make([]script, 0, len(names))
	for _, name := range names {
		body, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", name, err)
		}
		if strings.TrimSpace(string(body)) == "" {
			return nil, fmt.Errorf("migration %s is empty", path.Base(name))
		}
		scripts = append(scripts, script{name: name, body: string(body)})
	}
	return scripts, nil
}

func run(ctx context.Context, db *sql.DB, scripts []script, log zerolog.Logger) ([]string, error) {
	if db == nil {
		return nil, errors.New("nil database connection")
	}

	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		name TEXT PRIMARY KEY,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`); err != nil {
		return nil, fmt.Errorf("ensure schema_migrations: %w", err)
	}

	done, err := appliedNames(ctx, db)
	if err != nil {
		return nil, err
	}

	var ran []string
	for _, s := range scripts {
		if _, ok := done[s.name]; ok {
			log.Debug().Str("migration", s.name).Msg("already applied")
			continue
		}
		applied, err := runOne(ctx, db, s)
		if err != nil {
			return ran, err
		}
		if !applied {
			log.Info().Str("migration", s.name).Msg("applied concurrently by another instance")
			continue
		}
		log.Info().Str("migration", s.name).Msg("migration applied")
		ran = append(ran, s.name)
	}
	return ran, nil
}

func appliedNames(ctx context.Context, db *sql.DB) (map[string]struct{}, error) {
	rows, err := db.QueryContext(ctx, `SELECT name FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("list applied migrations: %w", err)
	}
	defer rows.Close()

	done := make(map[string]struct{})
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan applied migration: %w", err)
		}
		done[name] = struct{}{}
	}
	return done, rows.Err()
}

// runOne 在单个事务内加锁、复查、执行并登记。返回 false 表示已被其他实例执行。
func runOne(ctx context.Context, db *sql.DB, s script) (applied bool, err error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin %s: %w", s.name, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, advisoryLockKey); err != nil {
		return false, fmt.Errorf("lock for %s: %w", s.name, err)
	}

	var exists bool
	if err = tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM schema_migrations WHERE name = $1)`, s.name).Scan(&exists); err != nil {
		return false, fmt.Errorf("recheck %s: %w", s.name, err)
	}
	if exists {
		return false, tx.Commit()
	}

	if _, err = tx.ExecContext(ctx, s.body); err != nil {
		return false, fmt.Errorf("apply migration %s: %w", s.name, err)
	}
	if _, err = tx.ExecContext(ctx, `INSERT INTO schema_migrations (name) VALUES ($1)`, s.name); err != nil {
		return false, fmt.Errorf("record migration %s: %w", s.name, err)
	}
	if err = tx.Commit(); err != nil {
		return false, fmt.Errorf("commit migration %s: %w", s.name, err)
	}
	return true, nil
}
