package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"beehive/internal/config"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/rs/zerolog"
)

const (
	maxOpenConns    = 15
	maxIdleConns    = 5
	connMaxLifetime = 30 * time.Minute
	pingTimeout     = 5 * time.Second
)

// Connect 建立到 PostgreSQL 的连接并执行基础健康检查。
func Connect(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*sql.DB, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	db, err := sql.Open("pgx", cfg.PostgresDSN())
	if err != nil {
		return nil, fmt.Errorf("open postgres connection: %w", err)
	}

	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(connMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres %s:%d/%s: %w", cfg.DB.Host, cfg.DB.Port, cfg.DB.Name, err)
	}

	log.Info().
		Str("host", cfg.DB.Host).
		Int("port", cfg.DB.Port).
		Str("database", cfg.DB.Name).
		Msg("postgres connected")
	return db, nil
}
