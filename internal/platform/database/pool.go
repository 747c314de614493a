package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// ErrNotConfigured is returned by Health on a pool built without a URL.
var ErrNotConfigured = errors.New("database not configured")

// Config describes the registry's connection pool. Writers serialize on the
// ledger row, so a few connections serve the write path.
type Config struct {
	URL             string
	ApplicationName string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnectTimeout  time.Duration
	// Registerer receives go_sql_* pool statistics when set.
	Registerer prometheus.Registerer
}

func DefaultConfig() Config {
	return Config{
		ApplicationName: "credreg",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		ConnectTimeout:  5 * time.Second,
	}
}

// Pool is a database/sql handle over the pgx driver.
type Pool struct {
	db *sql.DB
}

// New parses cfg.URL with pgx, opens the pool and pings it once. An empty URL
// yields a nil pool and no error.
func New(ctx context.Context, cfg Config) (*Pool, error) {
	if cfg.URL == "" {
		return nil, nil
	}
	connCfg, err := pgx.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 5 * time.Second
	}
	connCfg.ConnectTimeout = cfg.ConnectTimeout
	if _, set := connCfg.RuntimeParams["application_name"]; !set && cfg.ApplicationName != "" {
		connCfg.RuntimeParams["application_name"] = cfg.ApplicationName
	}

	db := stdlib.OpenDB(*connCfg)
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if cfg.Registerer != nil {
		if err := cfg.Registerer.Register(collectors.NewDBStatsCollector(db, "credreg")); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("register pool metrics: %w", err)
		}
	}
	return &Pool{db: db}, nil
}

func (p *Pool) DB() *sql.DB {
	return p.db
}

// Health pings the database; it backs the required readiness check.
func (p *Pool) Health(ctx context.Context) error {
	if p == nil || p.db == nil {
		return ErrNotConfigured
	}
	return p.db.PingContext(ctx)
}

func (p *Pool) Close() error {
	if p == nil || p.db == nil {
		return nil
	}
	return p.db.Close()
}
