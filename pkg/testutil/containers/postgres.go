//go:build integration

package containers

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"credreg/internal/platform/database"
)

// registryTables lists every table the ledger writes, children first.
var registryTables = []string{"registry_outbox", "credential_votes", "credentials", "accreditations"}

// PostgresContainer is a migrated registry database.
type PostgresContainer struct {
	Container *postgres.PostgresContainer
	DSN       string
	DB        *sql.DB
}

// NewPostgresContainer starts Postgres and applies the embedded migrations.
func NewPostgresContainer(t *testing.T) *PostgresContainer {
	t.Helper()
	ctx := context.Background()

	container, err := postgres.Run(ctx, "postgres:18-alpine",
		postgres.WithDatabase("credreg_test"),
		postgres.WithUsername("credreg"),
		postgres.WithPassword("credreg_test_password"),
		// The entrypoint restarts the server once after init.
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(time.Minute),
		),
	)
	if err != nil {
		t.Fatalf("start postgres container: %v", err)
	}
	pc := &PostgresContainer{Container: container}
	if err := pc.connect(ctx); err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("prepare registry database: %v", err)
	}
	return pc
}

func (p *PostgresContainer) connect(ctx context.Context) error {
	dsn, err := p.Container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		return fmt.Errorf("connection string: %w", err)
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("open: %w", err)
	}
	if err := database.Migrate(ctx, db); err != nil {
		_ = db.Close()
		return fmt.Errorf("migrate: %w", err)
	}
	p.DSN, p.DB = dsn, db
	return nil
}

// TruncateRegistry empties the ledger tables and rewinds the height to zero
// in one transaction, so a test never observes rows without their height.
func (p *PostgresContainer) TruncateRegistry(ctx context.Context) error {
	tx, err := p.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, table := range registryTables {
		if _, err := tx.ExecContext(ctx, "TRUNCATE TABLE "+table+" CASCADE"); err != nil {
			return fmt.Errorf("truncate %s: %w", table, err)
		}
	}
	if _, err := tx.ExecContext(ctx, "UPDATE registry_ledger SET height = 0"); err != nil {
		return fmt.Errorf("reset ledger height: %w", err)
	}
	return tx.Commit()
}

// QueryRow runs a query expected to return a single row.
func (p *PostgresContainer) QueryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return p.DB.QueryRowContext(ctx, query, args...)
}
