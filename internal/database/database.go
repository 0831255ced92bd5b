// FilePath: internal/database/database.go
package database

import (
	"context"
	"fmt"

	"github.com/WCL-INU/beeweb/internal/config"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	nuts "github.com/vaudience/go-nuts"
)

// DB is the connection handle shared by the repositories
type DB interface {
	Close() error
	Ping(ctx context.Context) error
	GetDB() *sqlx.DB
	// HasTimescale reports whether the timescaledb extension is installed
	HasTimescale() bool
}

// TimescaleDB represents a PostgreSQL connection that may carry the
// timescaledb extension
type TimescaleDB struct {
	db        *sqlx.DB
	timescale bool
}

// DSN builds the lib/pq connection string
func DSN(cfg config.PostgresConfig) string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode,
	)
}

// NewTimescaleDB connects and probes for the timescaledb extension. A plain
// PostgreSQL server is accepted; hypertables are then skipped.
func NewTimescaleDB(ctx context.Context, cfg config.PostgresConfig) (DB, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", DSN(cfg))
	if err != nil {
		return nil, fmt.Errorf("error connecting to TimescaleDB: %w", err)
	}

	var hasTimescaleDB bool
	err = db.GetContext(ctx, &hasTimescaleDB, "SELECT EXISTS (SELECT 1 FROM pg_extension WHERE extname = 'timescaledb')")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("error probing timescaledb extension: %w", err)
	}
	if !hasTimescaleDB {
		nuts.L.Warnf("[TimescaleDB] Extension not installed on %s:%d/%s, using plain tables", cfg.Host, cfg.Port, cfg.DBName)
	}

	nuts.L.Infof("[TimescaleDB] Connected to %s:%d/%s", cfg.Host, cfg.Port, cfg.DBName)
	return &TimescaleDB{db: db, timescale: hasTimescaleDB}, nil
}

// Wrap adapts an existing handle, e.g. one backed by sqlmock
func Wrap(db *sqlx.DB, timescale bool) DB {
	return &TimescaleDB{db: db, timescale: timescale}
}

func (t *TimescaleDB) Close() error {
	return t.db.Close()
}

func (t *TimescaleDB) Ping(ctx context.Context) error {
	return t.db.PingContext(ctx)
}

func (t *TimescaleDB) GetDB() *sqlx.DB {
	return t.db
}

func (t *TimescaleDB) HasTimescale() bool {
	return t.timescale
}
