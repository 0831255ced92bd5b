package timescale

import (
	"context"

	"github.com/WCL-INU/beeweb/internal/database"
	"github.com/WCL-INU/beeweb/internal/errors"
	nuts "github.com/vaudience/go-nuts"
)

// baseRepo carries the connection shared by the raw, summary and touch repositories
type baseRepo struct {
	db database.DB
}

func (r *baseRepo) execAll(ctx context.Context, component string, queries []string) error {
	for _, query := range queries {
		if _, err := r.db.GetDB().ExecContext(ctx, query); err != nil {
			return errors.NewDatabaseError("failed to initialize "+component+" schema", err)
		}
	}
	return nil
}

func (r *baseRepo) exists(ctx context.Context, query string, args ...interface{}) (bool, error) {
	var found bool
	if err := r.db.GetDB().GetContext(ctx, &found, query, args...); err != nil {
		return false, errors.NewDatabaseError("failed to probe rows", err)
	}
	return found, nil
}

// Ping checks the connection
func (r *baseRepo) Ping(ctx context.Context) error {
	if err := r.db.Ping(ctx); err != nil {
		return errors.NewDatabaseError("failed to ping database", err)
	}
	return nil
}

// Close releases the shared connection
func (r *baseRepo) Close() error {
	if err := r.db.Close(); err != nil {
		return errors.NewDatabaseError("failed to close database", err)
	}
	nuts.L.Infof("[TimescaleDB] Connection closed")
	return nil
}
