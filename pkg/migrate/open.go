package migrate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	// registers the "postgres" database/sql driver goose runs against
	_ "github.com/lib/pq"
)

var errDSNRequired = errors.New("database dsn is required")

// Open connects the migration CLI through lib/pq. Migration failures then
// surface as *pq.Error, which pkg/errors.Dump expands for logs.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	if dsn == "" {
		return nil, errDSNRequired
	}
	sqlDB, err := sql.Open(dialect, dsn)
	if err != nil {
		return nil, fmt.Errorf("open migration db: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping migration db: %w", err)
	}
	return sqlDB, nil
}
