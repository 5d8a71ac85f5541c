// Package extract reads table metadata from a live database into a schema.Model.
// Every metadata query is parameterized; table names are never interpolated into SQL.
package extract

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hyperjump/schemarag/internal/execute"
	"github.com/hyperjump/schemarag/internal/schema"
)

// Extract introspects db. driver is "mysql" or "sqlite3"; database is the MySQL
// schema name and is ignored for SQLite.
func Extract(ctx context.Context, db *sql.DB, driver, database string) (*schema.Model, error) {
	var (
		tables []*schema.Table
		err    error
	)
	switch driver {
	case execute.DriverMySQL:
		if database == "" {
			return nil, fmt.Errorf("mysql: database name is required")
		}
		tables, err = extractMySQL(ctx, db, database)
	case execute.DriverSQLite:
		tables, err = extractSQLite(ctx, db)
	default:
		return nil, fmt.Errorf("unsupported driver %q", driver)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: extract schema: %w", driver, err)
	}
	return schema.NewModel(tables...)
}

// FromConfig opens the configured database, extracts its schema and closes it.
func FromConfig(ctx context.Context, cfg execute.Config) (*schema.Model, error) {
	db, err := execute.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}
	defer db.Close()
	return Extract(ctx, db, cfg.Driver, cfg.Database)
}
