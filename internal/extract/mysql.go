package extract

import (
	"context"
	"database/sql"

	"github.com/hyperjump/schemarag/internal/schema"
)

const (
	mysqlTablesQuery = `
		SELECT TABLE_NAME
		FROM information_schema.tables
		WHERE TABLE_SCHEMA = ?
		  AND TABLE_TYPE = 'BASE TABLE'
		ORDER BY TABLE_NAME`

	mysqlColumnsQuery = `
		SELECT TABLE_NAME, COLUMN_NAME, COLUMN_TYPE
		FROM information_schema.columns
		WHERE TABLE_SCHEMA = ?
		ORDER BY TABLE_NAME, ORDINAL_POSITION`

	mysqlPrimaryKeysQuery = `
		SELECT TABLE_NAME, COLUMN_NAME
		FROM information_schema.key_column_usage
		WHERE TABLE_SCHEMA = ?
		  AND CONSTRAINT_NAME = 'PRIMARY'
		ORDER BY TABLE_NAME, ORDINAL_POSITION`

	mysqlForeignKeysQuery = `
		SELECT TABLE_NAME, COLUMN_NAME, REFERENCED_TABLE_NAME, REFERENCED_COLUMN_NAME
		FROM information_schema.key_column_usage
		WHERE TABLE_SCHEMA = ?
		  AND REFERENCED_TABLE_NAME IS NOT NULL
		ORDER BY TABLE_NAME, CONSTRAINT_NAME, ORDINAL_POSITION`
)

// extractMySQL reads the schema with one query per metadata kind.
func extractMySQL(ctx context.Context, db *sql.DB, database string) ([]*schema.Table, error) {
	var (
		tables []*schema.Table
		byName = make(map[string]*schema.Table)
	)
	err := scanEach(ctx, db, mysqlTablesQuery, database, func(rows *sql.Rows) error {
		var name string
		if err := rows.Scan(&name); err != nil {
			return err
		}
		t := &schema.Table{Name: name}
		tables = append(tables, t)
		byName[name] = t
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = scanEach(ctx, db, mysqlColumnsQuery, database, func(rows *sql.Rows) error {
		var table string
		var col schema.Column
		if err := rows.Scan(&table, &col.Name, &col.Type); err != nil {
			return err
		}
		if t, ok := byName[table]; ok {
			t.Columns = append(t.Columns, col)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = scanEach(ctx, db, mysqlPrimaryKeysQuery, database, func(rows *sql.Rows) error {
		var table, column string
		if err := rows.Scan(&table, &column); err != nil {
			return err
		}
		if t, ok := byName[table]; ok {
			t.PrimaryKeys = append(t.PrimaryKeys, column)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = scanEach(ctx, db, mysqlForeignKeysQuery, database, func(rows *sql.Rows) error {
		var table string
		var fk schema.ForeignKey
		if err := rows.Scan(&table, &fk.Column, &fk.ReferencesTable, &fk.ReferencesColumn); err != nil {
			return err
		}
		if t, ok := byName[table]; ok {
			t.ForeignKeys = append(t.ForeignKeys, fk)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return tables, nil
}

func scanEach(ctx context.Context, db *sql.DB, query string, arg any, fn func(*sql.Rows) error) error {
	rows, err := db.QueryContext(ctx, query, arg)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		if err := fn(rows); err != nil {
			return err
		}
	}
	return rows.Err()
}
