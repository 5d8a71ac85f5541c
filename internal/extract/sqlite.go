package extract

import (
	"context"
	"database/sql"
	"sort"

	"github.com/hyperjump/schemarag/internal/schema"
)

const (
	sqliteTablesQuery = `
		SELECT name FROM sqlite_master
		WHERE type = 'table' AND name NOT LIKE 'sqlite_%'
		ORDER BY name`
	sqliteColumnsQuery     = `SELECT name, type, pk FROM pragma_table_info(?) ORDER BY cid`
	sqliteForeignKeysQuery = `SELECT "from", "table", "to" FROM pragma_foreign_key_list(?) ORDER BY id, seq`
)

func extractSQLite(ctx context.Context, db *sql.DB) ([]*schema.Table, error) {
	var names []string
	rows, err := db.QueryContext(ctx, sqliteTablesQuery)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			return nil, err
		}
		names = append(names, name)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	tables := make([]*schema.Table, 0, len(names))
	byName := make(map[string]*schema.Table, len(names))
	for _, name := range names {
		t := &schema.Table{Name: name}
		if err := sqliteColumns(ctx, db, t); err != nil {
			return nil, err
		}
		err := scanEach(ctx, db, sqliteForeignKeysQuery, name, func(rows *sql.Rows) error {
			var fk schema.ForeignKey
			var to sql.NullString
			if err := rows.Scan(&fk.Column, &fk.ReferencesTable, &to); err != nil {
				return err
			}
			fk.ReferencesColumn = to.String
			t.ForeignKeys = append(t.ForeignKeys, fk)
			return nil
		})
		if err != nil {
			return nil, err
		}
		tables = append(tables, t)
		byName[name] = t
	}

	// "REFERENCES parent" without a column targets the parent's primary key.
	for _, t := range tables {
		for i, fk := range t.ForeignKeys {
			if fk.ReferencesColumn != "" {
				continue
			}
			if parent, ok := byName[fk.ReferencesTable]; ok && len(parent.PrimaryKeys) > 0 {
				t.ForeignKeys[i].ReferencesColumn = parent.PrimaryKeys[0]
			} else {
				t.ForeignKeys[i].ReferencesColumn = "rowid"
			}
		}
	}
	return tables, nil
}

func sqliteColumns(ctx context.Context, db *sql.DB, t *schema.Table) error {
	type pkCol struct {
		name string
		pos  int
	}
	var pks []pkCol
	err := scanEach(ctx, db, sqliteColumnsQuery, t.Name, func(rows *sql.Rows) error {
		var col schema.Column
		var pk int
		if err := rows.Scan(&col.Name, &col.Type, &pk); err != nil {
			return err
		}
		t.Columns = append(t.Columns, col)
		if pk > 0 {
			pks = append(pks, pkCol{name: col.Name, pos: pk})
		}
		return nil
	})
	if err != nil {
		return err
	}
	sort.Slice(pks, func(i, j int) bool { return pks[i].pos < pks[j].pos })
	for _, p := range pks {
		t.PrimaryKeys = append(t.PrimaryKeys, p.name)
	}
	return nil
}
