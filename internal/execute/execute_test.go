package execute

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/hyperjump/schemarag/internal/config"
)

func clinicDB(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "clinic.db")
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	stmts := []string{
		`CREATE TABLE patients (id INTEGER PRIMARY KEY, name TEXT, weight REAL, photo BLOB)`,
		`INSERT INTO patients (id, name, weight, photo) VALUES (1, 'Ada', 61.5, x'0102')`,
		`INSERT INTO patients (id, name, weight, photo) VALUES (2, 'Grace', NULL, NULL)`,
		`INSERT INTO patients (id, name, weight, photo) VALUES (3, 'Linus', 80, NULL)`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			t.Fatal(err)
		}
	}
	return path
}

func TestExecute_typedRows(t *testing.T) {
	ex, err := New(Config{Driver: DriverSQLite, Path: clinicDB(t)}, nil)
	if err != nil {
		t.Fatal(err)
	}
	res, err := ex.Execute(context.Background(), "SELECT id, name, weight, photo FROM patients ORDER BY id")
	if err != nil {
		t.Fatal(err)
	}
	if res.RowCount() != 3 || len(res.Columns) != 4 {
		t.Fatalf("rows = %d, columns = %d", res.RowCount(), len(res.Columns))
	}
	if res.Columns[1].Name != "name" || res.Columns[1].Type != "TEXT" {
		t.Errorf("column = %+v", res.Columns[1])
	}
	first := res.Rows[0].Fields
	if v, ok := first[0].Value.(int64); !ok || v != 1 {
		t.Errorf("id = %#v", first[0].Value)
	}
	if v, ok := first[1].Value.(string); !ok || v != "Ada" {
		t.Errorf("name = %#v", first[1].Value)
	}
	if v, ok := first[2].Value.(float64); !ok || v != 61.5 {
		t.Errorf("weight = %#v", first[2].Value)
	}
	if v, ok := first[3].Value.([]byte); !ok || len(v) != 2 {
		t.Errorf("photo = %#v", first[3].Value)
	}
	if got := strings.Join(res.Rows[1].Strings(), "|"); got != "2|Grace|NULL|NULL" {
		t.Errorf("row 2 = %s", got)
	}
	if res.Duration <= 0 {
		t.Error("duration should be set")
	}
}

func TestExecute_emptyResult(t *testing.T) {
	ex, _ := New(Config{Driver: DriverSQLite, Path: clinicDB(t)}, nil)
	res, err := ex.Execute(context.Background(), "SELECT * FROM patients WHERE id > 100")
	if err != nil {
		t.Fatal(err)
	}
	if res.RowCount() != 0 || res.Rows == nil {
		t.Errorf("rows = %#v", res.Rows)
	}
}

func TestExecute_errors(t *testing.T) {
	path := clinicDB(t)
	tests := []struct {
		name  string
		cfg   Config
		query string
	}{
		{"syntax", Config{Driver: DriverSQLite, Path: path}, "SELEC nonsense"},
		{"unknown table", Config{Driver: DriverSQLite, Path: path}, "SELECT * FROM doctors"},
		{"max rows", Config{Driver: DriverSQLite, Path: path, MaxRows: 2}, "SELECT * FROM patients"},
		{"missing file", Config{Driver: DriverSQLite, Path: filepath.Join(t.TempDir(), "absent.db")}, "SELECT 1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ex, err := New(tt.cfg, nil)
			if err != nil {
				t.Fatal(err)
			}
			res, err := ex.Execute(context.Background(), tt.query)
			if !errors.Is(err, ErrQueryExecution) {
				t.Errorf("err = %v, want ErrQueryExecution", err)
			}
			if res != nil {
				t.Error("no partial result may be returned")
			}
		})
	}
}

func TestExecute_maxRowsBoundary(t *testing.T) {
	ex, _ := New(Config{Driver: DriverSQLite, Path: clinicDB(t), MaxRows: 3}, nil)
	res, err := ex.Execute(context.Background(), "SELECT id FROM patients")
	if err != nil {
		t.Fatal(err)
	}
	if res.RowCount() != 3 {
		t.Errorf("rows = %d", res.RowCount())
	}
}

func TestNew_validation(t *testing.T) {
	for _, cfg := range []Config{
		{Driver: "postgres"},
		{Driver: DriverSQLite},
		{Driver: DriverMySQL},
	} {
		if _, err := New(cfg, nil); err == nil {
			t.Errorf("New(%+v) should fail", cfg)
		}
	}
}

func TestConfig_MySQLDSN(t *testing.T) {
	cfg := FromConfig(config.DatabaseConfig{
		Driver:   "mysql",
		Host:     "db.internal",
		Port:     3307,
		User:     "reader",
		Password: "p@ss:word",
		Name:     "clinic",
		Timeout:  5 * time.Second,
	})
	dsn, err := cfg.DSN()
	if err != nil {
		t.Fatal(err)
	}
	parsed, err := mysql.ParseDSN(dsn)
	if err != nil {
		t.Fatalf("ParseDSN(%q): %v", dsn, err)
	}
	if parsed.User != "reader" || parsed.Passwd != "p@ss:word" || parsed.Addr != "db.internal:3307" || parsed.DBName != "clinic" {
		t.Errorf("parsed = %+v", parsed)
	}
	if !parsed.ParseTime || parsed.Timeout != 5*time.Second {
		t.Errorf("parseTime = %v, timeout = %v", parsed.ParseTime, parsed.Timeout)
	}
}

func TestConfig_MySQLDefaultPort(t *testing.T) {
	dsn, err := Config{Driver: DriverMySQL, Host: "localhost", Database: "x"}.DSN()
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(dsn, "tcp(localhost:3306)") {
		t.Errorf("dsn = %s", dsn)
	}
}
