// Package execute runs generated SQL against the target database and returns typed rows.
package execute

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/hyperjump/schemarag/internal/config"
	"github.com/hyperjump/schemarag/internal/models"
)

// ErrQueryExecution is returned for any failure while running a query. No rows are
// returned with it.
var ErrQueryExecution = errors.New("query execution failed")

// Supported drivers.
const (
	DriverMySQL  = "mysql"
	DriverSQLite = "sqlite3"
)

// Config describes a database connection.
type Config struct {
	Driver   string
	Host     string
	Port     int
	User     string
	Password string
	Database string
	Path     string // SQLite file
	MaxRows  int    // 0 means unlimited
	Timeout  time.Duration
}

// FromConfig converts the database section of the application config.
func FromConfig(cfg config.DatabaseConfig) Config {
	return Config{
		Driver:   cfg.Driver,
		Host:     cfg.Host,
		Port:     cfg.Port,
		User:     cfg.User,
		Password: cfg.Password,
		Database: cfg.Name,
		Path:     cfg.Path,
		MaxRows:  cfg.MaxRows,
		Timeout:  cfg.Timeout,
	}
}

// DSN returns the driver data source name.
func (c Config) DSN() (string, error) {
	switch c.Driver {
	case DriverMySQL:
		if c.Host == "" {
			return "", fmt.Errorf("mysql host is required")
		}
		port := c.Port
		if port == 0 {
			port = 3306
		}
		mc := mysql.NewConfig()
		mc.User = c.User
		mc.Passwd = c.Password
		mc.Net = "tcp"
		mc.Addr = net.JoinHostPort(c.Host, strconv.Itoa(port))
		mc.DBName = c.Database
		mc.ParseTime = true
		if c.Timeout > 0 {
			mc.Timeout = c.Timeout
		}
		return mc.FormatDSN(), nil
	case DriverSQLite:
		if c.Path == "" {
			return "", fmt.Errorf("sqlite path is required")
		}
		// mode=rw: a mistyped path fails instead of creating an empty database.
		return "file:" + c.Path + "?mode=rw", nil
	default:
		return "", fmt.Errorf("unsupported driver %q (supported: mysql, sqlite3)", c.Driver)
	}
}

// Open opens and pings the database. The caller closes it.
func Open(ctx context.Context, c Config) (*sql.DB, error) {
	dsn, err := c.DSN()
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(c.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("%s: open: %w", c.Driver, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%s: ping: %w", c.Driver, err)
	}
	return db, nil
}

// Executor runs queries with a connection scoped to each call.
type Executor struct {
	cfg    Config
	logger *zap.Logger
}

// New validates cfg and returns an Executor.
func New(cfg Config, logger *zap.Logger) (*Executor, error) {
	if _, err := cfg.DSN(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{cfg: cfg, logger: logger}, nil
}

// Execute runs query and returns every row. The SQL text is passed through as is.
func (e *Executor) Execute(ctx context.Context, query string) (*models.QueryResult, error) {
	if e.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.Timeout)
		defer cancel()
	}
	start := time.Now()

	db, err := Open(ctx, e.cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrQueryExecution, err)
	}
	defer db.Close()

	result, err := e.run(ctx, db, query)
	if err != nil {
		e.logger.Warn("Query failed", zap.String("sql", query), zap.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrQueryExecution, err)
	}
	result.Duration = time.Since(start)
	e.logger.Info("Query executed",
		zap.Int("rows", len(result.Rows)),
		zap.Duration("duration", result.Duration))
	return result, nil
}

func (e *Executor) run(ctx context.Context, db *sql.DB, query string) (*models.QueryResult, error) {
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	colTypes, err := rows.ColumnTypes()
	if err != nil {
		return nil, err
	}
	columns := make([]models.Column, len(colTypes))
	for i, ct := range colTypes {
		columns[i] = models.Column{Name: ct.Name(), Type: ct.DatabaseTypeName()}
	}

	result := &models.QueryResult{Columns: columns, Rows: []models.Row{}}
	for rows.Next() {
		if e.cfg.MaxRows > 0 && len(result.Rows) >= e.cfg.MaxRows {
			return nil, fmt.Errorf("result exceeds %d rows", e.cfg.MaxRows)
		}
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		fields := make([]models.Field, len(columns))
		for i, c := range columns {
			fields[i] = models.Field{Name: c.Name, Type: c.Type, Value: normalize(values[i], c.Type)}
		}
		result.Rows = append(result.Rows, models.Row{Fields: fields})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// normalize copies driver-owned bytes. Text arrives as []byte from MySQL, so byte
// slices become strings unless the column is binary.
func normalize(v any, dbType string) any {
	b, ok := v.([]byte)
	if !ok {
		return v
	}
	t := strings.ToUpper(dbType)
	if strings.Contains(t, "BLOB") || strings.Contains(t, "BINARY") {
		return append([]byte(nil), b...)
	}
	return string(b)
}
