package storage

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/schemarag/internal/models"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("not found")

// SQLiteStorage implements Storage using SQLite.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One writer at a time; history inserts from concurrent questions queue here.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS embeddings (
		model TEXT NOT NULL,
		content_key TEXT NOT NULL,
		dimensions INTEGER NOT NULL,
		vector BLOB NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (model, content_key)
	);

	CREATE TABLE IF NOT EXISTS question_history (
		id TEXT PRIMARY KEY,
		question TEXT NOT NULL,
		tables TEXT,
		sql_query TEXT,
		row_count INTEGER NOT NULL DEFAULT 0,
		error TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_question_history_created_at ON question_history(created_at);
	`
	_, err := db.Exec(schema)
	return err
}

// encodeVector packs vec as little-endian float32 values.
func encodeVector(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(v))
	}
	return buf
}

func decodeVector(buf []byte, dims int) ([]float32, error) {
	if len(buf) != 4*dims {
		return nil, fmt.Errorf("embedding blob has %d bytes, want %d", len(buf), 4*dims)
	}
	vec := make([]float32, dims)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[4*i:]))
	}
	return vec, nil
}

// GetEmbedding returns the cached vector for key under model. A miss is not an error.
func (s *SQLiteStorage) GetEmbedding(ctx context.Context, model, key string) ([]float32, bool, error) {
	var dims int
	var blob []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT dimensions, vector FROM embeddings WHERE model = ? AND content_key = ?`,
		model, key,
	).Scan(&dims, &blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	vec, err := decodeVector(blob, dims)
	if err != nil {
		return nil, false, err
	}
	return vec, true, nil
}

// PutEmbedding stores vec, replacing any previous vector for the same key.
func (s *SQLiteStorage) PutEmbedding(ctx context.Context, model, key string, vec []float32) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO embeddings (model, content_key, dimensions, vector, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		model, key, len(vec), encodeVector(vec), time.Now(),
	)
	return err
}

// CountEmbeddings returns the number of cached vectors across all models.
func (s *SQLiteStorage) CountEmbeddings(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM embeddings`).Scan(&count)
	return count, err
}

// PruneEmbeddings deletes the vectors of model whose key is not in keep and
// returns how many were removed.
func (s *SQLiteStorage) PruneEmbeddings(ctx context.Context, model string, keep []string) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `CREATE TEMP TABLE IF NOT EXISTS keep_keys (k TEXT PRIMARY KEY)`); err != nil {
		return 0, err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM keep_keys`); err != nil {
		return 0, err
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT OR IGNORE INTO keep_keys (k) VALUES (?)`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()
	for _, k := range keep {
		if _, err := stmt.ExecContext(ctx, k); err != nil {
			return 0, err
		}
	}

	res, err := tx.ExecContext(ctx,
		`DELETE FROM embeddings WHERE model = ? AND content_key NOT IN (SELECT k FROM keep_keys)`,
		model,
	)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return n, tx.Commit()
}

// CreateQuestion inserts a history record. CreatedAt is set when zero.
func (s *SQLiteStorage) CreateQuestion(ctx context.Context, rec *models.QuestionRecord) error {
	tablesJSON, err := json.Marshal(rec.Tables)
	if err != nil {
		return fmt.Errorf("failed to marshal tables: %w", err)
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO question_history (id, question, tables, sql_query, row_count, error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Question, string(tablesJSON), rec.SQL, rec.RowCount, rec.Error, rec.CreatedAt,
	)
	return err
}

const questionColumns = `id, question, tables, sql_query, row_count, error, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanQuestion(row rowScanner) (*models.QuestionRecord, error) {
	var rec models.QuestionRecord
	var tablesJSON, sqlQuery, errText sql.NullString
	if err := row.Scan(&rec.ID, &rec.Question, &tablesJSON, &sqlQuery, &rec.RowCount, &errText, &rec.CreatedAt); err != nil {
		return nil, err
	}
	rec.SQL = sqlQuery.String
	rec.Error = errText.String
	if tablesJSON.String != "" {
		if err := json.Unmarshal([]byte(tablesJSON.String), &rec.Tables); err != nil {
			return nil, fmt.Errorf("failed to unmarshal tables: %w", err)
		}
	}
	return &rec, nil
}

// GetQuestion returns a history record by ID.
func (s *SQLiteStorage) GetQuestion(ctx context.Context, id string) (*models.QuestionRecord, error) {
	rec, err := scanQuestion(s.db.QueryRowContext(ctx,
		`SELECT `+questionColumns+` FROM question_history WHERE id = ?`, id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("question %s: %w", id, ErrNotFound)
	}
	return rec, err
}

// ListQuestions returns history records, newest first.
func (s *SQLiteStorage) ListQuestions(ctx context.Context, offset, limit int) ([]*models.QuestionRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+questionColumns+` FROM question_history
		 ORDER BY created_at DESC, rowid DESC LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []*models.QuestionRecord
	for rows.Next() {
		rec, err := scanQuestion(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// CountQuestions returns the number of history records.
func (s *SQLiteStorage) CountQuestions(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM question_history`).Scan(&count)
	return count, err
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
