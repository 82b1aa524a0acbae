package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Veraticus/shopsort/internal/common"
	"github.com/Veraticus/shopsort/internal/model"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteStore is a durable SessionStore backed by a local SQLite file, so
// sessions survive a server restart.
type SQLiteStore struct {
	db  *sql.DB
	ttl time.Duration
}

// NewSQLiteStore opens (creating if needed) the database at dbPath and
// migrates it to the current schema.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("%w: database path is required", common.ErrMissingConfig)
	}

	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite doesn't benefit from multiple connections.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &SQLiteStore{db: db, ttl: SessionTTL}
	if err := store.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLiteStore) migrate() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		shop_url TEXT NOT NULL,
		access_token TEXT NOT NULL,
		tag TEXT NOT NULL,
		task_id TEXT,
		products TEXT,
		taxonomy TEXT,
		parent_map TEXT,
		partition_result TEXT,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`)
	if err != nil {
		return fmt.Errorf("failed to create sessions table: %w", err)
	}
	_, err = s.db.Exec(`CREATE INDEX IF NOT EXISTS idx_sessions_updated ON sessions(updated_at)`)
	if err != nil {
		return fmt.Errorf("failed to create sessions index: %w", err)
	}
	return nil
}

// Get loads a session, or common.ErrNotFound when it is unknown or expired.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, shop_url, access_token, tag, task_id,
		       products, taxonomy, parent_map, partition_result,
		       created_at, updated_at
		FROM sessions WHERE id = ?`, id)

	var session Session
	var taskID sql.NullString
	var products, taxonomy, parentMap, partition sql.NullString
	err := row.Scan(
		&session.ID, &session.ShopURL, &session.AccessToken, &session.Tag, &taskID,
		&products, &taxonomy, &parentMap, &partition,
		&session.CreatedAt, &session.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: session %s", common.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	if time.Since(session.UpdatedAt) > s.ttl {
		return nil, fmt.Errorf("%w: session %s expired", common.ErrNotFound, id)
	}

	session.TaskID = taskID.String
	if err := unmarshalColumn(products, &session.Products); err != nil {
		return nil, fmt.Errorf("failed to decode products: %w", err)
	}
	if err := unmarshalColumn(taxonomy, &session.Taxonomy); err != nil {
		return nil, fmt.Errorf("failed to decode taxonomy: %w", err)
	}
	if err := unmarshalColumn(parentMap, &session.ParentMap); err != nil {
		return nil, fmt.Errorf("failed to decode parent map: %w", err)
	}
	if partition.Valid && partition.String != "" {
		var p model.Partition
		if err := json.Unmarshal([]byte(partition.String), &p); err != nil {
			return nil, fmt.Errorf("failed to decode partition: %w", err)
		}
		session.Partition = &p
	}
	return &session, nil
}

// Save upserts the session and sweeps expired rows.
func (s *SQLiteStore) Save(ctx context.Context, session *Session) error {
	if session.ID == "" {
		return fmt.Errorf("session ID is required")
	}

	now := time.Now()
	createdAt := session.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}

	products, err := marshalColumn(session.Products)
	if err != nil {
		return fmt.Errorf("failed to encode products: %w", err)
	}
	taxonomy, err := marshalColumn(session.Taxonomy)
	if err != nil {
		return fmt.Errorf("failed to encode taxonomy: %w", err)
	}
	parentMap, err := marshalColumn(session.ParentMap)
	if err != nil {
		return fmt.Errorf("failed to encode parent map: %w", err)
	}
	var partition string
	if session.Partition != nil {
		encoded, err := json.Marshal(session.Partition)
		if err != nil {
			return fmt.Errorf("failed to encode partition: %w", err)
		}
		partition = string(encoded)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, shop_url, access_token, tag, task_id,
			products, taxonomy, parent_map, partition_result, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			shop_url = excluded.shop_url,
			access_token = excluded.access_token,
			tag = excluded.tag,
			task_id = excluded.task_id,
			products = excluded.products,
			taxonomy = excluded.taxonomy,
			parent_map = excluded.parent_map,
			partition_result = excluded.partition_result,
			updated_at = excluded.updated_at`,
		session.ID, session.ShopURL, session.AccessToken, session.Tag, session.TaskID,
		products, taxonomy, parentMap, partition, createdAt, now,
	)
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `DELETE FROM sessions WHERE updated_at < ?`, now.Add(-s.ttl))
	if err != nil {
		return fmt.Errorf("failed to sweep expired sessions: %w", err)
	}
	return nil
}

// Delete removes a session. Deleting an unknown ID is not an error.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func marshalColumn(v any) (string, error) {
	if v == nil {
		return "", nil
	}
	encoded, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(encoded), nil
}

func unmarshalColumn[T any](column sql.NullString, target *T) error {
	if !column.Valid || column.String == "" || column.String == "null" {
		return nil
	}
	return json.Unmarshal([]byte(column.String), target)
}
