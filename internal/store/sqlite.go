package store

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"sync"
	"time"

	"github.com/Dompi123/FOMO2025PART4/internal/db"
	apperrors "github.com/Dompi123/FOMO2025PART4/internal/errors"
	"github.com/Dompi123/FOMO2025PART4/internal/logging"
	"github.com/Dompi123/FOMO2025PART4/internal/models"
)

// SQLiteStore is the durable Store backed by a single SQLite file.
type SQLiteStore struct {
	path       string
	retryDelay time.Duration

	mu sync.RWMutex
	db *db.DB
}

// NewSQLiteStore creates a store for the database file at path. Nothing is
// opened until Init.
func NewSQLiteStore(path string) *SQLiteStore {
	return &SQLiteStore{
		path:       path,
		retryDelay: 100 * time.Millisecond,
	}
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string {
	return s.path
}

// Init opens the database and migrates it to the latest schema.
func (s *SQLiteStore) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db != nil {
		return nil
	}

	var lastErr error
	for attempt := 1; attempt <= 2; attempt++ {
		conn, err := s.open(ctx)
		if err == nil {
			s.db = conn
			return nil
		}
		lastErr = err
		logging.Warn("Failed to open store", map[string]interface{}{
			"path":    s.path,
			"attempt": attempt,
			"error":   err.Error(),
		})

		if attempt == 1 {
			select {
			case <-ctx.Done():
				return apperrors.NewStorageUnavailable(ctx.Err())
			case <-time.After(s.retryDelay):
			}
		}
	}
	return apperrors.NewStorageUnavailable(lastErr)
}

func (s *SQLiteStore) open(ctx context.Context) (*db.DB, error) {
	conn, err := db.Open(ctx, s.path)
	if err != nil {
		return nil, err
	}

	m := db.NewMigrator(conn.DB, db.Migrations())
	if err := m.Up(ctx); err != nil {
		conn.Close()
		return nil, apperrors.Wrap(apperrors.ErrMigration, "schema migration failed", err)
	}

	version, _ := m.CurrentVersion(ctx)
	latest, err := m.LatestVersion()
	if err != nil {
		conn.Close()
		return nil, apperrors.Wrap(apperrors.ErrMigration, "failed to read migration set", err)
	}
	if version > latest {
		logging.Warn("Store schema is newer than this build", map[string]interface{}{
			"path":           s.path,
			"schema_version": version,
			"latest_version": latest,
		})
	}
	logging.Debug("Store opened", map[string]interface{}{
		"path":           s.path,
		"schema_version": version,
	})
	return conn, nil
}

func (s *SQLiteStore) conn() (*db.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return nil, apperrors.New(apperrors.ErrStorageUnavailable, "store is not initialized")
	}
	return s.db, nil
}

func dbErr(message string, err error) error {
	if err == nil {
		return nil
	}
	var appErr *apperrors.AppError
	if stderrors.As(err, &appErr) {
		return err
	}
	return apperrors.Wrap(apperrors.ErrDatabase, message, err)
}

// SaveOperation implements Store.
func (s *SQLiteStore) SaveOperation(ctx context.Context, op *models.SyncOperation) error {
	conn, err := s.conn()
	if err != nil {
		return err
	}
	raw, err := encodeOperation(op)
	if err != nil {
		return err
	}

	query := `INSERT INTO pending_operations (id, seq, operation, updated_at)
			  VALUES (?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM pending_operations), ?, ?)
			  ON CONFLICT(id) DO UPDATE SET operation = excluded.operation, updated_at = excluded.updated_at`
	_, err = conn.ExecContext(ctx, query, op.ID, string(raw), time.Now().UnixMilli())
	return dbErr("failed to save operation", err)
}

// RemoveOperation implements Store.
func (s *SQLiteStore) RemoveOperation(ctx context.Context, id string) error {
	conn, err := s.conn()
	if err != nil {
		return err
	}
	err = conn.InTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM pending_operations WHERE id = ?", id); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, "DELETE FROM sync_queue WHERE id = ?", id)
		return err
	})
	return dbErr("failed to remove operation", err)
}

// GetPendingOperations implements Store.
func (s *SQLiteStore) GetPendingOperations(ctx context.Context) ([]*models.SyncOperation, error) {
	conn, err := s.conn()
	if err != nil {
		return nil, err
	}
	return queryOperations(ctx, conn, "SELECT id, operation FROM pending_operations ORDER BY seq")
}

// SaveSyncQueue implements Store.
func (s *SQLiteStore) SaveSyncQueue(ctx context.Context, ops []*models.SyncOperation) error {
	conn, err := s.conn()
	if err != nil {
		return err
	}

	encoded := make([][]byte, len(ops))
	for i, op := range ops {
		if encoded[i], err = encodeOperation(op); err != nil {
			return err
		}
	}

	err = conn.InTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM sync_queue"); err != nil {
			return err
		}
		stmt, err := tx.PrepareContext(ctx, "INSERT INTO sync_queue (position, id, operation) VALUES (?, ?, ?)")
		if err != nil {
			return err
		}
		defer stmt.Close()

		for i, op := range ops {
			if _, err := stmt.ExecContext(ctx, i, op.ID, string(encoded[i])); err != nil {
				return fmt.Errorf("queue position %d: %w", i, err)
			}
		}
		return nil
	})
	return dbErr("failed to save sync queue", err)
}

// GetSyncQueue implements Store.
func (s *SQLiteStore) GetSyncQueue(ctx context.Context) ([]*models.SyncOperation, error) {
	conn, err := s.conn()
	if err != nil {
		return nil, err
	}
	return queryOperations(ctx, conn, "SELECT id, operation FROM sync_queue ORDER BY position")
}

func queryOperations(ctx context.Context, conn *db.DB, query string) ([]*models.SyncOperation, error) {
	rows, err := conn.QueryContext(ctx, query)
	if err != nil {
		return nil, dbErr("failed to query operations", err)
	}
	defer rows.Close()

	var ops []*models.SyncOperation
	for rows.Next() {
		var id, raw string
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, dbErr("failed to scan operation", err)
		}
		ops = append(ops, decodeOperation(id, []byte(raw)))
	}
	return ops, dbErr("failed to read operations", rows.Err())
}

// SaveEntities implements Store.
func (s *SQLiteStore) SaveEntities(ctx context.Context, collection string, records []Record) error {
	if err := checkCollection(collection); err != nil {
		return err
	}
	if err := checkRecords(records); err != nil {
		return err
	}
	conn, err := s.conn()
	if err != nil {
		return err
	}

	err = conn.InTx(ctx, func(tx *sql.Tx) error {
		return upsertRecords(ctx, tx, collection, records)
	})
	return dbErr("failed to save "+collection, err)
}

// ReplaceEntities implements Store.
func (s *SQLiteStore) ReplaceEntities(ctx context.Context, collection string, records []Record) error {
	if err := checkCollection(collection); err != nil {
		return err
	}
	if err := checkRecords(records); err != nil {
		return err
	}
	conn, err := s.conn()
	if err != nil {
		return err
	}

	err = conn.InTx(ctx, func(tx *sql.Tx) error {
		// collection is checked against the fixed table list above
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+collection); err != nil {
			return err
		}
		return upsertRecords(ctx, tx, collection, records)
	})
	return dbErr("failed to replace "+collection, err)
}

func upsertRecords(ctx context.Context, tx *sql.Tx, collection string, records []Record) error {
	query := fmt.Sprintf(`INSERT INTO %s (id, data, version, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET data = excluded.data, version = excluded.version, updated_at = excluded.updated_at`, collection)
	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, r := range records {
		if _, err := stmt.ExecContext(ctx, r.ID, string(r.Data), r.Version, r.UpdatedAt); err != nil {
			return fmt.Errorf("record %s: %w", r.ID, err)
		}
	}
	return nil
}

// GetEntities implements Store.
func (s *SQLiteStore) GetEntities(ctx context.Context, collection string) ([]Record, error) {
	if err := checkCollection(collection); err != nil {
		return nil, err
	}
	conn, err := s.conn()
	if err != nil {
		return nil, err
	}

	rows, err := conn.QueryContext(ctx, "SELECT id, version, updated_at, data FROM "+collection+" ORDER BY id")
	if err != nil {
		return nil, dbErr("failed to query "+collection, err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var r Record
		var data string
		if err := rows.Scan(&r.ID, &r.Version, &r.UpdatedAt, &data); err != nil {
			return nil, dbErr("failed to scan "+collection, err)
		}
		r.Data = []byte(data)
		records = append(records, r)
	}
	return records, dbErr("failed to read "+collection, rows.Err())
}

// GetEntity implements Store.
func (s *SQLiteStore) GetEntity(ctx context.Context, collection, id string) (Record, error) {
	if err := checkCollection(collection); err != nil {
		return Record{}, err
	}
	conn, err := s.conn()
	if err != nil {
		return Record{}, err
	}

	var r Record
	var data string
	err = conn.QueryRowContext(ctx, "SELECT id, version, updated_at, data FROM "+collection+" WHERE id = ?", id).
		Scan(&r.ID, &r.Version, &r.UpdatedAt, &data)
	if stderrors.Is(err, sql.ErrNoRows) {
		return Record{}, notFound(collection, id)
	}
	if err != nil {
		return Record{}, dbErr("failed to get "+collection, err)
	}
	r.Data = []byte(data)
	return r, nil
}

// RecordConflict implements Store.
func (s *SQLiteStore) RecordConflict(ctx context.Context, c models.ConflictLog) error {
	conn, err := s.conn()
	if err != nil {
		return err
	}
	query := `INSERT INTO conflict_log
			  (id, entity, entity_id, operation_id, local_version, server_version, resolution, detected_at)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = conn.ExecContext(ctx, query, c.ID, c.Entity, c.EntityID, c.OperationID,
		c.LocalVersion, c.ServerVersion, c.Resolution, c.DetectedAt)
	return dbErr("failed to record conflict", err)
}

// ListConflicts implements Store.
func (s *SQLiteStore) ListConflicts(ctx context.Context) ([]models.ConflictLog, error) {
	conn, err := s.conn()
	if err != nil {
		return nil, err
	}
	rows, err := conn.QueryContext(ctx, `SELECT id, entity, entity_id, operation_id, local_version,
		server_version, resolution, detected_at FROM conflict_log ORDER BY detected_at, rowid`)
	if err != nil {
		return nil, dbErr("failed to query conflicts", err)
	}
	defer rows.Close()

	var out []models.ConflictLog
	for rows.Next() {
		var c models.ConflictLog
		if err := rows.Scan(&c.ID, &c.Entity, &c.EntityID, &c.OperationID, &c.LocalVersion,
			&c.ServerVersion, &c.Resolution, &c.DetectedAt); err != nil {
			return nil, dbErr("failed to scan conflict", err)
		}
		out = append(out, c)
	}
	return out, dbErr("failed to read conflicts", rows.Err())
}

// ClearAll implements Store.
func (s *SQLiteStore) ClearAll(ctx context.Context) error {
	conn, err := s.conn()
	if err != nil {
		return err
	}
	tables := append(append([]string{}, Collections...), "sync_queue", "pending_operations", "conflict_log")
	err = conn.InTx(ctx, func(tx *sql.Tx) error {
		for _, table := range tables {
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
				return fmt.Errorf("clear %s: %w", table, err)
			}
		}
		return nil
	})
	return dbErr("failed to clear store", err)
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}
