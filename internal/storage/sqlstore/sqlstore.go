// Package sqlstore implements table-per-sensor storage over database/sql.
// The same store serves SQLite and PostgreSQL; only the dialect differs.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/cpp11nullptr/vikki/internal/models"
	"github.com/cpp11nullptr/vikki/internal/storage"
)

// ErrNameConflict reports a sensor whose table name collides with an existing
// table of a different sensor under the backend's identifier rules.
var ErrNameConflict = errors.New("table name conflicts with another sensor")

// dialect holds everything that differs between SQL backends.
type dialect struct {
	name   string
	driver string

	// dsn builds the driver connection string from storage params.
	dsn func(params map[string]string) (string, error)
	// configure runs once after the connection pool is created.
	configure func(db *sql.DB)

	// schema resolves the namespace tables live in, "" when the backend has none.
	schema func(params map[string]string) string

	tableExists string
	existsArgs  func(schema, table string) []any
	createTable string
	upsert      string
	selectRange string
}

// Store is one SQL storage backend. Each sensor gets its own table holding
// (created, data) rows keyed by timestamp.
type Store struct {
	dialect dialect

	mu     sync.RWMutex
	db     *sql.DB
	schema string
}

func (s *Store) Name() string { return s.dialect.name }

func (s *Store) Open(ctx context.Context, params map[string]string) error {
	dsn, err := s.dialect.dsn(params)
	if err != nil {
		return storage.Wrap("open", "", err)
	}
	schema := s.dialect.schema(params)
	if schema != "" {
		if err := storage.ValidateEntity(schema); err != nil {
			return storage.Wrap("open", "", fmt.Errorf("schema: %w", err))
		}
	}

	db, err := sql.Open(s.dialect.driver, dsn)
	if err != nil {
		return storage.Wrap("open", "", err)
	}
	if s.dialect.configure != nil {
		s.dialect.configure(db)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return storage.Wrap("open", "", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db != nil {
		s.db.Close()
	}
	s.db = db
	s.schema = schema
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return storage.Wrap("close", "", err)
}

func (s *Store) conn() (*sql.DB, string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return nil, "", storage.ErrNotOpen
	}
	return s.db, s.schema, nil
}

// table returns the quoted, schema-qualified table name for sensor.
func table(schema, sensor string) string {
	if schema == "" {
		return `"` + sensor + `"`
	}
	return `"` + schema + `"."` + sensor + `"`
}

// exists reports whether the table of sensor exists. A table that matches
// only under case folding belongs to another sensor and is ErrNameConflict.
func (s *Store) exists(ctx context.Context, db *sql.DB, schema, sensor string) (bool, error) {
	var name string
	err := db.QueryRowContext(ctx, s.dialect.tableExists, s.dialect.existsArgs(schema, sensor)...).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if name != sensor {
		return false, fmt.Errorf("%w: %q exists", ErrNameConflict, name)
	}
	return true, nil
}

func (s *Store) PrepareEntity(ctx context.Context, sensor string) error {
	if err := storage.ValidateEntity(sensor); err != nil {
		return storage.Wrap("prepare", sensor, err)
	}
	db, schema, err := s.conn()
	if err != nil {
		return storage.Wrap("prepare", sensor, err)
	}

	ok, err := s.exists(ctx, db, schema, sensor)
	if err != nil {
		return storage.Wrap("prepare", sensor, err)
	}
	if ok {
		return nil
	}
	_, err = db.ExecContext(ctx, fmt.Sprintf(s.dialect.createTable, table(schema, sensor)))
	return storage.Wrap("prepare", sensor, err)
}

func (s *Store) Put(ctx context.Context, sensor string, ts int64, payload []byte) error {
	if err := storage.ValidateEntity(sensor); err != nil {
		return storage.Wrap("put", sensor, err)
	}
	db, schema, err := s.conn()
	if err != nil {
		return storage.Wrap("put", sensor, err)
	}
	if _, err := s.exists(ctx, db, schema, sensor); err != nil {
		return storage.Wrap("put", sensor, err)
	}
	if payload == nil {
		payload = []byte{}
	}
	_, err = db.ExecContext(ctx, fmt.Sprintf(s.dialect.upsert, table(schema, sensor)), ts, payload)
	return storage.Wrap("put", sensor, err)
}

func (s *Store) Get(ctx context.Context, sensor string, from, to int64) ([]models.Record, error) {
	if err := storage.ValidateEntity(sensor); err != nil {
		return nil, storage.Wrap("get", sensor, err)
	}
	db, schema, err := s.conn()
	if err != nil {
		return nil, storage.Wrap("get", sensor, err)
	}

	ok, err := s.exists(ctx, db, schema, sensor)
	if errors.Is(err, ErrNameConflict) {
		return nil, nil
	}
	if err != nil {
		return nil, storage.Wrap("get", sensor, err)
	}
	if !ok {
		return nil, nil
	}

	rows, err := db.QueryContext(ctx, fmt.Sprintf(s.dialect.selectRange, table(schema, sensor)), from, to)
	if err != nil {
		return nil, storage.Wrap("get", sensor, err)
	}
	defer rows.Close()

	var records []models.Record
	for rows.Next() {
		var r models.Record
		if err := rows.Scan(&r.Timestamp, &r.Payload); err != nil {
			return nil, storage.Wrap("get", sensor, err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, storage.Wrap("get", sensor, err)
	}
	return records, nil
}
