package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 1 - Initial schema (scalars, maps, sets, append-only logs)
const currentSchemaVersion = 1

// SQLite is the durable Store backend.
// Uses SQLite with WAL mode and a single connection, so every Update is
// serialized at the database as well as by the engine.
type SQLite struct {
	db *sqlx.DB
}

var _ Store = (*SQLite)(nil)

// Open creates or opens a SQLite database at the given path.
// Applies required pragmas and the schema automatically.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode (balance durability/performance)
//   - 5-second busy timeout for lock contention
//   - Immediate transactions, so a step takes the write lock up front
//
// This function is idempotent - safe to call multiple times.
func Open(path string) (*SQLite, error) {
	db, err := sqlx.Open("sqlite3", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite only supports one writer at a time, so limit connections
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &SQLite{db: db}, nil
}

// dsn appends the transaction locking mode unless the caller chose one.
func dsn(path string) string {
	if strings.Contains(path, "_txlock=") {
		return path
	}
	if strings.Contains(path, "?") {
		return path + "&_txlock=immediate"
	}
	return path + "?_txlock=immediate"
}

// Close closes the database connection.
func (s *SQLite) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB returns the underlying database handle for diagnostics.
func (s *SQLite) DB() *sqlx.DB {
	return s.db
}

// Update runs fn inside one database transaction.
func (s *SQLite) Update(ctx context.Context, fn func(tx Tx) error) error {
	return s.run(ctx, false, fn)
}

// View runs fn inside a transaction whose writes are refused.
func (s *SQLite) View(ctx context.Context, fn func(tx Tx) error) error {
	return s.run(ctx, true, fn)
}

func (s *SQLite) run(ctx context.Context, readOnly bool, fn func(tx Tx) error) error {
	if s.db == nil {
		return ErrClosed
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	if err := fn(&sqliteTx{tx: tx, readOnly: readOnly}); err != nil {
		return err
	}
	if readOnly {
		return nil
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sqlx.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// applySchema creates tables if they don't exist and checks the version.
// This function is idempotent.
func applySchema(db *sqlx.DB) error {
	var version int
	if err := db.Get(&version, "PRAGMA user_version"); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}
	if version > currentSchemaVersion {
		return fmt.Errorf("database schema version %d is newer than supported version %d", version, currentSchemaVersion)
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}

	return nil
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (s *SQLite) verifyPragma(name, expected string) error {
	var value string
	if err := s.db.Get(&value, fmt.Sprintf("PRAGMA %s", name)); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}

type sqliteTx struct {
	tx       *sqlx.Tx
	readOnly bool
}

func (t *sqliteTx) writable() error {
	if t.readOnly {
		return ErrReadOnly
	}
	return nil
}

func (t *sqliteTx) getBlob(ctx context.Context, query string, args ...any) ([]byte, bool, error) {
	var value []byte
	err := t.tx.GetContext(ctx, &value, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

func (t *sqliteTx) Get(ctx context.Context, key string) ([]byte, bool, error) {
	v, ok, err := t.getBlob(ctx, `SELECT value FROM scalars WHERE key = ?`, key)
	if err != nil {
		return nil, false, fmt.Errorf("get %q: %w", key, err)
	}
	return v, ok, nil
}

func (t *sqliteTx) Put(ctx context.Context, key string, value []byte) error {
	if err := t.writable(); err != nil {
		return err
	}
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO scalars (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("put %q: %w", key, err)
	}
	return nil
}

func (t *sqliteTx) MapGet(ctx context.Context, m, key string) ([]byte, bool, error) {
	v, ok, err := t.getBlob(ctx, `SELECT value FROM map_entries WHERE map = ? AND key = ?`, m, key)
	if err != nil {
		return nil, false, fmt.Errorf("map get %s[%q]: %w", m, key, err)
	}
	return v, ok, nil
}

func (t *sqliteTx) MapPut(ctx context.Context, m, key string, value []byte) error {
	if err := t.writable(); err != nil {
		return err
	}
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO map_entries (map, key, value) VALUES (?, ?, ?)
		ON CONFLICT(map, key) DO UPDATE SET value = excluded.value
	`, m, key, value)
	if err != nil {
		return fmt.Errorf("map put %s[%q]: %w", m, key, err)
	}
	return nil
}

func (t *sqliteTx) MapDelete(ctx context.Context, m, key string) error {
	if err := t.writable(); err != nil {
		return err
	}
	if _, err := t.tx.ExecContext(ctx, `DELETE FROM map_entries WHERE map = ? AND key = ?`, m, key); err != nil {
		return fmt.Errorf("map delete %s[%q]: %w", m, key, err)
	}
	return nil
}

func (t *sqliteTx) MapClear(ctx context.Context, m string) error {
	if err := t.writable(); err != nil {
		return err
	}
	if _, err := t.tx.ExecContext(ctx, `DELETE FROM map_entries WHERE map = ?`, m); err != nil {
		return fmt.Errorf("map clear %s: %w", m, err)
	}
	return nil
}

type mapRow struct {
	Key   string `db:"key"`
	Value []byte `db:"value"`
}

func (t *sqliteTx) MapRange(ctx context.Context, m string, fn func(key string, value []byte) error) error {
	// Rows are loaded before calling fn so fn may issue its own queries.
	var rows []mapRow
	err := t.tx.SelectContext(ctx, &rows, `
		SELECT key, value FROM map_entries
		WHERE map = ?
		ORDER BY key COLLATE BINARY ASC
	`, m)
	if err != nil {
		return fmt.Errorf("map range %s: %w", m, err)
	}
	for _, row := range rows {
		if err := fn(row.Key, row.Value); err != nil {
			return err
		}
	}
	return nil
}

func (t *sqliteTx) SetAdd(ctx context.Context, s string, member uint64) error {
	if err := t.writable(); err != nil {
		return err
	}
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO set_members (set_name, member) VALUES (?, ?)
		ON CONFLICT(set_name, member) DO NOTHING
	`, s, int64(member))
	if err != nil {
		return fmt.Errorf("set add %s{%d}: %w", s, member, err)
	}
	return nil
}

func (t *sqliteTx) SetRemove(ctx context.Context, s string, member uint64) error {
	if err := t.writable(); err != nil {
		return err
	}
	if _, err := t.tx.ExecContext(ctx, `DELETE FROM set_members WHERE set_name = ? AND member = ?`, s, int64(member)); err != nil {
		return fmt.Errorf("set remove %s{%d}: %w", s, member, err)
	}
	return nil
}

func (t *sqliteTx) SetContains(ctx context.Context, s string, member uint64) (bool, error) {
	var count int
	err := t.tx.GetContext(ctx, &count, `
		SELECT COUNT(*) FROM set_members WHERE set_name = ? AND member = ?
	`, s, int64(member))
	if err != nil {
		return false, fmt.Errorf("set contains %s{%d}: %w", s, member, err)
	}
	return count > 0, nil
}

func (t *sqliteTx) SetMembers(ctx context.Context, s string) ([]uint64, error) {
	var members []int64
	err := t.tx.SelectContext(ctx, &members, `
		SELECT member FROM set_members WHERE set_name = ? ORDER BY member ASC
	`, s)
	if err != nil {
		return nil, fmt.Errorf("set members %s: %w", s, err)
	}
	out := make([]uint64, len(members))
	for i, m := range members {
		out[i] = uint64(m)
	}
	return out, nil
}

func (t *sqliteTx) LogAppend(ctx context.Context, l string, entry []byte) (uint64, error) {
	if err := t.writable(); err != nil {
		return 0, err
	}
	idx, err := t.LogLen(ctx, l)
	if err != nil {
		return 0, err
	}
	_, err = t.tx.ExecContext(ctx, `
		INSERT INTO log_entries (log, idx, entry) VALUES (?, ?, ?)
	`, l, int64(idx), entry)
	if err != nil {
		return 0, fmt.Errorf("log append %s: %w", l, err)
	}
	return idx, nil
}

func (t *sqliteTx) LogGet(ctx context.Context, l string, index uint64) ([]byte, bool, error) {
	v, ok, err := t.getBlob(ctx, `SELECT entry FROM log_entries WHERE log = ? AND idx = ?`, l, int64(index))
	if err != nil {
		return nil, false, fmt.Errorf("log get %s[%d]: %w", l, index, err)
	}
	return v, ok, nil
}

func (t *sqliteTx) LogLen(ctx context.Context, l string) (uint64, error) {
	var n int64
	if err := t.tx.GetContext(ctx, &n, `SELECT COUNT(*) FROM log_entries WHERE log = ?`, l); err != nil {
		return 0, fmt.Errorf("log len %s: %w", l, err)
	}
	return uint64(n), nil
}
