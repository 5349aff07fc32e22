package vectorindex

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/starford/rallylog/internal/apperr"
)

const sqliteSchemaSQL = `
CREATE TABLE IF NOT EXISTS vectors (
	id         TEXT PRIMARY KEY,
	document   TEXT NOT NULL,
	metadata   TEXT NOT NULL DEFAULT '{}',
	embedding  BLOB NOT NULL,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS index_meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

const dimensionKey = "dimension"

type sqliteBackend struct {
	conn *sql.DB
}

// OpenSQLite opens (or creates) a single-file vector index at path.
func OpenSQLite(path string, opts ...Option) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("vectorindex: create %s: %w", filepath.Dir(path), err)
	}
	conn, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("vectorindex: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("vectorindex: ping: %w", err)
	}
	if _, err := conn.Exec(sqliteSchemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("vectorindex: apply schema: %w", err)
	}
	return newStore(&sqliteBackend{conn: conn}, BackendSQLite, opts...)
}

func (b *sqliteBackend) upsert(ctx context.Context, e Entry) error {
	md, err := json.Marshal(e.Metadata)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	_, err = b.conn.ExecContext(ctx, `
		INSERT INTO vectors (id, document, metadata, embedding, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			document   = excluded.document,
			metadata   = excluded.metadata,
			embedding  = excluded.embedding,
			updated_at = excluded.updated_at
	`, e.ID, e.Document, string(md), encodeVector(e.Embedding), time.Now().UTC())
	return err
}

func (b *sqliteBackend) get(ctx context.Context, id string) (*Entry, error) {
	row := b.conn.QueryRowContext(ctx, `SELECT id, document, metadata, embedding FROM vectors WHERE id = ?`, id)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", id, apperr.ErrNotFound)
	}
	return e, err
}

// query scans every row and filters and ranks in Go.
func (b *sqliteBackend) query(ctx context.Context, embedding []float32, k int, filter Filter) ([]Match, error) {
	entries, err := b.all(ctx)
	if err != nil {
		return nil, err
	}
	return rank(entries, embedding, k, filter), nil
}

func (b *sqliteBackend) all(ctx context.Context) ([]Entry, error) {
	rows, err := b.conn.QueryContext(ctx, `SELECT id, document, metadata, embedding FROM vectors`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(r rowScanner) (*Entry, error) {
	var (
		e    Entry
		md   string
		blob []byte
	)
	if err := r.Scan(&e.ID, &e.Document, &md, &blob); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(md), &e.Metadata); err != nil {
		return nil, fmt.Errorf("decode metadata of %s: %w", e.ID, err)
	}
	if e.Metadata == nil {
		e.Metadata = map[string]string{}
	}
	v, err := decodeVector(blob)
	if err != nil {
		return nil, fmt.Errorf("decode embedding of %s: %w", e.ID, err)
	}
	e.Embedding = v
	return &e, nil
}

func (b *sqliteBackend) remove(ctx context.Context, id string) error {
	_, err := b.conn.ExecContext(ctx, `DELETE FROM vectors WHERE id = ?`, id)
	return err
}

func (b *sqliteBackend) count(ctx context.Context, filter Filter) (int, error) {
	if len(filter) == 0 {
		var n int
		err := b.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM vectors`).Scan(&n)
		return n, err
	}
	entries, err := b.all(ctx)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, e := range entries {
		if filter.Matches(e.Metadata) {
			n++
		}
	}
	return n, nil
}

func (b *sqliteBackend) ids(ctx context.Context) ([]string, error) {
	rows, err := b.conn.QueryContext(ctx, `SELECT id FROM vectors`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (b *sqliteBackend) clear(ctx context.Context) error {
	_, err := b.conn.ExecContext(ctx, `DELETE FROM vectors`)
	return err
}

func (b *sqliteBackend) loadDimension() (int, error) {
	var v string
	err := b.conn.QueryRow(`SELECT value FROM index_meta WHERE key = ?`, dimensionKey).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(v)
}

func (b *sqliteBackend) saveDimension(dim int) error {
	tx, err := b.conn.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	if dim == 0 {
		_, err = tx.Exec(`DELETE FROM index_meta WHERE key = ?`, dimensionKey)
	} else {
		_, err = tx.Exec(`
			INSERT INTO index_meta (key, value) VALUES (?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value
		`, dimensionKey, strconv.Itoa(dim))
	}
	if err != nil {
		return err
	}
	return tx.Commit()
}

func (b *sqliteBackend) close() error {
	return b.conn.Close()
}
