package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/loykin/svcpanel/internal/store"
)

// DB implements store.Store for PostgreSQL via the pgx stdlib driver. The
// original control panel kept its settings in PostgreSQL; this keeps that
// deployment option available.

type DB struct {
	db *sql.DB
}

func New(dsn string) (*DB, error) {
	d, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	return &DB{db: d}, nil
}

func (p *DB) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS service_state(
			name TEXT PRIMARY KEY,
			state TEXT NOT NULL,
			pid INTEGER NOT NULL,
			started_at TIMESTAMPTZ NULL,
			updated_at TIMESTAMPTZ NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS panel_settings(
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
	}
	for _, q := range stmts {
		if _, err := p.db.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

func (p *DB) Close() error { return p.db.Close() }

func (p *DB) UpsertState(ctx context.Context, rec store.Record) error {
	rec.UpdatedAt = time.Now().UTC()
	var startedAt any
	if !rec.StartedAt.IsZero() {
		startedAt = rec.StartedAt.UTC()
	}
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO service_state(name, state, pid, started_at, updated_at)
		VALUES($1, $2, $3, $4, $5)
		ON CONFLICT(name) DO UPDATE SET
			state=excluded.state,
			pid=excluded.pid,
			started_at=excluded.started_at,
			updated_at=excluded.updated_at;`,
		rec.Name, rec.State, rec.PID, startedAt, rec.UpdatedAt)
	return err
}

func (p *DB) GetState(ctx context.Context, name string) (store.Record, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT name, state, pid, started_at, updated_at
		FROM service_state WHERE name = $1;`, name)
	return scanRecord(row)
}

func (p *DB) ListStates(ctx context.Context) ([]store.Record, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT name, state, pid, started_at, updated_at
		FROM service_state ORDER BY name;`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []store.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (p *DB) SetSetting(ctx context.Context, key, value string) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO panel_settings(key, value) VALUES($1, $2)
		ON CONFLICT(key) DO UPDATE SET value=excluded.value;`, key, value)
	return err
}

func (p *DB) GetSetting(ctx context.Context, key string) (string, error) {
	var v string
	err := p.db.QueryRowContext(ctx, `SELECT value FROM panel_settings WHERE key = $1;`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", store.ErrNotFound
	}
	return v, err
}

func (p *DB) Settings(ctx context.Context) (map[string]string, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT key, value FROM panel_settings;`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(r rowScanner) (store.Record, error) {
	var rec store.Record
	var startedAt sql.NullTime
	err := r.Scan(&rec.Name, &rec.State, &rec.PID, &startedAt, &rec.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Record{}, store.ErrNotFound
	}
	if err != nil {
		return store.Record{}, err
	}
	if startedAt.Valid {
		rec.StartedAt = startedAt.Time
	}
	return rec, nil
}
