package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
)

type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

type PostgresStore struct {
	pool    Pool
	closeFn func()
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS documents (
	collection TEXT NOT NULL,
	id         TEXT NOT NULL,
	data       JSONB NOT NULL DEFAULT '{}'::jsonb,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (collection, id)
);

CREATE INDEX IF NOT EXISTS idx_documents_platform_lead_id ON documents ((data->>'platformLeadId'));
CREATE INDEX IF NOT EXISTS idx_documents_data_id ON documents ((data->>'id'));
`

const (
	sqlGet         = `SELECT data FROM documents WHERE collection = $1 AND id = $2`
	sqlSetMerge    = `INSERT INTO documents (collection, id, data, updated_at) VALUES ($1, $2, $3, $4) ON CONFLICT (collection, id) DO UPDATE SET data = documents.data || EXCLUDED.data, updated_at = EXCLUDED.updated_at`
	sqlSetReplace  = `INSERT INTO documents (collection, id, data, updated_at) VALUES ($1, $2, $3, $4) ON CONFLICT (collection, id) DO UPDATE SET data = EXCLUDED.data, updated_at = EXCLUDED.updated_at`
	sqlDelete      = `DELETE FROM documents WHERE collection = $1 AND id = $2`
	sqlWhere       = `SELECT id, data FROM documents WHERE collection = $1 AND data->>$2 = $3 ORDER BY id`
	sqlList        = `SELECT id, data FROM documents WHERE collection = $1 ORDER BY id`
	sqlCollections = `SELECT DISTINCT collection FROM documents WHERE starts_with(collection, $1) ORDER BY collection`
)

func NewPostgres(ctx context.Context, connString string, maxConns int32) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}
	if maxConns > 0 {
		pgxCfg.MaxConns = maxConns
	}
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, collection, id string) (*Document, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx, sqlGet, collection, id).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: get %s/%s", collection, id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get %s/%s", collection, id)
	}
	data := map[string]any{}
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, eris.Wrapf(err, "postgres: decode %s/%s", collection, id)
	}
	return &Document{Collection: collection, ID: id, Data: data}, nil
}

func (s *PostgresStore) Set(ctx context.Context, collection, id string, data map[string]any, merge bool) error {
	sql, args, err := setStatement(op{collection: collection, id: id, data: data, merge: merge})
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, sql, args...)
	return eris.Wrapf(err, "postgres: set %s/%s", collection, id)
}

func (s *PostgresStore) Delete(ctx context.Context, collection, id string) error {
	_, err := s.pool.Exec(ctx, sqlDelete, collection, id)
	return eris.Wrapf(err, "postgres: delete %s/%s", collection, id)
}

func (s *PostgresStore) Where(ctx context.Context, collection, field string, value any) ([]Document, error) {
	rows, err := s.pool.Query(ctx, sqlWhere, collection, field, stringify(value))
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: where %s.%s", collection, field)
	}
	return scanDocuments(rows, collection)
}

func (s *PostgresStore) List(ctx context.Context, collection string) ([]Document, error) {
	rows, err := s.pool.Query(ctx, sqlList, collection)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list %s", collection)
	}
	return scanDocuments(rows, collection)
}

func (s *PostgresStore) Collections(ctx context.Context, prefix string) ([]string, error) {
	rows, err := s.pool.Query(ctx, sqlCollections, prefix)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: collections")
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, eris.Wrap(err, "postgres: scan collection")
		}
		out = append(out, c)
	}
	return out, eris.Wrap(rows.Err(), "postgres: collections rows")
}

func (s *PostgresStore) NewBatch() Batch { return &postgresBatch{s: s} }

type postgresBatch struct {
	opList
	s *PostgresStore
}

func (b *postgresBatch) Commit(ctx context.Context) error {
	if len(b.ops) == 0 {
		return nil
	}
	tx, err := b.s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: batch begin")
	}
	defer tx.Rollback(ctx)

	for _, o := range b.ops {
		if o.delete {
			if _, err := tx.Exec(ctx, sqlDelete, o.collection, o.id); err != nil {
				return eris.Wrapf(err, "postgres: batch delete %s/%s", o.collection, o.id)
			}
			continue
		}
		sql, args, err := setStatement(o)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, sql, args...); err != nil {
			return eris.Wrapf(err, "postgres: batch set %s/%s", o.collection, o.id)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return eris.Wrap(err, "postgres: batch commit")
	}
	b.ops = nil
	return nil
}

func setStatement(o op) (string, []any, error) {
	raw, err := json.Marshal(o.data)
	if err != nil {
		return "", nil, eris.Wrapf(err, "postgres: encode %s/%s", o.collection, o.id)
	}
	sql := sqlSetReplace
	if o.merge {
		sql = sqlSetMerge
	}
	return sql, []any{o.collection, o.id, raw, time.Now().UTC()}, nil
}

func scanDocuments(rows pgx.Rows, collection string) ([]Document, error) {
	defer rows.Close()
	var out []Document
	for rows.Next() {
		var (
			id  string
			raw []byte
		)
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, eris.Wrapf(err, "postgres: scan %s", collection)
		}
		data := map[string]any{}
		if err := json.Unmarshal(raw, &data); err != nil {
			return nil, eris.Wrapf(err, "postgres: decode %s/%s", collection, id)
		}
		out = append(out, Document{Collection: collection, ID: id, Data: data})
	}
	return out, eris.Wrapf(rows.Err(), "postgres: rows %s", collection)
}
