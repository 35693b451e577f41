package pgkv

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
)

// PGStore — key/value поверх одной таблицы Postgres. Движок взаимозаменяем
// с redis-вариантом: выбирается драйвером в конфиге.
type PGStore struct {
	db *pgxpool.Pool
}

func New(connString string) (*PGStore, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, errors.Wrap(err, "parse pg config")
	}

	db, err := pgxpool.NewWithConfig(context.Background(), cfg)
	if err != nil {
		return nil, errors.Wrap(err, "connect pg")
	}

	s := &PGStore{db: db}
	if err := s.initSchema(context.Background()); err != nil {
		return nil, err
	}

	return s, nil
}

func (s *PGStore) initSchema(ctx context.Context) error {
	stmts := []string{
		`
CREATE TABLE IF NOT EXISTS kv (
  key TEXT PRIMARY KEY,
  value BYTEA NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
	}

	for _, q := range stmts {
		if _, err := s.db.Exec(ctx, q); err != nil {
			return errors.Wrap(err, "init schema")
		}
	}
	return nil
}

func (s *PGStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	err := s.db.QueryRow(ctx, `SELECT value FROM kv WHERE key = $1`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, errors.Wrap(err, "select kv")
	}
	return value, true, nil
}

func (s *PGStore) Set(ctx context.Context, key string, value []byte) error {
	_, err := s.db.Exec(ctx, `
INSERT INTO kv (key, value, updated_at)
VALUES ($1, $2, now())
ON CONFLICT (key)
DO UPDATE SET value = EXCLUDED.value, updated_at = now()
`, key, value)
	return errors.Wrap(err, "upsert kv")
}

func (s *PGStore) Delete(ctx context.Context, key string) error {
	_, err := s.db.Exec(ctx, `DELETE FROM kv WHERE key = $1`, key)
	return errors.Wrap(err, "delete kv")
}

func (s *PGStore) DeletePrefix(ctx context.Context, prefix string) error {
	// Префиксы, которыми оперирует ядро, не содержат '%' и '_',
	// экранирование LIKE не требуется.
	_, err := s.db.Exec(ctx, `DELETE FROM kv WHERE key LIKE $1 || '%'`, prefix)
	return errors.Wrap(err, "delete kv prefix")
}

func (s *PGStore) Iterate(ctx context.Context, prefix string, fn func(key string, value []byte) error) error {
	rows, err := s.db.Query(ctx, `SELECT key, value FROM kv WHERE key LIKE $1 || '%' ORDER BY key`, prefix)
	if err != nil {
		return errors.Wrap(err, "select kv prefix")
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		var value []byte
		if err := rows.Scan(&key, &value); err != nil {
			return errors.Wrap(err, "scan kv")
		}
		if err := fn(key, value); err != nil {
			return err
		}
	}
	return errors.Wrap(rows.Err(), "rows")
}

func (s *PGStore) Close() error {
	if s.db != nil {
		s.db.Close()
	}
	return nil
}
