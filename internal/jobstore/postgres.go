package jobstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"cronbot/internal/job"
	logx "cronbot/pkg/logx"
)

const defaultPostgresTable = "cronbot_jobs"

type postgresStore struct {
	pool  *pgxpool.Pool
	table string
}

func openPostgres(ctx context.Context, cfg Config, log logx.Logger) (Store, error) {
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	table := cfg.Table
	if table == "" {
		table = defaultPostgresTable
	}
	st := &postgresStore{pool: pool, table: table}
	if err := st.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	log.Debug("postgres store opened", logx.String("table", table))
	return st, nil
}

func (s *postgresStore) migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		seq        BIGSERIAL PRIMARY KEY,
		id         TEXT NOT NULL UNIQUE,
		data       JSONB NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`, s.table))
	return err
}

func (s *postgresStore) Put(ctx context.Context, j job.Job) error {
	b, err := job.Encode(j)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, fmt.Sprintf(
		`INSERT INTO %s (id, data, updated_at) VALUES ($1, $2, now())
		 ON CONFLICT (id) DO UPDATE SET data = EXCLUDED.data, updated_at = now()`, s.table),
		j.ID, string(b),
	)
	return err
}

func (s *postgresStore) Get(ctx context.Context, id string) (job.Job, error) {
	var data string
	err := s.pool.QueryRow(ctx, fmt.Sprintf(`SELECT data::text FROM %s WHERE id = $1`, s.table), id).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return job.Job{}, ErrNotFound
	}
	if err != nil {
		return job.Job{}, err
	}
	return job.Decode([]byte(data))
}

func (s *postgresStore) Delete(ctx context.Context, id string) (bool, error) {
	tag, err := s.pool.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, s.table), id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (s *postgresStore) List(ctx context.Context) ([]job.Job, error) {
	rows, err := s.pool.Query(ctx, fmt.Sprintf(`SELECT data::text FROM %s ORDER BY seq`, s.table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []job.Job
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		j, err := job.Decode([]byte(data))
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

func (s *postgresStore) Close() error {
	s.pool.Close()
	return nil
}
