// Package postgres implements backend.Source over the jibiki PostgreSQL
// schema. Content queries read the JSON materialized views (mv_*); every
// row is one JSON document decoded straight into the model record.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/unkn0wn-root/dictcache"
	"github.com/unkn0wn-root/dictcache/backend"
	"github.com/unkn0wn-root/dictcache/snowflake"
)

// Querier is the subset of *pgxpool.Pool the source uses.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type Config struct {
	DB       Querier
	IDs      *snowflake.Generator // required for CreateUser
	Logger   dictcache.Logger
	PageSize int // 0 => backend.PageSize
}

type Source struct {
	db       Querier
	ids      *snowflake.Generator
	log      dictcache.Logger
	pageSize int
	pool     *pgxpool.Pool // set by Open; closed by Close
}

var _ backend.Source = (*Source)(nil)

func New(cfg Config) (*Source, error) {
	if cfg.DB == nil {
		return nil, errors.New("postgres: DB is required")
	}
	s := &Source{db: cfg.DB, ids: cfg.IDs, log: cfg.Logger, pageSize: cfg.PageSize}
	if s.log == nil {
		s.log = dictcache.NopLogger{}
	}
	if s.pageSize <= 0 {
		s.pageSize = backend.PageSize
	}
	return s, nil
}

// Open connects a pgx pool to dsn and wraps it.
func Open(ctx context.Context, dsn string, ids *snowflake.Generator, log dictcache.Logger) (*Source, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open pool: %w", err)
	}
	s, err := New(Config{DB: pool, IDs: ids, Logger: log})
	if err != nil {
		pool.Close()
		return nil, err
	}
	s.pool = pool
	return s, nil
}

func (s *Source) Ping(ctx context.Context) error {
	if s.pool == nil {
		return nil
	}
	return s.pool.Ping(ctx)
}

func (s *Source) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

func qb() sq.StatementBuilderType {
	return sq.StatementBuilder.PlaceholderFormat(sq.Dollar)
}

func (s *Source) logSQL(op, sqlStr string, args []any) {
	s.log.Debug("sql", dictcache.Fields{"op": op, "sql": sqlStr, "args": len(args)})
}

// rows runs q lazily: nothing is sent to the database until the returned
// sequence is ranged over.
func rows[V any](s *Source, ctx context.Context, op string, q sq.Sqlizer, scan func(pgx.Rows) (V, error)) backend.Rows[V] {
	return func(yield func(V, error) bool) {
		var zero V
		sqlStr, args, err := q.ToSql()
		if err != nil {
			yield(zero, fmt.Errorf("%s: build: %w", op, err))
			return
		}
		s.logSQL(op, sqlStr, args)

		start := time.Now()
		rs, err := s.db.Query(ctx, sqlStr, args...)
		if err != nil {
			yield(zero, fmt.Errorf("%s: %w", op, err))
			return
		}
		defer rs.Close()

		n := 0
		for rs.Next() {
			v, err := scan(rs)
			if err != nil {
				yield(zero, fmt.Errorf("%s: scan: %w", op, err))
				return
			}
			n++
			if !yield(v, nil) {
				return
			}
		}
		if err := rs.Err(); err != nil {
			yield(zero, fmt.Errorf("%s: %w", op, err))
			return
		}
		s.log.Debug("sql ok", dictcache.Fields{"op": op, "rows": n, "took": time.Since(start)})
	}
}

// jsonRows reads one JSON document per row.
func jsonRows[V any](s *Source, ctx context.Context, op string, q sq.Sqlizer) backend.Rows[V] {
	return rows(s, ctx, op, q, scanJSON[V])
}

func scanJSON[V any](r pgx.Rows) (V, error) {
	var (
		v   V
		raw []byte
	)
	if err := r.Scan(&raw); err != nil {
		return v, err
	}
	err := json.Unmarshal(raw, &v)
	return v, err
}

// jsonOne reads a single JSON document. No row is ok=false.
func jsonOne[V any](s *Source, ctx context.Context, op string, q sq.Sqlizer) (V, bool, error) {
	var v V
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return v, false, fmt.Errorf("%s: build: %w", op, err)
	}
	s.logSQL(op, sqlStr, args)

	var raw []byte
	if err := s.db.QueryRow(ctx, sqlStr, args...).Scan(&raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return v, false, nil
		}
		return v, false, fmt.Errorf("%s: %w", op, err)
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, false, fmt.Errorf("%s: decode: %w", op, err)
	}
	return v, true, nil
}

func (s *Source) exec(ctx context.Context, op string, q sq.Sqlizer) (pgconn.CommandTag, error) {
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return pgconn.CommandTag{}, fmt.Errorf("%s: build: %w", op, err)
	}
	s.logSQL(op, sqlStr, args)
	tag, err := s.db.Exec(ctx, sqlStr, args...)
	if err != nil {
		return tag, fmt.Errorf("%s: %w", op, err)
	}
	return tag, nil
}
