package redis

import (
	"context"
	"errors"
	"time"

	goredis "github.com/redis/go-redis/v9"

	pr "github.com/unkn0wn-root/dictcache/provider"
)

var ErrNilClient = errors.New("redis provider: nil client")

// DefaultOpTimeout bounds every round-trip when Config.OpTimeout is zero.
const DefaultOpTimeout = 5 * time.Second

type Redis struct {
	rdb         goredis.UniversalClient
	closeClient bool
	opTimeout   time.Duration
}

var (
	_ pr.Provider = (*Redis)(nil)
	_ pr.Batcher  = (*Redis)(nil)
)

type Config struct {
	Client      goredis.UniversalClient
	CloseClient bool          // set true only if this provider exclusively owns the client
	OpTimeout   time.Duration // per round-trip; 0 => DefaultOpTimeout, <0 => none
}

func New(cfg Config) (*Redis, error) {
	if cfg.Client == nil {
		return nil, ErrNilClient
	}
	timeout := cfg.OpTimeout
	if timeout == 0 {
		timeout = DefaultOpTimeout
	}
	return &Redis{rdb: cfg.Client, closeClient: cfg.CloseClient, opTimeout: timeout}, nil
}

func (p *Redis) opCtx(parent context.Context) (context.Context, context.CancelFunc) {
	if p.opTimeout < 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, p.opTimeout)
}

// Ping checks connectivity; used at startup.
func (p *Redis) Ping(ctx context.Context) error {
	ctx, cancel := p.opCtx(ctx)
	defer cancel()
	return p.rdb.Ping(ctx).Err()
}

func (p *Redis) Get(ctx context.Context, key string) ([]byte, bool, error) {
	ctx, cancel := p.opCtx(ctx)
	defer cancel()
	b, err := p.rdb.Get(ctx, key).Bytes()
	if err == goredis.Nil {
		return nil, false, nil // miss
	}
	if err != nil {
		return nil, false, err // transport/server error
	}
	if len(b) == 0 {
		return nil, false, nil
	}
	return b, true, nil
}

// Set issues SET then EXPIRE inside one MULTI/EXEC so the key never lives
// without its TTL. ttl <= 0 stores without expiry.
func (p *Redis) Set(ctx context.Context, key string, value []byte, _ int64, ttl time.Duration) (bool, error) {
	ctx, cancel := p.opCtx(ctx)
	defer cancel()
	_, err := p.rdb.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Set(ctx, key, value, 0)
		if ttl > 0 {
			pipe.Expire(ctx, key, ttl)
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

// SetMany writes every item with the same TTL in a single transaction.
func (p *Redis) SetMany(ctx context.Context, items []pr.Item, ttl time.Duration) error {
	if len(items) == 0 {
		return nil
	}
	ctx, cancel := p.opCtx(ctx)
	defer cancel()
	_, err := p.rdb.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		for _, it := range items {
			pipe.Set(ctx, it.Key, it.Value, 0)
			if ttl > 0 {
				pipe.Expire(ctx, it.Key, ttl)
			}
		}
		return nil
	})
	return err
}

func (p *Redis) Del(ctx context.Context, key string) error {
	ctx, cancel := p.opCtx(ctx)
	defer cancel()
	return p.rdb.Del(ctx, key).Err()
}

// Close releases the underlying redis client only when this provider owns it.
// Safe to call multiple times; repeated calls become no-ops.
func (p *Redis) Close(context.Context) error {
	if p.closeClient {
		if err := p.rdb.Close(); err != nil && !errors.Is(err, goredis.ErrClosed) {
			return err
		}
	}
	return nil
}
