// Package app builds the long-lived dependencies from configuration and
// tears them down in reverse order.
package app

import (
	"context"
	"errors"
	"fmt"
	stdslog "log/slog"
	"os"

	goredis "github.com/redis/go-redis/v9"

	"github.com/unkn0wn-root/dictcache"
	"github.com/unkn0wn-root/dictcache/backend"
	"github.com/unkn0wn-root/dictcache/backend/postgres"
	"github.com/unkn0wn-root/dictcache/dictionary"
	asynchook "github.com/unkn0wn-root/dictcache/hooks/async"
	otelhooks "github.com/unkn0wn-root/dictcache/hooks/otel"
	"github.com/unkn0wn-root/dictcache/internal/config"
	logruslog "github.com/unkn0wn-root/dictcache/log/logrus"
	slogl "github.com/unkn0wn-root/dictcache/log/slog"
	zaplog "github.com/unkn0wn-root/dictcache/log/zap"
	pr "github.com/unkn0wn-root/dictcache/provider"
	bcp "github.com/unkn0wn-root/dictcache/provider/bigcache"
	rp "github.com/unkn0wn-root/dictcache/provider/redis"
	rsp "github.com/unkn0wn-root/dictcache/provider/ristretto"
	"github.com/unkn0wn-root/dictcache/session"
	"github.com/unkn0wn-root/dictcache/sloghooks"
	"github.com/unkn0wn-root/dictcache/snowflake"
)

type App struct {
	Config   *config.Config
	Logger   dictcache.Logger
	Provider pr.Provider
	Sessions *session.Store
	Accessor *dictionary.Accessor

	closers []func(context.Context) error
}

// Options override parts of the configuration-driven construction, mostly
// for tests.
type Options struct {
	Source   backend.Source
	Provider pr.Provider
	Logger   dictcache.Logger
}

func (a *App) onClose(f func(context.Context) error) { a.closers = append(a.closers, f) }

// New wires everything. On error, whatever was already opened is closed.
func New(ctx context.Context, cfg *config.Config, opts Options) (_ *App, err error) {
	a := &App{Config: cfg}
	defer func() {
		if err != nil {
			_ = a.Close(context.WithoutCancel(ctx))
		}
	}()

	a.Logger = opts.Logger
	if a.Logger == nil {
		if a.Logger, err = NewLogger(cfg.LogBackend, cfg.LogLevel); err != nil {
			return nil, err
		}
	}

	hooks, err := a.newHooks(cfg)
	if err != nil {
		return nil, err
	}

	a.Provider = opts.Provider
	if a.Provider == nil {
		if a.Provider, err = newProvider(ctx, cfg); err != nil {
			return nil, err
		}
		a.onClose(a.Provider.Close)
		if local, ok := a.Provider.(*rsp.Provider); ok {
			a.onClose(func(context.Context) error {
				st := local.Stats()
				a.Logger.Debug("local cache stats", dictcache.Fields{
					"hits": st.Hits, "misses": st.Misses, "evicted": st.Evicted,
					"rejected": st.Rejected, "hit_ratio": st.HitRatio,
				})
				return nil
			})
		}
	}

	src := opts.Source
	if src == nil {
		if cfg.DBDSN == "" {
			return nil, errors.New("DB_DSN is required")
		}
		ids, err := snowflake.New(cfg.SnowflakeNode)
		if err != nil {
			return nil, err
		}
		pg, err := postgres.Open(ctx, cfg.DBDSN, ids, a.Logger)
		if err != nil {
			return nil, err
		}
		a.onClose(func(context.Context) error { pg.Close(); return nil })
		if err := pg.Ping(ctx); err != nil {
			return nil, fmt.Errorf("postgres ping: %w", err)
		}
		src = pg
	}

	if a.Sessions, err = session.New(session.Config{
		Provider: a.Provider,
		TTL:      cfg.SessionTTL,
		Logger:   a.Logger,
		Hooks:    hooks,
	}); err != nil {
		return nil, err
	}

	var cost dictcache.SetCostFunc
	if cfg.CacheStore == config.StoreRistretto {
		cost = func(_ string, raw []byte) int64 { return int64(len(raw)) }
	}
	if a.Accessor, err = dictionary.New(dictionary.Config{
		Source:   src,
		Provider: a.Provider,
		Sessions: a.Sessions,
		Encoding: dictionary.Encoding{
			Format:    cfg.CacheCodec,
			List:      cfg.CacheListEncoding,
			MaxDecode: cfg.CacheMaxDecode,
		},
		TTL:                   cfg.CacheTTL,
		Logger:                a.Logger,
		Hooks:                 hooks,
		ComputeSetCost:        cost,
		FallbackOnUnavailable: cfg.CacheFallback,
		Coalesce:              cfg.CacheCoalesce,
	}); err != nil {
		return nil, err
	}

	a.Logger.Info("dictcache ready", dictcache.Fields{
		"store": cfg.CacheStore, "codec": cfg.CacheCodec, "list": cfg.CacheListEncoding,
	})
	return a, nil
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func NewLogger(name, level string) (dictcache.Logger, error) {
	switch name {
	case "", "zap":
		return zaplog.New(level)
	case "logrus":
		return logruslog.New(level)
	case "slog":
		return slogl.New(os.Stderr, level)
	default:
		return nil, fmt.Errorf("unknown log backend %q", name)
	}
}

func (a *App) newHooks(cfg *config.Config) (dictcache.Hooks, error) {
	var inner dictcache.Hooks
	switch cfg.Hooks {
	case "", "none":
		return nil, nil
	case "slog":
		inner = sloghooks.New(stdslog.Default(), sloghooks.Options{HitEvery: 100, MissEvery: 10})
	case "otel":
		h, err := otelhooks.NewGlobal()
		if err != nil {
			return nil, err
		}
		inner = h
	default:
		return nil, fmt.Errorf("unknown hooks %q", cfg.Hooks)
	}
	h := asynchook.New(inner, cfg.HooksWorkers, cfg.HooksQueue)
	a.onClose(func(context.Context) error { h.Close(); return nil })
	return h, nil
}

func newProvider(ctx context.Context, cfg *config.Config) (pr.Provider, error) {
	switch cfg.CacheStore {
	case config.StoreRedis:
		client := goredis.NewClient(&goredis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		p, err := rp.New(rp.Config{Client: client, CloseClient: true, OpTimeout: cfg.CacheOpTimeout})
		if err != nil {
			return nil, err
		}
		if err := p.Ping(ctx); err != nil {
			_ = p.Close(ctx)
			return nil, fmt.Errorf("redis ping %s: %w", cfg.RedisAddr, err)
		}
		return p, nil
	case config.StoreRistretto:
		return rsp.New(rsp.Config{MaxCost: cfg.CacheLocalMaxCost, Metrics: cfg.LogLevel == "debug"})
	case config.StoreBigCache:
		// one global lifetime: the shorter of the two keeps tokens honest
		return bcp.New(bcp.Config{LifeWindow: min(cfg.CacheTTL, cfg.SessionTTL)})
	default:
		return nil, fmt.Errorf("unknown cache store %q", cfg.CacheStore)
	}
}
