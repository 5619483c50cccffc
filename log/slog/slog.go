// Package slog adapts log/slog to dictcache.Logger.
package slog

import (
	"context"
	"io"
	stdslog "log/slog"
	"slices"

	"github.com/unkn0wn-root/dictcache"
)

var _ dictcache.Logger = Logger{}

type Logger struct{ L *stdslog.Logger }

// New returns a JSON logger writing to w at the named level
// ("debug", "info", "warn", "error").
func New(w io.Writer, level string) (Logger, error) {
	var lvl stdslog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return Logger{}, err
	}
	h := stdslog.NewJSONHandler(w, &stdslog.HandlerOptions{Level: lvl})
	return Logger{L: stdslog.New(h)}, nil
}

func (s Logger) Debug(msg string, f dictcache.Fields) { s.log(stdslog.LevelDebug, msg, f) }
func (s Logger) Info(msg string, f dictcache.Fields)  { s.log(stdslog.LevelInfo, msg, f) }
func (s Logger) Warn(msg string, f dictcache.Fields)  { s.log(stdslog.LevelWarn, msg, f) }
func (s Logger) Error(msg string, f dictcache.Fields) { s.log(stdslog.LevelError, msg, f) }

func (s Logger) log(lvl stdslog.Level, msg string, f dictcache.Fields) {
	ctx := context.Background()
	if !s.L.Enabled(ctx, lvl) {
		return
	}
	s.L.LogAttrs(ctx, lvl, msg, attrs(f)...)
}

// attrs sorts by name so the same event always renders the same way.
func attrs(f dictcache.Fields) []stdslog.Attr {
	if len(f) == 0 {
		return nil
	}
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	out := make([]stdslog.Attr, 0, len(f))
	for _, k := range keys {
		v := f[k]
		if err, ok := v.(error); ok {
			v = err.Error()
		}
		out = append(out, stdslog.Any(k, v))
	}
	return out
}
