package dictcache

// Fields is a minimal structured field map for logs.
type Fields map[string]any

// Logger is a tiny leveled logger. Adapters for zap, logrus and slog live
// under log/. A nil Logger in Options disables logging.
type Logger interface {
	Debug(msg string, f Fields)
	Info(msg string, f Fields)
	Warn(msg string, f Fields)
	Error(msg string, f Fields)
}

type NopLogger struct{}

func (NopLogger) Debug(string, Fields) {}
func (NopLogger) Info(string, Fields)  {}
func (NopLogger) Warn(string, Fields)  {}
func (NopLogger) Error(string, Fields) {}

// With returns a Logger that adds base to every entry. Per-call fields win
// on conflicting names.
func With(l Logger, base Fields) Logger {
	if l == nil {
		return NopLogger{}
	}
	if _, nop := l.(NopLogger); nop || len(base) == 0 {
		return l
	}
	return withLogger{next: l, base: base}
}

type withLogger struct {
	next Logger
	base Fields
}

func (w withLogger) merge(f Fields) Fields {
	out := make(Fields, len(w.base)+len(f))
	for k, v := range w.base {
		out[k] = v
	}
	for k, v := range f {
		out[k] = v
	}
	return out
}

func (w withLogger) Debug(msg string, f Fields) { w.next.Debug(msg, w.merge(f)) }
func (w withLogger) Info(msg string, f Fields)  { w.next.Info(msg, w.merge(f)) }
func (w withLogger) Warn(msg string, f Fields)  { w.next.Warn(msg, w.merge(f)) }
func (w withLogger) Error(msg string, f Fields) { w.next.Error(msg, w.merge(f)) }
