package logger

import (
	"context"
	"log/slog"

	"github.com/rs/zerolog"
)

// bridgeHandler adapts a zerolog logger to the slog.Handler contract
// so packages can take *slog.Logger without knowing the backend.
// Group names are flattened into dotted key prefixes.
type bridgeHandler struct {
	zl    *zerolog.Logger
	attrs []slog.Attr // keys already qualified with their group path
	group string
}

func NewSlog(zl *zerolog.Logger) *slog.Logger {
	return slog.New(&bridgeHandler{zl: zl})
}

func toZerologLevel(l slog.Level) zerolog.Level {
	switch {
	case l < slog.LevelDebug:
		return zerolog.TraceLevel
	case l < slog.LevelInfo:
		return zerolog.DebugLevel
	case l < slog.LevelWarn:
		return zerolog.InfoLevel
	case l < slog.LevelError:
		return zerolog.WarnLevel
	default:
		return zerolog.ErrorLevel
	}
}

func (h *bridgeHandler) Enabled(_ context.Context, l slog.Level) bool {
	return toZerologLevel(l) >= h.zl.GetLevel()
}

func (h *bridgeHandler) Handle(ctx context.Context, r slog.Record) error {
	base := FromContext(ctx, h.zl)
	ev := base.WithLevel(toZerologLevel(r.Level))

	for _, a := range h.attrs {
		ev = writeAttr(ev, a)
	}
	r.Attrs(func(a slog.Attr) bool {
		a.Key = qualify(h.group, a.Key)
		ev = writeAttr(ev, a)
		return true
	})

	ev.Msg(r.Message)
	return nil
}

func (h *bridgeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	cp := *h
	cp.attrs = cp.attrs[:len(cp.attrs):len(cp.attrs)]
	for _, a := range attrs {
		a.Key = qualify(h.group, a.Key)
		cp.attrs = append(cp.attrs, a)
	}
	return &cp
}

func (h *bridgeHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	cp := *h
	cp.group = qualify(h.group, name)
	return &cp
}

func qualify(group, key string) string {
	if group == "" {
		return key
	}
	return group + "." + key
}

func writeAttr(ev *zerolog.Event, a slog.Attr) *zerolog.Event {
	a.Value = a.Value.Resolve()
	switch a.Value.Kind() {
	case slog.KindString:
		return ev.Str(a.Key, a.Value.String())
	case slog.KindInt64:
		return ev.Int64(a.Key, a.Value.Int64())
	case slog.KindUint64:
		return ev.Uint64(a.Key, a.Value.Uint64())
	case slog.KindFloat64:
		return ev.Float64(a.Key, a.Value.Float64())
	case slog.KindBool:
		return ev.Bool(a.Key, a.Value.Bool())
	case slog.KindDuration:
		return ev.Dur(a.Key, a.Value.Duration())
	case slog.KindTime:
		return ev.Time(a.Key, a.Value.Time())
	case slog.KindGroup:
		for _, ga := range a.Value.Group() {
			ga.Key = qualify(a.Key, ga.Key)
			ev = writeAttr(ev, ga)
		}
		return ev
	default:
		return ev.Interface(a.Key, a.Value.Any())
	}
}
