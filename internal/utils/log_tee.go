package utils

import (
	"context"
	"errors"
	"log/slog"
	"strings"
)

const redacted = "[redacted]"

// LogTee sends each record to every sink enabled for its level. Attributes
// whose key is marked secret are masked before any sink sees them, at any
// group depth.
type LogTee struct {
	sinks  []slog.Handler
	secret map[string]struct{}
}

func NewLogTee(sinks ...slog.Handler) *LogTee {
	return &LogTee{sinks: sinks, secret: map[string]struct{}{}}
}

// Redact returns a tee that masks the given attribute keys, compared case
// insensitively.
func (h *LogTee) Redact(keys ...string) *LogTee {
	secret := make(map[string]struct{}, len(h.secret)+len(keys))
	for k := range h.secret {
		secret[k] = struct{}{}
	}
	for _, k := range keys {
		secret[strings.ToLower(k)] = struct{}{}
	}
	return &LogTee{sinks: h.sinks, secret: secret}
}

func (h *LogTee) Enabled(ctx context.Context, level slog.Level) bool {
	for _, s := range h.sinks {
		if s.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (h *LogTee) Handle(ctx context.Context, r slog.Record) error {
	if len(h.secret) > 0 {
		masked := slog.NewRecord(r.Time, r.Level, r.Message, r.PC)
		r.Attrs(func(a slog.Attr) bool {
			masked.AddAttrs(h.mask(a))
			return true
		})
		r = masked
	}

	var errs []error
	for _, s := range h.sinks {
		if !s.Enabled(ctx, r.Level) {
			continue
		}
		if err := s.Handle(ctx, r.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (h *LogTee) WithAttrs(attrs []slog.Attr) slog.Handler {
	masked := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		masked[i] = h.mask(a)
	}
	return h.derive(func(s slog.Handler) slog.Handler { return s.WithAttrs(masked) })
}

func (h *LogTee) WithGroup(name string) slog.Handler {
	return h.derive(func(s slog.Handler) slog.Handler { return s.WithGroup(name) })
}

func (h *LogTee) derive(fn func(slog.Handler) slog.Handler) *LogTee {
	sinks := make([]slog.Handler, len(h.sinks))
	for i, s := range h.sinks {
		sinks[i] = fn(s)
	}
	return &LogTee{sinks: sinks, secret: h.secret}
}

func (h *LogTee) mask(a slog.Attr) slog.Attr {
	if _, ok := h.secret[strings.ToLower(a.Key)]; ok {
		return slog.String(a.Key, redacted)
	}
	if a.Value.Kind() != slog.KindGroup {
		return a
	}
	group := a.Value.Group()
	out := make([]slog.Attr, len(group))
	for i, g := range group {
		out[i] = h.mask(g)
	}
	return slog.Attr{Key: a.Key, Value: slog.GroupValue(out...)}
}
