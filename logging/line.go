// Package logging provides the solver's slog handler: one compact JSON
// object per line, suitable for piping next to the puzzle renderings the
// solver prints on stdout.
package logging

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"time"
)

// LineHandler is a slog.Handler printing one flat JSON object per
// record. Group nesting is flattened into dotted keys; it favours
// greppable output over fidelity.
type LineHandler struct {
	w     io.Writer
	mu    *sync.Mutex
	level slog.Leveler

	prefix string
	attrs  []slog.Attr
}

// NewLineHandler returns a handler writing to w at the given minimum
// level (nil means Info).
func NewLineHandler(w io.Writer, level slog.Leveler) *LineHandler {
	if level == nil {
		level = slog.LevelInfo
	}
	return &LineHandler{w: w, mu: &sync.Mutex{}, level: level}
}

func (h *LineHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *LineHandler) Handle(_ context.Context, r slog.Record) error {
	payload := make(map[string]any, r.NumAttrs()+len(h.attrs)+3)

	when := r.Time
	if when.IsZero() {
		when = time.Now()
	}
	payload["time"] = when.Format(time.RFC3339)
	payload["level"] = r.Level.String()
	payload["msg"] = r.Message

	for _, a := range h.attrs {
		addAttr(payload, h.prefix, a)
	}
	r.Attrs(func(a slog.Attr) bool {
		addAttr(payload, h.prefix, a)
		return true
	})

	b, err := json.Marshal(payload)
	if err != nil {
		b = []byte(`{"level":"ERROR","msg":"unmarshalable log record"}`)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err = h.w.Write(append(b, '\n'))
	return err
}

func (h *LineHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.attrs = append(append([]slog.Attr(nil), h.attrs...), attrs...)
	return &clone
}

func (h *LineHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.prefix = h.prefix + name + "."
	return &clone
}

func addAttr(payload map[string]any, prefix string, a slog.Attr) {
	v := a.Value.Resolve()
	if a.Key == "" {
		return
	}
	if v.Kind() == slog.KindGroup {
		for _, ga := range v.Group() {
			addAttr(payload, prefix+a.Key+".", ga)
		}
		return
	}
	switch v.Kind() {
	case slog.KindDuration:
		payload[prefix+a.Key] = v.Duration().String()
	case slog.KindTime:
		payload[prefix+a.Key] = v.Time().Format(time.RFC3339)
	default:
		payload[prefix+a.Key] = v.Any()
	}
}
