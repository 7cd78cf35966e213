// Package log sets up slog and keeps the latest records in memory so they
// can be served over the API.
package log

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/lmittmann/tint"
)

// DefaultRingSize is the number of records kept by default.
const DefaultRingSize = 200

const timeFormat = "15:04:05.000"

type Options struct {
	Level    slog.Level
	JSON     bool
	NoColor  bool
	RingSize int
}

// Entry is a stored log record.
type Entry struct {
	Time    time.Time      `json:"time"`
	Level   string         `json:"level"`
	Message string         `json:"msg"`
	Attrs   map[string]any `json:"attrs,omitempty"`
}

// Ring holds the latest entries.
type Ring struct {
	mu      sync.Mutex
	size    int
	entries []Entry
}

func NewRing(size int) *Ring {
	if size <= 0 {
		size = DefaultRingSize
	}
	return &Ring{size: size}
}

func (r *Ring) add(e Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
	if len(r.entries) > r.size {
		r.entries = r.entries[len(r.entries)-r.size:]
	}
}

// Entries returns a copy of the stored entries, oldest first.
func (r *Ring) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Entry(nil), r.entries...)
}

// RingHandler is a slog.Handler that stores every record it handles in a Ring
// before passing it on.
type RingHandler struct {
	next   slog.Handler
	ring   *Ring
	attrs  []slog.Attr
	groups []string
}

func NewRingHandler(next slog.Handler, ring *Ring) *RingHandler {
	return &RingHandler{next: next, ring: ring}
}

func (h *RingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

// Handle stores the record and forwards it.
func (h *RingHandler) Handle(ctx context.Context, r slog.Record) error {
	e := Entry{
		Time:    r.Time,
		Level:   r.Level.String(),
		Message: r.Message,
	}
	if len(h.attrs) > 0 || r.NumAttrs() > 0 {
		e.Attrs = make(map[string]any, len(h.attrs)+r.NumAttrs())
		for _, a := range h.attrs {
			e.Attrs[a.Key] = a.Value.Resolve().Any()
		}
		prefix := h.prefix()
		r.Attrs(func(a slog.Attr) bool {
			e.Attrs[prefix+a.Key] = a.Value.Resolve().Any()
			return true
		})
	}
	h.ring.add(e)
	return h.next.Handle(ctx, r)
}

func (h *RingHandler) prefix() string {
	if len(h.groups) == 0 {
		return ""
	}
	return strings.Join(h.groups, ".") + "."
}

func (h *RingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	c := h.clone()
	prefix := h.prefix()
	for _, a := range attrs {
		c.attrs = append(c.attrs, slog.Attr{Key: prefix + a.Key, Value: a.Value})
	}
	c.next = h.next.WithAttrs(attrs)
	return c
}

func (h *RingHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	c := h.clone()
	c.groups = append(c.groups, name)
	c.next = h.next.WithGroup(name)
	return c
}

func (h *RingHandler) clone() *RingHandler {
	return &RingHandler{
		next:   h.next,
		ring:   h.ring,
		attrs:  append([]slog.Attr(nil), h.attrs...),
		groups: append([]string(nil), h.groups...),
	}
}

// New builds a logger writing to w, tinted or JSON, that also records into
// the returned Ring.
func New(w io.Writer, opts Options) (*slog.Logger, *Ring) {
	var handler slog.Handler
	if opts.JSON {
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: opts.Level})
	} else {
		handler = tint.NewHandler(w, &tint.Options{
			Level:      opts.Level,
			TimeFormat: timeFormat,
			NoColor:    opts.NoColor,
		})
	}
	ring := NewRing(opts.RingSize)
	return slog.New(NewRingHandler(handler, ring)), ring
}

// ParseLevel accepts the usual slog level names, case-insensitively.
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	err := level.UnmarshalText([]byte(s))
	return level, err
}
