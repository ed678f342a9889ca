package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
)

// consoleHandler writes lines of the form
//
//	15:04:05 INFO transfer (/dev/bus/usb/001/004): upload finished bytes=4096
//
// Component and device are lifted out of the attributes into the header.
type consoleHandler struct {
	out       *lockedWriter
	level     slog.Level
	caller    bool
	component string
	device    string
	group     string // dotted prefix for keys added after WithGroup
	attrs     []byte // preformatted " key=value" pairs from WithAttrs
}

type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

func (h *consoleHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *consoleHandler) Handle(_ context.Context, r slog.Record) error {
	component, device := h.component, h.device
	var tail []byte
	r.Attrs(func(a slog.Attr) bool {
		if h.group == "" && lift(a, &component, &device) {
			return true
		}
		tail = appendAttr(tail, h.group, a)
		return true
	})

	ts := r.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	buf := make([]byte, 0, 96+len(h.attrs)+len(tail))
	buf = ts.Local().AppendFormat(buf, time.TimeOnly)
	buf = append(buf, ' ')
	buf = append(buf, levelName(r.Level)...)
	buf = append(buf, ' ')
	switch {
	case component != "" && device != "":
		buf = fmt.Appendf(buf, "%s (%s): ", component, device)
	case component != "" || device != "":
		buf = append(buf, component+device...)
		buf = append(buf, ": "...)
	}
	if msg := strings.TrimSpace(r.Message); msg != "" {
		buf = append(buf, msg...)
	} else {
		buf = append(buf, "(no message)"...)
	}
	if h.caller && r.PC != 0 {
		if src := r.Source(); src != nil {
			buf = fmt.Appendf(buf, " [%s:%d]", filepath.Base(src.File), src.Line)
		}
	}
	buf = append(buf, h.attrs...)
	buf = append(buf, tail...)
	buf = append(buf, '\n')
	_, err := h.out.Write(buf)
	return err
}

func (h *consoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	next := *h
	next.attrs = append([]byte(nil), h.attrs...)
	for _, a := range attrs {
		if h.group == "" && lift(a, &next.component, &next.device) {
			continue
		}
		next.attrs = appendAttr(next.attrs, h.group, a)
	}
	return &next
}

func (h *consoleHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	next.group = h.group + name + "."
	return &next
}

// lift captures the first component and device values seen.
func lift(a slog.Attr, component, device *string) bool {
	var dst *string
	switch a.Key {
	case FieldComponent:
		dst = component
	case FieldDevice:
		dst = device
	default:
		return false
	}
	if *dst == "" {
		*dst = a.Value.Resolve().String()
	}
	return true
}

func appendAttr(buf []byte, prefix string, a slog.Attr) []byte {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return buf
	}
	if a.Value.Kind() == slog.KindGroup {
		if a.Key != "" {
			prefix += a.Key + "."
		}
		for _, sub := range a.Value.Group() {
			buf = appendAttr(buf, prefix, sub)
		}
		return buf
	}
	buf = append(buf, ' ')
	buf = append(buf, prefix...)
	buf = append(buf, a.Key...)
	buf = append(buf, '=')
	return appendValue(buf, a.Value)
}

func appendValue(buf []byte, v slog.Value) []byte {
	switch v.Kind() {
	case slog.KindString:
		return appendText(buf, v.String())
	case slog.KindInt64:
		return strconv.AppendInt(buf, v.Int64(), 10)
	case slog.KindUint64:
		return strconv.AppendUint(buf, v.Uint64(), 10)
	case slog.KindFloat64:
		return strconv.AppendFloat(buf, v.Float64(), 'f', -1, 64)
	case slog.KindBool:
		return strconv.AppendBool(buf, v.Bool())
	case slog.KindDuration:
		return append(buf, v.Duration().String()...)
	case slog.KindTime:
		return v.Time().UTC().AppendFormat(buf, time.RFC3339)
	default:
		return appendText(buf, fmt.Sprint(v.Any()))
	}
}

func appendText(buf []byte, s string) []byte {
	if s == "" || strings.ContainsFunc(s, func(r rune) bool { return r <= ' ' || r == '=' || r == '"' }) {
		return strconv.AppendQuote(buf, s)
	}
	return append(buf, s...)
}

func levelName(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return "ERROR"
	case level >= slog.LevelWarn:
		return "WARN"
	case level >= slog.LevelInfo:
		return "INFO"
	default:
		return "DEBUG"
	}
}
