package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-isatty"
)

const (
	ansiReset  = "\x1b[0m"
	ansiDim    = "\x1b[2m"
	ansiRed    = "\x1b[31m"
	ansiYellow = "\x1b[33m"
	ansiBlue   = "\x1b[34m"
)

// consoleHandler renders records as single human-readable lines:
//
//	15:04:05 INFO  [staging-worker] stage completed job_uuid=… status=STAGED
type consoleHandler struct {
	mu        *sync.Mutex
	out       io.Writer
	level     *slog.LevelVar
	colorized bool
	attrs     []slog.Attr
}

func newConsoleHandler(w io.Writer, lvl *slog.LevelVar) slog.Handler {
	colorized := false
	if f, ok := w.(*os.File); ok {
		colorized = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return &consoleHandler{
		mu:        &sync.Mutex{},
		out:       w,
		level:     lvl,
		colorized: colorized,
	}
}

func (h *consoleHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *consoleHandler) Handle(_ context.Context, record slog.Record) error {
	var sb strings.Builder
	ts := record.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	h.dim(&sb, ts.Format("15:04:05"))
	sb.WriteByte(' ')
	h.levelTag(&sb, record.Level)

	component := ""
	attrs := make([]slog.Attr, 0, record.NumAttrs()+len(h.attrs))
	attrs = append(attrs, h.attrs...)
	record.Attrs(func(attr slog.Attr) bool {
		attrs = append(attrs, attr)
		return true
	})
	rest := attrs[:0]
	for _, attr := range attrs {
		if attr.Key == FieldComponent {
			component = attr.Value.String()
			continue
		}
		rest = append(rest, attr)
	}
	if component != "" {
		sb.WriteByte(' ')
		h.dim(&sb, "["+component+"]")
	}
	sb.WriteByte(' ')
	sb.WriteString(record.Message)
	for _, attr := range rest {
		if attr.Equal(slog.Attr{}) {
			continue
		}
		sb.WriteByte(' ')
		h.dim(&sb, attr.Key+"=")
		sb.WriteString(formatValue(attr.Value))
	}
	sb.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.out, sb.String())
	return err
}

func (h *consoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.attrs = append(append([]slog.Attr{}, h.attrs...), attrs...)
	return &clone
}

func (h *consoleHandler) WithGroup(name string) slog.Handler {
	// Groups are flattened in console output; JSON output preserves them.
	return h
}

func (h *consoleHandler) levelTag(sb *strings.Builder, level slog.Level) {
	label := strings.ToUpper(level.String())
	if !h.colorized {
		fmt.Fprintf(sb, "%-5s", label)
		return
	}
	color := ""
	switch {
	case level >= slog.LevelError:
		color = ansiRed
	case level >= slog.LevelWarn:
		color = ansiYellow
	case level >= slog.LevelInfo:
		color = ansiBlue
	default:
		color = ansiDim
	}
	fmt.Fprintf(sb, "%s%-5s%s", color, label, ansiReset)
}

func (h *consoleHandler) dim(sb *strings.Builder, text string) {
	if h.colorized {
		sb.WriteString(ansiDim)
		sb.WriteString(text)
		sb.WriteString(ansiReset)
		return
	}
	sb.WriteString(text)
}

func formatValue(v slog.Value) string {
	v = v.Resolve()
	switch v.Kind() {
	case slog.KindString:
		s := v.String()
		if strings.ContainsAny(s, " \t") {
			return fmt.Sprintf("%q", s)
		}
		return s
	case slog.KindTime:
		return v.Time().UTC().Format(time.RFC3339)
	case slog.KindDuration:
		return v.Duration().String()
	default:
		return v.String()
	}
}
