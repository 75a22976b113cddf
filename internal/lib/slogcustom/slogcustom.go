package slogcustom

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"strings"

	"github.com/fatih/color"
)

// CustomHandler — цветной построчный обработчик для чтения логов глазами.
type CustomHandler struct {
	l      *log.Logger
	level  slog.Leveler
	attrs  []slog.Attr
	prefix string
}

func NewCustomHandler(out io.Writer, level slog.Leveler) *CustomHandler {
	return &CustomHandler{
		l:     log.New(out, "", 0),
		level: level,
	}
}

func (c *CustomHandler) Handle(_ context.Context, r slog.Record) error {
	level := r.Level.String() + ":"

	switch {
	case r.Level >= slog.LevelError:
		level = color.RedString(level)
	case r.Level >= slog.LevelWarn:
		level = color.YellowString(level)
	case r.Level >= slog.LevelInfo:
		level = color.HiBlueString(level)
	default:
		level = color.MagentaString(level)
	}

	var attrs strings.Builder
	for _, a := range c.attrs {
		writeAttr(&attrs, "", a)
	}
	r.Attrs(func(a slog.Attr) bool {
		writeAttr(&attrs, c.prefix, a)
		return true
	})

	c.l.Println(
		r.Time.Format("15:04:05.000"),
		level,
		r.Message,
		attrs.String(),
	)
	return nil
}

func (c *CustomHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return c
	}

	out := *c
	out.attrs = make([]slog.Attr, 0, len(c.attrs)+len(attrs))
	out.attrs = append(out.attrs, c.attrs...)
	for _, a := range attrs {
		a.Key = c.prefix + a.Key
		out.attrs = append(out.attrs, a)
	}

	return &out
}

func (c *CustomHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return c
	}

	out := *c
	out.prefix = c.prefix + name + "."

	return &out
}

func (c *CustomHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= c.level.Level()
}

func writeAttr(b *strings.Builder, prefix string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}

	if a.Value.Kind() == slog.KindGroup {
		for _, ga := range a.Value.Group() {
			writeAttr(b, prefix+a.Key+".", ga)
		}
		return
	}

	b.WriteString(color.GreenString(prefix + a.Key))
	b.WriteString("=")
	b.WriteString(fmt.Sprint(a.Value.Any()))
	b.WriteString(" ")
}
