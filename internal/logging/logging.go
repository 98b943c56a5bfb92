// Package logging builds the process logger and holds helpers for keeping
// personal data out of log lines.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Config selects level, format and destination of the logger.
type Config struct {
	Level  string // trace, debug, info, warn, error
	Format string // json or console
	Output io.Writer
}

// New returns a logger for cfg. An unknown level is an error; an empty one
// means info.
func New(cfg Config) (zerolog.Logger, error) {
	level := zerolog.InfoLevel
	if cfg.Level != "" {
		parsed, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
		if err != nil {
			return zerolog.Nop(), fmt.Errorf("parsing log level %q: %w", cfg.Level, err)
		}
		level = parsed
	}

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}

	switch strings.ToLower(cfg.Format) {
	case "", "json":
	case "console", "text":
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	default:
		return zerolog.Nop(), fmt.Errorf("unknown log format %q", cfg.Format)
	}

	return zerolog.New(out).Level(level).With().Timestamp().Logger(), nil
}

// MaskEmail keeps the first and last character of each address component,
// e.g. "ana.souza@example.com" becomes "a*******a@e*****e.c*m". Strings
// that are not addresses are returned unchanged.
func MaskEmail(s string) string {
	s = strings.TrimSpace(s)
	at := strings.LastIndexByte(s, '@')
	if at <= 0 || at == len(s)-1 {
		return s
	}

	mask := func(part string) string {
		r := []rune(part)
		if len(r) <= 1 {
			return "*"
		}
		return string(r[0]) + strings.Repeat("*", max(0, len(r)-2)) + string(r[len(r)-1])
	}

	labels := strings.Split(s[at+1:], ".")
	for i, l := range labels {
		labels[i] = mask(l)
	}
	return mask(s[:at]) + "@" + strings.Join(labels, ".")
}

// Summarize replaces a payload with its size, for logging protocol traffic
// without its contents.
func Summarize(data string) string {
	if data == "" {
		return ""
	}
	return fmt.Sprintf("bytes=%d", len(data))
}
