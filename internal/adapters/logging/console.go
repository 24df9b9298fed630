// Package logging implements ports.Logger as a ConsoleLogger that writes
// text (optionally colored) or JSON lines.
package logging

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/felixgeelhaar/clusterprep/internal/ports"
)

// Level colors (Catppuccin Mocha inspired).
var (
	colorDebug = lipgloss.AdaptiveColor{Light: "#6c6f85", Dark: "#6c7086"}
	colorInfo  = lipgloss.AdaptiveColor{Light: "#1e66f5", Dark: "#89b4fa"}
	colorWarn  = lipgloss.AdaptiveColor{Light: "#df8e1d", Dark: "#f9e2af"}
	colorError = lipgloss.AdaptiveColor{Light: "#d20f39", Dark: "#f38ba8"}
	colorHost  = lipgloss.AdaptiveColor{Light: "#7c3aed", Dark: "#cba6f7"}
)

// ConsoleLogger logs structured messages to the console.
type ConsoleLogger struct {
	mu           *sync.Mutex
	out          io.Writer
	level        ports.Level
	fields       []ports.Field
	jsonFormat   bool
	includeTime  bool
	includeLevel bool
	color        bool
	now          func() time.Time
}

// ConsoleLoggerOption configures the console logger.
type ConsoleLoggerOption func(*ConsoleLogger)

// WithOutput sets the output writer (default: os.Stderr).
func WithOutput(w io.Writer) ConsoleLoggerOption {
	return func(l *ConsoleLogger) {
		l.out = w
	}
}

// WithLevel sets the minimum log level (default: Info).
func WithLevel(level ports.Level) ConsoleLoggerOption {
	return func(l *ConsoleLogger) {
		l.level = level
	}
}

// WithJSONFormat enables JSON output format.
func WithJSONFormat(enabled bool) ConsoleLoggerOption {
	return func(l *ConsoleLogger) {
		l.jsonFormat = enabled
	}
}

// WithTimestamp includes timestamp in log entries.
func WithTimestamp(enabled bool) ConsoleLoggerOption {
	return func(l *ConsoleLogger) {
		l.includeTime = enabled
	}
}

// WithLevelLabel includes level label in log entries.
func WithLevelLabel(enabled bool) ConsoleLoggerOption {
	return func(l *ConsoleLogger) {
		l.includeLevel = enabled
	}
}

// WithColor styles level labels and host prefixes in text output.
func WithColor(enabled bool) ConsoleLoggerOption {
	return func(l *ConsoleLogger) {
		l.color = enabled
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) ConsoleLoggerOption {
	return func(l *ConsoleLogger) {
		if now != nil {
			l.now = now
		}
	}
}

// NewConsoleLogger creates a new console logger.
func NewConsoleLogger(opts ...ConsoleLoggerOption) *ConsoleLogger {
	l := &ConsoleLogger{
		mu:           &sync.Mutex{},
		out:          os.Stderr,
		level:        ports.LevelInfo,
		includeTime:  true,
		includeLevel: true,
		now:          time.Now,
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

// Debug logs a debug message.
func (l *ConsoleLogger) Debug(ctx context.Context, msg string, fields ...ports.Field) {
	l.log(ctx, ports.LevelDebug, msg, fields)
}

// Info logs an informational message.
func (l *ConsoleLogger) Info(ctx context.Context, msg string, fields ...ports.Field) {
	l.log(ctx, ports.LevelInfo, msg, fields)
}

// Warn logs a warning message.
func (l *ConsoleLogger) Warn(ctx context.Context, msg string, fields ...ports.Field) {
	l.log(ctx, ports.LevelWarn, msg, fields)
}

// Error logs an error message.
func (l *ConsoleLogger) Error(ctx context.Context, msg string, fields ...ports.Field) {
	l.log(ctx, ports.LevelError, msg, fields)
}

// With returns a new logger with additional fields. The new logger shares
// the output lock, so host loggers running in parallel never interleave
// partial lines.
func (l *ConsoleLogger) With(fields ...ports.Field) ports.Logger {
	newFields := make([]ports.Field, len(l.fields)+len(fields))
	copy(newFields, l.fields)
	copy(newFields[len(l.fields):], fields)

	l.mu.Lock()
	level := l.level
	l.mu.Unlock()

	return &ConsoleLogger{
		mu:           l.mu,
		out:          l.out,
		level:        level,
		fields:       newFields,
		jsonFormat:   l.jsonFormat,
		includeTime:  l.includeTime,
		includeLevel: l.includeLevel,
		color:        l.color,
		now:          l.now,
	}
}

// Level returns the minimum log level.
func (l *ConsoleLogger) Level() ports.Level {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.level
}

// SetLevel sets the minimum log level.
func (l *ConsoleLogger) SetLevel(level ports.Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

func (l *ConsoleLogger) log(_ context.Context, level ports.Level, msg string, fields []ports.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if level < l.level {
		return
	}

	allFields := make([]ports.Field, len(l.fields)+len(fields))
	copy(allFields, l.fields)
	copy(allFields[len(l.fields):], fields)

	if l.jsonFormat {
		l.writeJSON(level, msg, allFields)
	} else {
		l.writeText(level, msg, allFields)
	}
}

func (l *ConsoleLogger) writeJSON(level ports.Level, msg string, fields []ports.Field) {
	entry := make(map[string]interface{}, len(fields)+3)

	if l.includeTime {
		entry["time"] = l.now().UTC().Format(time.RFC3339)
	}
	if l.includeLevel {
		entry["level"] = level.String()
	}
	entry["msg"] = msg

	for _, f := range fields {
		entry[f.Key] = jsonValue(f.Value)
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return
	}

	_, _ = fmt.Fprintln(l.out, string(data))
}

func (l *ConsoleLogger) writeText(level ports.Level, msg string, fields []ports.Field) {
	var b strings.Builder

	if l.includeTime {
		b.WriteString(l.now().Format("15:04:05"))
		b.WriteByte(' ')
	}
	if l.includeLevel {
		b.WriteString(l.styleLevel(level))
		b.WriteByte(' ')
	}

	rest := make([]ports.Field, 0, len(fields))
	for _, f := range fields {
		if f.Key == ports.HostField {
			b.WriteString(l.styleHost(fmt.Sprint(f.Value)))
			b.WriteByte(' ')
			continue
		}
		rest = append(rest, f)
	}

	b.WriteString(msg)
	for _, f := range rest {
		fmt.Fprintf(&b, " %s=%s", f.Key, textValue(f.Value))
	}

	_, _ = fmt.Fprintln(l.out, b.String())
}

func (l *ConsoleLogger) styleLevel(level ports.Level) string {
	label := fmt.Sprintf("[%s]", level.String())
	if !l.color {
		return label
	}
	var c lipgloss.AdaptiveColor
	switch level {
	case ports.LevelDebug:
		c = colorDebug
	case ports.LevelWarn:
		c = colorWarn
	case ports.LevelError:
		c = colorError
	default:
		c = colorInfo
	}
	return lipgloss.NewStyle().Foreground(c).Bold(level >= ports.LevelWarn).Render(label)
}

func (l *ConsoleLogger) styleHost(host string) string {
	label := "[" + host + "]"
	if !l.color {
		return label
	}
	return lipgloss.NewStyle().Foreground(colorHost).Render(label)
}

func textValue(v interface{}) string {
	switch t := v.(type) {
	case error:
		return quoteIfNeeded(t.Error())
	case string:
		return quoteIfNeeded(t)
	case []string:
		return quoteIfNeeded(strings.Join(t, ","))
	case map[string]string:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, k+":"+t[k])
		}
		return quoteIfNeeded(strings.Join(parts, ","))
	default:
		return fmt.Sprintf("%v", v)
	}
}

func quoteIfNeeded(s string) string {
	if s == "" || strings.ContainsAny(s, " \t\n\"=") {
		return fmt.Sprintf("%q", s)
	}
	return s
}

func jsonValue(v interface{}) interface{} {
	if err, ok := v.(error); ok {
		return err.Error()
	}
	if d, ok := v.(time.Duration); ok {
		return d.String()
	}
	return v
}

// Ensure ConsoleLogger implements Logger.
var _ ports.Logger = (*ConsoleLogger)(nil)
