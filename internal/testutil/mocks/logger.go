package mocks

import (
	"context"
	"fmt"
	"sync"

	"github.com/felixgeelhaar/clusterprep/internal/ports"
)

// Entry is one recorded log message with the fields bound by With.
type Entry struct {
	Level  ports.Level
	Msg    string
	Fields map[string]interface{}
}

// Field returns the value of the field key as a string.
func (e Entry) Field(key string) string {
	v, ok := e.Fields[key]
	if !ok {
		return ""
	}
	return fmt.Sprint(v)
}

type logSink struct {
	mu      sync.Mutex
	entries []Entry
}

// Logger is a ports.Logger that records every entry at or above its level.
// Loggers derived with With share one record.
type Logger struct {
	sink   *logSink
	level  ports.Level
	fields []ports.Field
}

// NewLogger creates a recording logger at LevelDebug.
func NewLogger() *Logger {
	return &Logger{sink: &logSink{}, level: ports.LevelDebug}
}

func (l *Logger) Debug(_ context.Context, msg string, fields ...ports.Field) {
	l.record(ports.LevelDebug, msg, fields)
}

func (l *Logger) Info(_ context.Context, msg string, fields ...ports.Field) {
	l.record(ports.LevelInfo, msg, fields)
}

func (l *Logger) Warn(_ context.Context, msg string, fields ...ports.Field) {
	l.record(ports.LevelWarn, msg, fields)
}

func (l *Logger) Error(_ context.Context, msg string, fields ...ports.Field) {
	l.record(ports.LevelError, msg, fields)
}

// With returns a logger adding fields to every entry.
func (l *Logger) With(fields ...ports.Field) ports.Logger {
	return &Logger{
		sink:   l.sink,
		level:  l.level,
		fields: append(append([]ports.Field(nil), l.fields...), fields...),
	}
}

func (l *Logger) Level() ports.Level { return l.level }

func (l *Logger) SetLevel(level ports.Level) { l.level = level }

func (l *Logger) record(level ports.Level, msg string, fields []ports.Field) {
	if level < l.level {
		return
	}
	e := Entry{Level: level, Msg: msg, Fields: make(map[string]interface{}, len(l.fields)+len(fields))}
	for _, f := range append(append([]ports.Field(nil), l.fields...), fields...) {
		e.Fields[f.Key] = f.Value
	}
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()
	l.sink.entries = append(l.sink.entries, e)
}

// Entries returns every recorded entry in order.
func (l *Logger) Entries() []Entry {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()
	return append([]Entry(nil), l.sink.entries...)
}

// Find returns the entries at level with message msg.
func (l *Logger) Find(level ports.Level, msg string) []Entry {
	var out []Entry
	for _, e := range l.Entries() {
		if e.Level == level && e.Msg == msg {
			out = append(out, e)
		}
	}
	return out
}

// Count returns the number of entries at level.
func (l *Logger) Count(level ports.Level) int {
	n := 0
	for _, e := range l.Entries() {
		if e.Level == level {
			n++
		}
	}
	return n
}

var _ ports.Logger = (*Logger)(nil)
