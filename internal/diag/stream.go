// Package diag exposes log entries at or above a level as a channel, so a
// console or overlay can show them without reading log files.
package diag

import (
	"sync/atomic"
	"time"

	"go.uber.org/zap/zapcore"
)

// Entry is one diagnostic line.
type Entry struct {
	Time    time.Time
	Level   zapcore.Level
	Logger  string
	Message string
	Fields  map[string]any
}

// Stream is a zapcore.Core that copies entries into a bounded channel.
// When the channel is full new entries are dropped and counted.
type Stream struct {
	zapcore.LevelEnabler
	ch      chan Entry
	fields  []zapcore.Field
	dropped *atomic.Int64
}

func NewStream(level zapcore.LevelEnabler, size int) *Stream {
	if size <= 0 {
		size = 64
	}
	return &Stream{
		LevelEnabler: level,
		ch:           make(chan Entry, size),
		dropped:      new(atomic.Int64),
	}
}

// C returns the receive side of the stream.
func (s *Stream) C() <-chan Entry {
	return s.ch
}

// Dropped returns how many entries were discarded on a full channel.
func (s *Stream) Dropped() int64 {
	return s.dropped.Load()
}

func (s *Stream) With(fields []zapcore.Field) zapcore.Core {
	clone := *s
	clone.fields = append(append([]zapcore.Field(nil), s.fields...), fields...)
	return &clone
}

func (s *Stream) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if s.Enabled(ent.Level) {
		return ce.AddCore(ent, s)
	}
	return ce
}

func (s *Stream) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	enc := zapcore.NewMapObjectEncoder()
	for _, f := range s.fields {
		f.AddTo(enc)
	}
	for _, f := range fields {
		f.AddTo(enc)
	}
	e := Entry{
		Time:    ent.Time,
		Level:   ent.Level,
		Logger:  ent.LoggerName,
		Message: ent.Message,
		Fields:  enc.Fields,
	}
	select {
	case s.ch <- e:
	default:
		s.dropped.Add(1)
	}
	return nil
}

func (s *Stream) Sync() error { return nil }
