package logger

import (
	"go.uber.org/zap/zapcore"
)

// DBCore is a Zap Core that tees operator-relevant entries into the database.
type DBCore struct {
	zapcore.Core
	writer   Sink
	minLevel zapcore.Level
}

// Sink receives entries the DB core decided to persist.
type Sink interface {
	AddLog(entry LogEntry)
}

// NewDBCore wraps an existing core and persists entries at minLevel or above.
func NewDBCore(baseCore zapcore.Core, writer Sink, minLevel zapcore.Level) zapcore.Core {
	return &DBCore{
		Core:     baseCore,
		writer:   writer,
		minLevel: minLevel,
	}
}

// With keeps the tee when child loggers are derived.
func (c *DBCore) With(fields []zapcore.Field) zapcore.Core {
	return &DBCore{
		Core:     c.Core.With(fields),
		writer:   c.writer,
		minLevel: c.minLevel,
	}
}

// Write is called for every log entry
func (c *DBCore) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	if entry.Level >= c.minLevel {
		enc := zapcore.NewMapObjectEncoder()
		for _, f := range fields {
			f.AddTo(enc)
		}

		le := LogEntry{
			Level:   entry.Level,
			Message: entry.Message,
			Caller:  entry.Caller.Function,
			Fields:  enc.Fields,
		}
		if v, ok := enc.Fields["lead_id"].(string); ok {
			le.LeadID = v
		}
		if v, ok := enc.Fields["stage"].(string); ok {
			le.Stage = v
		}
		c.writer.AddLog(le)
	}

	return c.Core.Write(entry, fields)
}

// Check decides if we should log this level
func (c *DBCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}
