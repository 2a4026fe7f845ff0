package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// leveledCore overrides the level check of the wrapped core.
type leveledCore struct {
	zapcore.Core

	// level is the minimum level this core accepts.
	level zapcore.Level
}

// Enabled reports whether entries at l pass this core's own level.
func (c *leveledCore) Enabled(l zapcore.Level) bool {
	return c.level.Enabled(l)
}

// Check adds the core to the checked entry when its level is enabled.
//
//nolint:gocritic // AddCore requires ent to be passed by value.
func (c *leveledCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if !c.Enabled(ent.Level) {
		return ce
	}

	return ce.AddCore(ent, c)
}

// With keeps the level override on derived cores.
//
//nolint:ireturn // zapcore.Core is the interface zap expects.
func (c *leveledCore) With(fields []zapcore.Field) zapcore.Core {
	return &leveledCore{
		Core:  c.Core.With(fields),
		level: c.level,
	}
}

// WithLevel returns an option that pins a derived logger to lvl regardless of
// the shared level. The analyze command uses it to keep stdout for its result.
//
//nolint:ireturn // zap.Option is the interface zap expects.
func WithLevel(lvl zapcore.Level) zap.Option {
	return zap.WrapCore(func(core zapcore.Core) zapcore.Core {
		return &leveledCore{Core: core, level: lvl}
	})
}
