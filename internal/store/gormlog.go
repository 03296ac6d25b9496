package store

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// GormLogger routes gorm's query log through zerolog. The request logger
// stored in ctx by hlog is used when present.
type GormLogger struct {
	level         logger.LogLevel
	slowThreshold time.Duration
}

func NewGormLogger(level string) *GormLogger {
	var lvl logger.LogLevel
	switch level {
	case "silent", "disabled":
		lvl = logger.Silent
	case "error":
		lvl = logger.Error
	case "warn", "warning", "info":
		lvl = logger.Warn
	case "debug", "trace":
		lvl = logger.Info
	default:
		lvl = logger.Warn
	}
	return &GormLogger{level: lvl, slowThreshold: 200 * time.Millisecond}
}

func ctxLogger(ctx context.Context) *zerolog.Logger {
	if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
		return l
	}
	return &log.Logger
}

func (g *GormLogger) LogMode(level logger.LogLevel) logger.Interface {
	return &GormLogger{level: level, slowThreshold: g.slowThreshold}
}

func (g *GormLogger) Info(ctx context.Context, msg string, data ...any) {
	if g.level >= logger.Info {
		ctxLogger(ctx).Info().Interface("data", data).Msg("gorm: " + msg)
	}
}

func (g *GormLogger) Warn(ctx context.Context, msg string, data ...any) {
	if g.level >= logger.Warn {
		ctxLogger(ctx).Warn().Interface("data", data).Msg("gorm: " + msg)
	}
}

func (g *GormLogger) Error(ctx context.Context, msg string, data ...any) {
	if g.level >= logger.Error {
		ctxLogger(ctx).Error().Interface("data", data).Msg("gorm: " + msg)
	}
}

// Trace logs SQL with rows affected and elapsed time. Not-found lookups are
// expected on the redirect path and are not reported as errors.
func (g *GormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if g.level == logger.Silent {
		return
	}
	elapsed := time.Since(begin)
	l := ctxLogger(ctx)

	switch {
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound) && !errors.Is(err, context.Canceled):
		if g.level >= logger.Error {
			sql, rows := fc()
			l.Error().Err(err).Str("sql", sql).Int64("rows", rows).Dur("elapsed", elapsed).Msg("gorm query")
		}
	case g.slowThreshold > 0 && elapsed > g.slowThreshold:
		if g.level >= logger.Warn {
			sql, rows := fc()
			l.Warn().Str("sql", sql).Int64("rows", rows).Dur("elapsed", elapsed).
				Dur("threshold", g.slowThreshold).Msg("gorm slow query")
		}
	case g.level >= logger.Info:
		sql, rows := fc()
		l.Debug().Str("sql", sql).Int64("rows", rows).Dur("elapsed", elapsed).Msg("gorm query")
	}
}
