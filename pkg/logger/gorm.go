package logger

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	gormlogger "gorm.io/gorm/logger"
)

// GormLogger routes gorm diagnostics through the shared logrus logger
type GormLogger struct {
	level         gormlogger.LogLevel
	slowThreshold time.Duration
}

func NewGormLogger(level gormlogger.LogLevel, slowThreshold time.Duration) *GormLogger {
	return &GormLogger{level: level, slowThreshold: slowThreshold}
}

func (l *GormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	copy := *l
	copy.level = level
	return &copy
}

func (l *GormLogger) Info(ctx context.Context, msg string, data ...interface{}) {
	if l.level >= gormlogger.Info {
		GetLogger().WithField("component", "gorm").WithField("data", data).Info(msg)
	}
}

func (l *GormLogger) Warn(ctx context.Context, msg string, data ...interface{}) {
	if l.level >= gormlogger.Warn {
		GetLogger().WithField("component", "gorm").WithField("data", data).Warn(msg)
	}
}

func (l *GormLogger) Error(ctx context.Context, msg string, data ...interface{}) {
	if l.level >= gormlogger.Error {
		GetLogger().WithField("component", "gorm").WithField("data", data).Error(msg)
	}
}

func (l *GormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= gormlogger.Silent {
		return
	}

	elapsed := time.Since(begin)
	switch {
	case err != nil && l.level >= gormlogger.Error && !errors.Is(err, gormlogger.ErrRecordNotFound):
		l.entry(fc, elapsed).WithError(err).Error("Query failed")
	case l.slowThreshold != 0 && elapsed > l.slowThreshold && l.level >= gormlogger.Warn:
		l.entry(fc, elapsed).Warn("Slow query")
	case l.level >= gormlogger.Info:
		l.entry(fc, elapsed).Debug("Query executed")
	}
}

func (l *GormLogger) entry(fc func() (string, int64), elapsed time.Duration) *logrus.Entry {
	sql, rows := fc()
	return GetLogger().WithFields(logrus.Fields{
		"component":     "gorm",
		"sql":           strings.TrimSpace(sql),
		"rows_affected": rows,
		"duration_ms":   elapsed.Milliseconds(),
	})
}

var _ gormlogger.Interface = (*GormLogger)(nil)
