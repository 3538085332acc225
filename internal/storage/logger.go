package storage

import (
	"context"
	"time"

	"gorm.io/gorm/logger"

	applog "websentry/internal/logger"
)

// GormLogger 把 GORM 的日志路由到应用 Logger
type GormLogger struct {
	applog.Logger
	LogLevel logger.LogLevel
}

// NewGormLogger 创建新的 GormLogger 实例
func NewGormLogger(l applog.Logger) *GormLogger {
	return &GormLogger{
		Logger:   l,
		LogLevel: logger.Warn,
	}
}

// LogMode 设置日志级别
func (l *GormLogger) LogMode(level logger.LogLevel) logger.Interface {
	newLogger := *l
	newLogger.LogLevel = level
	return &newLogger
}

// Info 打印 info 级别日志
func (l *GormLogger) Info(ctx context.Context, msg string, data ...any) {
	if l.LogLevel >= logger.Info {
		l.Logger.Info(msg, kvFromData(data)...)
	}
}

// Warn 打印 warn 级别日志
func (l *GormLogger) Warn(ctx context.Context, msg string, data ...any) {
	if l.LogLevel >= logger.Warn {
		l.Logger.Warn(msg, kvFromData(data)...)
	}
}

// Error 打印 error 级别日志
func (l *GormLogger) Error(ctx context.Context, msg string, data ...any) {
	if l.LogLevel >= logger.Error {
		l.Logger.Error(msg, kvFromData(data)...)
	}
}

// Trace 打印 SQL 日志
func (l *GormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.LogLevel <= logger.Silent {
		return
	}

	elapsed := time.Since(begin)
	sql, rows := fc()
	fields := []any{
		"sql", sql,
		"rows", rows,
		"timeMs", float64(elapsed.Nanoseconds()) / 1e6,
	}

	switch {
	case err != nil && l.LogLevel >= logger.Error:
		l.Logger.Error("SQL执行错误", append(fields, "error", err)...)
	case elapsed > time.Second && l.LogLevel >= logger.Warn:
		l.Logger.Warn("慢SQL查询", append(fields, "threshold", "1s")...)
	case l.LogLevel == logger.Info:
		l.Logger.Debug("SQL执行", fields...)
	}
}

func kvFromData(data []any) []any {
	kv := make([]any, 0, len(data)*2)
	for _, d := range data {
		kv = append(kv, "arg", d)
	}
	return kv
}
