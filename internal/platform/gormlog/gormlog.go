// Package gormlog routes gorm's logger through zap.
package gormlog

import (
	"time"

	"go.uber.org/zap"
	gormlogger "gorm.io/gorm/logger"
)

const slowThreshold = 200 * time.Millisecond

// New returns a gorm logger writing warnings and slow queries to log. A nil log silences gorm.
func New(log *zap.Logger) gormlogger.Interface {
	if log == nil {
		return gormlogger.Discard
	}
	return gormlogger.New(
		zap.NewStdLog(log.Named("gorm")),
		gormlogger.Config{
			SlowThreshold:             slowThreshold,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
		},
	)
}
