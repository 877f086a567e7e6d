package logger

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

type Options struct {
	// FilePath enables a rotated JSON file core when non-empty.
	FilePath string
	Level    string
	IsProd   bool
}

func New(opts Options) *zap.Logger {
	level := parseLevel(opts.Level)

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "timestamp"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.MessageKey = "message"
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	jsonEncoder := zapcore.NewJSONEncoder(encoderConfig)

	var consoleEncoder zapcore.Encoder
	if opts.IsProd {
		consoleEncoder = jsonEncoder
	} else {
		consoleEncoder = zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
	}

	cores := []zapcore.Core{
		zapcore.NewCore(consoleEncoder, zapcore.Lock(os.Stderr), level),
	}
	if opts.FilePath != "" {
		rotator := &lumberjack.Logger{
			Filename:   opts.FilePath,
			MaxSize:    10, // megabytes
			MaxBackups: 5,
			MaxAge:     30, // days
			Compress:   true,
		}
		cores = append(cores, zapcore.NewCore(jsonEncoder, zapcore.AddSync(rotator), level))
	}

	return zap.New(zapcore.NewTee(cores...), zap.AddCaller())
}

// NewFileOnly writes only to the rotated file; used by the CLI so logs do not interleave
// with command output.
func NewFileOnly(path, level string) *zap.Logger {
	if path == "" {
		return zap.NewNop()
	}
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "timestamp"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.MessageKey = "message"
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder

	rotator := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    10,
		MaxBackups: 3,
		MaxAge:     14,
		Compress:   true,
	}
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), zapcore.AddSync(rotator), parseLevel(level))
	return zap.New(core, zap.AddCaller())
}

func parseLevel(level string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}
