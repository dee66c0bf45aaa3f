package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"matchbook/domain/orderbook"
	"matchbook/infra/config"
)

func parseLevel(level string) zapcore.Level {
	switch level {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func encoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:        "time",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.SecondsDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
}

// New builds a JSON logger writing to stderr and, when a file is set, to a
// size-rotated log file as well. Stdout is left to command replies.
func New(cfg *config.Config) *zap.Logger {
	level := parseLevel(cfg.Log.Level)
	enc := zapcore.NewJSONEncoder(encoderConfig())

	cores := []zapcore.Core{
		zapcore.NewCore(enc, zapcore.Lock(os.Stderr), level),
	}
	if cfg.Log.File != "" {
		rotator := &lumberjack.Logger{
			Filename:   cfg.Log.File,
			MaxSize:    cfg.Log.MaxSizeMB,
			MaxBackups: cfg.Log.MaxBackups,
			MaxAge:     cfg.Log.MaxAgeDays,
			Compress:   cfg.Log.Compress,
		}
		cores = append(cores, zapcore.NewCore(enc.Clone(), zapcore.AddSync(rotator), level))
	}

	return zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))
}

// BookEvents logs every book event at debug level.
type BookEvents struct {
	log *zap.Logger
}

func NewBookEvents(log *zap.Logger) *BookEvents {
	return &BookEvents{log: log.Named("book")}
}

func (b *BookEvents) Notify(ev orderbook.Event) {
	if ce := b.log.Check(zapcore.DebugLevel, string(ev.Type)); ce != nil {
		fields := []zap.Field{
			zap.Stringer("side", ev.Side),
			zap.Stringer("price", ev.Price),
			zap.Stringer("quantity", ev.Quantity),
		}
		if ev.OrderID != "" {
			fields = append(fields, zap.String("order_id", ev.OrderID))
		}
		if ev.Trade != nil {
			fields = append(fields,
				zap.String("tx_id", ev.Trade.TxID),
				zap.String("maker", ev.Trade.Maker.OrderID),
				zap.String("taker", ev.Trade.Taker.OrderID))
		}
		ce.Write(fields...)
	}
}
