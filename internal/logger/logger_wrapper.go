package logger

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/leandrodaf/midiclock/sdk/contracts"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ZapLogger implements contracts.Logger on top of zap. It is safe to log
// from any goroutine while SetDestination swaps the output.
type ZapLogger struct {
	logger atomic.Pointer[zap.Logger]
	level  zap.AtomicLevel

	mu     sync.Mutex // guards config and serializes SetDestination
	config zap.Config
}

func newZapLogger(l *zap.Logger, level zap.AtomicLevel, cfg zap.Config) *ZapLogger {
	z := &ZapLogger{level: level, config: cfg}
	z.logger.Store(l)
	return z
}

// NewZapLogger creates a production zap logger writing JSON to stderr at InfoLevel.
func NewZapLogger() contracts.Logger {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.RFC3339NanoTimeEncoder

	logger, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		logger = zap.NewNop()
	}
	return newZapLogger(logger, cfg.Level, cfg)
}

// NewNopLogger returns a logger that discards everything.
func NewNopLogger() contracts.Logger {
	return newZapLogger(zap.NewNop(), zap.NewAtomicLevel(), zap.NewProductionConfig())
}

// Wrap adapts an existing zap logger. The level is controlled by SetLevel
// only if the logger's core was built with the returned level.
func Wrap(l *zap.Logger, level zap.AtomicLevel) contracts.Logger {
	return newZapLogger(l, level, zap.NewProductionConfig())
}

// Info logs a message at the INFO level
func (z *ZapLogger) Info(msg string, fields ...contracts.Field) {
	z.logger.Load().Info(msg, toZap(fields)...)
}

// Error logs a message at the ERROR level
func (z *ZapLogger) Error(msg string, fields ...contracts.Field) {
	z.logger.Load().Error(msg, toZap(fields)...)
}

// Debug logs a message at the DEBUG level
func (z *ZapLogger) Debug(msg string, fields ...contracts.Field) {
	z.logger.Load().Debug(msg, toZap(fields)...)
}

// Warn logs a message at the WARN level
func (z *ZapLogger) Warn(msg string, fields ...contracts.Field) {
	z.logger.Load().Warn(msg, toZap(fields)...)
}

// Fatal logs a message at the FATAL level and terminates the application
func (z *ZapLogger) Fatal(msg string, fields ...contracts.Field) {
	z.logger.Load().Fatal(msg, toZap(fields)...)
}

// Field returns a new instance of Field
func (z *ZapLogger) Field() contracts.Field {
	return zapField{}
}

// SetLevel sets the logging level
func (z *ZapLogger) SetLevel(level contracts.LogLevel) {
	z.level.SetLevel(zapLevel(level))
}

// SetDestination redirects output. FileLog requires a path; ConsoleLog writes to stderr.
func (z *ZapLogger) SetDestination(dest contracts.LogDestination, filePath ...string) {
	z.mu.Lock()
	defer z.mu.Unlock()

	current := z.logger.Load()
	cfg := z.config
	cfg.Level = z.level
	switch dest {
	case contracts.FileLog:
		if len(filePath) == 0 || filePath[0] == "" {
			current.Warn("file log destination without a path; keeping current output")
			return
		}
		cfg.OutputPaths = []string{filePath[0]}
		cfg.ErrorOutputPaths = []string{filePath[0]}
	default:
		cfg.OutputPaths = []string{"stderr"}
		cfg.ErrorOutputPaths = []string{"stderr"}
	}

	logger, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		current.Error("failed to switch log destination", zap.Error(err))
		return
	}
	z.logger.Store(logger)
	z.config = cfg
	_ = current.Sync()
}

func zapLevel(level contracts.LogLevel) zapcore.Level {
	switch level {
	case contracts.DebugLevel:
		return zapcore.DebugLevel
	case contracts.WarnLevel:
		return zapcore.WarnLevel
	case contracts.ErrorLevel:
		return zapcore.ErrorLevel
	case contracts.FatalLevel:
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}

func toZap(fields []contracts.Field) []zap.Field {
	if len(fields) == 0 {
		return nil
	}
	out := make([]zap.Field, 0, len(fields))
	for _, field := range fields {
		if f, ok := field.(zapField); ok && f.set {
			out = append(out, f.field)
		}
	}
	return out
}

// zapField implements contracts.Field
type zapField struct {
	field zap.Field
	set   bool
}

func (zapField) Bool(key string, val bool) contracts.Field {
	return zapField{zap.Bool(key, val), true}
}

func (zapField) Int(key string, val int) contracts.Field {
	return zapField{zap.Int(key, val), true}
}

func (zapField) Float64(key string, val float64) contracts.Field {
	return zapField{zap.Float64(key, val), true}
}

func (zapField) String(key string, val string) contracts.Field {
	return zapField{zap.String(key, val), true}
}

func (zapField) Time(key string, val time.Time) contracts.Field {
	return zapField{zap.Time(key, val), true}
}

func (zapField) Duration(key string, val time.Duration) contracts.Field {
	return zapField{zap.Duration(key, val), true}
}

func (zapField) Int64(key string, val int64) contracts.Field {
	return zapField{zap.Int64(key, val), true}
}

func (zapField) Error(key string, val error) contracts.Field {
	return zapField{zap.NamedError(key, val), true}
}

func (zapField) Uint64(key string, val uint64) contracts.Field {
	return zapField{zap.Uint64(key, val), true}
}

func (zapField) Uint8(key string, val uint8) contracts.Field {
	return zapField{zap.Uint8(key, val), true}
}
