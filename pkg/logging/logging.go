package logging

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Level mirrors the zap severities the tool uses.
type Level int8

const (
	LevelDebug = Level(zapcore.DebugLevel)
	LevelInfo  = Level(zapcore.InfoLevel)
	LevelWarn  = Level(zapcore.WarnLevel)
	LevelError = Level(zapcore.ErrorLevel)
)

// ParseLevel converts a config string to a Level. Unknown values mean info.
func ParseLevel(v string) Level {
	lvl, err := zapcore.ParseLevel(strings.TrimSpace(v))
	if err != nil || lvl > zapcore.ErrorLevel {
		return LevelInfo
	}
	return Level(lvl)
}

// Logger is a thin levelled wrapper around a zap sugared logger.
type Logger struct {
	sugar *zap.SugaredLogger
	close func() error
}

// New creates a configured logger. Output goes to stderr unless path is set,
// in which case the file is opened for append.
func New(path string, level Level) (*Logger, error) {
	var sink zapcore.WriteSyncer = zapcore.Lock(os.Stderr)
	closeFn := func() error { return nil }
	if path != "" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, err
		}
		sink = zapcore.AddSync(f)
		closeFn = f.Close
	}
	encCfg := zap.NewDevelopmentEncoderConfig()
	encCfg.TimeKey = ""
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), sink, zapcore.Level(level))
	z := zap.New(core).Named("warranty")
	return &Logger{sugar: z.Sugar(), close: closeFn}, nil
}

// FromZap wraps an existing zap logger.
func FromZap(z *zap.Logger) *Logger {
	return &Logger{sugar: z.Sugar(), close: func() error { return nil }}
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return FromZap(zap.NewNop())
}

// Infof logs informational messages.
func (l *Logger) Infof(format string, args ...interface{}) {
	if l == nil {
		return
	}
	l.sugar.Infof(format, args...)
}

// Debugf logs verbose diagnostic messages.
func (l *Logger) Debugf(format string, args ...interface{}) {
	if l == nil {
		return
	}
	l.sugar.Debugf(format, args...)
}

// Warnf logs conditions the run recovers from.
func (l *Logger) Warnf(format string, args ...interface{}) {
	if l == nil {
		return
	}
	l.sugar.Warnf(format, args...)
}

// Errorf logs failures.
func (l *Logger) Errorf(format string, args ...interface{}) {
	if l == nil {
		return
	}
	l.sugar.Errorf(format, args...)
}

// Close flushes buffered entries and releases the log file, if any.
func (l *Logger) Close() error {
	if l == nil {
		return nil
	}
	_ = l.sugar.Sync()
	return l.close()
}
