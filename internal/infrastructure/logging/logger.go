package logging

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Level names accepted from the command line and from rendering contexts.
const (
	LevelError   = "error"
	LevelWarn    = "warn"
	LevelInfo    = "info"
	LevelHTTP    = "http"
	LevelVerbose = "verbose"
	LevelDebug   = "debug"
	LevelSilly   = "silly"
)

// Levels lists every accepted level name, most severe first.
var Levels = []string{LevelError, LevelWarn, LevelInfo, LevelHTTP, LevelVerbose, LevelDebug, LevelSilly}

// Logger wraps zap.Logger with convenience methods.
type Logger struct {
	*zap.Logger
}

// Config defines logger configuration.
type Config struct {
	Level       string // one of Levels
	Development bool
	OutputPaths []string
}

// DefaultConfig returns production-ready logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:       LevelInfo,
		Development: false,
		OutputPaths: []string{"stdout"},
	}
}

// DevelopmentConfig returns development logger configuration.
func DevelopmentConfig() Config {
	return Config{
		Level:       LevelDebug,
		Development: true,
		OutputPaths: []string{"stdout"},
	}
}

// New creates a new logger with the provided configuration.
func New(cfg Config) (*Logger, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	outputs := cfg.OutputPaths
	if len(outputs) == 0 {
		outputs = []string{"stdout"}
	}

	zapCfg := zap.Config{
		Level:             zap.NewAtomicLevelAt(level),
		Development:       cfg.Development,
		Encoding:          encodingFormat(cfg.Development),
		EncoderConfig:     encoderConfig(cfg.Development),
		OutputPaths:       outputs,
		ErrorOutputPaths:  []string{"stderr"},
		DisableCaller:     false,
		DisableStacktrace: !cfg.Development,
	}

	logger, err := zapCfg.Build()
	if err != nil {
		return nil, err
	}

	return &Logger{Logger: logger}, nil
}

// NewDefault creates a logger with default configuration.
func NewDefault() *Logger {
	logger, err := New(DefaultConfig())
	if err != nil {
		// Fallback to no-op logger
		return NewNop()
	}
	return logger
}

// NewDevelopment creates a logger with development configuration.
func NewDevelopment() *Logger {
	logger, err := New(DevelopmentConfig())
	if err != nil {
		// Fallback to no-op logger
		return NewNop()
	}
	return logger
}

// NewNop returns a logger that discards everything.
func NewNop() *Logger {
	return &Logger{Logger: zap.NewNop()}
}

// Named returns a child logger scoped to a component.
func (l *Logger) Named(name string) *Logger {
	return &Logger{Logger: l.Logger.Named(name)}
}

// ParseLevel maps an application level name onto a zap level.
// The http level logs as info; verbose and silly log as debug.
func ParseLevel(level string) (zapcore.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "", LevelInfo, LevelHTTP:
		return zapcore.InfoLevel, nil
	case LevelVerbose, LevelDebug, LevelSilly:
		return zapcore.DebugLevel, nil
	}
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return zapcore.InfoLevel, fmt.Errorf("unknown log level %q", level)
	}
	return l, nil
}

// Forward writes a message received from a rendering context at the named level.
// Unknown levels are logged at info with the requested level attached.
func (l *Logger) Forward(level string, args []any) {
	msg := joinArgs(args)
	fields := []zap.Field{zap.String("source", "renderer")}

	switch level {
	case LevelError:
		l.Error(msg, fields...)
	case LevelWarn:
		l.Warn(msg, fields...)
	case LevelInfo:
		l.Info(msg, fields...)
	case LevelHTTP:
		l.Info(msg, append(fields, zap.String("level_name", LevelHTTP))...)
	case LevelVerbose, LevelDebug, LevelSilly:
		l.Debug(msg, append(fields, zap.String("level_name", level))...)
	default:
		l.Info(msg, append(fields, zap.String("level_name", level))...)
	}
}

func joinArgs(args []any) string {
	parts := make([]string, 0, len(args))
	for _, a := range args {
		parts = append(parts, fmt.Sprint(a))
	}
	return strings.Join(parts, " ")
}

// LineWriter returns an io.WriteCloser that logs every complete line written to it
// at the given level, prefixed with prefix. Close flushes a trailing partial line.
func (l *Logger) LineWriter(level zapcore.Level, prefix string) io.WriteCloser {
	pr, pw := io.Pipe()
	w := &lineWriter{pw: pw, done: make(chan struct{})}

	go func() {
		defer close(w.done)
		scanner := bufio.NewScanner(pr)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := scanner.Text()
			if line == "" {
				continue
			}
			if ce := l.Check(level, prefix+" "+line); ce != nil {
				ce.Write()
			}
		}
		// drain whatever is left so writers never block on a dead scanner
		_, _ = io.Copy(io.Discard, pr)
	}()

	return w
}

type lineWriter struct {
	pw   *io.PipeWriter
	done chan struct{}
	once sync.Once
}

func (w *lineWriter) Write(p []byte) (int, error) {
	return w.pw.Write(p)
}

func (w *lineWriter) Close() error {
	w.once.Do(func() {
		_ = w.pw.Close()
		<-w.done
	})
	return nil
}

// encodingFormat returns encoding format based on environment.
func encodingFormat(development bool) string {
	if development {
		return "console"
	}
	return "json"
}

// encoderConfig returns encoder configuration based on environment.
func encoderConfig(development bool) zapcore.EncoderConfig {
	if development {
		return zapcore.EncoderConfig{
			TimeKey:        "T",
			LevelKey:       "L",
			NameKey:        "N",
			CallerKey:      "C",
			FunctionKey:    zapcore.OmitKey,
			MessageKey:     "M",
			StacktraceKey:  "S",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.CapitalColorLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.StringDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		}
	}

	return zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "message",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.SecondsDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
}
