package log

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	slogmulti "github.com/samber/slog-multi"
)

type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelFatal
)

// levelFatal sits above slog.LevelError so handlers still print it.
const levelFatal = slog.LevelError + 4

var levelNames = map[LogLevel]string{
	LevelDebug: "DEBUG",
	LevelInfo:  "INFO",
	LevelWarn:  "WARN",
	LevelError: "ERROR",
	LevelFatal: "FATAL",
}

func (l LogLevel) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return "INFO"
}

// ParseLevel maps a case-insensitive level name to a LogLevel, defaulting to info.
func ParseLevel(s string) LogLevel {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return LevelDebug
	case "INFO":
		return LevelInfo
	case "WARN", "WARNING":
		return LevelWarn
	case "ERROR":
		return LevelError
	case "FATAL":
		return LevelFatal
	default:
		return LevelInfo
	}
}

func (l LogLevel) slogLevel() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	case LevelFatal:
		return levelFatal
	default:
		return slog.LevelInfo
	}
}

type Logger struct {
	level  *slog.LevelVar
	logger *slog.Logger
	closer io.Closer
}

// NewLogger creates a text logger on stdout.
func NewLogger(level LogLevel) *Logger {
	return NewLoggerWithWriters(level, os.Stdout, nil)
}

// NewLoggerWithWriters writes text records to console and, when file is not nil,
// JSON records to file.
func NewLoggerWithWriters(level LogLevel, console io.Writer, file io.Writer) *Logger {
	lv := new(slog.LevelVar)
	lv.Set(level.slogLevel())

	opts := &slog.HandlerOptions{
		Level:       lv,
		AddSource:   true,
		ReplaceAttr: replaceAttr,
	}
	handlers := []slog.Handler{slog.NewTextHandler(console, opts)}
	if file != nil {
		handlers = append(handlers, slog.NewJSONHandler(file, opts))
	}

	return &Logger{
		level:  lv,
		logger: slog.New(slogmulti.Fanout(handlers...)),
	}
}

// NewFileLogger logs to stdout and appends JSON records to logFile.
func NewFileLogger(logFile string, level LogLevel) (*Logger, error) {
	logDir := filepath.Dir(logFile)
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}

	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}

	logger := NewLoggerWithWriters(level, os.Stdout, file)
	logger.closer = file
	return logger, nil
}

func replaceAttr(_ []string, a slog.Attr) slog.Attr {
	switch a.Key {
	case slog.LevelKey:
		if lvl, ok := a.Value.Any().(slog.Level); ok && lvl == levelFatal {
			a.Value = slog.StringValue("FATAL")
		}
	case slog.SourceKey:
		if src, ok := a.Value.Any().(*slog.Source); ok {
			a.Value = slog.StringValue(fmt.Sprintf("%s:%d", filepath.Base(src.File), src.Line))
		}
	}
	return a
}

// SetLevel changes the minimum level at runtime.
func (l *Logger) SetLevel(level LogLevel) {
	l.level.Set(level.slogLevel())
}

// Slog exposes the underlying structured logger.
func (l *Logger) Slog() *slog.Logger {
	return l.logger
}

func (l *Logger) Debug(format string, args ...any) {
	l.log(0, LevelDebug, format, args...)
}

func (l *Logger) Info(format string, args ...any) {
	l.log(0, LevelInfo, format, args...)
}

func (l *Logger) Warn(format string, args ...any) {
	l.log(0, LevelWarn, format, args...)
}

func (l *Logger) Error(format string, args ...any) {
	l.log(0, LevelError, format, args...)
}

// Fatal logs and exits the process.
func (l *Logger) Fatal(format string, args ...any) {
	l.log(0, LevelFatal, format, args...)
	_ = l.Close()
	os.Exit(1)
}

func (l *Logger) Close() error {
	if l.closer != nil {
		return l.closer.Close()
	}
	return nil
}

// log records the message with the source of the caller depth frames above
// the exported wrapper.
func (l *Logger) log(depth int, level LogLevel, format string, args ...any) {
	ctx := context.Background()
	slvl := level.slogLevel()
	if !l.logger.Enabled(ctx, slvl) {
		return
	}

	var pcs [1]uintptr
	// runtime.Callers, log, exported wrapper
	runtime.Callers(3+depth, pcs[:])

	r := slog.NewRecord(time.Now(), slvl, fmt.Sprintf(format, args...), pcs[0])
	_ = l.logger.Handler().Handle(ctx, r)
}

var (
	globalMu     sync.RWMutex
	globalLogger *Logger
)

// InitLogger replaces the global logger. A non-empty logFile adds a JSON file sink.
func InitLogger(level LogLevel, logFile string) error {
	var (
		logger *Logger
		err    error
	)
	if strings.TrimSpace(logFile) == "" {
		logger = NewLogger(level)
	} else if logger, err = NewFileLogger(logFile, level); err != nil {
		return err
	}

	globalMu.Lock()
	prev := globalLogger
	globalLogger = logger
	globalMu.Unlock()

	if prev != nil {
		_ = prev.Close()
	}
	return nil
}

// SetLogger installs logger as the global logger, mostly for tests.
func SetLogger(logger *Logger) {
	globalMu.Lock()
	globalLogger = logger
	globalMu.Unlock()
}

func GetLogger() *Logger {
	globalMu.RLock()
	logger := globalLogger
	globalMu.RUnlock()
	if logger != nil {
		return logger
	}

	globalMu.Lock()
	defer globalMu.Unlock()
	if globalLogger == nil {
		globalLogger = NewLogger(LevelInfo)
	}
	return globalLogger
}

func Debug(format string, args ...any) {
	GetLogger().log(1, LevelDebug, format, args...)
}

func Info(format string, args ...any) {
	GetLogger().log(1, LevelInfo, format, args...)
}

func Warn(format string, args ...any) {
	GetLogger().log(1, LevelWarn, format, args...)
}

func Error(format string, args ...any) {
	GetLogger().log(1, LevelError, format, args...)
}

func Fatal(format string, args ...any) {
	logger := GetLogger()
	logger.log(1, LevelFatal, format, args...)
	_ = logger.Close()
	os.Exit(1)
}
