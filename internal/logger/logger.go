package logger

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// Logger is a thin structured wrapper around zap's SugaredLogger
type Logger struct {
	SugaredLogger *zap.SugaredLogger
}

// New builds a logger for mode "prod"/"production" or development otherwise.
// level may be empty, in which case debug is used in development and info in production.
func New(mode, level string) (*Logger, error) {
	var cfg zap.Config
	switch strings.ToLower(mode) {
	case "prod", "production":
		cfg = zap.NewProductionConfig()
	default:
		cfg = zap.NewDevelopmentConfig()
	}
	if level != "" {
		lvl, err := zap.ParseAtomicLevel(level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", level, err)
		}
		cfg.Level = lvl
	}
	zapLogger, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return &Logger{SugaredLogger: zapLogger.Sugar()}, nil
}

// NewNop returns a logger that discards everything
func NewNop() *Logger {
	return &Logger{SugaredLogger: zap.NewNop().Sugar()}
}

func (l *Logger) Sync() {
	_ = l.SugaredLogger.Sync()
}

func (l *Logger) Debug(msg string, keysAndValues ...interface{}) {
	l.SugaredLogger.Debugw(msg, sanitizeKVs(keysAndValues)...)
}
func (l *Logger) Info(msg string, keysAndValues ...interface{}) {
	l.SugaredLogger.Infow(msg, sanitizeKVs(keysAndValues)...)
}
func (l *Logger) Warn(msg string, keysAndValues ...interface{}) {
	l.SugaredLogger.Warnw(msg, sanitizeKVs(keysAndValues)...)
}
func (l *Logger) Error(msg string, keysAndValues ...interface{}) {
	l.SugaredLogger.Errorw(msg, sanitizeKVs(keysAndValues)...)
}
func (l *Logger) Fatal(msg string, keysAndValues ...interface{}) {
	l.SugaredLogger.Fatalw(msg, sanitizeKVs(keysAndValues)...)
}
func (l *Logger) With(keysAndValues ...interface{}) *Logger {
	return &Logger{SugaredLogger: l.SugaredLogger.With(sanitizeKVs(keysAndValues)...)}
}

// sanitizeKVs redacts values whose key looks like a credential.
func sanitizeKVs(kv []interface{}) []interface{} {
	if len(kv) == 0 {
		return kv
	}
	out := make([]interface{}, 0, len(kv))
	for i := 0; i < len(kv); i += 2 {
		if i == len(kv)-1 {
			out = append(out, kv[i])
			break
		}
		key := strings.TrimSpace(strings.ToLower(fmt.Sprint(kv[i])))
		if isRedactKey(key) {
			out = append(out, kv[i], "[REDACTED]")
			continue
		}
		out = append(out, kv[i], kv[i+1])
	}
	return out
}

func isRedactKey(key string) bool {
	switch {
	case strings.Contains(key, "token") && !strings.Contains(key, "tokens"),
		strings.Contains(key, "authorization"),
		strings.Contains(key, "password"),
		strings.Contains(key, "secret"),
		strings.Contains(key, "api_key"),
		strings.Contains(key, "apikey"):
		return true
	default:
		return false
	}
}
