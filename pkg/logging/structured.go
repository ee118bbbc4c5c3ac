package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger wraps both slog and zap loggers
type Logger struct {
	slog *slog.Logger
	zap  *zap.Logger
}

// Config holds logging configuration
type Config struct {
	Level     string
	Format    string // "json" or "console"
	Output    string // "stdout" or "stderr"
	Writer    io.Writer
	AddCaller bool
	AddStack  bool
}

// NewLogger creates a new structured logger
func NewLogger(config Config) (*Logger, error) {
	if config.Output == "" {
		config.Output = "stderr"
	}
	if config.Format == "" {
		config.Format = "json"
	}

	var out io.Writer = os.Stderr
	if config.Output == "stdout" {
		out = os.Stdout
	}
	if config.Writer != nil {
		out = config.Writer
	}
	opts := &slog.HandlerOptions{Level: parseSlogLevel(config.Level)}
	var handler slog.Handler = slog.NewJSONHandler(out, opts)
	if config.Format == "console" {
		handler = slog.NewTextHandler(out, opts)
	}

	if config.Writer != nil {
		return newWriterLogger(config, handler), nil
	}

	zapConfig := zap.NewProductionConfig()
	zapConfig.Level = parseZapLevel(config.Level)
	zapConfig.Encoding = config.Format
	zapConfig.OutputPaths = []string{config.Output}
	zapConfig.ErrorOutputPaths = []string{config.Output}
	zapConfig.DisableCaller = !config.AddCaller
	zapConfig.DisableStacktrace = !config.AddStack

	zapLogger, err := zapConfig.Build()
	if err != nil {
		return nil, err
	}

	return &Logger{
		slog: slog.New(handler),
		zap:  zapLogger,
	}, nil
}

// newWriterLogger sends both sinks to config.Writer.
func newWriterLogger(config Config, handler slog.Handler) *Logger {
	encCfg := zap.NewProductionEncoderConfig()
	encoder := zapcore.NewJSONEncoder(encCfg)
	if config.Format == "console" {
		encoder = zapcore.NewConsoleEncoder(encCfg)
	}
	core := zapcore.NewCore(encoder, zapcore.AddSync(config.Writer), parseZapLevel(config.Level))

	var opts []zap.Option
	if config.AddCaller {
		opts = append(opts, zap.AddCaller())
	}
	if config.AddStack {
		opts = append(opts, zap.AddStacktrace(zapcore.ErrorLevel))
	}
	return &Logger{
		slog: slog.New(handler),
		zap:  zap.New(core, opts...),
	}
}

// NewNop returns a logger that discards everything. Used by tests and as a nil fallback.
func NewNop() *Logger {
	return &Logger{
		slog: slog.New(slog.NewTextHandler(io.Discard, nil)),
		zap:  zap.NewNop(),
	}
}

// OrNop returns l, or a discarding logger when l is nil.
func OrNop(l *Logger) *Logger {
	if l == nil {
		return NewNop()
	}
	return l
}

// parseSlogLevel parses slog level from string
func parseSlogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// parseZapLevel parses zap level from string
func parseZapLevel(level string) zap.AtomicLevel {
	switch level {
	case "debug":
		return zap.NewAtomicLevelAt(zapcore.DebugLevel)
	case "info":
		return zap.NewAtomicLevelAt(zapcore.InfoLevel)
	case "warn":
		return zap.NewAtomicLevelAt(zapcore.WarnLevel)
	case "error":
		return zap.NewAtomicLevelAt(zapcore.ErrorLevel)
	default:
		return zap.NewAtomicLevelAt(zapcore.InfoLevel)
	}
}

// WithRequestID adds request ID to logger context
func (l *Logger) WithRequestID(ctx context.Context, requestID string) *Logger {
	return &Logger{
		slog: l.slog.With("request_id", requestID),
		zap:  l.zap.With(zap.String("request_id", requestID)),
	}
}

// WithSession adds the session ID to logger context
func (l *Logger) WithSession(sessionID string) *Logger {
	return &Logger{
		slog: l.slog.With("session_id", sessionID),
		zap:  l.zap.With(zap.String("session_id", sessionID)),
	}
}

// WithComponent names the emitting component
func (l *Logger) WithComponent(name string) *Logger {
	return &Logger{
		slog: l.slog.With("component", name),
		zap:  l.zap.Named(name),
	}
}

// WithFields adds fields to logger context
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	slogAttrs := make([]any, 0, len(fields)*2)
	zapFields := make([]zap.Field, 0, len(fields))

	for key, value := range fields {
		slogAttrs = append(slogAttrs, key, value)
		zapFields = append(zapFields, zap.Any(key, value))
	}

	return &Logger{
		slog: l.slog.With(slogAttrs...),
		zap:  l.zap.With(zapFields...),
	}
}

// Debug logs a debug message
func (l *Logger) Debug(msg string, args ...interface{}) {
	l.slog.Debug(msg, args...)
	l.zap.Debug(msg, convertToZapFields(args)...)
}

// Info logs an info message
func (l *Logger) Info(msg string, args ...interface{}) {
	l.slog.Info(msg, args...)
	l.zap.Info(msg, convertToZapFields(args)...)
}

// Warn logs a warning message
func (l *Logger) Warn(msg string, args ...interface{}) {
	l.slog.Warn(msg, args...)
	l.zap.Warn(msg, convertToZapFields(args)...)
}

// Error logs an error message
func (l *Logger) Error(msg string, args ...interface{}) {
	l.slog.Error(msg, args...)
	l.zap.Error(msg, convertToZapFields(args)...)
}

// convertToZapFields converts interface{} args to zap.Field
func convertToZapFields(args []interface{}) []zap.Field {
	if len(args) == 0 {
		return nil
	}

	fields := make([]zap.Field, 0, len(args)/2)
	for i := 0; i < len(args)-1; i += 2 {
		if key, ok := args[i].(string); ok {
			fields = append(fields, zap.Any(key, args[i+1]))
		}
	}
	return fields
}

// LogRequest logs an HTTP request
func (l *Logger) LogRequest(ctx context.Context, method, path string, statusCode int, duration time.Duration, requestID string) {
	fields := map[string]interface{}{
		"method":      method,
		"path":        path,
		"status_code": statusCode,
		"duration_ms": float64(duration.Nanoseconds()) / 1e6,
		"request_id":  requestID,
	}

	logger := l.WithFields(fields)
	logger.Info("HTTP request completed")
}

// LogExecution logs one callable invocation
func (l *Logger) LogExecution(ctx context.Context, callable, kind string, success bool, stage string, duration time.Duration) {
	fields := map[string]interface{}{
		"callable":    callable,
		"kind":        kind,
		"success":     success,
		"duration_ms": float64(duration.Nanoseconds()) / 1e6,
	}
	if stage != "" {
		fields["stage"] = stage
	}

	logger := l.WithFields(fields)
	if success {
		logger.Debug("Callable executed")
	} else {
		logger.Info("Callable execution failed")
	}
}

// LogFallback logs an external inference failure that fell back to heuristics
func (l *Logger) LogFallback(ctx context.Context, callable, param, reason string, err error) {
	fields := map[string]interface{}{
		"callable": callable,
		"param":    param,
		"reason":   reason,
	}
	if err != nil {
		fields["error"] = err.Error()
	}

	logger := l.WithFields(fields)
	logger.Warn("Generation fell back to heuristic")
}

// LogSuggestion logs an accepted external value together with the reason the model gave
func (l *Logger) LogSuggestion(ctx context.Context, callable, param, rationale string) {
	fields := map[string]interface{}{
		"callable":  callable,
		"param":     param,
		"rationale": rationale,
	}

	logger := l.WithFields(fields)
	logger.Debug("External suggestion accepted")
}

// LogVerdict logs a reviewer verdict
func (l *Logger) LogVerdict(ctx context.Context, sessionID, recordID, verdict string) {
	fields := map[string]interface{}{
		"session_id": sessionID,
		"record_id":  recordID,
		"verdict":    verdict,
	}

	logger := l.WithFields(fields)
	logger.Info("Verdict recorded")
}

// LogParseWarning logs a source file skipped during discovery
func (l *Logger) LogParseWarning(ctx context.Context, path, reason string) {
	fields := map[string]interface{}{
		"path":   path,
		"reason": reason,
	}

	logger := l.WithFields(fields)
	logger.Warn("Source file skipped")
}

// LogRetry logs a retry operation
func (l *Logger) LogRetry(ctx context.Context, endpoint, model, reason string, attempt int) {
	fields := map[string]interface{}{
		"endpoint": endpoint,
		"model":    model,
		"reason":   reason,
		"attempt":  attempt,
	}

	logger := l.WithFields(fields)
	logger.Warn("Request retry")
}

// LogCircuitBreaker logs a circuit breaker operation
func (l *Logger) LogCircuitBreaker(ctx context.Context, name, from, to string) {
	fields := map[string]interface{}{
		"breaker": name,
		"from":    from,
		"to":      to,
	}

	logger := l.WithFields(fields)
	logger.Warn("Circuit breaker state changed")
}

// Sync syncs the logger
func (l *Logger) Sync() error {
	return l.zap.Sync()
}
