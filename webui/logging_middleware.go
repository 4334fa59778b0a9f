package webui

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"productstudio/logging"
)

// LoggingMiddleware logs every HTTP request with its status and duration.
type LoggingMiddleware struct {
	logger         RequestLogger
	skipPaths      map[string]bool
	identityHeader string
}

// RequestLogger receives one entry per completed request.
type RequestLogger interface {
	LogRequest(entry RequestLogEntry)
}

// RequestLogEntry describes a completed request.
type RequestLogEntry struct {
	Timestamp    time.Time
	Method       string
	Path         string
	StatusCode   int
	Duration     time.Duration
	RemoteAddr   string
	UserID       string
	BytesWritten int64
}

// ZapRequestLogger writes entries through the application logger. Server
// errors log at Error, client errors at Warn, everything else at Info.
type ZapRequestLogger struct {
	Logger *logging.Logger
}

// LogRequest implements RequestLogger.
func (z *ZapRequestLogger) LogRequest(entry RequestLogEntry) {
	fields := []zap.Field{
		zap.String("method", entry.Method),
		zap.String("path", entry.Path),
		zap.Int("status", entry.StatusCode),
		zap.Duration("duration", entry.Duration),
		zap.String("remote", entry.RemoteAddr),
		zap.Int64("bytes", entry.BytesWritten),
	}
	if entry.UserID != "" {
		fields = append(fields, logging.UserField(entry.UserID))
	}

	switch {
	case entry.StatusCode >= 500:
		z.Logger.Error("http request", fields...)
	case entry.StatusCode >= 400:
		z.Logger.Warn("http request", fields...)
	default:
		z.Logger.Info("http request", fields...)
	}
}

// NoopLogger discards all entries.
type NoopLogger struct{}

// LogRequest does nothing.
func (NoopLogger) LogRequest(RequestLogEntry) {}

// LoggingMiddlewareConfig configures NewLoggingMiddleware.
type LoggingMiddlewareConfig struct {
	Logger RequestLogger
	// SkipPaths are exact paths that are never logged, such as /health.
	SkipPaths []string
	// IdentityHeader is read to attach the caller's id to the entry.
	IdentityHeader string
}

// NewLoggingMiddleware creates a LoggingMiddleware.
func NewLoggingMiddleware(config LoggingMiddlewareConfig) *LoggingMiddleware {
	if config.Logger == nil {
		config.Logger = NoopLogger{}
	}
	skip := make(map[string]bool, len(config.SkipPaths))
	for _, p := range config.SkipPaths {
		skip[p] = true
	}
	header := config.IdentityHeader
	if header == "" {
		header = DefaultIdentityHeader
	}
	return &LoggingMiddleware{
		logger:         config.Logger,
		skipPaths:      skip,
		identityHeader: header,
	}
}

// Handler wraps next with request logging.
func (m *LoggingMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.skipPaths[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		wrapped := &responseWriterWrapper{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		entry := RequestLogEntry{
			Timestamp:    start,
			Method:       r.Method,
			Path:         r.URL.Path,
			StatusCode:   wrapped.statusCode,
			Duration:     time.Since(start),
			RemoteAddr:   ClientIP(r),
			UserID:       strings.TrimSpace(r.Header.Get(m.identityHeader)),
			BytesWritten: wrapped.bytesWritten,
		}
		m.logger.LogRequest(entry)
	})
}

// responseWriterWrapper captures the status code and body size.
type responseWriterWrapper struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int64
	wroteHeader  bool
}

func (w *responseWriterWrapper) WriteHeader(statusCode int) {
	if !w.wroteHeader {
		w.statusCode = statusCode
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *responseWriterWrapper) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	n, err := w.ResponseWriter.Write(b)
	w.bytesWritten += int64(n)
	return n, err
}

// Flush implements http.Flusher when the underlying writer does.
func (w *responseWriterWrapper) Flush() {
	if flusher, ok := w.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

// Hijack implements http.Hijacker for the WebSocket upgrade.
func (w *responseWriterWrapper) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("webui: response writer does not support hijacking")
	}
	w.statusCode = http.StatusSwitchingProtocols
	w.wroteHeader = true
	return hijacker.Hijack()
}

// Unwrap returns the underlying writer for http.ResponseController.
func (w *responseWriterWrapper) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// ClientIP returns the first X-Forwarded-For hop, then X-Real-IP, then
// the connection's address without its port.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
