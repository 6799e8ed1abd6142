package errors

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// maxLoggedBody caps how much of a failed request body is captured for logs
const maxLoggedBody = 500

// RequestObserver receives one call per served request
type RequestObserver func(r *http.Request, route string, status int, duration time.Duration)

// ErrorMiddleware provides centralized error handling and request logging
type ErrorMiddleware struct {
	handler  *ErrorHandler
	logger   *slog.Logger
	observer RequestObserver
}

// NewErrorMiddleware creates a new error handling middleware
func NewErrorMiddleware(handler *ErrorHandler, logger *slog.Logger) *ErrorMiddleware {
	return &ErrorMiddleware{
		handler: handler,
		logger:  logger.With(slog.String("component", "error_middleware")),
	}
}

// WithObserver registers a callback, typically a metrics recorder
func (m *ErrorMiddleware) WithObserver(observer RequestObserver) *ErrorMiddleware {
	m.observer = observer
	return m
}

// Handler returns the middleware handler function
func (m *ErrorMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		// JSON bodies are small; multipart uploads are never buffered
		var requestBody []byte
		if r.Body != nil && r.ContentLength > 0 && r.ContentLength < 1024*1024 && isJSON(r) {
			requestBody, _ = io.ReadAll(r.Body)
			r.Body = io.NopCloser(bytes.NewReader(requestBody))
		}

		start := time.Now()

		defer func() {
			if err := recover(); err != nil {
				m.handler.HandlePanic(ww, r, err)
			}
			m.logRequest(r, ww, start, requestBody)
		}()

		next.ServeHTTP(ww, r)
	})
}

func (m *ErrorMiddleware) logRequest(r *http.Request, ww middleware.WrapResponseWriter, start time.Time, requestBody []byte) {
	duration := time.Since(start)
	status := ww.Status()
	if status == 0 {
		status = http.StatusOK
	}

	logLevel := slog.LevelInfo
	if status >= 400 && status < 500 {
		logLevel = slog.LevelWarn
	} else if status >= 500 {
		logLevel = slog.LevelError
	}

	attrs := []slog.Attr{
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.Int("status", status),
		slog.Duration("duration", duration),
		slog.Int("bytes", ww.BytesWritten()),
		slog.String("remote_addr", r.RemoteAddr),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	}

	if r.URL.RawQuery != "" {
		attrs = append(attrs, slog.String("query", r.URL.RawQuery))
	}

	if status >= 400 && len(requestBody) > 0 {
		bodyStr := sanitizeRequestBody(string(requestBody))
		if len(bodyStr) > maxLoggedBody {
			bodyStr = bodyStr[:maxLoggedBody] + "..."
		}
		attrs = append(attrs, slog.String("request_body", bodyStr))
	}

	m.logger.LogAttrs(r.Context(), logLevel, "http request", attrs...)

	if m.observer != nil {
		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		m.observer(r, route, status, duration)
	}
}

func isJSON(r *http.Request) bool {
	ct := r.Header.Get("Content-Type")
	return ct == "" || strings.HasPrefix(ct, "application/json")
}

// sanitizeRequestBody shortens large text payloads before logging
func sanitizeRequestBody(body string) string {
	var data map[string]interface{}
	if err := json.Unmarshal([]byte(body), &data); err != nil {
		return body
	}

	// Submitted documents can be long and may be confidential
	for _, field := range []string{"text", "token", "api_key"} {
		if v, ok := data[field].(string); ok {
			data[field] = fmt.Sprintf("[REDACTED %d bytes]", len(v))
		}
	}

	sanitized, _ := json.Marshal(data)
	return string(sanitized)
}

// RecoveryMiddleware provides panic recovery with proper error responses
func RecoveryMiddleware(handler *ErrorHandler) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					handler.HandlePanic(w, r, err)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
