// Package middleware provides HTTP middleware functions
package middleware

import (
	"bufio"
	"context"
	"errors"
	"net"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Middleware defines a function to process http requests
type Middleware func(http.Handler) http.Handler

// Chain applies middlewares to a http.Handler. The last middleware is the
// outermost.
func Chain(handler http.Handler, middlewares ...Middleware) http.Handler {
	for _, middleware := range middlewares {
		handler = middleware(handler)
	}
	return handler
}

type requestIDKey struct{}

// RequestIDHeader carries the request id in and out
const RequestIDHeader = "X-Request-ID"

// RequestID tags every request with an id, reusing the caller's when given
func RequestID() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(RequestIDHeader)
			if id == "" {
				id = uuid.NewString()
			}
			w.Header().Set(RequestIDHeader, id)
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
		})
	}
}

// GetRequestID returns the request id stored by RequestID
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// Logger returns a middleware that logs API, websocket and health requests
func Logger(logger *zap.Logger) Middleware {
	logger = logger.Named("http")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// static files are not logged
			if !strings.HasPrefix(r.URL.Path, "/api") &&
				!strings.HasPrefix(r.URL.Path, "/ws") &&
				r.URL.Path != "/health" {
				next.ServeHTTP(w, r)
				return
			}

			fields := []zap.Field{
				zap.String("remote", r.RemoteAddr),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
			}
			if id := GetRequestID(r.Context()); id != "" {
				fields = append(fields, zap.String("requestID", id))
			}

			// websocket upgrades hijack the connection; leave the writer alone
			if strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
				next.ServeHTTP(w, r)
				logger.Info("websocket closed", append(fields, zap.Duration("duration", time.Since(start)))...)
				return
			}

			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(rw, r)

			fields = append(fields, zap.Int("status", rw.statusCode), zap.Duration("duration", time.Since(start)))
			if rw.statusCode >= http.StatusInternalServerError {
				logger.Warn("request failed", fields...)
				return
			}
			logger.Info("request", fields...)
		})
	}
}

// Recover returns a middleware that recovers from panics
func Recover(logger *zap.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					logger.Error("panic in handler",
						zap.Any("panic", err),
						zap.String("path", r.URL.Path),
						zap.ByteString("stack", debug.Stack()))
					http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// ParseOrigins splits a comma separated origin list
func ParseOrigins(s string) []string {
	var origins []string
	for _, o := range strings.Split(s, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

// CORS returns a middleware that handles CORS. An empty list or "*" allows
// every origin; otherwise only listed origins are echoed back.
func CORS(allowedOrigins []string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			corsOrigin := ""
			if len(allowedOrigins) == 0 {
				corsOrigin = "*"
			}
			for _, allowed := range allowedOrigins {
				if allowed == "*" {
					corsOrigin = "*"
					break
				}
				if origin != "" && allowed == origin {
					corsOrigin = origin
					w.Header().Add("Vary", "Origin")
					break
				}
			}

			if corsOrigin != "" {
				w.Header().Set("Access-Control-Allow-Origin", corsOrigin)
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, "+RequestIDHeader)
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// responseWriter is a wrapper for http.ResponseWriter that captures the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

// WriteHeader captures the status code and passes it to the underlying ResponseWriter
func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Hijack implements the http.Hijacker interface to allow WebSocket connections
func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if hj, ok := rw.ResponseWriter.(http.Hijacker); ok {
		return hj.Hijack()
	}
	return nil, nil, errors.New("http.Hijacker interface is not supported by the underlying ResponseWriter")
}

// Flush implements the http.Flusher interface
func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
