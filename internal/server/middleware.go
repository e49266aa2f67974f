package server

import (
	"bytes"
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"chap/internal/auth"
	"chap/internal/constants"
)

// Chain applies middlewares in order. The first middleware is the outermost (runs first).
// Usage: Chain(handler, requestID, securityHeaders, authenticate)
// Request flow: requestID → securityHeaders → authenticate → handler
func Chain(handler http.Handler, middlewares ...func(http.Handler) http.Handler) http.Handler {
	// Apply in reverse so the first middleware in the list is outermost
	for i := len(middlewares) - 1; i >= 0; i-- {
		handler = middlewares[i](handler)
	}
	return handler
}

// SecurityHeaders adds standard security headers to every response.
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}

// contextKey is an unexported type for context keys in this package.
type contextKey int

const (
	requestIDContextKey contextKey = iota
)

// RequestID assigns every request a unique ID, stored on the context and
// echoed on the response header. An incoming X-Request-ID is preserved so
// reverse proxies can correlate their own logs.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(constants.HeaderRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(constants.HeaderRequestID, id)
		ctx := context.WithValue(r.Context(), requestIDContextKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetRequestID returns the request's assigned ID, or empty if none.
func GetRequestID(r *http.Request) string {
	if id, ok := r.Context().Value(requestIDContextKey).(string); ok {
		return id
	}
	return ""
}

// rateLimitMiddleware counts a request against a bucket keyed by client IP
// and rejects with 429 once the window's limit is spent. Limit headers go on
// every response so clients can pace themselves before hitting the wall.
func (s *Server) rateLimitMiddleware(bucket string, limit int, windowSecs int) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			res := s.app.Services.Limiter.Hit(bucket, getClientIP(r), limit, time.Duration(windowSecs)*time.Second)

			w.Header().Set(constants.HeaderRateLimitLimit, strconv.Itoa(res.Limit))
			w.Header().Set(constants.HeaderRateLimitRemaining, strconv.Itoa(res.Remaining))

			if !res.Allowed {
				w.Header().Set(constants.HeaderRetryAfter, strconv.Itoa(int(res.RetryAfter.Seconds())))
				WriteError(w, r, http.StatusTooManyRequests, constants.ErrCodeRateLimited, "too many requests")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// recordingWriter buffers a response so it can be stored for replay.
type recordingWriter struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (rw *recordingWriter) WriteHeader(status int) {
	rw.status = status
	rw.ResponseWriter.WriteHeader(status)
}

func (rw *recordingWriter) Write(b []byte) (int, error) {
	rw.body.Write(b)
	return rw.ResponseWriter.Write(b)
}

// idempotencyMiddleware replays the stored response for a repeated mutating
// request carrying the same Idempotency-Key. Only authenticated requests
// participate: the key is scoped to the caller's token so one client can
// never replay another's response. A failed lookup processes the request
// normally; at-least-once beats at-most-zero here.
func (s *Server) idempotencyMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get(constants.HeaderIdempotencyKey)
		if key == "" || len(key) > constants.IdempotencyKeyMaxLen || !isMutating(r.Method) {
			next.ServeHTTP(w, r)
			return
		}
		identity := auth.GetIdentity(r)
		if identity == nil || identity.Token == nil {
			next.ServeHTTP(w, r)
			return
		}
		tokenID := identity.Token.ID

		if rec, err := s.app.Idempotency.Find(tokenID, key, r.Method, r.URL.Path); err == nil && rec != nil {
			w.Header().Set(constants.HeaderContentType, constants.ContentTypeJSON)
			w.WriteHeader(rec.StatusCode)
			w.Write(rec.Body)
			return
		}

		rw := &recordingWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)

		if err := s.app.Idempotency.Remember(tokenID, key, r.Method, r.URL.Path,
			rw.status, rw.body.Bytes(), constants.IdempotencyDefaultTTL); err != nil {
			s.logger.Warn("Failed to store idempotency record: %v", err)
		}
	})
}

func isMutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}
