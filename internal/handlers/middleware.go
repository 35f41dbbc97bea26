package handlers

import (
	"context"
	"encoding/gob"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/sessions"
	"github.com/redis/go-redis/v9"
)

// Register types for gob encoding (used by sessions)
func init() {
	gob.Register(FlashMessage{})
}

// LoggingMiddleware logs the details of each HTTP request
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(ww, r)
		slog.Info("HTTP Request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.statusCode,
			"duration", time.Since(start),
			"ip", r.RemoteAddr,
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

// Custom ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// SecurityHeadersMiddleware adds standard security headers. Cover images
// are hotlinked from arbitrary hosts, so img-src allows https.
func SecurityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("X-XSS-Protection", "1; mode=block")
		w.Header().Set("Referrer-Policy", "same-origin")
		w.Header().Set("Content-Security-Policy", "default-src 'self'; style-src 'self' 'unsafe-inline'; img-src 'self' data: https:; script-src 'self'")
		next.ServeHTTP(w, r)
	})
}

// BodyLimitMiddleware caps request bodies on the given paths. It has to
// wrap CSRF protection, which reads the form before any handler runs.
func BodyLimitMiddleware(limit int64, paths ...string) func(http.Handler) http.Handler {
	limited := make(map[string]bool, len(paths))
	for _, p := range paths {
		limited[p] = true
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodPost && limited[r.URL.Path] {
				if r.ContentLength > limit {
					slog.Warn("Request body too large", "path", r.URL.Path, "size", r.ContentLength)
					http.Error(w, "File too large. The limit is 5 MB.", http.StatusRequestEntityTooLarge)
					return
				}
				r.Body = http.MaxBytesReader(w, r.Body, limit)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// LimiterBackend decides whether key may act again within window.
type LimiterBackend interface {
	Allow(ctx context.Context, key string, window time.Duration) (bool, error)
}

type memoryBackend struct {
	visitors sync.Map
}

func (m *memoryBackend) Allow(_ context.Context, key string, window time.Duration) (bool, error) {
	now := time.Now()
	if lastSeen, ok := m.visitors.Load(key); ok {
		if now.Sub(lastSeen.(time.Time)) < window {
			return false, nil
		}
	}
	m.visitors.Store(key, now)
	return true, nil
}

// cleanup removes old entries to prevent memory leaks
func (m *memoryBackend) cleanup(window time.Duration) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for now := range ticker.C {
		m.visitors.Range(func(key, value any) bool {
			if now.Sub(value.(time.Time)) > window {
				m.visitors.Delete(key)
			}
			return true
		})
	}
}

// RedisBackend shares limiter state between instances using SET NX PX.
type RedisBackend struct {
	Client *redis.Client
	Prefix string
}

func (b *RedisBackend) Allow(ctx context.Context, key string, window time.Duration) (bool, error) {
	return b.Client.SetNX(ctx, b.Prefix+key, time.Now().UnixMilli(), window).Result()
}

// RateLimiter allows one request per client and route within window.
type RateLimiter struct {
	backend LimiterBackend
	window  time.Duration
}

// NewRateLimiter creates an in-process limiter with a cleanup goroutine
func NewRateLimiter(window time.Duration) *RateLimiter {
	mem := &memoryBackend{}
	go mem.cleanup(window)
	return &RateLimiter{backend: mem, window: window}
}

func NewRedisRateLimiter(client *redis.Client, window time.Duration) *RateLimiter {
	return &RateLimiter{
		backend: &RedisBackend{Client: client, Prefix: "libreserve:ratelimit:"},
		window:  window,
	}
}

func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// Middleware enforces the rate limit. Backend errors fail open.
func (rl *RateLimiter) Middleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		ok, err := rl.backend.Allow(r.Context(), ip+"|"+r.URL.Path, rl.window)
		if err != nil {
			slog.Error("Rate limiter backend failed", "error", err)
			ok = true
		}
		if !ok {
			slog.Warn("Rate limit exceeded", "ip", ip, "path", r.URL.Path)
			http.Error(w, "Too Many Requests. Please try again later.", http.StatusTooManyRequests)
			return
		}
		next(w, r)
	}
}

// FlashMessage structure
type FlashMessage struct {
	Type    string
	Message string
}

// GetFlash retrieves flash messages from the session
func GetFlash(session *sessions.Session) []FlashMessage {
	flashes := session.Flashes()
	var messages []FlashMessage
	for _, f := range flashes {
		if fm, ok := f.(FlashMessage); ok {
			messages = append(messages, fm)
		}
	}
	return messages
}

func addFlash(session *sessions.Session, kind, message string) {
	session.AddFlash(FlashMessage{Type: kind, Message: message})
}
