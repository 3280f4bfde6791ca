// Package router holds the HTTP middleware shared by the tropa server: secure
// response headers, the anonymous visitor cookie and a per-client rate limit.
// Every middleware has the func(http.Handler) http.Handler shape chi expects.
package router

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Middleware wraps an http.Handler.
type Middleware = func(http.Handler) http.Handler

// SecureHeadersConfig configures security headers.
type SecureHeadersConfig struct {
	// FrameOptions controls X-Frame-Options. Default: "DENY".
	FrameOptions string

	ContentTypeNosniff bool

	// ReferrerPolicy sets Referrer-Policy.
	ReferrerPolicy string

	// PermissionsPolicy sets Permissions-Policy.
	PermissionsPolicy string

	// HSTSMaxAge is sent as Strict-Transport-Security over HTTPS only.
	// Zero disables it.
	HSTSMaxAge int

	// ContentSecurityPolicy sets Content-Security-Policy.
	ContentSecurityPolicy string
}

// DefaultSecureHeadersConfig returns the headers used by tropa pages. Inline
// style attributes are allowed for the progress bar; scripts must be served
// from the same origin.
func DefaultSecureHeadersConfig() SecureHeadersConfig {
	return SecureHeadersConfig{
		FrameOptions:       "DENY",
		ContentTypeNosniff: true,
		ReferrerPolicy:     "strict-origin-when-cross-origin",
		PermissionsPolicy:  "geolocation=(), microphone=(), camera=()",
		HSTSMaxAge:         31536000,
		ContentSecurityPolicy: "default-src 'self'; " +
			"script-src 'self'; " +
			"style-src 'self' 'unsafe-inline'; " +
			"img-src 'self' data:; " +
			"connect-src 'self' ws: wss:; " +
			"frame-ancestors 'none'; " +
			"base-uri 'self'; " +
			"form-action 'self'",
	}
}

// SecureHeaders adds the configured security headers to every response.
func SecureHeaders(config SecureHeadersConfig) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			if config.FrameOptions != "" {
				h.Set("X-Frame-Options", config.FrameOptions)
			}
			if config.ContentTypeNosniff {
				h.Set("X-Content-Type-Options", "nosniff")
			}
			if config.ReferrerPolicy != "" {
				h.Set("Referrer-Policy", config.ReferrerPolicy)
			}
			if config.PermissionsPolicy != "" {
				h.Set("Permissions-Policy", config.PermissionsPolicy)
			}
			if config.HSTSMaxAge > 0 && isHTTPS(r) {
				h.Set("Strict-Transport-Security", "max-age="+strconv.Itoa(config.HSTSMaxAge)+"; includeSubDomains")
			}
			if config.ContentSecurityPolicy != "" {
				h.Set("Content-Security-Policy", config.ContentSecurityPolicy)
			}
			next.ServeHTTP(w, r)
		})
	}
}

func isHTTPS(r *http.Request) bool {
	return r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https"
}

// VisitorCookie makes sure every request carries the named cookie. A missing
// cookie is minted as a random UUID, set on the response and added to the
// request so handlers downstream see it on the very first visit.
func VisitorCookie(name string, maxAge time.Duration) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if c, err := r.Cookie(name); err != nil || c.Value == "" {
				cookie := &http.Cookie{
					Name:     name,
					Value:    uuid.NewString(),
					Path:     "/",
					MaxAge:   int(maxAge.Seconds()),
					HttpOnly: true,
					Secure:   isHTTPS(r),
					SameSite: http.SameSiteLaxMode,
				}
				http.SetCookie(w, cookie)
				r.AddCookie(&http.Cookie{Name: cookie.Name, Value: cookie.Value})
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RateLimit allows about requestsPerSecond requests per client IP, with a
// burst of the same size. Idle clients are forgotten after a minute and at
// most maxClients are tracked.
func RateLimit(requestsPerSecond, maxClients int) Middleware {
	if maxClients <= 0 {
		maxClients = 10000
	}
	buckets := expirable.NewLRU[string, *tokenBucket](maxClients, nil, time.Minute)
	var mu sync.Mutex

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r)

			mu.Lock()
			bucket, ok := buckets.Get(ip)
			if !ok {
				bucket = newTokenBucket(requestsPerSecond)
				buckets.Add(ip, bucket)
			}
			mu.Unlock()

			if !bucket.Allow() {
				w.Header().Set("Retry-After", "1")
				http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientIP uses the first X-Forwarded-For hop, falling back to RemoteAddr.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if i := strings.IndexByte(xff, ','); i >= 0 {
			xff = xff[:i]
		}
		return strings.TrimSpace(xff)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

type tokenBucket struct {
	tokens     float64
	max        float64
	rate       float64
	lastUpdate time.Time
	mu         sync.Mutex
}

func newTokenBucket(rate int) *tokenBucket {
	return &tokenBucket{
		tokens:     float64(rate),
		max:        float64(rate),
		rate:       float64(rate),
		lastUpdate: time.Now(),
	}
}

func (tb *tokenBucket) Allow() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	now := time.Now()
	tb.tokens += now.Sub(tb.lastUpdate).Seconds() * tb.rate
	if tb.tokens > tb.max {
		tb.tokens = tb.max
	}
	tb.lastUpdate = now

	if tb.tokens >= 1 {
		tb.tokens--
		return true
	}
	return false
}
