// Package http exposes the ledger over a JSON API. Transport concerns stop
// here: handlers resolve the authenticated user and delegate everything else
// to the ledger service.
package http

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"cashledger/internal/cache"
	"cashledger/internal/core"
	"cashledger/internal/ledger"
	"cashledger/internal/storage"
)

type Server struct {
	http.Server
	service     *ledger.Service
	store       *storage.Repository
	rateLimiter *rateLimiter

	// reportCache keys fold in the per-user mutation generation, so entries
	// for a user age out logically the moment that user writes.
	reportCache *cache.LRU[[]core.ReportRow]

	started          time.Time
	stopCacheCleanup chan struct{}
	shutdownOnce     sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(addr string, service *ledger.Service, store *storage.Repository) *Server {
	mux := http.NewServeMux()

	s := &Server{
		Server: http.Server{
			Addr:    addr,
			Handler: mux,
		},
		service:          service,
		store:            store,
		rateLimiter:      newRateLimiter(),
		reportCache:      cache.NewLRU[[]core.ReportRow](200, 5*time.Minute),
		started:          time.Now(),
		stopCacheCleanup: make(chan struct{}),
	}

	go s.startCacheCleanup()

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	mux.HandleFunc("POST /transactions", s.protect(s.handleCreateTransaction))
	mux.HandleFunc("GET /transactions", s.protect(s.handleListTransactions))
	mux.HandleFunc("GET /transactions/{id}", s.protect(s.handleGetTransaction))
	mux.HandleFunc("PATCH /transactions/{id}", s.protect(s.handleUpdateTransaction))
	mux.HandleFunc("DELETE /transactions/{id}", s.protect(s.handleDeleteTransaction))

	mux.HandleFunc("GET /balance", s.protect(s.handleBalance))
	mux.HandleFunc("GET /reports/monthly", s.protect(s.handleMonthlyReport))

	mux.HandleFunc("POST /categories", s.protect(s.handleCreateCategory))
	mux.HandleFunc("GET /categories", s.protect(s.handleListCategories))
	mux.HandleFunc("DELETE /categories/{id}", s.protect(s.handleDeleteCategory))

	return s
}

// authedHandler is a handler that runs with a resolved user identity.
type authedHandler func(w http.ResponseWriter, r *http.Request, user core.User)

// protect chains the standard middleware: request logging and headers, rate
// limiting on writes, then bearer-token authentication.
func (s *Server) protect(next authedHandler) http.HandlerFunc {
	return s.withRequestLogging(s.withAuth(next))
}

// withAuth resolves the Authorization bearer token to a user. Requests
// without a valid token never reach the ledger.
func (s *Server) withAuth(next authedHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}

		user, err := s.store.UserByToken(r.Context(), token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		next(w, r, user)
	}
}

// withRequestLogging adds security headers, rate limiting on mutating
// methods, request IDs, and request/response logging.
func (s *Server) withRequestLogging(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		clientIP := r.Header.Get("X-Forwarded-For")
		if clientIP == "" {
			clientIP = r.Header.Get("X-Real-IP")
		}
		if clientIP == "" {
			clientIP = r.RemoteAddr
		}

		requestID := generateRequestID()
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		mutating := r.Method == http.MethodPost ||
			r.Method == http.MethodPatch ||
			r.Method == http.MethodDelete
		if mutating && !s.rateLimiter.allow(clientIP) {
			slog.WarnContext(ctx, "Rate limit exceeded",
				"client_ip", clientIP, "method", r.Method, "path", r.URL.Path)
			w.Header().Set("Retry-After", "60")
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}

		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next(rw, r)

		slog.InfoContext(ctx, "Request completed",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", rw.statusCode,
			"duration_ms", time.Since(start).Milliseconds(),
			"client_ip", clientIP)
	}
}

type requestIDKey struct{}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// generateRequestID creates a unique request ID for tracing.
func generateRequestID() string {
	bytes := make([]byte, 8)
	if _, err := rand.Read(bytes); err != nil {
		return fmt.Sprintf("req_%d", time.Now().UnixNano())
	}
	return "req_" + hex.EncodeToString(bytes)
}

// startCacheCleanup sweeps expired report cache entries periodically.
func (s *Server) startCacheCleanup() {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if cleaned := s.reportCache.CleanExpired(); cleaned > 0 {
				slog.Debug("Report cache cleanup completed", "entries_removed", cleaned)
			}
		case <-s.stopCacheCleanup:
			return
		}
	}
}

// Shutdown stops the cleanup goroutines and then the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		if s.stopCacheCleanup != nil {
			close(s.stopCacheCleanup)
		}
		if s.rateLimiter != nil {
			s.rateLimiter.stop()
		}
		shutdownErr = s.Server.Shutdown(ctx)
	})

	return shutdownErr
}
