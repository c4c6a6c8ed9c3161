package server

import (
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"streamcast/internal/api"
)

type TLSConfig struct {
	CertFile string
	KeyFile  string
}

type Config struct {
	Addr        string
	TLS         TLSConfig
	RateLimit   RateLimitConfig
	CORS        CORSConfig
	Security    SecurityConfig
	Logger      *slog.Logger
	AuditLogger *slog.Logger
}

type Server struct {
	httpServer  *http.Server
	logger      *slog.Logger
	auditLogger *slog.Logger
	rateLimiter *rateLimiter
	tlsCertFile string
	tlsKeyFile  string

	mu        sync.Mutex
	boundAddr string
}

func New(handler *api.Handler, cfg Config) (*Server, error) {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", handler.Health)
	mux.HandleFunc("/api/platforms", handler.Platforms)
	mux.HandleFunc("/api/endpoints/", handler.Endpoints)

	corsPolicy, err := newCORSPolicy(cfg.CORS)
	if err != nil {
		return nil, err
	}

	rl := newRateLimiter(cfg.RateLimit)
	handlerChain := http.Handler(mux)
	handlerChain = rateLimitMiddleware(rl, cfg.Logger, handlerChain)
	handlerChain = auditMiddleware(cfg.AuditLogger, handlerChain)
	handlerChain = corsMiddleware(corsPolicy, cfg.Logger, handlerChain)
	handlerChain = securityHeadersMiddleware(cfg.Security, handlerChain)
	handlerChain = loggingMiddleware(cfg.Logger, handlerChain)
	handlerChain = requestIDMiddleware(cfg.Logger, handlerChain)

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handlerChain,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	srv := &Server{
		httpServer:  httpServer,
		logger:      cfg.Logger,
		auditLogger: cfg.AuditLogger,
		rateLimiter: rl,
		tlsCertFile: strings.TrimSpace(cfg.TLS.CertFile),
		tlsKeyFile:  strings.TrimSpace(cfg.TLS.KeyFile),
	}

	if srv.tlsCertFile != "" && srv.tlsKeyFile != "" {
		httpServer.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	return srv, nil
}

// HTTPServer exposes the configured http.Server for lifecycle management.
func (s *Server) HTTPServer() *http.Server { return s.httpServer }

// TLSFiles returns the certificate and key paths, empty when TLS is off.
func (s *Server) TLSFiles() (string, string) { return s.tlsCertFile, s.tlsKeyFile }

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func newStatusRecorder(w http.ResponseWriter) *statusRecorder {
	return &statusRecorder{ResponseWriter: w, status: http.StatusOK}
}

func (sr *statusRecorder) WriteHeader(status int) {
	sr.status = status
	sr.ResponseWriter.WriteHeader(status)
}

func loggingMiddleware(logger *slog.Logger, next http.Handler) http.Handler {
	if logger == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		recorder := newStatusRecorder(w)
		start := time.Now()
		next.ServeHTTP(recorder, r)
		duration := time.Since(start)
		logger.Info("request completed",
			"method", r.Method,
			"path", r.URL.Path,
			"status", recorder.status,
			"duration_ms", duration.Milliseconds(),
			"remote_ip", extractClientIP(r))
	})
}

func rateLimitMiddleware(rl *rateLimiter, logger *slog.Logger, next http.Handler) http.Handler {
	if rl == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.AllowRequest() {
			http.Error(w, "global rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		if isMutation(r) {
			allowed, retryAfter, err := rl.AllowMutation(extractClientIP(r))
			if err != nil {
				if logger != nil {
					logger.Error("rate limiter failure", "error", err)
				}
				http.Error(w, "rate limit failure", http.StatusServiceUnavailable)
				return
			}
			if !allowed {
				if retryAfter > 0 {
					w.Header().Set("Retry-After", fmt.Sprintf("%.0f", retryAfter.Seconds()))
				}
				http.Error(w, "too many state changes", http.StatusTooManyRequests)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func isMutation(r *http.Request) bool {
	switch r.Method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return false
	}
	return strings.HasPrefix(r.URL.Path, "/api/")
}

func auditMiddleware(logger *slog.Logger, next http.Handler) http.Handler {
	if logger == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sr := newStatusRecorder(w)
		start := time.Now()
		next.ServeHTTP(sr, r)
		if !isMutation(r) {
			return
		}
		duration := time.Since(start)
		fields := []interface{}{
			"method", r.Method,
			"path", r.URL.Path,
			"status", sr.status,
			"duration_ms", duration.Milliseconds(),
			"remote_ip", extractClientIP(r),
		}
		if actorID := strings.TrimSpace(r.Header.Get("X-Actor-Id")); actorID != "" {
			fields = append(fields, "actor_id", actorID)
		}
		logger.Info("audit", fields...)
	})
}

func extractClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		if len(parts) > 0 {
			return strings.TrimSpace(parts[0])
		}
	}
	if xrip := r.Header.Get("X-Real-IP"); xrip != "" {
		return strings.TrimSpace(xrip)
	}
	return clientIP(r.RemoteAddr)
}

func clientIP(remoteAddr string) string {
	if remoteAddr == "" {
		return ""
	}
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}
