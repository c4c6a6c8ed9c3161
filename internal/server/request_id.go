package server

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"streamcast/internal/observability/logging"
)

type idGenerator func() string

func requestIDMiddleware(logger *slog.Logger, next http.Handler) http.Handler {
	return requestIDMiddlewareWithGenerator(logger, newRequestID, next)
}

func requestIDMiddlewareWithGenerator(logger *slog.Logger, generator idGenerator, next http.Handler) http.Handler {
	if generator == nil {
		generator = newRequestID
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := strings.TrimSpace(r.Header.Get("X-Request-Id"))
		if requestID == "" {
			requestID = generator()
		}

		ctx := logging.ContextWithRequestID(r.Context(), requestID)
		ctxLogger := logging.WithContext(ctx, logger)
		ctx = logging.ContextWithLogger(ctx, ctxLogger)

		if requestID != "" {
			w.Header().Set("X-Request-Id", requestID)
		}

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func newRequestID() string {
	var buffer [16]byte
	if _, err := rand.Read(buffer[:]); err == nil {
		return hex.EncodeToString(buffer[:])
	}
	return fmt.Sprintf("%d", time.Now().UnixNano())
}
