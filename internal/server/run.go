package server

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"net/http"
	"time"
)

// shutdownGrace bounds the drain of in-flight control requests once the run
// context is cancelled.
const shutdownGrace = 10 * time.Second

// Run opens the listener and serves the control API until ctx is cancelled,
// then drains in-flight requests within shutdownGrace. TLS is enabled when
// both certificate paths were configured.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	if s.tlsCertFile != "" && s.tlsKeyFile != "" {
		cert, err := tls.LoadX509KeyPair(s.tlsCertFile, s.tlsKeyFile)
		if err != nil {
			ln.Close()
			return err
		}
		tlsCfg := s.httpServer.TLSConfig.Clone()
		tlsCfg.Certificates = append([]tls.Certificate{cert}, tlsCfg.Certificates...)
		s.httpServer.TLSConfig = tlsCfg
		ln = tls.NewListener(ln, tlsCfg)
	}
	s.mu.Lock()
	s.boundAddr = ln.Addr().String()
	s.mu.Unlock()
	s.logger.Info("control plane listening",
		"addr", ln.Addr().String(), "tls", s.tlsCertFile != "")

	serveErr := make(chan error, 1)
	go func() { serveErr <- s.httpServer.Serve(ln) }()

	select {
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	drainCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := s.httpServer.Shutdown(drainCtx); err != nil {
		return err
	}
	if err := <-serveErr; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// BoundAddr reports the address the listener actually bound, which matters
// when the configured address leaves the port to the kernel. Empty until Run
// has opened its listener.
func (s *Server) BoundAddr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.boundAddr
}
