// internal/dashboard/server.go
package dashboard

import (
	"context"
	"crypto/tls"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/signalnine/logsentry/internal/app"
	"github.com/signalnine/logsentry/internal/config"
)

// Server is the local dashboard
type Server struct {
	cfg     *config.Config
	handler *Handler
	closeDB func() error
	cancel  context.CancelFunc
	server  *http.Server
}

// NewServer creates a dashboard server from config
func NewServer(ctx context.Context, cfg *config.Config) (*Server, error) {
	runner, err := app.NewRunner(cfg.Classifier)
	if err != nil {
		return nil, err
	}

	store, closeDB, err := app.OpenHistory(cfg.DBPath)
	if err != nil {
		return nil, err
	}

	archiver, err := app.OpenArchive(ctx, cfg.Archive)
	if err != nil {
		closeDB()
		return nil, err
	}

	jobCtx, cancel := context.WithCancel(context.Background())
	handler := NewHandler(jobCtx, runner, store, archiver, cfg.MaxUploadBytes)

	server := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      handler.Routes(cfg.AllowedOrigins),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return &Server{
		cfg:     cfg,
		handler: handler,
		closeDB: closeDB,
		cancel:  cancel,
		server:  server,
	}, nil
}

// Run serves until ctx is cancelled
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return err
	}
	return s.serve(ctx, ln)
}

// RunAndGetAddr starts serving on the configured address and returns the bound
// address once listening. Useful with port 0.
func (s *Server) RunAndGetAddr(ctx context.Context) (string, error) {
	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return "", err
	}
	go s.serve(ctx, ln)
	return ln.Addr().String(), nil
}

func (s *Server) serve(ctx context.Context, ln net.Listener) error {
	useTLS := s.cfg.TLSCert != "" && s.cfg.TLSKey != ""
	if useTLS {
		cert, err := tls.LoadX509KeyPair(s.cfg.TLSCert, s.cfg.TLSKey)
		if err != nil {
			ln.Close()
			return fmt.Errorf("load TLS cert: %w", err)
		}
		s.server.TLSConfig = &tls.Config{
			Certificates: []tls.Certificate{cert},
			MinVersion:   tls.VersionTLS12,
		}
	}

	log.Printf("Dashboard listening on %s (tls=%t)", ln.Addr(), useTLS)

	errCh := make(chan error, 1)
	go func() {
		var err error
		if useTLS {
			err = s.server.ServeTLS(ln, "", "")
		} else {
			err = s.server.Serve(ln)
		}
		if err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Println("Dashboard shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.server.Shutdown(shutdownCtx)
	case err := <-errCh:
		s.cancel()
		s.handler.Wait()
		s.closeDB()
		return err
	}

	// Stop in-flight jobs between batches and let them record what they have
	s.cancel()
	s.handler.Wait()
	return s.closeDB()
}
