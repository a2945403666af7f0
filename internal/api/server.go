package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/net/netutil"
)

type ServerConfig struct {
	Addr            string
	MaxConnections  int
	ShutdownTimeout time.Duration
}

// Serve runs the server until ctx is done, then shuts it down gracefully.
// onShutdown hooks run when shutdown starts; hijacked websocket
// connections are not closed by the server itself.
func Serve(ctx context.Context, cfg ServerConfig, handler http.Handler, logger zerolog.Logger, onShutdown ...func()) error {
	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.Addr, err)
	}
	return serveListener(ctx, ln, cfg, handler, logger, onShutdown...)
}

func serveListener(ctx context.Context, ln net.Listener, cfg ServerConfig, handler http.Handler, logger zerolog.Logger, onShutdown ...func()) error {
	if cfg.MaxConnections > 0 {
		ln = netutil.LimitListener(ln, cfg.MaxConnections)
	}

	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	for _, fn := range onShutdown {
		srv.RegisterOnShutdown(fn)
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", ln.Addr().String()).Int("max_connections", cfg.MaxConnections).Msg("api server listening")
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down api server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
