// Package api exposes regressions over HTTP and a websocket feed.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/NethermindEth/eternal-regression/api/handlers"
	"github.com/NethermindEth/eternal-regression/insights"
	"github.com/NethermindEth/eternal-regression/registry"
)

// NewRouter builds the gin engine with every route installed.
func NewRouter(deps handlers.Deps) *gin.Engine {
	if deps.Registry == nil {
		deps.Registry = registry.New()
	}
	h := handlers.New(deps)
	ins := insights.NewHandler(deps.Registry, deps.Backend, deps.Logger)

	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(deps.Logger))
	SetupRoutes(r, h, ins)
	return r
}

// StartServer serves the API on addr until ctx is cancelled.
func StartServer(ctx context.Context, addr string, deps handlers.Deps) error {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           NewRouter(deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("API server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		logger.Info("shutting down API server")
		return srv.Shutdown(shutdownCtx)
	}
}

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}
