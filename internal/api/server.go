package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const shutdownTimeout = 15 * time.Second

// NewRouter registers every route on a fresh gin engine.
func NewRouter(deps Dependencies) *gin.Engine {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(deps.Logger))

	h := &handler{deps: deps}

	r.GET("/healthz", h.healthz)

	v := r.Group("/api")
	v.POST("/analyses", h.createAnalysis)
	v.GET("/analyses/:id", h.getAnalysis)
	v.POST("/analyses/:id/reanalyze", h.reanalyze)
	v.PATCH("/analyses/:id/recruitment-status", h.setRecruitmentStatus)
	v.POST("/roles/:id/analyses/start", h.startForRole)
	v.GET("/roles/:id/stats", h.roleStats)

	return r
}

// Serve runs the HTTP server until ctx is done and then shuts it down gracefully.
func Serve(ctx context.Context, addr string, handler http.Handler, logger *zap.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	logger.Info("http server stopped")
	return nil
}
