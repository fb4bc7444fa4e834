// Package gateway implements the HTTP surface: health, contract echo, file
// upload/list/download, job submission, status, and cancellation. Every
// non-public route requires a constant-time-compared API key.
package gateway

import (
	"context"
	"net/http"
	"time"

	"github.com/comfyendpoints/runtime/internal/domain"
	"github.com/comfyendpoints/runtime/internal/engineclient"
	"github.com/comfyendpoints/runtime/internal/executor"
	"github.com/comfyendpoints/runtime/internal/filestore"
	"github.com/comfyendpoints/runtime/internal/logging"
	"github.com/comfyendpoints/runtime/internal/metrics"
	"github.com/comfyendpoints/runtime/internal/observability"
)

// Config bundles a Gateway's dependencies and the per-app secret guarding
// every non-public route.
type Config struct {
	Store          *filestore.Store
	Exec           *executor.Executor
	Engine         *engineclient.Client
	Contract       *domain.WorkflowContract
	APIKey         string
	AppID          string
	Metrics        *metrics.Registry
	TracingEnabled bool
}

// Gateway is the assembled HTTP handler plus its dependencies.
type Gateway struct {
	cfg Config
}

// New builds a Gateway from cfg.
func New(cfg Config) *Gateway {
	return &Gateway{cfg: cfg}
}

// Handler assembles the route table and middleware chain: tracing-adjacent
// request logging, then API-key auth for every non-public route.
func (g *Gateway) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", g.handleHealthz)
	mux.HandleFunc("GET /contract", g.requireAuth(g.handleContract))
	mux.HandleFunc("POST /files", g.requireAuth(g.handleCreateFile))
	mux.HandleFunc("GET /files", g.requireAuth(g.handleListFiles))
	mux.HandleFunc("GET /files/{id}", g.requireAuth(g.handleGetFile))
	mux.HandleFunc("GET /files/{id}/download", g.requireAuth(g.handleDownloadFile))
	mux.HandleFunc("POST /run", g.requireAuth(g.handleRun))
	mux.HandleFunc("GET /jobs/{id}", g.requireAuth(g.handleGetJob))
	mux.HandleFunc("POST /jobs/{id}/cancel", g.requireAuth(g.handleCancelJob))

	if g.cfg.Metrics != nil {
		mux.Handle("GET /metrics", g.cfg.Metrics.Handler())
	}

	var handler http.Handler = mux
	handler = g.requestLogMiddleware(handler)
	if g.cfg.Metrics != nil {
		handler = g.cfg.Metrics.HTTPMiddleware(handler)
	}
	if g.cfg.TracingEnabled {
		handler = observability.HTTPMiddleware(handler)
	}
	return handler
}

// Serve starts an http.Server bound to addr and blocks until ctx is
// canceled, then shuts down gracefully.
func (g *Gateway) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: g.Handler()}

	errCh := make(chan error, 1)
	go func() {
		logging.Op().Info("gateway listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (g *Gateway) requestLogMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		logging.Op().Debug("request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}
