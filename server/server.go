package server

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/pragma-labs/feed-relayer/calldata"
	"github.com/pragma-labs/feed-relayer/log"
	"github.com/pragma-labs/feed-relayer/pubsub"
	"github.com/pragma-labs/feed-relayer/store"
)

const shutdownTimeout = 10 * time.Second

type APIServer struct {
	storage     *store.Storage
	builder     *calldata.Builder
	broadcaster pubsub.Broadcaster
	hub         *pubsub.Hub
	handler     http.Handler
}

// NewAPIServer serves the correlated state. hub may be nil, which disables
// the calldata stream.
func NewAPIServer(storage *store.Storage, builder *calldata.Builder, broadcaster pubsub.Broadcaster, hub *pubsub.Hub) *APIServer {
	srv := &APIServer{
		storage:     storage,
		builder:     builder,
		broadcaster: broadcaster,
		hub:         hub,
	}
	srv.handler = otelhttp.NewHandler(srv.buildRouter(), "frly.api")
	return srv
}

func (srv *APIServer) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(logRequests)

	r.Get("/healthz", srv.Healthz)
	r.Get("/readiness", srv.Readiness)

	r.Route("/v1", func(v1 chi.Router) {
		v1.Get("/chains", srv.Chains)
		v1.Get("/feeds", srv.Feeds)
		v1.Get("/validators", srv.Validators)
		v1.Route("/calldata/{chain}", func(cd chi.Router) {
			cd.Get("/stream", srv.StreamCalldata)
			cd.Get("/{feed_id}", srv.GetCalldata)
		})
	})
	return r
}

func (srv *APIServer) Handler() http.Handler {
	return srv.handler
}

// Start serves on listenAddress until ctx is done.
func (srv *APIServer) Start(ctx context.Context, listenAddress string) error {
	logger := log.GetLogger().WithModule("server")
	hs := &http.Server{
		Addr:              listenAddress,
		Handler:           srv.handler,
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("API server listening", "address", listenAddress)
		errCh <- hs.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return errors.Wrap(err, "API server failed")
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := hs.Shutdown(shutdownCtx); err != nil {
			return errors.Wrap(err, "failed to shutdown the API server")
		}
		return ctx.Err()
	}
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		started := time.Now()
		next.ServeHTTP(ww, r)
		log.GetLogger().WithModule("server").DebugContext(r.Context(), "request served",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(started),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
