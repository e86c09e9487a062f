// Package httpserver builds the chi router of the scan API and runs it until
// its context is cancelled.
package httpserver

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"gradescan/api/internal/handle"
)

type Options struct {
	RequestTimeout time.Duration
	// MaxBodyBytes bounds request bodies; 0 means no limit.
	MaxBodyBytes int64
	Log          zerolog.Logger
}

func NewRouter(h *handle.Handle, opts Options) chi.Router {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(requestLogger(opts.Log))
	r.Use(chimiddleware.Recoverer)
	if opts.RequestTimeout > 0 {
		r.Use(chimiddleware.Timeout(opts.RequestTimeout))
	}
	if opts.MaxBodyBytes > 0 {
		r.Use(chimiddleware.RequestSize(opts.MaxBodyBytes))
	}

	r.Get("/healthz", h.Healthz)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/scan", h.Scan)
		r.Post("/parse/inspect", h.Inspect)
		r.Post("/validate", h.Validate)
		r.Post("/save", h.Save)

		r.Route("/suggestions", func(r chi.Router) {
			r.Post("/", h.Suggestions)
			r.Post("/apply", h.ApplySuggestions)
		})
		r.Route("/history", func(r chi.Router) {
			r.Get("/", h.History)
			r.Delete("/", h.ClearHistory)
		})
		r.Get("/rankings", h.Rankings)
	})

	return r
}

func requestLogger(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)

			ev := log.Info()
			if ww.Status() >= http.StatusInternalServerError {
				ev = log.Error()
			}
			ev.Str("request_id", chimiddleware.GetReqID(r.Context())).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", time.Since(start)).
				Msg("http request")
		})
	}
}

type ServerConfig struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// Run serves handler until ctx is done, then shuts down gracefully.
func Run(ctx context.Context, cfg ServerConfig, handler http.Handler, log zerolog.Logger) error {
	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return err
	}
	return Serve(ctx, ln, cfg, handler, log)
}

func Serve(ctx context.Context, ln net.Listener, cfg ServerConfig, handler http.Handler, log zerolog.Logger) error {
	srv := &http.Server{
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	errc := make(chan error, 1)
	go func() {
		log.Info().Str("addr", ln.Addr().String()).Msg("HTTP server listening")
		errc <- srv.Serve(ln)
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	timeout := cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	sctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := srv.Shutdown(sctx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
		_ = srv.Close()
		return err
	}
	log.Info().Msg("server stopped")
	return nil
}
