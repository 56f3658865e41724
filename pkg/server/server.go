package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/NYTimes/gziphandler"
	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/levenlabs/go-lflag"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/solarpull/solarpull/pkg/log"
	"github.com/solarpull/solarpull/pkg/types"
)

// Assembler builds the device blocks for a site and range.
type Assembler interface {
	Assemble(ctx context.Context, site types.Site, start, end time.Time, g types.Granularity) ([]types.DeviceBlock, error)
}

// Collector stores a site's data for a range.
type Collector interface {
	CollectSite(ctx context.Context, site types.Site, start, end time.Time, intervalMinutes int) error
}

// Sites resolves site ids from the registry.
type Sites interface {
	Get(id string) (types.Site, error)
}

// tokenVerifier validates a Google ID token.
type tokenVerifier func(ctx context.Context, rawIDToken string) (*oidc.IDToken, error)

// Server exposes collection triggers, read-only production queries and the
// process metrics over HTTP.
type Server struct {
	assembler Assembler
	collector Collector
	sites     Sites
	gatherer  prometheus.Gatherer

	listenAddr string
	httpServer *http.Server

	collectEmails []string
	oidcVerifier  tokenVerifier
	bypassAuth    bool
	serverName    string
	now           func() time.Time
}

// Configured initializes the Server with dependencies.
// It uses lflag to register command-line flags for configuration.
func Configured(a Assembler, c Collector, sites Sites, g prometheus.Gatherer) *Server {
	srv := &Server{
		assembler:  a,
		collector:  c,
		sites:      sites,
		gatherer:   g,
		serverName: "solarpull",
		now:        time.Now,
	}
	revision := os.Getenv("K_REVISION")
	if revision != "" {
		srv.serverName = revision
	}

	// get the port from PORT when running in cloud run
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	listenAddr := lflag.String("http-listen", ":"+port, "HTTP server listen address")
	collectAudience := lflag.String("collect-audience", "", "audience to validate on ID tokens sent to /api/collect")
	collectEmails := lflag.String("collect-emails", "", "comma-delimited list of token emails allowed to call /api/collect")
	bypassAuth := lflag.Bool("bypass-auth", false, "Skip authentication on /api/collect (local development only)")

	lflag.Do(func() {
		srv.listenAddr = *listenAddr
		srv.bypassAuth = *bypassAuth
		if *collectEmails != "" {
			for _, email := range strings.Split(*collectEmails, ",") {
				if email = strings.TrimSpace(email); email != "" {
					srv.collectEmails = append(srv.collectEmails, email)
				}
			}
		}
		if *collectAudience != "" {
			provider, err := oidc.NewProvider(context.Background(), "https://accounts.google.com")
			if err != nil {
				log.Ctx(context.Background()).Error("failed to initialize Google OIDC provider", slog.Any("error", err))
				os.Exit(1)
			}
			srv.oidcVerifier = provider.Verifier(&oidc.Config{ClientID: *collectAudience}).Verify
		} else if !srv.bypassAuth {
			log.Ctx(context.Background()).Warn("no collect-audience set, /api/collect will reject every request")
		}
	})

	return srv
}

func (s *Server) setupHandler() http.Handler {
	apiMux := http.NewServeMux()
	apiMux.Handle("POST /api/collect", s.authMiddleware(http.HandlerFunc(s.handleCollect)))
	apiMux.HandleFunc("GET /api/production", s.handleProduction)

	mux := http.NewServeMux()
	mux.Handle("/api/", s.requestLogMiddleware(apiMux))
	if s.gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	mux.HandleFunc("/healthz", s.handleHealthz)
	return s.revisionMiddleware(gziphandler.GzipHandler(mux))
}

// Run starts the HTTP server and blocks until the context is canceled or an error occurs.
// It also handles graceful shutdown when the context is done.
func (s *Server) Run(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:        s.listenAddr,
		Handler:     s.setupHandler(),
		ReadTimeout: 15 * time.Second,
		// collections walk many portal windows at the rate limit
		WriteTimeout: 30 * time.Minute,
		IdleTimeout:  15 * time.Second,
	}

	// use a channel to capturing server errors
	errChan := make(chan error, 1)
	go func() {
		defer close(errChan)
		log.Ctx(ctx).InfoContext(ctx, "starting server", slog.String("addr", s.listenAddr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Ctx(ctx).InfoContext(ctx, "shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return nil
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		panic(http.ErrAbortHandler)
	}
}

func writeJSONError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(struct {
		Error string `json:"error"`
	}{Error: msg}); err != nil {
		slog.Warn("failed to write error response", slog.Any("error", err))
		panic(http.ErrAbortHandler)
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("ok")); err != nil {
		panic(http.ErrAbortHandler)
	}
}

func (s *Server) requestLogMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		ctx = log.With(ctx, log.Ctx(ctx).With(slog.String("reqPath", r.URL.Path)))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) revisionMiddleware(next http.Handler) http.Handler {
	if s.serverName == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Server", s.serverName)
		next.ServeHTTP(w, r)
	})
}
