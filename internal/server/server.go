package server

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gkobilansky/cashloop/internal/abtest"
	"github.com/gkobilansky/cashloop/internal/config"
	"github.com/gkobilansky/cashloop/internal/engine"
	"github.com/gkobilansky/cashloop/internal/logger"
	"github.com/gkobilansky/cashloop/internal/optimizer"
	"github.com/gkobilansky/cashloop/internal/store"
	"github.com/gkobilansky/cashloop/internal/trends"
)

// Deps are the components the API exposes.
type Deps struct {
	Store     store.Store
	AB        *abtest.Controller
	Ranker    *trends.Ranker
	Optimizer *optimizer.Optimizer
	Engine    *engine.Engine
	Config    config.Config
	Logger    *logger.Logger
}

type Server struct {
	deps      Deps
	log       *logger.Logger
	port      int
	token     string
	tokenFile string
	router    chi.Router
	startTime time.Time
}

// New builds the API. An empty token gets a random one.
func New(deps Deps, port int, token, tokenFile string) *Server {
	if token == "" {
		token = generateToken()
	}
	srv := &Server{
		deps:      deps,
		log:       logger.OrNop(deps.Logger).With("component", "server"),
		port:      port,
		token:     token,
		tokenFile: tokenFile,
		router:    chi.NewRouter(),
		startTime: time.Now(),
	}

	srv.setupRoutes()
	return srv
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Recoverer)

	s.router.Get("/health", s.handleHealth)
	s.router.Handle("/metrics", promhttp.Handler())

	s.router.Route("/api", func(r chi.Router) {
		r.Route("/tests", func(r chi.Router) {
			r.Get("/", s.handleListTests)
			r.With(s.authMiddleware).Post("/", s.handleCreateTest)

			r.Route("/{testID}", func(r chi.Router) {
				r.Get("/", s.handleGetTest)
				r.Get("/results", s.handleResults)

				r.Group(func(r chi.Router) {
					r.Use(s.authMiddleware)
					r.Post("/impressions", s.handleImpression)
					r.Post("/conversions", s.handleConversion)
					r.Post("/apply", s.handleApply)
				})
			})
		})

		r.Get("/trends", s.handleTopTrends)
		r.With(s.authMiddleware).Post("/trends", s.handleIngestTrend)
		r.Get("/topics", s.handleTopics)

		r.Get("/templates/underperforming", s.handleUnderperforming)
		r.Get("/templates/{templateID}/performance", s.handlePerformance)

		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)
			r.Post("/products", s.handleAddProduct)
			r.Post("/products/{productID}/sales", s.handleSale)
			r.Post("/sweep", s.handleSweep)
		})
	})
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	if s.tokenFile != "" {
		if err := os.WriteFile(s.tokenFile, []byte(s.token), 0600); err != nil {
			s.log.Warn("Failed to write token file", "path", s.tokenFile, "error", err)
		}
	}

	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("API listening", "port", s.port)
		errCh <- httpSrv.ListenAndServe()
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
		return httpSrv.Shutdown(shutdownCtx)
	}
}

func (s *Server) Token() string {
	return s.token
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func generateToken() string {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		panic(fmt.Sprintf("crypto/rand failed: %v", err))
	}
	return hex.EncodeToString(bytes)
}
