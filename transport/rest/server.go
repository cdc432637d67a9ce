package rest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"

	"github.com/rocketscienceinc/ekkibekki-backend/internal/ekkibekki"
	"github.com/rocketscienceinc/ekkibekki-backend/internal/entity"
	"github.com/rocketscienceinc/ekkibekki-backend/pkg/handlers"
)

type gameManager interface {
	State(ctx context.Context, sessionID string) (ekkibekki.Snapshot, error)
	PlaceBet(ctx context.Context, sessionID string, amount int) (ekkibekki.Snapshot, error)
	PlaceGuess(ctx context.Context, sessionID string, side entity.Side) (ekkibekki.Snapshot, error)
	Deposit(ctx context.Context, sessionID string, amount int) (ekkibekki.Snapshot, error)
	History(ctx context.Context, sessionID string, limit int) ([]*entity.Result, error)
}

type Server struct {
	logger  *slog.Logger
	manager gameManager
	origins []string

	server *http.Server
}

func New(logger *slog.Logger, manager gameManager, allowedOrigins []string) *Server {
	return &Server{
		logger:  logger.With("component", "rest"),
		manager: manager,
		origins: allowedOrigins,
	}
}

// Handler builds the HTTP routes wrapped with CORS.
func (that *Server) Handler() http.Handler {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)
	router.Use(that.logRequests)

	router.Get("/ping", handlers.Ping)
	router.Head("/ping", handlers.Ping)

	router.Route("/api/sessions", func(r chi.Router) {
		r.Post("/", that.createSession)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", that.getSession)
			r.Post("/bet", that.placeBet)
			r.Post("/guess", that.placeGuess)
			r.Post("/deposit", that.deposit)
			r.Get("/history", that.history)
		})
	})

	origins := that.origins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	return cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"*"},
	}).Handler(router)
}

// Start - starts HTTP server and blocks until it is shut down.
func (that *Server) Start(port string) error {
	that.server = &http.Server{
		Addr:         ":" + port,
		Handler:      that.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  30 * time.Second,
	}

	if err := that.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}

func (that *Server) Shutdown(ctx context.Context) error {
	if that.server == nil {
		return nil
	}

	if err := that.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}

	return nil
}

func (that *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		that.logger.Debug("request served",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(started),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
