package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/rocketscienceinc/ekkibekki-backend/internal/config"
	"github.com/rocketscienceinc/ekkibekki-backend/internal/ekkibekki"
	"github.com/rocketscienceinc/ekkibekki-backend/internal/repository"
	"github.com/rocketscienceinc/ekkibekki-backend/internal/repository/storage"
	natstransport "github.com/rocketscienceinc/ekkibekki-backend/internal/transport/nats"
	"github.com/rocketscienceinc/ekkibekki-backend/internal/usecase"
	"github.com/rocketscienceinc/ekkibekki-backend/transport/rest"
	"github.com/rocketscienceinc/ekkibekki-backend/transport/websocket"
)

const shutdownTimeout = 5 * time.Second

var ErrAddrNotFound = errors.New("redis address string is empty")

// RunApp - runs the application.
func RunApp(logger *slog.Logger, conf *config.Config) error {
	log := logger.With("component", "app")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigs
		log.Info("Received signal, shutting down", "signal", sig)
		cancel()
	}()

	rules := ekkibekki.Rules{
		Countdown:  conf.Game.Countdown,
		ResetDelay: conf.Game.ResetDelay,
		BetOptions: conf.Game.BetOptions,
	}
	if err := rules.Validate(); err != nil {
		return fmt.Errorf("invalid game config: %w", err)
	}

	redisAddrString := conf.Redis.GetRedisAddr()
	if redisAddrString == "" {
		return ErrAddrNotFound
	}

	redisStorage, err := storage.NewRedisStorage(ctx, redisAddrString, conf.Redis.Password, conf.Redis.DB)
	if err != nil {
		return fmt.Errorf("could not connect to redis storage: %w", err)
	}

	defer func() {
		if err = redisStorage.Close(); err != nil {
			log.Error("could not close redis storage", "error", err)
		}
	}()

	sessionRepo := repository.NewSessionRepository(redisStorage.Connection)

	var (
		historyRepo repository.HistoryRepository
		recorders   []ekkibekki.ResultRecorder
	)

	if conf.Postgres.DSN != "" {
		postgresStorage, err := storage.NewPostgresStorage(ctx, conf.Postgres.DSN)
		if err != nil {
			return fmt.Errorf("could not connect to postgres storage: %w", err)
		}
		defer postgresStorage.Close()

		if err = postgresStorage.Init(ctx); err != nil {
			return fmt.Errorf("could not init postgres storage: %w", err)
		}

		historyRepo = repository.NewHistoryRepository(postgresStorage.Connection)
		recorders = append(recorders, historyRepo)

		log.Info("Round history enabled")
	}

	if conf.NATS.URL != "" {
		conn, err := natstransport.Connect(logger, conf.NATS.URL)
		if err != nil {
			return fmt.Errorf("could not connect to nats: %w", err)
		}

		publisher := natstransport.NewPublisher(logger, conn, conf.NATS.Subject)
		defer func() {
			if err := publisher.Close(); err != nil {
				log.Error("could not close nats publisher", "error", err)
			}
		}()

		recorders = append(recorders, publisher)

		log.Info("Round events enabled", "subject", conf.NATS.Subject)
	}

	settings := usecase.Settings{
		Rules:           rules,
		StartingBalance: conf.Game.StartingBalance,
		IdleTimeout:     conf.Game.IdleTimeout,
	}

	gameManager := usecase.NewGameManager(logger, clockwork.NewRealClock(), settings, sessionRepo, historyRepo, recorders...)
	defer gameManager.Shutdown()

	go gameManager.RunJanitor(ctx)

	restServer := rest.New(logger, gameManager, conf.AllowedOrigins)
	wsServer := websocket.New(logger, gameManager, conf.AllowedOrigins)

	// run HTTP server
	httpErrCh := make(chan error, 1)
	go func() {
		log.Info("Starting HTTP server", "port", conf.HTTPPort)
		if httpErr := restServer.Start(conf.HTTPPort); httpErr != nil {
			log.Error("HTTP server error", "error", httpErr)
			httpErrCh <- httpErr
		}
	}()

	// run Websocket server
	wsErrCh := make(chan error, 1)
	go func() {
		log.Info("Starting WebSocket server", "port", conf.SocketPort)
		if wsErr := wsServer.Start(conf.SocketPort); wsErr != nil {
			log.Error("WebSocket server error", "error", wsErr)
			wsErrCh <- wsErr
		}
	}()

	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()

		if err := restServer.Shutdown(shutdownCtx); err != nil {
			log.Error("could not shutdown HTTP server", "error", err)
		}

		if err := wsServer.Shutdown(shutdownCtx); err != nil {
			log.Error("could not shutdown WebSocket server", "error", err)
		}
	}()

	select {
	case err = <-httpErrCh:
		return fmt.Errorf("HTTP server error: %w", err)
	case err = <-wsErrCh:
		return fmt.Errorf("WebSocket server error: %w", err)
	case <-ctx.Done():
		log.Info("Application context canceled, shutting down")
		return nil
	}
}
