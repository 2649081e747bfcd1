package application

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/minetick/ticket-store/internal/config"
	"github.com/minetick/ticket-store/internal/events"
	"github.com/minetick/ticket-store/internal/handler"
	"github.com/minetick/ticket-store/internal/logger"
	"github.com/minetick/ticket-store/internal/router"
	"github.com/minetick/ticket-store/internal/service"
	"github.com/minetick/ticket-store/internal/storage"
	"github.com/minetick/ticket-store/internal/storage/memory"
	"github.com/minetick/ticket-store/internal/storage/postgres"
	"github.com/minetick/ticket-store/internal/storage/sqlite"
)

// Builders wires one constructor per backend from the loaded config. Both the
// API and the migrate command build stores through here so a backend is
// configured identically no matter who opens it.
func Builders(cfg *config.Config, log *zap.Logger) storage.Builders {
	return storage.Builders{
		Memory: func() (storage.Store, error) {
			return memory.New(cfg.SnapshotPath(), cfg.MemoryBackupSeconds, log), nil
		},
		SQLite: func() (storage.Store, error) {
			return sqlite.New(cfg.SQLitePath(), log), nil
		},
		CachedSQLite: func() (storage.Store, error) {
			return sqlite.NewCached(cfg.SQLitePath(), log), nil
		},
		Postgres: func() (storage.Store, error) {
			return postgres.New(cfg.DSN(), cfg.DatabaseURL(), log), nil
		},
	}
}

// OpenStore builds and initializes the backend the config selects.
func OpenStore(ctx context.Context, cfg *config.Config, log *zap.Logger) (storage.Store, error) {
	t, err := storage.ParseType(cfg.StorageType)
	if err != nil {
		return nil, err
	}
	if t == storage.TypeMemory || t == storage.TypeSQLite || t == storage.TypeCachedSQLite {
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			return nil, fmt.Errorf("data dir: %w", err)
		}
	}
	store, err := Builders(cfg, log).Build(t)
	if err != nil {
		return nil, err
	}
	if err := store.Initialize(ctx); err != nil {
		return nil, fmt.Errorf("initialize %s store: %w", t, err)
	}
	return store, nil
}

// API is the HTTP application.
type API struct {
	cfg      *config.Config
	log      *zap.Logger
	store    storage.Store
	producer *events.Producer
	httpSrv  *http.Server
}

func NewAPI(ctx context.Context, cfg *config.Config) (*API, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	log, err := logger.New(cfg.AppEnv, cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}

	store, err := OpenStore(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	producer := events.NewProducer(events.ParseBrokers(cfg.KafkaBrokers), cfg.KafkaTopic, log)
	ticketSvc := service.NewTicketService(store, producer, cfg.PageSize, log)
	ticketHandler := handler.NewTicketHandler(ticketSvc)

	httpSrv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router.New(ticketHandler),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return &API{
		cfg:      cfg,
		log:      log,
		store:    store,
		producer: producer,
		httpSrv:  httpSrv,
	}, nil
}

// Run serves HTTP until ctx is cancelled, then shuts down in dependency
// order: server first, then the event producer, the store last so every
// in-flight write still reaches it.
func (a *API) Run(ctx context.Context) error {
	a.log.Info("http server listening",
		zap.String("addr", a.httpSrv.Addr),
		zap.String("storage", a.cfg.StorageType))

	errCh := make(chan error, 1)
	go func() {
		if err := a.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := a.httpSrv.Shutdown(shutdownCtx); err != nil {
		a.log.Warn("http shutdown", zap.Error(err))
	}
	if err := a.producer.Close(); err != nil {
		a.log.Warn("producer close", zap.Error(err))
	}
	if err := a.store.Close(shutdownCtx); err != nil {
		return fmt.Errorf("store close: %w", err)
	}
	a.log.Info("shutdown complete")
	return nil
}
