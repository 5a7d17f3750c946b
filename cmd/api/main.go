package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/manutencao/requisicoes/internal/auth"
	"github.com/manutencao/requisicoes/internal/config"
	"github.com/manutencao/requisicoes/internal/db"
	"github.com/manutencao/requisicoes/internal/events"
	internalhttp "github.com/manutencao/requisicoes/internal/http"
	"github.com/manutencao/requisicoes/internal/maintenance"
	"github.com/manutencao/requisicoes/internal/notification"
	"github.com/manutencao/requisicoes/internal/repo"
	"github.com/manutencao/requisicoes/internal/service"
	"github.com/manutencao/requisicoes/internal/storage"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("api encerrada com erro")
	}
}

func run() error {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	ctx := context.Background()

	if cfg.RunMigrations {
		if err := db.Migrate(cfg.DBDSN); err != nil {
			return fmt.Errorf("migrations: %w", err)
		}
	}

	pool, err := db.NewPool(ctx, cfg.DBDSN)
	if err != nil {
		return fmt.Errorf("db: %w", err)
	}
	defer pool.Close()

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("redis parse: %w", err)
	}
	redisClient := redis.NewClient(redisOpts)
	defer redisClient.Close()

	var publisher events.Publisher = events.NoopPublisher{}
	if cfg.AMQPURL != "" {
		amqpPublisher := events.NewAMQPPublisher(cfg.AMQPURL)
		defer amqpPublisher.Close()
		publisher = amqpPublisher
	} else {
		log.Info().Msg("AMQP_URL vazio; eventos de requisição não serão publicados")
	}

	repository := repo.New(pool)
	jwtManager := auth.NewJWTManager(cfg.JWTSecret, cfg.JWTAccessTTL)
	authService := service.NewAuthService(repository, redisClient, jwtManager)
	rbacService := service.NewRBACService(repository)

	notifications := notification.NewService(notification.NewRepository(pool))
	maintenanceRepo := maintenance.NewRepository(pool)
	requests := maintenance.NewService(
		maintenanceRepo,
		maintenance.NewEngine(cfg.StrictTransitions),
		notifications,
		publisher,
		redisClient,
	)

	deps := internalhttp.Deps{
		Pool:          pool,
		Redis:         redisClient,
		Auth:          authService,
		Profiles:      rbacService,
		Requests:      requests,
		Notifications: notifications,
	}
	blobs, err := newBlobStore(cfg.Storage)
	if err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	if blobs != nil {
		deps.Attachments = maintenance.NewAttachmentService(requests, maintenanceRepo, blobs)
	} else {
		log.Info().Msg("STORAGE_PROVIDER=none; anexos desabilitados")
	}

	handler := internalhttp.NewRouter(cfg, deps)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Bool("strict", cfg.StrictTransitions).Msgf("API ouvindo em :%d", cfg.Port)
		errCh <- srv.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("encerrando...")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func newBlobStore(cfg config.StorageConfig) (maintenance.BlobStore, error) {
	switch cfg.Provider {
	case config.StorageMemory:
		log.Warn().Msg("anexos em memória; o conteúdo se perde ao reiniciar")
		return storage.NewMemory(), nil
	case config.StorageS3:
		s3, err := storage.NewS3(storage.S3Config{
			Endpoint:  cfg.Endpoint,
			Region:    cfg.Region,
			Bucket:    cfg.Bucket,
			AccessKey: cfg.AccessKey,
			SecretKey: cfg.SecretKey,
		})
		if err != nil {
			return nil, err
		}
		return s3, nil
	}
	return nil, nil
}
