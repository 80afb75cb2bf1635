package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/medrec/medrec/internal/config"
	"github.com/medrec/medrec/internal/domain/account"
	"github.com/medrec/medrec/internal/domain/encounter"
	"github.com/medrec/medrec/internal/domain/patient"
	"github.com/medrec/medrec/internal/platform/auth"
	"github.com/medrec/medrec/internal/platform/blobstore"
	"github.com/medrec/medrec/internal/platform/events"
	"github.com/medrec/medrec/internal/platform/livefeed"
	"github.com/medrec/medrec/internal/platform/telemetry"
	"github.com/medrec/medrec/internal/store"
)

// app holds the long-lived dependencies shared by the subcommands.
type app struct {
	cfg         *config.Config
	logger      zerolog.Logger
	repos       *store.Repos
	blobs       blobstore.BlobStore
	publisher   events.Publisher
	live        *livefeed.Hub
	revocations auth.RevocationStore
	issuer      *auth.Issuer

	patients   *patient.Service
	encounters *encounter.Service
	accounts   *account.Service

	closers []func() error
}

func newLogger(env string) zerolog.Logger {
	if env == "development" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func loadConfig() (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	logger := newLogger(cfg.Env)
	if err := cfg.Validate(); err != nil {
		return nil, logger, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, logger, nil
}

// openApp connects the store and the configured backends.
func openApp(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	repos, err := store.Open(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	a.repos = repos
	a.closers = append(a.closers, func() error { repos.Close(); return nil })
	logger.Info().Str("driver", repos.Driver).Msg("store ready")

	switch cfg.BlobBackend {
	case config.BlobS3:
		s3, err := blobstore.NewS3Store(ctx, cfg.S3Bucket, cfg.S3Endpoint, cfg.S3Prefix)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("s3 blob store: %w", err)
		}
		a.blobs = s3
	default:
		a.blobs = blobstore.NewInMemoryBlobStore()
	}

	var backend events.Publisher
	switch cfg.EventsBackend {
	case config.EventsKafka:
		backend = events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
	case config.EventsSQS:
		pub, err := events.NewSQSPublisher(ctx, cfg.SQSQueue)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("sqs publisher: %w", err)
		}
		backend = pub
	default:
		backend = events.NewLogPublisher(logger)
	}
	a.live = livefeed.NewHub(logger)
	a.publisher = events.Fanout{backend, a.live}
	a.closers = append(a.closers, a.publisher.Close)

	if cfg.RedisURL != "" {
		rs, err := auth.NewRedisRevocationStore(ctx, cfg.RedisURL)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("redis revocation store: %w", err)
		}
		a.revocations = rs
		a.closers = append(a.closers, rs.Close)
	} else {
		ms := auth.NewMemoryRevocationStore()
		a.revocations = ms
		a.closers = append(a.closers, ms.Close)
	}

	shutdownTracing, err := telemetry.Init(ctx, telemetry.Config{
		Enabled:     cfg.OTelEnabled,
		ServiceName: "medrec",
		Version:     version,
		Environment: cfg.Env,
		Endpoint:    cfg.OTelEndpoint,
		Insecure:    cfg.OTelInsecure,
		SampleRatio: cfg.OTelSampler,
	}, logger)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("tracing: %w", err)
	}
	a.closers = append(a.closers, func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return shutdownTracing(ctx)
	})

	a.issuer = auth.NewIssuer([]byte(cfg.JWTSecret), cfg.JWTTTL)
	a.wire()
	return a, nil
}

// wire builds the domain services from the dependencies already set on a.
func (a *app) wire() {
	emitter := events.NewEmitter(a.publisher, a.logger)
	a.patients = patient.NewService(a.repos.Patients)
	a.encounters = encounter.NewService(a.repos.Encounters, a.patients, a.blobs, emitter)
	a.accounts = account.NewService(a.repos.Accounts, a.issuer, a.revocations, a.cfg.BcryptCost)
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn().Err(err).Msg("close")
		}
	}
	a.closers = nil
}
