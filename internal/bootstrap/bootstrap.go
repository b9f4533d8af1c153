// Package bootstrap provides dependency initialization for the API
// server and the worker.
package bootstrap

import (
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/pdtx/mediagen-api/internal/config"
	"github.com/pdtx/mediagen-api/internal/credentials"
	"github.com/pdtx/mediagen-api/internal/executor"
	"github.com/pdtx/mediagen-api/internal/generator"
	"github.com/pdtx/mediagen-api/internal/job"
	"github.com/pdtx/mediagen-api/internal/mcp"
	"github.com/pdtx/mediagen-api/internal/notify"
	"github.com/pdtx/mediagen-api/internal/queue"
	"github.com/pdtx/mediagen-api/internal/storage"
)

// ServerDependencies holds the initialized dependencies for the HTTP
// server process.
type ServerDependencies struct {
	Service *job.Service
	Hub     *notify.Hub
	Relay   *notify.Relay
	Gateway *mcp.Gateway
	Redis   *redis.Client
}

// WorkerDependencies holds the initialized dependencies for the worker
// process.
type WorkerDependencies struct {
	Executor *executor.Executor
	Redis    *redis.Client
}

func newRedisClient(cfg *config.Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
}

// newService wires the shared pieces both processes use: the Redis
// repository, the task queue, the credential resolver, and the
// cross-process event publisher.
func newService(cfg *config.Config, client *redis.Client, logger *slog.Logger, extra ...job.Option) *job.Service {
	repo := job.NewRedisRepository(client)
	taskQueue := queue.NewRedisQueue(client, cfg.QueueVisibilityTimeout)
	resolver := credentials.NewResolver(cfg.CredentialDefaults())
	publisher := notify.NewRedisPublisher(client)

	opts := append([]job.Option{
		job.WithQueue(taskQueue),
		job.WithResolver(resolver),
		job.WithPublisher(publisher),
		job.WithWaitBound(cfg.LongPollTimeout),
	}, extra...)
	return job.NewService(repo, logger, opts...)
}

// NewServerDependencies creates and initializes everything the HTTP
// server needs. The caller is responsible for running Hub.Run and
// Relay.Run and for closing the Redis client on shutdown.
func NewServerDependencies(cfg *config.Config, logger *slog.Logger) (*ServerDependencies, error) {
	client := newRedisClient(cfg)

	hub := notify.NewHub(cfg.KeepAliveInterval)
	relay := notify.NewRelay(client, hub, logger)

	svc := newService(cfg, client, logger,
		job.WithNotifier(notify.JobWatcher{Hub: hub}),
	)
	gateway := mcp.NewGateway(svc, logger)

	return &ServerDependencies{
		Service: svc,
		Hub:     hub,
		Relay:   relay,
		Gateway: gateway,
		Redis:   client,
	}, nil
}

// NewWorkerDependencies creates and initializes everything the worker
// needs. The caller is responsible for running the executor and for
// closing the Redis client on shutdown.
func NewWorkerDependencies(cfg *config.Config, logger *slog.Logger) (*WorkerDependencies, error) {
	client := newRedisClient(cfg)

	store, err := initStorage(cfg, logger)
	if err != nil {
		return nil, err
	}

	svc := newService(cfg, client, logger)
	pipeline := generator.NewPipeline(store, logger,
		generator.WithStepDelay(cfg.GeneratorStepDelay),
	)
	taskQueue := queue.NewRedisQueue(client, cfg.QueueVisibilityTimeout)

	exec := executor.New(svc, taskQueue, pipeline, logger,
		executor.WithWorkers(cfg.WorkerCount),
		executor.WithPollInterval(cfg.WorkerPollInterval),
	)

	return &WorkerDependencies{
		Executor: exec,
		Redis:    client,
	}, nil
}

// initStorage creates the appropriate artifact store based on configuration.
func initStorage(cfg *config.Config, logger *slog.Logger) (storage.Store, error) {
	if cfg.S3Enabled() {
		s3Store, err := storage.NewS3Store(storage.S3Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
		})
		if err != nil {
			return nil, fmt.Errorf("create S3 artifact store: %w", err)
		}
		logger.Info("S3 artifact store configured",
			slog.String("bucket", cfg.S3Bucket),
			slog.String("region", cfg.S3Region),
		)
		return s3Store, nil
	}

	localStore, err := storage.NewLocalStore(cfg.ArtifactDir)
	if err != nil {
		return nil, fmt.Errorf("create local artifact store: %w", err)
	}
	logger.Info("local artifact store configured",
		slog.String("artifact_dir", cfg.ArtifactDir),
	)
	return localStore, nil
}
