package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	config "github.com/DRSN-tech/media-search/internal/cfg"
	v1Grpc "github.com/DRSN-tech/media-search/internal/delivery/v1/grpc"
	v1Http "github.com/DRSN-tech/media-search/internal/delivery/v1/http"
	"github.com/DRSN-tech/media-search/internal/infrastructure/embedder"
	"github.com/DRSN-tech/media-search/internal/infrastructure/kafka"
	"github.com/DRSN-tech/media-search/internal/infrastructure/media"
	storageInfra "github.com/DRSN-tech/media-search/internal/infrastructure/storage"
	"github.com/DRSN-tech/media-search/internal/infrastructure/urlsigner"
	chromemRepo "github.com/DRSN-tech/media-search/internal/repository/chromem"
	gcsRepo "github.com/DRSN-tech/media-search/internal/repository/gcs"
	s3Repo "github.com/DRSN-tech/media-search/internal/repository/minio"
	"github.com/DRSN-tech/media-search/internal/repository/pgdb"
	pgdbConv "github.com/DRSN-tech/media-search/internal/repository/pgdb/converter"
	qdrantRepo "github.com/DRSN-tech/media-search/internal/repository/qdrant"
	"github.com/DRSN-tech/media-search/internal/repository/redis"
	redisConv "github.com/DRSN-tech/media-search/internal/repository/redis/converter"
	"github.com/DRSN-tech/media-search/internal/usecase"
	"github.com/DRSN-tech/media-search/pkg/clients"
	"github.com/DRSN-tech/media-search/pkg/closer"
	"github.com/DRSN-tech/media-search/pkg/e"
	"github.com/DRSN-tech/media-search/pkg/logger"
	"github.com/DRSN-tech/media-search/pkg/postgres"
	"github.com/DRSN-tech/media-search/pkg/tr"
	"github.com/go-chi/chi/v5"
	"github.com/jimlawless/whereami"
)

const (
	initTimeout     = 10 * time.Second
	shutdownTimeout = 15 * time.Second
	topicTimeout    = 10 * time.Second
)

// App собирает зависимости сервиса и управляет его жизненным циклом.
type App struct {
	cfg    *config.Config
	logger logger.Logger
	closer *closer.Closer

	// bgCtx отменяется при остановке и прерывает фоновые задачи
	bgCtx    context.Context
	bgCancel context.CancelFunc

	httpSrv *v1Http.Server
	grpcSrv *v1Grpc.GRPCServer
	worker  *kafka.OutboxWorker
}

func NewApp(cfg *config.Config, log logger.Logger) (_ *App, err error) {
	bgCtx, bgCancel := context.WithCancel(context.Background())
	app := &App{
		cfg:      cfg,
		logger:   log,
		closer:   closer.NewCloser(0),
		bgCtx:    bgCtx,
		bgCancel: bgCancel,
	}
	defer func() {
		if err != nil {
			bgCancel()
			if closeErr := app.closer.Close(context.Background()); closeErr != nil {
				log.Errorf(closeErr, "failed to release resources after init error")
			}
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), initTimeout)
	defer cancel()

	db, err := initPGDB(ctx, log, cfg)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}
	app.closer.Add("postgres", db.Close)

	txManager := tr.NewManager(db.Pool)
	productRepo := pgdb.NewProductRepo(db.Pool, pgdbConv.NewProductConverterImpl())
	assetRepo := pgdb.NewAssetRepo(db.Pool, pgdbConv.NewAssetConverterImpl())
	outboxRepo := pgdb.NewOutboxEventRepo(db.Pool, pgdbConv.NewOutboxEventConverterImpl())

	store, err := app.initObjectStore(ctx)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	checks := map[string]v1Http.HealthCheck{"postgres": db.Ping}

	index, err := app.initVectorIndex(ctx, db, checks)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	redisClient := clients.NewRedisClient(cfg.Redis)
	if err := redisClient.Ping(ctx); err != nil {
		_ = redisClient.Close()
		return nil, e.Wrap("failed to connect to redis", err)
	}
	app.closer.AddErr("redis", redisClient.Close)
	checks["redis"] = redisClient.Ping
	cacheRepo := redis.NewCacheRepo(redisClient, redisConv.NewProductInfoConverterImpl(), cfg.Redis, log)

	embedderClient := embedder.NewClient(cfg.Embedder, log)

	urls := urlsigner.NewManager(store, urlsigner.Options{
		DefaultTTL:   cfg.URL.DefaultTTL,
		MaxTTL:       cfg.URL.MaxTTL,
		ExpiryBuffer: cfg.URL.ExpiryBuffer,
		MintTimeout:  cfg.URL.MintTimeout,
		Concurrency:  cfg.URL.RefreshConcurrent,
	}, log)

	preprocessor := media.NewPreprocessor(media.Options{
		MaxDimension: cfg.Media.MaxDimension,
		JPEGQuality:  cfg.Media.JPEGQuality,
		MaxPixels:    cfg.Media.MaxPixels,
	}, log)

	cleanup := storageInfra.NewCleanupInfra(store, cfg.Storage.CleanupLimit, log, bgCtx)

	searchUC := usecase.NewSearchUC(
		index,
		urls,
		productRepo,
		cacheRepo,
		embedderClient,
		usecase.SearchParams{
			Dimension:     cfg.Index.VectorSize,
			DefaultLimit:  cfg.Search.DefaultLimit,
			MaxLimit:      cfg.Search.MaxLimit,
			QueryTimeout:  cfg.Search.QueryTimeout,
			MinSimilarity: cfg.Search.MinSimilarity,
			FallbackSize:  cfg.Search.FallbackSize,
			PreviewTTL:    cfg.URL.SearchTTL,
		},
		log,
	)

	mediaUC := usecase.NewMediaUC(
		productRepo,
		assetRepo,
		outboxRepo,
		cacheRepo,
		store,
		cleanup,
		index,
		preprocessor,
		embedderClient,
		urls,
		kafka.NewEventCodec(),
		txManager,
		usecase.MediaParams{
			Dimension:       cfg.Index.VectorSize,
			Mode:            usecase.PrepareMode(cfg.Media.Mode),
			MaxUploadBytes:  cfg.Media.MaxUploadBytes,
			URLTTL:          cfg.URL.DefaultTTL,
			MaxRefreshBatch: cfg.URL.RefreshBatchLimit,
			BackgroundLimit: cfg.Embedder.MaxConcurrent,
			EmbedTimeout:    cfg.Embedder.Timeout * time.Duration(max(cfg.Embedder.MaxRetries, 1)+1),
		},
		log,
	)
	app.closer.Add("storage cleanup", cleanup.WaitForCleanup)
	app.closer.Add("background indexing", mediaUC.WaitForBackground)

	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(log, cfg.Kafka)
		if err := producer.EnsureTopic(topicTimeout); err != nil {
			log.Warnf("failed to ensure kafka topic %s: %v", cfg.Kafka.Topic, err)
		}
		app.closer.AddErr("kafka producer", producer.Close)

		app.worker = kafka.NewOutboxWorker(outboxRepo, log, producer, postgres.DSN(cfg.Db))
		app.closer.Add("outbox worker", func(context.Context) error {
			app.worker.Stop()
			return nil
		})
	} else {
		log.Warnf("KAFKA_BROKERS is empty, asset events stay in the outbox")
	}

	app.grpcSrv = v1Grpc.NewGRPCServer(cfg.Grpc, log)
	app.grpcSrv.RegisterServices(searchUC, mediaUC)
	app.closer.Add("grpc server", app.grpcSrv.Stop)

	r := chi.NewRouter()
	v1Http.NewRouter(r, log).Init(searchUC, mediaUC, cfg.Media.MaxUploadBytes, checks)
	app.httpSrv = v1Http.NewServer(r, cfg.Http, log)
	app.closer.Add("http server", app.httpSrv.Stop)

	return app, nil
}

// Run запускает серверы и блокируется до сигнала остановки или фатальной ошибки сервера.
func (a *App) Run() error {
	if a.worker != nil {
		a.worker.Start(a.bgCtx)
	}

	errCh := make(chan error, 2)
	go func() {
		a.logger.Infof("gRPC server starting on %s:%s", a.cfg.Grpc.NetworkMode, a.cfg.Grpc.Port)
		if err := a.grpcSrv.Start(); err != nil {
			errCh <- fmt.Errorf("grpc server: %w", err)
		}
	}()

	go func() {
		a.logger.Infof("HTTP server started on port %s", a.cfg.Http.Port)
		if err := a.httpSrv.Run(); err != nil {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(shutdown)

	var appErr error
	select {
	case appErr = <-errCh:
		a.logger.Errorf(appErr, "server fatal error")
	case <-shutdown:
		a.logger.Infof("Received shutdown signal, stopping gracefully...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// сначала перестаём принимать запросы, затем дожидаемся фоновых задач
	if err := a.closer.Close(shutdownCtx); err != nil {
		a.logger.Warnf("shutdown finished with errors: %v", err)
	}
	a.bgCancel()

	a.logger.Infof("Application shutdown complete")
	return appErr
}

func (a *App) initObjectStore(ctx context.Context) (usecase.ObjectStore, error) {
	switch a.cfg.Storage.Backend {
	case config.StorageGCS:
		client, err := clients.NewGCSClient(ctx)
		if err != nil {
			return nil, e.Wrap("failed to initialize gcs client", err)
		}
		a.closer.AddErr("gcs", client.Close)

		return gcsRepo.NewObjectRepo(client, a.cfg.Storage), nil
	default:
		client, err := clients.NewS3Client(a.cfg.Storage)
		if err != nil {
			return nil, e.Wrap("failed to initialize s3 client", err)
		}
		if err := clients.EnsureBucket(ctx, client, a.cfg.Storage.BucketName, a.cfg.Storage.Region); err != nil {
			return nil, e.Wrap("failed to initialize bucket", err)
		}

		return s3Repo.NewObjectRepo(client, a.cfg.Storage), nil
	}
}

func (a *App) initVectorIndex(ctx context.Context, db *postgres.PgDatabase, checks map[string]v1Http.HealthCheck) (usecase.VectorIndex, error) {
	switch a.cfg.Index.Backend {
	case config.IndexPgvector:
		return pgdb.NewEmbeddingRepo(db.Pool), nil
	case config.IndexMemory:
		a.logger.Warnf("using in-memory vector index, embeddings are lost on restart")
		index, err := chromemRepo.NewEmbeddingRepo()
		if err != nil {
			return nil, e.Wrap("failed to initialize in-memory index", err)
		}

		return index, nil
	default:
		qdrantClient, err := clients.NewQdrantClient(a.cfg.Qdrant)
		if err != nil {
			return nil, e.Wrap("failed to initialize qdrant", err)
		}
		a.closer.AddErr("qdrant", qdrantClient.Client.Close)

		if err := clients.EnsureCollection(ctx, qdrantClient); err != nil {
			return nil, e.Wrap("failed to initialize qdrant collection", err)
		}
		checks["qdrant"] = qdrantClient.Ping

		return qdrantRepo.NewEmbeddingRepo(qdrantClient.Client, a.cfg.Qdrant), nil
	}
}

func initPGDB(ctx context.Context, log logger.Logger, cfg *config.Config) (*postgres.PgDatabase, error) {
	db, err := postgres.Connect(ctx, cfg.Db)
	if err != nil {
		log.Errorf(err, "failed to connect to database")
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	if err := db.RunMigrations(postgres.DefaultMigrationsURL, log); err != nil {
		log.Errorf(err, "failed to run migrations")
		_ = db.Close(ctx)
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	return db, nil
}
