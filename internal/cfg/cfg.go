package cfg

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/DRSN-tech/media-search/pkg/e"
	"github.com/DRSN-tech/media-search/pkg/logger"
	"github.com/jimlawless/whereami"
)

// Бэкенды объектного хранилища
const (
	StorageS3  = "s3"
	StorageGCS = "gcs"
)

// Бэкенды векторного индекса
const (
	IndexQdrant   = "qdrant"
	IndexPgvector = "pgvector"
	IndexMemory   = "memory"
)

type Config struct {
	Storage  *StorageCfg
	URL      *URLCfg
	Http     *HTTPConfig
	Grpc     *GRPCConfig
	Db       *PGDBCfg
	Index    *IndexCfg
	Qdrant   *QdrantCfg
	Redis    *RedisCfg
	Embedder *EmbedderCfg
	Kafka    *KafkaCfg
	Search   *SearchCfg
	Media    *MediaCfg
}

type KafkaCfg struct {
	Enabled           bool
	Topic             string
	Brokers           []string
	NetworkMode       string
	Partitions        int
	ReplicationFactor int
}

type StorageCfg struct {
	Backend       string // s3 (S3/MinIO) или gcs
	Endpoint      string // адрес S3-совместимого хранилища
	Region        string // регион; при заданном регионе подпись выполняется без сетевых запросов
	BucketName    string
	AccessKey     string
	SecretKey     string
	UseSSL        bool
	PublicBaseURL string // база для неподписанных прямых ссылок
	GCSBucket     string
	CleanupLimit  int // параллельность фоновой очистки объектов
}

type URLCfg struct {
	DefaultTTL        time.Duration
	MaxTTL            time.Duration
	SearchTTL         time.Duration // TTL превью в выдаче поиска
	ExpiryBuffer      time.Duration // ссылка считается истёкшей, если до конца осталось меньше
	MintTimeout       time.Duration
	RefreshConcurrent int
	RefreshBatchLimit int
}

type HTTPConfig struct {
	Port              string
	ReadTimeout       time.Duration
	ReadHeaderTimeout time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int
}

type GRPCConfig struct {
	Port        string
	NetworkMode string
}

type PGDBCfg struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type IndexCfg struct {
	Backend    string
	VectorSize int
}

type QdrantCfg struct {
	Port                 int
	Host                 string
	ApiKey               string
	QdrantCollectionName string // имя коллекции в Qdrant
	UseTLS               bool
	VectorSize           uint64
}

type RedisCfg struct {
	Addr        string
	Password    string
	User        string
	DB          int
	MaxRetries  int
	DialTimeout time.Duration
	Timeout     time.Duration
	ProductTTL  time.Duration
}

type EmbedderCfg struct {
	URL           string
	Timeout       time.Duration
	MaxRetries    int
	MaxConcurrent int
}

type SearchCfg struct {
	DefaultLimit  int
	MaxLimit      int
	QueryTimeout  time.Duration
	MinSimilarity float64 // порог в процентах
	FallbackSize  int
}

type MediaCfg struct {
	Mode           string // preserve или optimize
	MaxUploadBytes int64
	MaxDimension   int
	JPEGQuality    int
	MaxPixels      int // предел width*height загружаемого изображения
}

// Load безопасно загружает конфигурацию и возвращает ошибку в случае неудачи.
func Load(log logger.Logger) (*Config, error) {
	index, err := loadIndexCfg(log)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	db, err := loadPGDBCfg(log)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	http, err := loadHTTPConfig(log)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	redis, err := loadRedisCfg(log)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	storage, err := loadStorageCfg(log)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	url, err := loadURLCfg(log)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	qdrant, err := loadQdrantCfg(log, index.VectorSize)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	kafka, err := loadKafkaCfg()
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	embedder, err := loadEmbedderCfg(log)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	search, err := loadSearchCfg(log)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	media, err := loadMediaCfg(log)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	return &Config{
		Storage:  storage,
		URL:      url,
		Http:     http,
		Grpc:     loadGRPCConfig(),
		Db:       db,
		Index:    index,
		Qdrant:   qdrant,
		Redis:    redis,
		Embedder: embedder,
		Kafka:    kafka,
		Search:   search,
		Media:    media,
	}, nil
}

func loadKafkaCfg() (*KafkaCfg, error) {
	const (
		defaultPartitions        = 3
		defaultReplicationFactor = 1
		defaultNetworkMode       = "tcp"
		defaultTopic             = "media-assets"
	)

	brokerStr := os.Getenv("KAFKA_BROKERS")
	if brokerStr == "" {
		// без брокеров события копятся в outbox и не публикуются
		return &KafkaCfg{Enabled: false}, nil
	}
	brokers := strings.Split(brokerStr, ",")

	partitions, err := parseIntEnv("KAFKA_PARTITIONS", defaultPartitions)
	if err != nil {
		return nil, e.Wrap("KAFKA_PARTITIONS", err)
	}

	replicationFactor, err := parseIntEnv("REPLICATION_FACTOR", defaultReplicationFactor)
	if err != nil {
		return nil, e.Wrap("REPLICATION_FACTOR", err)
	}

	return &KafkaCfg{
		Enabled:           true,
		Brokers:           brokers,
		Topic:             getEnvOrDefault("KAFKA_TOPIC", defaultTopic),
		Partitions:        partitions,
		ReplicationFactor: replicationFactor,
		NetworkMode:       getEnvOrDefault("KAFKA_NETWORK_MODE", defaultNetworkMode),
	}, nil
}

func loadStorageCfg(log logger.Logger) (*StorageCfg, error) {
	const (
		defaultBackend      = StorageS3
		defaultUseSSL       = false
		defaultEndpoint     = "minio:9000"
		defaultRegion       = "us-east-1"
		defaultCleanupLimit = 4
	)

	backend := strings.ToLower(getEnvOrDefault("STORAGE_BACKEND", defaultBackend))
	if backend != StorageS3 && backend != StorageGCS {
		err := fmt.Errorf("unknown STORAGE_BACKEND %q", backend)
		log.Errorf(err, "invalid STORAGE_BACKEND")
		return nil, err
	}

	useSSL, err := strconv.ParseBool(getEnvOrDefault("S3_USE_SSL", strconv.FormatBool(defaultUseSSL)))
	if err != nil {
		log.Errorf(err, "invalid S3_USE_SSL")
		return nil, err
	}

	cleanupLimit, err := parseIntEnv("STORAGE_CLEANUP_CONCURRENCY", defaultCleanupLimit)
	if err != nil {
		log.Errorf(err, "invalid STORAGE_CLEANUP_CONCURRENCY")
		return nil, err
	}

	cfg := &StorageCfg{
		Backend:       backend,
		Endpoint:      getEnvOrDefault("S3_ENDPOINT", defaultEndpoint),
		Region:        getEnvOrDefault("S3_REGION", defaultRegion),
		BucketName:    getEnv("BUCKET_NAME"),
		AccessKey:     getEnv("S3_ACCESS_KEY"),
		SecretKey:     getEnv("S3_SECRET_KEY"),
		UseSSL:        useSSL,
		PublicBaseURL: getEnv("S3_PUBLIC_BASE_URL"),
		GCSBucket:     getEnv("GCS_BUCKET"),
		CleanupLimit:  cleanupLimit,
	}

	if backend == StorageS3 && cfg.BucketName == "" {
		err := fmt.Errorf("BUCKET_NAME is required")
		log.Errorf(err, "missing BUCKET_NAME")
		return nil, err
	}
	if backend == StorageGCS && cfg.GCSBucket == "" {
		err := fmt.Errorf("GCS_BUCKET is required")
		log.Errorf(err, "missing GCS_BUCKET")
		return nil, err
	}

	return cfg, nil
}

func loadURLCfg(log logger.Logger) (*URLCfg, error) {
	const (
		week                     = 7 * 24 * time.Hour
		defaultExpiryBuffer      = 24 * time.Hour
		defaultMintTimeout       = 5 * time.Second
		defaultRefreshConcurrent = 16
		defaultRefreshBatchLimit = 500
	)

	defaultTTL, err := parseDurationEnv("URL_DEFAULT_TTL", week)
	if err != nil {
		log.Errorf(err, "invalid URL_DEFAULT_TTL")
		return nil, err
	}

	maxTTL, err := parseDurationEnv("URL_MAX_TTL", week)
	if err != nil {
		log.Errorf(err, "invalid URL_MAX_TTL")
		return nil, err
	}

	searchTTL, err := parseDurationEnv("URL_SEARCH_TTL", week)
	if err != nil {
		log.Errorf(err, "invalid URL_SEARCH_TTL")
		return nil, err
	}

	buffer, err := parseDurationEnv("URL_EXPIRY_BUFFER", defaultExpiryBuffer)
	if err != nil {
		log.Errorf(err, "invalid URL_EXPIRY_BUFFER")
		return nil, err
	}

	mintTimeout, err := parseDurationEnv("URL_MINT_TIMEOUT", defaultMintTimeout)
	if err != nil {
		log.Errorf(err, "invalid URL_MINT_TIMEOUT")
		return nil, err
	}

	concurrent, err := parseIntEnv("URL_REFRESH_CONCURRENCY", defaultRefreshConcurrent)
	if err != nil {
		log.Errorf(err, "invalid URL_REFRESH_CONCURRENCY")
		return nil, err
	}

	batchLimit, err := parseIntEnv("URL_REFRESH_BATCH_LIMIT", defaultRefreshBatchLimit)
	if err != nil {
		log.Errorf(err, "invalid URL_REFRESH_BATCH_LIMIT")
		return nil, err
	}

	if maxTTL > week {
		err := fmt.Errorf("URL_MAX_TTL %s exceeds the 7 day signing limit", maxTTL)
		log.Errorf(err, "invalid URL_MAX_TTL")
		return nil, err
	}
	if defaultTTL > maxTTL || searchTTL > maxTTL {
		err := fmt.Errorf("URL ttl exceeds URL_MAX_TTL %s", maxTTL)
		log.Errorf(err, "invalid URL ttl")
		return nil, err
	}

	return &URLCfg{
		DefaultTTL:        defaultTTL,
		MaxTTL:            maxTTL,
		SearchTTL:         searchTTL,
		ExpiryBuffer:      buffer,
		MintTimeout:       mintTimeout,
		RefreshConcurrent: concurrent,
		RefreshBatchLimit: batchLimit,
	}, nil
}

func loadHTTPConfig(log logger.Logger) (*HTTPConfig, error) {
	const (
		defaultPort         = "8080"
		defaultReadTimeout  = 15 * time.Second
		defaultWriteTimeout = 30 * time.Second
		defaultIdleTimeout  = 60 * time.Second

		defaultReadHeaderTimeout = 5 * time.Second
		defaultMaxHeaderBytes    = 64 << 10
	)

	port := getEnvOrDefault("HTTP_PORT", defaultPort)

	readTimeout, err := parseDurationEnv("HTTP_READ_TIMEOUT", defaultReadTimeout)
	if err != nil {
		log.Errorf(err, "invalid HTTP_READ_TIMEOUT")
		return nil, err
	}

	writeTimeout, err := parseDurationEnv("HTTP_WRITE_TIMEOUT", defaultWriteTimeout)
	if err != nil {
		log.Errorf(err, "invalid HTTP_WRITE_TIMEOUT")
		return nil, err
	}

	idleTimeout, err := parseDurationEnv("KEEP_ALIVE", defaultIdleTimeout)
	if err != nil {
		log.Errorf(err, "invalid KEEP_ALIVE")
		return nil, err
	}

	headerTimeout, err := parseDurationEnv("HTTP_READ_HEADER_TIMEOUT", defaultReadHeaderTimeout)
	if err != nil {
		log.Errorf(err, "invalid HTTP_READ_HEADER_TIMEOUT")
		return nil, err
	}

	maxHeaderBytes, err := parseIntEnv("HTTP_MAX_HEADER_BYTES", defaultMaxHeaderBytes)
	if err != nil {
		log.Errorf(err, "invalid HTTP_MAX_HEADER_BYTES")
		return nil, err
	}

	return &HTTPConfig{
		Port:              port,
		ReadTimeout:       readTimeout,
		ReadHeaderTimeout: headerTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		MaxHeaderBytes:    maxHeaderBytes,
	}, nil
}

func loadGRPCConfig() *GRPCConfig {
	const (
		defaultPort        = "8091"
		defaultNetworkMode = "tcp"
	)

	return &GRPCConfig{
		Port:        getEnvOrDefault("GRPC_PORT", defaultPort),
		NetworkMode: getEnvOrDefault("GRPC_NETWORK_MODE", defaultNetworkMode),
	}
}

func loadPGDBCfg(log logger.Logger) (*PGDBCfg, error) {
	const (
		defaultHost    = "localhost"
		defaultPort    = "5432"
		defaultSSLMode = "disable"
	)

	user := getEnv("POSTGRES_USER")
	if user == "" {
		err := fmt.Errorf("POSTGRES_USER is required")
		log.Errorf(err, "missing POSTGRES_USER")
		return nil, err
	}

	password := getEnv("POSTGRES_PASSWORD")
	if password == "" {
		err := fmt.Errorf("POSTGRES_PASSWORD is required")
		log.Errorf(err, "missing POSTGRES_PASSWORD")
		return nil, err
	}

	dbName := getEnv("POSTGRES_DB")
	if dbName == "" {
		err := fmt.Errorf("POSTGRES_DB is required")
		log.Errorf(err, "missing POSTGRES_DB")
		return nil, err
	}

	return &PGDBCfg{
		Host:     getEnvOrDefault("POSTGRES_HOST", defaultHost),
		Port:     getEnvOrDefault("POSTGRES_PORT", defaultPort),
		User:     user,
		Password: password,
		DBName:   dbName,
		SSLMode:  getEnvOrDefault("SSL_MODE", defaultSSLMode),
	}, nil
}

func loadIndexCfg(log logger.Logger) (*IndexCfg, error) {
	const (
		defaultBackend    = IndexQdrant
		defaultVectorSize = 512
	)

	backend := strings.ToLower(getEnvOrDefault("VECTOR_INDEX", defaultBackend))
	switch backend {
	case IndexQdrant, IndexPgvector, IndexMemory:
	default:
		err := fmt.Errorf("unknown VECTOR_INDEX %q", backend)
		log.Errorf(err, "invalid VECTOR_INDEX")
		return nil, err
	}

	size, err := parseIntEnv("VECTOR_SIZE", defaultVectorSize)
	if err != nil || size <= 0 {
		log.Errorf(err, "invalid VECTOR_SIZE")
		return nil, e.ErrIncorrectEnvVariable
	}

	return &IndexCfg{Backend: backend, VectorSize: size}, nil
}

func loadQdrantCfg(logger logger.Logger, vectorSize int) (*QdrantCfg, error) {
	const (
		defaultQdrantGRPCPort = "6334"
		defaultUseTLS         = false
		defaultCollection     = "media_embeddings"
	)

	strPort := getEnvOrDefault("QDRANT_GRPC_PORT", defaultQdrantGRPCPort)
	port, err := strconv.Atoi(strPort)
	if err != nil {
		logger.Errorf(err, "invalid QDRANT_PORT")
		return nil, err
	}

	useTLS, err := strconv.ParseBool(getEnvOrDefault("QDRANT_USE_TLS", strconv.FormatBool(defaultUseTLS)))
	if err != nil {
		logger.Errorf(err, "invalid QDRANT_USE_TLS")
		return nil, err
	}

	return &QdrantCfg{
		Host:                 getEnvOrDefault("QDRANT_HOST", "localhost"),
		Port:                 port,
		ApiKey:               getEnv("QDRANT__SERVICE__API_KEY"),
		QdrantCollectionName: getEnvOrDefault("COLLECTION_NAME", defaultCollection),
		UseTLS:               useTLS,
		VectorSize:           uint64(vectorSize),
	}, nil
}

func loadRedisCfg(log logger.Logger) (*RedisCfg, error) {
	const (
		defaultAddr         = "localhost:6379"
		defaultDB           = 0
		defaultMaxRetries   = 3
		defaultDialTimeout  = 5 * time.Second
		defaultReadTimeout  = 3 * time.Second
		defaultWriteTimeout = 3 * time.Second
		defaultProductTTL   = 3 * time.Minute
	)

	db, err := parseIntEnv("REDIS_DB_ID", defaultDB)
	if err != nil {
		log.Errorf(err, "invalid REDIS_DB_ID")
		return nil, err
	}

	maxRetries, err := parseIntEnv("MAX_RETRIES", defaultMaxRetries)
	if err != nil {
		log.Errorf(err, "invalid MAX_RETRIES")
		return nil, err
	}

	dialTimeout, err := parseDurationEnv("DIAL_TIMEOUT", defaultDialTimeout)
	if err != nil {
		log.Errorf(err, "invalid DIAL_TIMEOUT")
		return nil, err
	}

	readTimeout, err := parseDurationEnv("READ_TIMEOUT", defaultReadTimeout)
	if err != nil {
		log.Errorf(err, "invalid READ_TIMEOUT")
		return nil, err
	}

	writeTimeout, err := parseDurationEnv("WRITE_TIMEOUT", defaultWriteTimeout)
	if err != nil {
		log.Errorf(err, "invalid WRITE_TIMEOUT")
		return nil, err
	}

	productTTL, err := parseDurationEnv("PRODUCT_TTL", defaultProductTTL)
	if err != nil {
		log.Errorf(err, "invalid PRODUCT_TTL")
		return nil, err
	}

	return &RedisCfg{
		Addr:        getEnvOrDefault("REDIS_ADDR", defaultAddr),
		Password:    getEnv("REDIS_PASSWORD"),
		User:        getEnv("REDIS_USER"),
		DB:          db,
		MaxRetries:  maxRetries,
		DialTimeout: dialTimeout,
		Timeout:     max(readTimeout, writeTimeout),
		ProductTTL:  productTTL,
	}, nil
}

func loadEmbedderCfg(log logger.Logger) (*EmbedderCfg, error) {
	const (
		defaultURL           = "http://embedding-service:8000"
		defaultTimeout       = 30 * time.Second
		defaultMaxRetries    = 3
		defaultMaxConcurrent = 4
	)

	timeout, err := parseDurationEnv("EMBEDDER_TIMEOUT", defaultTimeout)
	if err != nil {
		log.Errorf(err, "invalid EMBEDDER_TIMEOUT")
		return nil, err
	}

	retries, err := parseIntEnv("EMBEDDER_MAX_RETRIES", defaultMaxRetries)
	if err != nil {
		log.Errorf(err, "invalid EMBEDDER_MAX_RETRIES")
		return nil, err
	}

	concurrent, err := parseIntEnv("EMBEDDER_MAX_CONCURRENT", defaultMaxConcurrent)
	if err != nil {
		log.Errorf(err, "invalid EMBEDDER_MAX_CONCURRENT")
		return nil, err
	}

	return &EmbedderCfg{
		URL:           strings.TrimRight(getEnvOrDefault("EMBEDDER_URL", defaultURL), "/"),
		Timeout:       timeout,
		MaxRetries:    max(retries, 1),
		MaxConcurrent: max(concurrent, 1),
	}, nil
}

func loadSearchCfg(log logger.Logger) (*SearchCfg, error) {
	const (
		defaultLimit         = 24
		defaultMaxLimit      = 100
		defaultQueryTimeout  = 3 * time.Second
		defaultMinSimilarity = 60.0
		defaultFallbackSize  = 3
	)

	limit, err := parseIntEnv("SEARCH_DEFAULT_LIMIT", defaultLimit)
	if err != nil {
		log.Errorf(err, "invalid SEARCH_DEFAULT_LIMIT")
		return nil, err
	}

	maxLimit, err := parseIntEnv("SEARCH_MAX_LIMIT", defaultMaxLimit)
	if err != nil {
		log.Errorf(err, "invalid SEARCH_MAX_LIMIT")
		return nil, err
	}

	timeout, err := parseDurationEnv("SEARCH_QUERY_TIMEOUT", defaultQueryTimeout)
	if err != nil {
		log.Errorf(err, "invalid SEARCH_QUERY_TIMEOUT")
		return nil, err
	}

	minSimilarity, err := parseFloatEnv("SEARCH_MIN_SIMILARITY", defaultMinSimilarity)
	if err != nil {
		log.Errorf(err, "invalid SEARCH_MIN_SIMILARITY")
		return nil, err
	}

	fallback, err := parseIntEnv("SEARCH_FALLBACK_SIZE", defaultFallbackSize)
	if err != nil {
		log.Errorf(err, "invalid SEARCH_FALLBACK_SIZE")
		return nil, err
	}

	return &SearchCfg{
		DefaultLimit:  limit,
		MaxLimit:      max(maxLimit, limit),
		QueryTimeout:  timeout,
		MinSimilarity: minSimilarity,
		FallbackSize:  fallback,
	}, nil
}

func loadMediaCfg(log logger.Logger) (*MediaCfg, error) {
	const (
		defaultMode           = "preserve"
		defaultMaxUploadBytes = 100 << 20
		defaultMaxDimension   = 2160
		defaultJPEGQuality    = 85
		defaultMaxPixels      = 50_000_000
	)

	maxUpload, err := parseIntEnv("MEDIA_MAX_UPLOAD_BYTES", defaultMaxUploadBytes)
	if err != nil {
		log.Errorf(err, "invalid MEDIA_MAX_UPLOAD_BYTES")
		return nil, err
	}

	maxDimension, err := parseIntEnv("MEDIA_MAX_DIMENSION", defaultMaxDimension)
	if err != nil {
		log.Errorf(err, "invalid MEDIA_MAX_DIMENSION")
		return nil, err
	}

	quality, err := parseIntEnv("MEDIA_JPEG_QUALITY", defaultJPEGQuality)
	if err != nil {
		log.Errorf(err, "invalid MEDIA_JPEG_QUALITY")
		return nil, err
	}

	maxPixels, err := parseIntEnv("MEDIA_MAX_PIXELS", defaultMaxPixels)
	if err != nil {
		log.Errorf(err, "invalid MEDIA_MAX_PIXELS")
		return nil, err
	}

	return &MediaCfg{
		Mode:           strings.ToLower(getEnvOrDefault("MEDIA_MODE", defaultMode)),
		MaxUploadBytes: int64(maxUpload),
		MaxDimension:   maxDimension,
		JPEGQuality:    quality,
		MaxPixels:      maxPixels,
	}, nil
}

// getEnv возвращает значение переменной окружения.
// Возвращает пустую строку, если переменная не задана.
func getEnv(key string) string {
	return os.Getenv(key)
}

// getEnvOrDefault возвращает значение переменной окружения или значение по умолчанию.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}

	return defaultValue
}

// parseDurationEnv считывает длительность или возвращает значение по умолчанию.
func parseDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	if v := os.Getenv(key); v != "" {
		return time.ParseDuration(v)
	}

	return defaultValue, nil
}

func parseIntEnv(key string, defaultValue int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue, nil
	}

	intValue, err := strconv.Atoi(v)
	if err != nil {
		return defaultValue, e.ErrIncorrectEnvVariable
	}

	return intValue, nil
}

func parseFloatEnv(key string, defaultValue float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue, nil
	}

	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultValue, e.ErrIncorrectEnvVariable
	}

	return f, nil
}
