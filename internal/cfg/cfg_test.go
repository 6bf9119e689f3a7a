package cfg

import (
	"testing"
	"time"

	"github.com/DRSN-tech/media-search/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Setenv("POSTGRES_USER", "u")
	t.Setenv("POSTGRES_PASSWORD", "p")
	t.Setenv("POSTGRES_DB", "media")
	t.Setenv("BUCKET_NAME", "media")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)

	c, err := Load(logger.NewNop())
	require.NoError(t, err)

	assert.Equal(t, StorageS3, c.Storage.Backend)
	assert.Equal(t, 7*24*time.Hour, c.URL.DefaultTTL)
	assert.Equal(t, 7*24*time.Hour, c.URL.MaxTTL)
	assert.Equal(t, 24*time.Hour, c.URL.ExpiryBuffer)
	assert.Equal(t, 512, c.Index.VectorSize)
	assert.Equal(t, uint64(512), c.Qdrant.VectorSize)
	assert.Equal(t, 24, c.Search.DefaultLimit)
	assert.Equal(t, 60.0, c.Search.MinSimilarity)
	assert.Equal(t, 3, c.Search.FallbackSize)
	assert.Equal(t, "preserve", c.Media.Mode)
	assert.False(t, c.Kafka.Enabled)
	assert.Equal(t, 50_000_000, c.Media.MaxPixels)
	assert.Equal(t, 5*time.Second, c.Http.ReadHeaderTimeout)
	assert.Equal(t, 64<<10, c.Http.MaxHeaderBytes)
}

func TestLoadHTTPLimits(t *testing.T) {
	setRequired(t)
	t.Setenv("HTTP_READ_HEADER_TIMEOUT", "2s")
	t.Setenv("HTTP_MAX_HEADER_BYTES", "8192")

	c, err := Load(logger.NewNop())
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, c.Http.ReadHeaderTimeout)
	assert.Equal(t, 8192, c.Http.MaxHeaderBytes)

	t.Setenv("HTTP_MAX_HEADER_BYTES", "lots")
	_, err = Load(logger.NewNop())
	assert.Error(t, err)
}

func TestLoadRejectsTTLAboveSigningLimit(t *testing.T) {
	setRequired(t)
	t.Setenv("URL_MAX_TTL", "200h")

	_, err := Load(logger.NewNop())
	assert.Error(t, err)
}

func TestLoadRejectsUnknownIndex(t *testing.T) {
	setRequired(t)
	t.Setenv("VECTOR_INDEX", "faiss")

	_, err := Load(logger.NewNop())
	assert.Error(t, err)
}

func TestLoadRequiresPostgresUser(t *testing.T) {
	t.Setenv("POSTGRES_USER", "")
	t.Setenv("BUCKET_NAME", "media")

	_, err := Load(logger.NewNop())
	assert.Error(t, err)
}

func TestLoadKafkaEnabledWithBrokers(t *testing.T) {
	setRequired(t)
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")

	c, err := Load(logger.NewNop())
	require.NoError(t, err)
	assert.True(t, c.Kafka.Enabled)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, c.Kafka.Brokers)
	assert.Equal(t, "media-assets", c.Kafka.Topic)
}
