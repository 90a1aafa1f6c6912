package snapshot

import (
	"errors"
	"testing"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/metagraph/internal/config"
)

func TestObjectKey(t *testing.T) {
	assert.Equal(t, "jobs/abc/retrieve.zip", ObjectKey("abc"))
	assert.Equal(t, "jobs/abc/retrieve.zip", ObjectKey(" abc "))
}

func TestNewValidatesConfig(t *testing.T) {
	base := config.SnapshotConfig{
		Enabled:   true,
		Endpoint:  "localhost:9000",
		AccessKey: "minio",
		SecretKey: "minio123",
		Bucket:    "metagraph-archives",
	}

	t.Run("should build a client from a complete config", func(t *testing.T) {
		sink, err := New(base, nil)
		require.NoError(t, err)
		assert.Equal(t, "us-east-1", sink.region, "region defaults when empty")
		assert.Equal(t, "metagraph-archives", sink.bucket)
	})

	broken := []struct {
		field  string
		mutate func(c *config.SnapshotConfig)
		want   string
	}{
		{"endpoint", func(c *config.SnapshotConfig) { c.Endpoint = " " }, "endpoint is required"},
		{"secret key", func(c *config.SnapshotConfig) { c.SecretKey = "" }, "access key and secret key are required"},
		{"bucket", func(c *config.SnapshotConfig) { c.Bucket = "" }, "bucket is required"},
	}
	for _, tc := range broken {
		t.Run("should reject a missing "+tc.field, func(t *testing.T) {
			cfg := base
			tc.mutate(&cfg)
			_, err := New(cfg, nil)
			assert.ErrorContains(t, err, tc.want)
		})
	}
}

func TestNotFoundMapping(t *testing.T) {
	missing := minio.ErrorResponse{Code: "NoSuchKey", Message: "The specified key does not exist."}
	assert.ErrorIs(t, notFound(missing), ErrNotFound)

	other := errors.New("connection refused")
	assert.Equal(t, other, notFound(other))
}
