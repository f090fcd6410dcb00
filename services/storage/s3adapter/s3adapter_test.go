package s3adapter

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cdnsync/pkg/cdnerr"
	"cdnsync/services/storage"
)

func TestFromConfig(t *testing.T) {
	a, err := FromConfig(map[string]any{
		"aws": map[string]any{
			"region": "eu-central-1",
			"credentials": map[string]any{
				"key":    "AKIA",
				"secret": "secret",
			},
		},
		"bucket":      "test-bucket",
		"url":         []any{"test1.test.de", "test2.test.de"},
		"target-dir":  "webroot/",
		"append-hash": true,
	})
	require.NoError(t, err)

	oa, ok := a.(*storage.ObjectAdapter)
	require.True(t, ok)
	s := oa.Settings()
	assert.Equal(t, "test-bucket", s.Bucket)
	assert.Equal(t, "webroot", s.RootDir)
	assert.True(t, s.AppendHash)
	assert.Equal(t, []string{"test1.test.de/", "test2.test.de/"}, s.URLs)
	assert.Equal(t, "webroot/a.txt", oa.Key("a.txt"))
}

func TestFromConfigRequiredFields(t *testing.T) {
	cases := []struct {
		name  string
		cfg   map[string]any
		field string
	}{
		{"region", map[string]any{"bucket": "b", "url": "u"}, "aws.region"},
		{"bucket", map[string]any{"aws": map[string]any{"region": "r"}, "url": "u"}, "bucket"},
		{"url", map[string]any{"aws": map[string]any{"region": "r"}, "bucket": "b"}, "url"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := FromConfig(tc.cfg)
			var ce *cdnerr.ConfigurationError
			require.True(t, errors.As(err, &ce), "got %v", err)
			assert.Equal(t, tc.field, ce.Field)
		})
	}
}

func clearS3Env(t *testing.T) {
	for _, k := range []string{"S3_REGION", "S3_ENDPOINT", "S3_ACCESS_KEY", "S3_SECRET_KEY", "S3_DISABLE_TLS", "S3_FORCE_PATH_STYLE"} {
		t.Setenv(k, "")
	}
}

func TestClientOptions(t *testing.T) {
	clearS3Env(t)
	opts := ClientOptions(storage.Config{
		"aws": map[string]any{
			"region":     "us-east-1",
			"endpoint":   "localhost:9000",
			"profile":    "cdn",
			"path-style": true,
			"timeout":    "45s",
		},
	})
	assert.Equal(t, "us-east-1", opts.Region)
	assert.Equal(t, "localhost:9000", opts.Endpoint)
	assert.Equal(t, "cdn", opts.Profile)
	assert.True(t, opts.ForcePathStyle)
	assert.Equal(t, 45*time.Second, opts.Timeout)

	opts = ClientOptions(storage.Config{"aws": map[string]any{"timeout": 10}})
	assert.Equal(t, 10*time.Second, opts.Timeout)
}

func TestClientOptionsEnvFallback(t *testing.T) {
	clearS3Env(t)
	t.Setenv("S3_ENDPOINT", "minio:9000")
	t.Setenv("S3_ACCESS_KEY", "env-key")
	t.Setenv("S3_SECRET_KEY", "env-secret")
	t.Setenv("S3_DISABLE_TLS", "true")

	opts := ClientOptions(storage.Config{"aws": map[string]any{"region": "us-east-1"}})
	assert.Equal(t, "minio:9000", opts.Endpoint)
	assert.True(t, opts.ForcePathStyle)
	assert.True(t, opts.DisableTLS)
	assert.Equal(t, "env-key", opts.AccessKey)
	assert.Equal(t, "env-secret", opts.SecretKey)

	opts = ClientOptions(storage.Config{"aws": map[string]any{
		"region":      "us-east-1",
		"credentials": map[string]any{"key": "cfg-key", "secret": "cfg-secret"},
	}})
	assert.Equal(t, "cfg-key", opts.AccessKey)
	assert.Equal(t, "cfg-secret", opts.SecretKey)
}
