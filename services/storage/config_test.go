package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"cdnsync/pkg/cdnerr"
)

func TestConfigSettingsFromYAML(t *testing.T) {
	var cfg Config
	require.NoError(t, yaml.Unmarshal([]byte(`
bucket: test-bucket
target-dir: webroot/
append-hash: true
cache-control: max-age=3600
url:
  - test1.test.de/webroot/img
  - test2.test.de/webroot/img/
metadata:
  release: 42
aws:
  region: eu-central-1
  credentials:
    key: AKIA
`), &cfg))

	s, err := cfg.Settings("s3")
	require.NoError(t, err)
	assert.Equal(t, "test-bucket", s.Bucket)
	assert.Equal(t, "webroot/", s.RootDir)
	assert.True(t, s.AppendHash)
	assert.Equal(t, "max-age=3600", s.CacheControl)
	assert.Equal(t, []string{"test1.test.de/webroot/img", "test2.test.de/webroot/img/"}, s.URLs)
	assert.Equal(t, map[string]string{"release": "42"}, s.Metadata.Resolve("any"))

	assert.Equal(t, "eu-central-1", cfg.String("aws.region"))
	assert.Equal(t, "AKIA", cfg.String("aws.credentials.key"))
	assert.Empty(t, cfg.String("aws.credentials.secret"))
	assert.Empty(t, cfg.String("aws"))
}

func TestConfigSingleURL(t *testing.T) {
	cfg := Config{"bucket": "b", "url": "cdn.example.com"}
	s, err := cfg.Settings("s3")
	require.NoError(t, err)
	assert.Equal(t, []string{"cdn.example.com"}, s.URLs)
	assert.True(t, s.Metadata.IsZero())
}

func TestConfigSettingsMissingFields(t *testing.T) {
	cases := []struct {
		name  string
		cfg   Config
		field string
	}{
		{"no bucket", Config{"url": "cdn"}, "bucket"},
		{"no url", Config{"bucket": "b"}, "url"},
		{"empty url list", Config{"bucket": "b", "url": []any{}}, "url"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := tc.cfg.Settings("s3")
			var ce *cdnerr.ConfigurationError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, "s3", ce.Component)
			assert.Equal(t, tc.field, ce.Field)
		})
	}
}

func TestConfigBool(t *testing.T) {
	cfg := Config{"a": true, "b": "true", "c": "no", "d": float64(1), "e": 0}
	assert.True(t, cfg.Bool("a"))
	assert.True(t, cfg.Bool("b"))
	assert.False(t, cfg.Bool("c"))
	assert.True(t, cfg.Bool("d"))
	assert.False(t, cfg.Bool("e"))
	assert.False(t, cfg.Bool("missing"))
}

func TestConfigRequire(t *testing.T) {
	cfg := Config{"aws": map[string]any{"region": "eu-west-1"}}
	require.NoError(t, cfg.Require("s3", "aws.region"))

	err := cfg.Require("s3", "bucket")
	assert.EqualError(t, err, "s3: bucket is required")

	err = cfg.Require("minio", "minio.endpoint", "bucket")
	assert.EqualError(t, err, "minio: missing bucket, minio.endpoint")
}

func TestMetadataVariants(t *testing.T) {
	var zero Metadata
	assert.True(t, zero.IsZero())
	assert.Empty(t, zero.Resolve("a"))

	src := map[string]string{"k": "v"}
	static := StaticMetadata(src)
	src["k"] = "changed"
	assert.Equal(t, map[string]string{"k": "v"}, static.Resolve("a"))

	computed := ComputedMetadata(func(f string) map[string]string {
		if f == "skip" {
			return nil
		}
		return map[string]string{"file": f}
	})
	assert.Equal(t, map[string]string{"file": "a"}, computed.Resolve("a"))
	assert.Equal(t, map[string]string{}, computed.Resolve("skip"))
}
