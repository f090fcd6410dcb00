// Package minioadapter publishes files to MinIO or another S3 compatible service
// through minio-go.
package minioadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"cdnsync/services/storage"
)

// Name is the adapter name used in project configuration.
const Name = "MinIO"

const userMetaPrefix = "X-Amz-Meta-"

// Store adapts a minio client to storage.ObjectStore.
type Store struct {
	client *minio.Client
}

// NewStore wraps client.
func NewStore(client *minio.Client) *Store {
	return &Store{client: client}
}

func (s *Store) Stat(ctx context.Context, bucket, key string) (map[string]string, error) {
	info, err := s.client.StatObject(ctx, bucket, key, minio.StatObjectOptions{})
	if err != nil {
		return nil, err
	}
	return userMetadata(info), nil
}

func (s *Store) Put(ctx context.Context, obj storage.Object) error {
	meta := make(map[string]string, len(obj.Metadata)+1)
	for k, v := range obj.Metadata {
		meta[k] = v
	}
	if obj.PublicRead {
		meta["x-amz-acl"] = "public-read"
	}
	_, err := s.client.PutObject(ctx, obj.Bucket, obj.Key, bytes.NewReader(obj.Body), int64(len(obj.Body)), minio.PutObjectOptions{
		ContentType:  obj.ContentType,
		CacheControl: obj.CacheControl,
		UserMetadata: meta,
	})
	if err != nil {
		return fmt.Errorf("put object %q: %w", obj.Key, err)
	}
	return nil
}

func (s *Store) IsNotFound(err error) bool {
	return IsNotFound(err)
}

// IsNotFound reports whether err is a missing object response.
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	resp := minio.ToErrorResponse(err)
	switch resp.Code {
	case "NoSuchKey", "NotFound":
		return true
	}
	return resp.StatusCode == http.StatusNotFound
}

func userMetadata(info minio.ObjectInfo) map[string]string {
	out := make(map[string]string, len(info.UserMetadata))
	for k, v := range info.UserMetadata {
		out[strings.ToLower(k)] = v
	}
	for k, values := range info.Metadata {
		if len(values) == 0 || len(k) <= len(userMetaPrefix) || !strings.EqualFold(k[:len(userMetaPrefix)], userMetaPrefix) {
			continue
		}
		name := strings.ToLower(k[len(userMetaPrefix):])
		if _, ok := out[name]; !ok {
			out[name] = values[0]
		}
	}
	return out
}

// ClientConfig holds the minio.* keys of an adapter configuration.
type ClientConfig struct {
	Endpoint     string
	AccessKey    string
	SecretKey    string
	Region       string
	Secure       bool
	PublicPolicy bool
}

// ClientConfigFrom reads the minio.* keys of cfg.
func ClientConfigFrom(cfg storage.Config) ClientConfig {
	return ClientConfig{
		Endpoint:     cfg.String("minio.endpoint"),
		AccessKey:    cfg.String("minio.access-key"),
		SecretKey:    cfg.String("minio.secret-key"),
		Region:       cfg.String("minio.region"),
		Secure:       cfg.Bool("minio.secure"),
		PublicPolicy: cfg.Bool("minio.public-policy"),
	}
}

// NewClient creates a minio client. With PublicPolicy set the bucket gets an anonymous
// read policy, for servers that ignore object ACLs.
func NewClient(ctx context.Context, cc ClientConfig, bucket string) (*minio.Client, error) {
	client, err := minio.New(cc.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cc.AccessKey, cc.SecretKey, ""),
		Secure: cc.Secure,
		Region: cc.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	if cc.PublicPolicy {
		if err := client.SetBucketPolicy(ctx, bucket, publicReadPolicy(bucket)); err != nil {
			return nil, fmt.Errorf("set bucket policy: %w", err)
		}
	}
	return client, nil
}

func publicReadPolicy(bucket string) string {
	policy := map[string]any{
		"Version": "2012-10-17",
		"Statement": []map[string]any{
			{
				"Effect":    "Allow",
				"Principal": "*",
				"Action":    "s3:GetObject",
				"Resource":  fmt.Sprintf("arn:aws:s3:::%s/*", bucket),
			},
		},
	}
	b, _ := json.Marshal(policy)
	return string(b)
}

// FromConfig builds a MinIO adapter. minio.endpoint, bucket and url are required. The
// client is created on the first push.
func FromConfig(raw map[string]any) (storage.Adapter, error) {
	cfg := storage.Config(raw)
	if err := cfg.Require(Name, "minio.endpoint"); err != nil {
		return nil, err
	}
	settings, err := cfg.Settings(Name)
	if err != nil {
		return nil, err
	}

	cc := ClientConfigFrom(cfg)
	store := storage.NewLazy(func(ctx context.Context) (storage.ObjectStore, error) {
		client, err := NewClient(ctx, cc, settings.Bucket)
		if err != nil {
			return nil, err
		}
		return NewStore(client), nil
	})
	return storage.NewObjectAdapter(store, settings)
}
