// Package s3adapter publishes files to an AWS S3 bucket.
package s3adapter

import (
	"context"
	"strconv"
	"time"

	"cdnsync/pkg/s3"
	"cdnsync/services/storage"
)

// Name is the adapter name used in project configuration.
const Name = "S3"

// Store adapts a pkg/s3 client to storage.ObjectStore.
type Store struct {
	client *s3.Client
}

// NewStore wraps client.
func NewStore(client *s3.Client) *Store {
	return &Store{client: client}
}

func (s *Store) Stat(ctx context.Context, bucket, key string) (map[string]string, error) {
	head, err := s.client.HeadObject(ctx, bucket, key)
	if err != nil {
		return nil, err
	}
	return head.Metadata, nil
}

func (s *Store) Put(ctx context.Context, obj storage.Object) error {
	return s.client.PutObject(ctx, s3.PutInput{
		Bucket:       obj.Bucket,
		Key:          obj.Key,
		Body:         obj.Body,
		ContentType:  obj.ContentType,
		CacheControl: obj.CacheControl,
		Metadata:     obj.Metadata,
		PublicRead:   obj.PublicRead,
	})
}

func (s *Store) IsNotFound(err error) bool {
	return s3.IsNotFound(err)
}

// ClientOptions reads the aws.* keys of cfg. Endpoint and static credentials fall back
// to the S3_* environment variables when the configuration leaves them out.
func ClientOptions(cfg storage.Config) s3.Options {
	opts := s3.Options{
		Region:         cfg.String("aws.region"),
		Endpoint:       cfg.String("aws.endpoint"),
		AccessKey:      cfg.String("aws.credentials.key"),
		SecretKey:      cfg.String("aws.credentials.secret"),
		Profile:        cfg.String("aws.profile"),
		ForcePathStyle: cfg.Bool("aws.path-style"),
		DisableTLS:     cfg.Bool("aws.disable-tls"),
	}
	env := s3.OptionsFromEnv()
	if opts.Endpoint == "" && env.Endpoint != "" {
		opts.Endpoint = env.Endpoint
		opts.ForcePathStyle = opts.ForcePathStyle || env.ForcePathStyle
		opts.DisableTLS = opts.DisableTLS || env.DisableTLS
	}
	if opts.AccessKey == "" && opts.SecretKey == "" && opts.Profile == "" {
		opts.AccessKey, opts.SecretKey = env.AccessKey, env.SecretKey
	}
	if v := cfg.String("aws.timeout"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			opts.Timeout = d
		} else if secs, err := strconv.Atoi(v); err == nil {
			opts.Timeout = time.Duration(secs) * time.Second
		}
	}
	return opts
}

// FromConfig builds an S3 adapter. aws.region, bucket and url are required. The S3
// client is created on the first push.
func FromConfig(raw map[string]any) (storage.Adapter, error) {
	cfg := storage.Config(raw)
	if err := cfg.Require(Name, "aws.region"); err != nil {
		return nil, err
	}
	settings, err := cfg.Settings(Name)
	if err != nil {
		return nil, err
	}

	opts := ClientOptions(cfg)
	store := storage.NewLazy(func(ctx context.Context) (storage.ObjectStore, error) {
		client, err := s3.NewClient(ctx, opts)
		if err != nil {
			return nil, err
		}
		return NewStore(client), nil
	})
	return storage.NewObjectAdapter(store, settings)
}

// New returns an adapter over an existing client.
func New(client *s3.Client, settings storage.Settings) (*storage.ObjectAdapter, error) {
	return storage.NewObjectAdapter(storage.Resolved[storage.ObjectStore](NewStore(client)), settings)
}
