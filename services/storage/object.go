package storage

import (
	"bytes"
	"context"
	"errors"
	"maps"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"cdnsync/pkg/cdnerr"
	"cdnsync/pkg/pathutil"
	"cdnsync/pkg/telemetry"
)

const (
	// MetaHash is the metadata key holding the content md5.
	MetaHash = "md5"
	// MetaCreated is the metadata key holding the upload timestamp.
	MetaCreated = "created"

	createdLayout = "2006-01-02 15:04:05"
)

// Object is a single upload request.
type Object struct {
	Bucket       string
	Key          string
	Body         []byte
	ContentType  string
	CacheControl string
	Metadata     map[string]string
	PublicRead   bool
}

// ObjectStore is the minimal bucket API an ObjectAdapter needs.
type ObjectStore interface {
	// Stat returns the user metadata of an existing object.
	Stat(ctx context.Context, bucket, key string) (map[string]string, error)
	// Put uploads obj, replacing any existing object under the same key.
	Put(ctx context.Context, obj Object) error
	// IsNotFound reports whether a Stat error means the object does not exist.
	IsNotFound(err error) bool
}

// Settings is the immutable configuration of an ObjectAdapter.
type Settings struct {
	Bucket string
	// RootDir prefixes every object key. A trailing slash is ignored.
	RootDir      string
	AppendHash   bool
	CacheControl string
	Metadata     Metadata
	// URLs are the scheme-less distribution hosts, e.g. "cdn1.example.com/assets".
	URLs []string
}

// Validate checks the settings every backend needs.
func (s Settings) Validate(component string) error {
	if strings.TrimSpace(s.Bucket) == "" {
		return cdnerr.Missing(component, "bucket")
	}
	if len(NormalizeHosts(s.URLs)) == 0 {
		return cdnerr.Missing(component, "url")
	}
	return nil
}

// ObjectAdapter publishes files to a bucket-style ObjectStore. It skips uploads whose
// content hash and additional metadata already match the remote object.
type ObjectAdapter struct {
	store    *Lazy[ObjectStore]
	settings Settings
	hosts    []string
	now      func() time.Time
}

// NewObjectAdapter returns an adapter over store. The store is resolved on first push.
func NewObjectAdapter(store *Lazy[ObjectStore], settings Settings) (*ObjectAdapter, error) {
	if store == nil {
		return nil, errors.New("object store is required")
	}
	if err := settings.Validate("storage"); err != nil {
		return nil, err
	}
	settings.RootDir = pathutil.TrimTrailingSlash(settings.RootDir)
	settings.URLs = NormalizeHosts(settings.URLs)
	return &ObjectAdapter{
		store:    store,
		settings: settings,
		hosts:    settings.URLs,
		now:      time.Now,
	}, nil
}

// Settings returns the adapter configuration with normalized root and hosts.
func (a *ObjectAdapter) Settings() Settings {
	s := a.settings
	s.URLs = append([]string(nil), a.hosts...)
	return s
}

// Key returns the object key for relKey.
func (a *ObjectAdapter) Key(relKey string) string {
	if a.settings.RootDir == "" {
		return relKey
	}
	return a.settings.RootDir + "/" + relKey
}

// PushFile implements Adapter.
func (a *ObjectAdapter) PushFile(ctx context.Context, filename string, content []byte, contentType string, forceUpdate bool) (RemoteFile, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "storage.PushFile")
	defer span.End()

	hash := ContentHash(content)
	relKey := filename
	if a.settings.AppendHash {
		relKey = AppendHash(filename, hash)
	}
	key := a.Key(relKey)
	span.SetAttributes(
		attribute.String("cdnsync.bucket", a.settings.Bucket),
		attribute.String("cdnsync.key", key),
		attribute.Bool("cdnsync.force", forceUpdate),
	)

	store, err := a.store.Get(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "resolve store")
		return RemoteFile{}, &cdnerr.TransportError{Op: "connect", Key: key, Err: err}
	}

	extra := a.settings.Metadata.Resolve(filename)

	published := false
	if !forceUpdate {
		live, err := store.Stat(ctx, a.settings.Bucket, key)
		switch {
		case err == nil:
			published = metadataMatches(live, hash, extra)
		case store.IsNotFound(err):
		default:
			span.RecordError(err)
			span.SetStatus(codes.Error, "stat")
			return RemoteFile{}, &cdnerr.TransportError{Op: "stat", Key: key, Err: err}
		}
	}

	if !published {
		meta := map[string]string{
			MetaHash:    hash,
			MetaCreated: a.now().Format(createdLayout),
		}
		maps.Copy(meta, extra)

		err := store.Put(ctx, Object{
			Bucket:       a.settings.Bucket,
			Key:          key,
			Body:         bytes.Clone(content),
			ContentType:  contentType,
			CacheControl: a.settings.CacheControl,
			Metadata:     meta,
			PublicRead:   true,
		})
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "put")
			return RemoteFile{}, &cdnerr.TransportError{Op: "put", Key: key, Err: err}
		}
	}
	span.SetAttributes(attribute.Bool("cdnsync.uploaded", !published))

	return RemoteFile{
		RemoteName: relKey,
		URL:        ShuffleDistributionURL(a.hosts, relKey) + relKey,
		Uploaded:   !published,
	}, nil
}

func metadataMatches(live map[string]string, hash string, extra map[string]string) bool {
	lower := make(map[string]string, len(live))
	for k, v := range live {
		lower[strings.ToLower(k)] = v
	}
	if got := lower[MetaHash]; got == "" || got != hash {
		return false
	}
	for k, want := range extra {
		if got, ok := lower[strings.ToLower(k)]; !ok || got != want {
			return false
		}
	}
	return true
}
