package publish

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"cdnsync/pkg/cdnerr"
	"cdnsync/services/storage"
	"cdnsync/services/storage/minioadapter"
	"cdnsync/services/storage/s3adapter"
)

// Registry maps adapter names from the project file to factories. Names are matched
// case-insensitively.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]storage.Factory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]storage.Factory)}
}

// DefaultRegistry returns a registry with the built-in S3 and MinIO adapters.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(s3adapter.Name, s3adapter.FromConfig)
	r.Register(minioadapter.Name, minioadapter.FromConfig)
	return r
}

// Register adds or replaces the factory for name.
func (r *Registry) Register(name string, f storage.Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[strings.ToLower(name)] = f
}

// Names returns the registered adapter names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for n := range r.factories {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Build creates the adapter called name from cfg.
func (r *Registry) Build(name string, cfg map[string]any) (storage.Adapter, error) {
	r.mu.RLock()
	f, ok := r.factories[strings.ToLower(name)]
	r.mu.RUnlock()
	if !ok {
		return nil, &cdnerr.ConfigurationError{
			Component: "publish",
			Field:     "adapter",
			Msg:       fmt.Sprintf("unknown adapter %q", name),
		}
	}
	return f(cfg)
}
