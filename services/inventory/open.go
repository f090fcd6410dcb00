package inventory

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Backend kinds accepted by Open.
const (
	KindFile     = "file"
	KindPostgres = "postgres"
)

// Open returns the backend of the given kind. path is used by file backends, name and
// pool by postgres backends.
func Open(kind, path, name string, pool *pgxpool.Pool) (Backend, error) {
	switch kind {
	case "", KindFile:
		return NewFileBackend(path)
	case KindPostgres:
		if pool == nil {
			return nil, errors.New("postgres inventory needs DATABASE_URL")
		}
		return NewPostgresBackend(pool, name)
	default:
		return nil, fmt.Errorf("unknown inventory backend %q", kind)
	}
}
