package inventory

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"cdnsync/pkg/db"
)

// DefaultName names the inventory when several projects share one database.
const DefaultName = "default"

type fileRow struct {
	LocalPath string `db:"local_path"`
	Remote    string `db:"remote"`
	URL       string `db:"url"`
}

// PostgresBackend stores a named inventory in the inventory_roots/inventory_files
// tables created by db.Migrate.
type PostgresBackend struct {
	pool *pgxpool.Pool
	name string
}

// NewPostgresBackend returns a backend for the inventory called name.
func NewPostgresBackend(pool *pgxpool.Pool, name string) (*PostgresBackend, error) {
	if pool == nil {
		return nil, errors.New("database pool is required")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = DefaultName
	}
	return &PostgresBackend{pool: pool, name: name}, nil
}

// Name returns the inventory name.
func (b *PostgresBackend) Name() string { return b.name }

func (b *PostgresBackend) Read(ctx context.Context) (Data, error) {
	d := Data{Files: map[string]Entry{}}

	var root struct {
		Root *string `db:"root"`
	}
	err := db.Get(ctx, b.pool, &root, `SELECT root FROM inventory_roots WHERE name = $1`, b.name)
	if db.IsNoRows(err) {
		return d, nil
	}
	if err != nil {
		return Data{}, fmt.Errorf("select inventory root: %w", err)
	}
	d.Root = root.Root

	var rows []fileRow
	if err := db.Select(ctx, b.pool, &rows, `
SELECT local_path, remote, url
FROM inventory_files
WHERE inventory = $1
`, b.name); err != nil {
		return Data{}, fmt.Errorf("select inventory files: %w", err)
	}
	for _, r := range rows {
		d.Files[r.LocalPath] = Entry{Remote: r.Remote, URL: r.URL}
	}
	return d, nil
}

func (b *PostgresBackend) Write(ctx context.Context, d Data) error {
	return db.InTx(ctx, b.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
INSERT INTO inventory_roots (name, root, updated_at)
VALUES ($1, $2, now())
ON CONFLICT (name) DO UPDATE SET root = EXCLUDED.root, updated_at = now()
`, b.name, d.Root); err != nil {
			return fmt.Errorf("upsert inventory root: %w", err)
		}

		if _, err := tx.Exec(ctx, `DELETE FROM inventory_files WHERE inventory = $1`, b.name); err != nil {
			return fmt.Errorf("clear inventory files: %w", err)
		}
		if len(d.Files) == 0 {
			return nil
		}

		rows := make([][]any, 0, len(d.Files))
		for localPath, e := range d.Files {
			rows = append(rows, []any{b.name, localPath, e.Remote, e.URL})
		}
		if _, err := tx.CopyFrom(ctx,
			pgx.Identifier{"inventory_files"},
			[]string{"inventory", "local_path", "remote", "url"},
			pgx.CopyFromRows(rows),
		); err != nil {
			return fmt.Errorf("copy inventory files: %w", err)
		}
		return nil
	})
}
