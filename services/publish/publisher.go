// Package publish walks local asset directories, pushes every file through a storage
// adapter and records the results in an inventory.
package publish

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"cdnsync/pkg/cdnerr"
	"cdnsync/pkg/pathutil"
	"cdnsync/pkg/telemetry"
	"cdnsync/services/inventory"
	"cdnsync/services/storage"
)

// Summary counts the files handled by one or more Publish calls.
type Summary struct {
	Files    int `json:"files"`
	Uploaded int `json:"uploaded"`
	Skipped  int `json:"skipped"`
}

func (s *Summary) add(o Summary) {
	s.Files += o.Files
	s.Uploaded += o.Uploaded
	s.Skipped += o.Skipped
}

// Publisher pushes directories through adapters. A file already handled by the same
// Publisher is never pushed again, so overlapping directories publish each file once.
type Publisher struct {
	inv     *inventory.Inventory
	root    string
	workers int
	logger  *log.Logger
	metrics *Metrics

	mu   sync.Mutex
	seen map[string]struct{}
}

// Option customizes a Publisher.
type Option func(*Publisher)

// WithWorkers sets how many files are pushed concurrently. Values below 2 keep the walk
// sequential.
func WithWorkers(n int) Option {
	return func(p *Publisher) { p.workers = n }
}

// WithLogger sets the logger used for per-file progress lines.
func WithLogger(l *log.Logger) Option {
	return func(p *Publisher) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithMetrics records push outcomes in m.
func WithMetrics(m *Metrics) Option {
	return func(p *Publisher) { p.metrics = m }
}

// NewPublisher returns a Publisher writing to inv. Inventory keys are relative to root;
// with an empty root they are absolute paths.
func NewPublisher(inv *inventory.Inventory, root string, opts ...Option) (*Publisher, error) {
	if inv == nil {
		return nil, errors.New("inventory is required")
	}
	if root != "" {
		abs, err := filepath.Abs(root)
		if err != nil {
			return nil, fmt.Errorf("resolve root %q: %w", root, err)
		}
		root = filepath.ToSlash(abs)
	}
	p := &Publisher{
		inv:     inv,
		root:    root,
		workers: 1,
		logger:  telemetry.Discard(),
		seen:    make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Root returns the absolute directory inventory keys are relative to.
func (p *Publisher) Root() string { return p.root }

type job struct {
	abs    string
	rel    string
	invKey string
}

// Publish pushes every regular file below dirs through adapter. The adapter receives
// the path relative to the directory the file was found in; the inventory key is the
// path relative to the publisher root. The first error aborts the run.
func (p *Publisher) Publish(ctx context.Context, dirs []string, adapter storage.Adapter, forceUpdate bool) (Summary, error) {
	if adapter == nil {
		return Summary{}, errors.New("adapter is required")
	}
	ctx, span := telemetry.Tracer().Start(ctx, "publish.Publish")
	defer span.End()

	var total Summary
	for _, dir := range dirs {
		jobs, err := p.collect(ctx, dir)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "walk")
			p.metrics.observeError()
			return total, err
		}
		sum, err := p.run(ctx, jobs, adapter, forceUpdate)
		total.add(sum)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "push")
			p.metrics.observeError()
			return total, err
		}
	}
	span.SetAttributes(
		attribute.Int("cdnsync.files", total.Files),
		attribute.Int("cdnsync.uploaded", total.Uploaded),
	)
	return total, nil
}

func (p *Publisher) collect(ctx context.Context, dir string) ([]job, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, &cdnerr.IOError{Path: dir, Err: err}
	}
	base := filepath.ToSlash(absDir)

	var jobs []job
	err = filepath.WalkDir(absDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return &cdnerr.IOError{Path: filepath.ToSlash(path), Err: err}
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}

		abs := filepath.ToSlash(path)
		if !p.claim(abs) {
			return nil
		}
		jobs = append(jobs, job{
			abs:    abs,
			rel:    pathutil.RelativeTo(abs, base),
			invKey: pathutil.RelativeTo(abs, p.root),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return jobs, nil
}

func (p *Publisher) claim(abs string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.seen[abs]; ok {
		return false
	}
	p.seen[abs] = struct{}{}
	return true
}

func (p *Publisher) run(ctx context.Context, jobs []job, adapter storage.Adapter, forceUpdate bool) (Summary, error) {
	var (
		mu  sync.Mutex
		sum Summary
	)
	record := func(rf storage.RemoteFile) {
		mu.Lock()
		defer mu.Unlock()
		sum.Files++
		if rf.Uploaded {
			sum.Uploaded++
		} else {
			sum.Skipped++
		}
	}

	if p.workers < 2 {
		for _, j := range jobs {
			rf, err := p.push(ctx, j, adapter, forceUpdate)
			if err != nil {
				return sum, err
			}
			record(rf)
		}
		return sum, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for _, j := range jobs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rf, err := p.push(gctx, j, adapter, forceUpdate)
			if err != nil {
				return err
			}
			record(rf)
			return nil
		})
	}
	err := g.Wait()
	return sum, err
}

func (p *Publisher) push(ctx context.Context, j job, adapter storage.Adapter, forceUpdate bool) (storage.RemoteFile, error) {
	content, err := os.ReadFile(j.abs)
	if err != nil {
		return storage.RemoteFile{}, &cdnerr.IOError{Path: j.abs, Err: err}
	}

	rf, err := adapter.PushFile(ctx, j.rel, content, pathutil.ContentType(j.abs), forceUpdate)
	if err != nil {
		return storage.RemoteFile{}, err
	}
	if err := p.inv.Put(ctx, j.invKey, rf.RemoteName, rf.URL); err != nil {
		return storage.RemoteFile{}, err
	}

	p.metrics.observe(rf.Uploaded)
	if rf.Uploaded {
		p.logger.Printf("INFO uploaded %s -> %s", j.invKey, rf.URL)
	} else {
		p.logger.Printf("DEBUG unchanged %s", j.invKey)
	}
	return rf, nil
}
