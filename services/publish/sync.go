package publish

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"cdnsync/pkg/bus"
	"cdnsync/pkg/pathutil"
	"cdnsync/pkg/render"
	"cdnsync/pkg/telemetry"
	"cdnsync/services/config"
	"cdnsync/services/inventory"
)

// Notifier announces rewritten inventories. *bus.Bus implements it.
type Notifier interface {
	PublishInventoryUpdated(ctx context.Context, evt bus.InventoryUpdated) error
}

// SyncOptions configures a project sync. Only Inventory is required.
type SyncOptions struct {
	Inventory *inventory.Inventory
	Registry  *Registry
	Force     bool
	Workers   int
	// Protocol is written to the bootstrap file as the resolver default.
	Protocol string
	Notifier Notifier
	Recorder RunRecorder
	Logger   *log.Logger
	Metrics  *Metrics
	Now      func() time.Time
}

// Result describes a finished sync.
type Result struct {
	RunID     uuid.UUID
	Summary   Summary
	Bootstrap string
}

// Sync publishes every path of a project. The inventory is cleared first and stamped
// with the project root, each path is pushed through the adapter its configuration
// names, and the resolver bootstrap file is rewritten at the end.
func Sync(ctx context.Context, project *config.Project, opts SyncOptions) (Result, error) {
	if project == nil {
		return Result{}, errors.New("project is required")
	}
	if opts.Inventory == nil {
		return Result{}, errors.New("inventory is required")
	}
	if opts.Registry == nil {
		opts.Registry = DefaultRegistry()
	}
	if opts.Logger == nil {
		opts.Logger = telemetry.Discard()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	ctx, span := telemetry.Tracer().Start(ctx, "publish.Sync")
	defer span.End()

	res := Result{RunID: uuid.New()}
	started := opts.Now()
	if opts.Recorder != nil {
		if err := opts.Recorder.Start(ctx, res.RunID, project.InventoryID(), started); err != nil {
			return res, fmt.Errorf("record run start: %w", err)
		}
	}

	sum, err := syncTargets(ctx, project, opts)
	res.Summary = sum
	if err != nil {
		opts.Logger.Printf("ERROR publish run %s failed after %d files: %v", res.RunID, sum.Files, err)
		finishRun(ctx, opts, res.RunID, sum, err, nil)
		return res, err
	}

	res.Bootstrap = project.BootstrapPath()
	if err := writeBootstrap(project, opts, started); err != nil {
		finishRun(ctx, opts, res.RunID, sum, err, nil)
		return res, err
	}

	if opts.Notifier != nil {
		root := ""
		if r := project.RootDirRelative(); r != nil {
			root = *r
		}
		evt := bus.InventoryUpdated{
			RunID:     res.RunID.String(),
			Inventory: project.InventoryID(),
			Root:      root,
			Files:     sum.Files,
			Uploaded:  sum.Uploaded,
			At:        opts.Now().UTC(),
		}
		if err := opts.Notifier.PublishInventoryUpdated(ctx, evt); err != nil {
			err = fmt.Errorf("announce inventory update: %w", err)
			finishRun(ctx, opts, res.RunID, sum, err, nil)
			return res, err
		}
	}

	details := map[string]any{
		"config":    project.File(),
		"bootstrap": res.Bootstrap,
		"paths":     len(project.Paths),
		"duration":  opts.Now().Sub(started).String(),
	}
	if opts.Recorder != nil {
		if err := opts.Recorder.Finish(ctx, res.RunID, sum, nil, details); err != nil {
			return res, fmt.Errorf("record run finish: %w", err)
		}
	}
	opts.Logger.Printf("INFO publish run %s done: %d files, %d uploaded, %d unchanged", res.RunID, sum.Files, sum.Uploaded, sum.Skipped)
	return res, nil
}

func syncTargets(ctx context.Context, project *config.Project, opts SyncOptions) (Summary, error) {
	if err := opts.Inventory.Clear(ctx, project.RootDirRelative()); err != nil {
		return Summary{}, err
	}

	pub, err := NewPublisher(opts.Inventory, project.RootDirPath(),
		WithWorkers(opts.Workers),
		WithLogger(opts.Logger),
		WithMetrics(opts.Metrics),
	)
	if err != nil {
		return Summary{}, err
	}

	var total Summary
	for _, target := range project.Targets() {
		adapter, err := opts.Registry.Build(target.Adapter, target.Config)
		if err != nil {
			return total, fmt.Errorf("path %s: %w", target.Dir, err)
		}
		opts.Logger.Printf("INFO publishing %s with %s adapter", target.Dir, target.Adapter)
		sum, err := pub.Publish(ctx, []string{target.Dir}, adapter, opts.Force)
		total.add(sum)
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func finishRun(ctx context.Context, opts SyncOptions, id uuid.UUID, sum Summary, runErr error, details map[string]any) {
	if opts.Recorder == nil {
		return
	}
	if err := opts.Recorder.Finish(ctx, id, sum, runErr, details); err != nil {
		opts.Logger.Printf("WARN record run %s: %v", id, err)
	}
}

func writeBootstrap(project *config.Project, opts SyncOptions, at time.Time) error {
	engine, err := render.New()
	if err != nil {
		return err
	}

	protocol := opts.Protocol
	if protocol == "" {
		protocol = "http"
	}
	vendor := project.VendorDirPath()
	data := map[string]any{
		"GeneratedAt": at,
		"Backend":     project.Backend(),
		"Path":        "",
		"Name":        "",
		"Root":        "",
		"Protocol":    protocol,
		"Bypass":      false,
	}
	if project.Backend() == config.BackendPostgres {
		data["Name"] = project.InventoryID()
	} else {
		data["Path"] = pathutil.RelativeTo(project.InventoryPath(), vendor)
	}
	if r := project.RootDirRelative(); r != nil {
		data["Root"] = *r
	}

	out, err := engine.Render("bootstrap.yaml", data)
	if err != nil {
		return fmt.Errorf("render bootstrap: %w", err)
	}
	file := project.BootstrapPath()
	if err := os.MkdirAll(filepath.Dir(file), 0o755); err != nil {
		return fmt.Errorf("create vendor dir: %w", err)
	}
	if err := os.WriteFile(file, []byte(out), 0o644); err != nil {
		return fmt.Errorf("write bootstrap: %w", err)
	}
	return nil
}
