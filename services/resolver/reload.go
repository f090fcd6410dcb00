package resolver

import (
	"context"
	"errors"
	"io"
	"log"

	"cdnsync/pkg/bus"
	"cdnsync/pkg/telemetry"
	"cdnsync/services/inventory"
)

// Source opens a fresh inventory from its backend.
type Source func(ctx context.Context) (*inventory.Inventory, error)

// Subscriber delivers inventory update events. *bus.Bus implements it.
type Subscriber interface {
	SubscribeInventoryUpdated(ctx context.Context, durable string, fn func(context.Context, bus.InventoryUpdated) error) (io.Closer, error)
}

// Reloader swaps the resolver inventory for a freshly read one.
type Reloader struct {
	resolver *Resolver
	source   Source
	name     string
	logger   *log.Logger
}

// NewReloader returns a Reloader for the inventory called name.
func NewReloader(r *Resolver, source Source, name string, logger *log.Logger) (*Reloader, error) {
	if r == nil {
		return nil, errors.New("resolver is required")
	}
	if source == nil {
		return nil, errors.New("inventory source is required")
	}
	if logger == nil {
		logger = telemetry.Discard()
	}
	return &Reloader{resolver: r, source: source, name: name, logger: logger}, nil
}

// Reload reads the inventory again and activates it. On failure the previous inventory
// stays active.
func (rl *Reloader) Reload(ctx context.Context) error {
	inv, err := rl.source(ctx)
	if err != nil {
		return err
	}
	if err := rl.resolver.LoadInventory(ctx, inv); err != nil {
		return err
	}
	rl.logger.Printf("INFO inventory %s reloaded", rl.name)
	return nil
}

// Watch reloads whenever a publish run announces a new version of this inventory.
// Events for other inventories are ignored. The subscription ends with ctx.
func (rl *Reloader) Watch(ctx context.Context, sub Subscriber) (io.Closer, error) {
	if sub == nil {
		return nil, errors.New("subscriber is required")
	}
	return sub.SubscribeInventoryUpdated(ctx, "", func(ctx context.Context, evt bus.InventoryUpdated) error {
		if rl.name != "" && evt.Inventory != "" && evt.Inventory != rl.name {
			return nil
		}
		if err := rl.Reload(ctx); err != nil {
			rl.logger.Printf("ERROR reload after run %s: %v", evt.RunID, err)
			return err
		}
		return nil
	})
}
