// Package resolver turns local asset paths into CDN URLs using a loaded inventory.
package resolver

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"

	"cdnsync/pkg/cdnerr"
	"cdnsync/services/inventory"
)

// DefaultProtocol is used until SetDefaultProtocol is called.
const DefaultProtocol = "http"

// Resolver resolves local paths against an inventory. The inventory can be replaced at
// any time; readers see either the old or the new one, never a mix.
type Resolver struct {
	inv atomic.Pointer[inventory.Inventory]

	mu       sync.RWMutex
	protocol string
	bypass   bool
}

// New returns a Resolver with no inventory loaded.
func New() *Resolver {
	return &Resolver{protocol: DefaultProtocol}
}

// LoadInventory reads inv and makes it the active inventory.
func (r *Resolver) LoadInventory(ctx context.Context, inv *inventory.Inventory) error {
	if inv == nil {
		return errors.New("inventory is required")
	}
	if err := inv.Load(ctx); err != nil {
		return err
	}
	r.inv.Store(inv)
	return nil
}

// Inventory returns the active inventory, or nil.
func (r *Resolver) Inventory() *inventory.Inventory {
	return r.inv.Load()
}

// URL returns the CDN URL of localFile. An empty protocol selects the default one. With
// bypass active localFile is returned unchanged.
func (r *Resolver) URL(ctx context.Context, localFile, protocol string) (string, error) {
	r.mu.RLock()
	bypass := r.bypass
	def := r.protocol
	r.mu.RUnlock()

	if bypass {
		return localFile, nil
	}
	inv := r.inv.Load()
	if inv == nil {
		return "", &cdnerr.ConfigurationError{Component: "resolver", Msg: "no CDN inventory loaded"}
	}
	if protocol == "" {
		protocol = def
	}

	url, ok, err := inv.URL(ctx, localFile)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", &cdnerr.NotPublishedError{Path: localFile}
	}
	return protocol + "://" + url, nil
}

// Bypass toggles bypass mode.
func (r *Resolver) Bypass(active bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bypass = active
}

// Bypassed reports whether bypass mode is active.
func (r *Resolver) Bypassed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.bypass
}

// SetDefaultProtocol sets the protocol used when URL is called without one. A trailing
// "://" is ignored; an empty value restores the default.
func (r *Resolver) SetDefaultProtocol(p string) {
	p = strings.TrimSuffix(strings.TrimSpace(p), "://")
	if p == "" {
		p = DefaultProtocol
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.protocol = p
}

// DefaultProtocol returns the protocol used when URL is called without one.
func (r *Resolver) DefaultProtocol() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.protocol
}
