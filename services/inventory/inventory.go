// Package inventory records, for every published local asset, the remote name and the
// scheme-less URL it was published under.
//
// Inventory owns lazy loading, caching and write-through; a Backend only knows how to
// read and write the full data set. Every mutation rewrites the whole set, so a crash
// mid-run leaves the prefix of files recorded so far. Writers are expected to be
// single-process build tooling: nothing coordinates two publish runs sharing a backend.
package inventory

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Entry is the remote identity of one local file.
type Entry struct {
	Remote string `json:"remote" yaml:"remote"`
	URL    string `json:"url" yaml:"url"`
}

// Data is the persisted inventory record.
type Data struct {
	Root  *string          `json:"root" yaml:"root"`
	Files map[string]Entry `json:"files" yaml:"files"`
}

// Clone returns a deep copy of d.
func (d Data) Clone() Data {
	out := Data{Files: make(map[string]Entry, len(d.Files))}
	if d.Root != nil {
		root := *d.Root
		out.Root = &root
	}
	for k, v := range d.Files {
		out.Files[k] = v
	}
	return out
}

// Backend persists inventory data.
type Backend interface {
	// Read returns the stored data, or empty data when nothing was stored yet.
	Read(ctx context.Context) (Data, error)
	// Write replaces the stored data with d.
	Write(ctx context.Context, d Data) error
}

// Inventory is a lazily loaded, write-through view over a Backend. It is safe for
// concurrent use; mutations are serialized.
type Inventory struct {
	backend Backend

	mu     sync.RWMutex
	loaded bool
	data   Data
}

// New returns an Inventory backed by b. Nothing is read until the first access.
func New(b Backend) (*Inventory, error) {
	if b == nil {
		return nil, errors.New("inventory backend is required")
	}
	return &Inventory{backend: b}, nil
}

// Load reads the backend if that has not happened yet.
func (inv *Inventory) Load(ctx context.Context) error {
	inv.mu.RLock()
	loaded := inv.loaded
	inv.mu.RUnlock()
	if loaded {
		return nil
	}

	inv.mu.Lock()
	defer inv.mu.Unlock()
	return inv.loadLocked(ctx)
}

func (inv *Inventory) loadLocked(ctx context.Context) error {
	if inv.loaded {
		return nil
	}
	d, err := inv.backend.Read(ctx)
	if err != nil {
		return fmt.Errorf("read inventory: %w", err)
	}
	if d.Files == nil {
		d.Files = map[string]Entry{}
	}
	inv.data = d
	inv.loaded = true
	return nil
}

func (inv *Inventory) writeLocked(ctx context.Context) error {
	if err := inv.backend.Write(ctx, inv.data.Clone()); err != nil {
		return fmt.Errorf("write inventory: %w", err)
	}
	return nil
}

// Root returns the base directory entries are relative to, if one was recorded.
func (inv *Inventory) Root(ctx context.Context) (string, bool, error) {
	if err := inv.Load(ctx); err != nil {
		return "", false, err
	}
	inv.mu.RLock()
	defer inv.mu.RUnlock()
	if inv.data.Root == nil || *inv.data.Root == "" {
		return "", false, nil
	}
	return *inv.data.Root, true, nil
}

// Put upserts the entry for localPath and persists the inventory.
func (inv *Inventory) Put(ctx context.Context, localPath, remoteName, url string) error {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	if err := inv.loadLocked(ctx); err != nil {
		return err
	}
	prev, had := inv.data.Files[localPath]
	inv.data.Files[localPath] = Entry{Remote: remoteName, URL: url}
	if err := inv.writeLocked(ctx); err != nil {
		if had {
			inv.data.Files[localPath] = prev
		} else {
			delete(inv.data.Files, localPath)
		}
		return err
	}
	return nil
}

// Merge upserts every entry of other in a single write. other's root is ignored.
func (inv *Inventory) Merge(ctx context.Context, other Data) error {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	if err := inv.loadLocked(ctx); err != nil {
		return err
	}
	prev := make(map[string]Entry, len(inv.data.Files))
	for k, v := range inv.data.Files {
		prev[k] = v
	}
	for k, v := range other.Files {
		inv.data.Files[k] = v
	}
	if err := inv.writeLocked(ctx); err != nil {
		inv.data.Files = prev
		return err
	}
	return nil
}

// URL returns the stored URL for localPath. Missing and empty entries are absent.
func (inv *Inventory) URL(ctx context.Context, localPath string) (string, bool, error) {
	e, ok, err := inv.entry(ctx, localPath)
	if err != nil || !ok || e.URL == "" {
		return "", false, err
	}
	return e.URL, true, nil
}

// RemoteFile returns the remote name stored for localPath.
func (inv *Inventory) RemoteFile(ctx context.Context, localPath string) (string, bool, error) {
	e, ok, err := inv.entry(ctx, localPath)
	if err != nil || !ok || e.Remote == "" {
		return "", false, err
	}
	return e.Remote, true, nil
}

func (inv *Inventory) entry(ctx context.Context, localPath string) (Entry, bool, error) {
	if err := inv.Load(ctx); err != nil {
		return Entry{}, false, err
	}
	inv.mu.RLock()
	defer inv.mu.RUnlock()
	e, ok := inv.data.Files[localPath]
	return e, ok, nil
}

// Clear drops every entry, records root and persists the empty inventory.
func (inv *Inventory) Clear(ctx context.Context, root *string) error {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	if err := inv.loadLocked(ctx); err != nil {
		return err
	}
	var r *string
	if root != nil {
		v := *root
		r = &v
	}
	prev := inv.data
	inv.data = Data{Root: r, Files: map[string]Entry{}}
	if err := inv.writeLocked(ctx); err != nil {
		inv.data = prev
		return err
	}
	return nil
}

// Snapshot returns a copy of the loaded data.
func (inv *Inventory) Snapshot(ctx context.Context) (Data, error) {
	if err := inv.Load(ctx); err != nil {
		return Data{}, err
	}
	inv.mu.RLock()
	defer inv.mu.RUnlock()
	return inv.data.Clone(), nil
}
