// Package config loads the cdnsync project file and the environment shared by the
// cdnsync binaries.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"path/filepath"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"cdnsync/pkg/pathutil"
	"cdnsync/services/inventory"
)

const (
	// DefaultVendorDir is used when vendor-dir is not configured.
	DefaultVendorDir = "vendor"
	// DefaultAdapter is the adapter name used when a path does not select one.
	DefaultAdapter = "S3"
	// BootstrapFileName is written into the vendor directory after each publish run.
	BootstrapFileName = "cdn.yaml"

	BackendFile     = inventory.KindFile
	BackendPostgres = inventory.KindPostgres
)

// Project is the content of a cdn.json or cdn.yaml project file. Relative paths are
// resolved against the directory holding the file.
type Project struct {
	VendorDir        string         `json:"vendor-dir" yaml:"vendor-dir"`
	InventoryDir     string         `json:"inventory-dir" yaml:"inventory-dir"`
	InventoryFile    string         `json:"inventory-file" yaml:"inventory-file"`
	InventoryBackend string         `json:"inventory-backend" yaml:"inventory-backend"`
	InventoryName    string         `json:"inventory-name" yaml:"inventory-name"`
	RootDir          string         `json:"root-dir" yaml:"root-dir"`
	DefaultConfig    map[string]any `json:"default-config" yaml:"default-config"`
	Paths            Paths          `json:"paths" yaml:"paths"`
	Protocol         string         `json:"protocol" yaml:"protocol"`

	file string
	base string
}

// Target is one configured directory with its effective adapter configuration.
type Target struct {
	// Dir is the absolute directory to publish.
	Dir     string
	Adapter string
	Config  map[string]any
}

// Load reads a project file. The format follows the extension: .yaml/.yml are YAML,
// anything else is JSON with comments and trailing commas allowed. A missing file
// yields an empty project rooted at the file's directory.
func Load(file string) (*Project, error) {
	abs, err := filepath.Abs(file)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}
	p := &Project{file: abs, base: filepath.ToSlash(filepath.Dir(abs))}

	raw, err := os.ReadFile(abs)
	if errors.Is(err, fs.ErrNotExist) {
		return p, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", abs, err)
	}
	if err := p.decode(abs, raw); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", abs, err)
	}
	return p, p.validate()
}

func (p *Project) decode(file string, raw []byte) error {
	switch strings.ToLower(filepath.Ext(file)) {
	case ".yaml", ".yml":
		return yaml.Unmarshal(raw, p)
	default:
		return json.Unmarshal(jsonc.ToJSON(raw), p)
	}
}

func (p *Project) validate() error {
	switch p.InventoryBackend {
	case "", BackendFile, BackendPostgres:
	default:
		return fmt.Errorf("unknown inventory-backend %q", p.InventoryBackend)
	}
	if p.InventoryFile != "" {
		if _, err := inventory.NewFileBackend(p.InventoryFile); err != nil {
			return err
		}
	}
	return nil
}

// File returns the absolute path of the project file.
func (p *Project) File() string { return p.file }

// BaseDir returns the directory relative paths are resolved against.
func (p *Project) BaseDir() string { return p.base }

// VendorDirPath returns the absolute vendor directory.
func (p *Project) VendorDirPath() string {
	dir := p.VendorDir
	if dir == "" {
		dir = DefaultVendorDir
	}
	return pathutil.Absolute(dir, p.base)
}

// InventoryDirPath returns the absolute directory holding the inventory file.
func (p *Project) InventoryDirPath() string {
	if p.InventoryDir != "" {
		return pathutil.Absolute(p.InventoryDir, p.base)
	}
	return p.VendorDirPath() + "/cdn"
}

// InventoryPath returns the absolute inventory file path.
func (p *Project) InventoryPath() string {
	name := p.InventoryFile
	if name == "" {
		name = inventory.DefaultFileName
	}
	if !pathutil.IsRelative(name) {
		return pathutil.Shrink(name)
	}
	return pathutil.Absolute(name, p.InventoryDirPath())
}

// Backend returns the configured inventory backend name.
func (p *Project) Backend() string {
	if p.InventoryBackend == "" {
		return BackendFile
	}
	return p.InventoryBackend
}

// InventoryID names the inventory in shared backends and run records.
func (p *Project) InventoryID() string {
	if strings.TrimSpace(p.InventoryName) == "" {
		return inventory.DefaultName
	}
	return strings.TrimSpace(p.InventoryName)
}

// OpenInventory opens the configured inventory backend. pool is only used by the
// postgres backend.
func (p *Project) OpenInventory(pool *pgxpool.Pool) (*inventory.Inventory, error) {
	b, err := inventory.Open(p.Backend(), p.InventoryPath(), p.InventoryID(), pool)
	if err != nil {
		return nil, err
	}
	return inventory.New(b)
}

// BootstrapPath returns where the resolver bootstrap file is written.
func (p *Project) BootstrapPath() string {
	return p.VendorDirPath() + "/" + BootstrapFileName
}

// RootDirPath returns the absolute directory inventory keys are relative to.
func (p *Project) RootDirPath() string {
	if p.RootDir == "" {
		return p.base
	}
	return pathutil.Absolute(p.RootDir, p.base)
}

// RootDirRelative returns root-dir as written in the file, or nil when unset.
func (p *Project) RootDirRelative() *string {
	if p.RootDir == "" {
		return nil
	}
	root := p.RootDir
	return &root
}

// Targets returns the configured directories in file order. Each adapter configuration
// is default-config overlaid with the path's own keys.
func (p *Project) Targets() []Target {
	out := make([]Target, 0, len(p.Paths))
	for _, entry := range p.Paths {
		cfg := make(map[string]any, len(p.DefaultConfig)+len(entry.Config))
		maps.Copy(cfg, p.DefaultConfig)
		maps.Copy(cfg, entry.Config)

		adapter := DefaultAdapter
		if name, ok := cfg["adapter"].(string); ok && strings.TrimSpace(name) != "" {
			adapter = strings.TrimSpace(name)
		}
		out = append(out, Target{
			Dir:     pathutil.Absolute(entry.Dir, p.base),
			Adapter: adapter,
			Config:  cfg,
		})
	}
	return out
}
