package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"cdnsync/pkg/pathutil"
)

// Bootstrap is the resolver bootstrap file written by a publish run.
type Bootstrap struct {
	GeneratedAt string `yaml:"generated_at"`
	Inventory   struct {
		Backend string `yaml:"backend"`
		Path    string `yaml:"path"`
		Name    string `yaml:"name"`
		Root    string `yaml:"root"`
	} `yaml:"inventory"`
	Resolver struct {
		Protocol string `yaml:"protocol"`
		Bypass   bool   `yaml:"bypass"`
	} `yaml:"resolver"`
}

// LoadBootstrap reads a bootstrap file. A relative inventory path is resolved against
// the bootstrap file's directory.
func LoadBootstrap(file string) (*Bootstrap, error) {
	raw, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("read bootstrap: %w", err)
	}
	var b Bootstrap
	if err := yaml.Unmarshal(raw, &b); err != nil {
		return nil, fmt.Errorf("decode bootstrap %s: %w", file, err)
	}
	if b.Inventory.Backend == "" {
		b.Inventory.Backend = BackendFile
	}
	if b.Inventory.Path != "" && pathutil.IsRelative(b.Inventory.Path) {
		dir, err := filepath.Abs(filepath.Dir(file))
		if err != nil {
			return nil, err
		}
		b.Inventory.Path = pathutil.Absolute(b.Inventory.Path, filepath.ToSlash(dir))
	}
	return &b, nil
}
