package inventory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
	"gopkg.in/yaml.v3"
)

// DefaultFileName is the inventory file written next to the vendor directory.
const DefaultFileName = "cdn_inventory.json"

type codec struct {
	marshal   func(Data) ([]byte, error)
	unmarshal func([]byte, *Data) error
}

var (
	jsonCodec = codec{
		marshal: func(d Data) ([]byte, error) {
			out, err := json.MarshalIndent(d, "", "  ")
			if err != nil {
				return nil, err
			}
			return append(out, '\n'), nil
		},
		unmarshal: func(b []byte, d *Data) error { return json.Unmarshal(b, d) },
	}
	yamlCodec = codec{
		marshal:   func(d Data) ([]byte, error) { return yaml.Marshal(d) },
		unmarshal: func(b []byte, d *Data) error { return yaml.Unmarshal(b, d) },
	}
	zstdJSONCodec = codec{
		marshal: func(d Data) ([]byte, error) {
			raw, err := json.Marshal(d)
			if err != nil {
				return nil, err
			}
			enc, err := zstd.NewWriter(nil)
			if err != nil {
				return nil, err
			}
			defer enc.Close()
			return enc.EncodeAll(raw, nil), nil
		},
		unmarshal: func(b []byte, d *Data) error {
			dec, err := zstd.NewReader(nil)
			if err != nil {
				return err
			}
			defer dec.Close()
			raw, err := dec.DecodeAll(b, nil)
			if err != nil {
				return fmt.Errorf("zstd: %w", err)
			}
			return json.Unmarshal(raw, d)
		},
	}
)

func codecFor(path string) (codec, error) {
	name := strings.ToLower(filepath.Base(path))
	switch {
	case strings.HasSuffix(name, ".json.zst"):
		return zstdJSONCodec, nil
	case strings.HasSuffix(name, ".json"):
		return jsonCodec, nil
	case strings.HasSuffix(name, ".yaml"), strings.HasSuffix(name, ".yml"):
		return yamlCodec, nil
	default:
		return codec{}, fmt.Errorf("unsupported inventory file extension: %s", name)
	}
}

// FileBackend stores the inventory in a single file. The format follows the file
// extension: .json, .yaml/.yml or .json.zst (zstd compressed JSON).
//
// Writes replace the file through a rename, so readers never see a torn file, but there
// is no lock: two concurrent writers silently lose each other's entries.
type FileBackend struct {
	path  string
	codec codec
}

// NewFileBackend returns a backend for path.
func NewFileBackend(path string) (*FileBackend, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("inventory file path is required")
	}
	c, err := codecFor(path)
	if err != nil {
		return nil, err
	}
	return &FileBackend{path: path, codec: c}, nil
}

// Path returns the inventory file location.
func (b *FileBackend) Path() string { return b.path }

func (b *FileBackend) Read(ctx context.Context) (Data, error) {
	if err := ctx.Err(); err != nil {
		return Data{}, err
	}
	raw, err := os.ReadFile(b.path)
	if errors.Is(err, fs.ErrNotExist) {
		return Data{Files: map[string]Entry{}}, nil
	}
	if err != nil {
		return Data{}, err
	}

	var d Data
	if err := b.codec.unmarshal(raw, &d); err != nil {
		return Data{}, fmt.Errorf("decode %s: %w", b.path, err)
	}
	if d.Files == nil {
		d.Files = map[string]Entry{}
	}
	return d, nil
}

func (b *FileBackend) Write(ctx context.Context, d Data) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if d.Files == nil {
		d.Files = map[string]Entry{}
	}
	raw, err := b.codec.marshal(d)
	if err != nil {
		return fmt.Errorf("encode inventory: %w", err)
	}

	dir := filepath.Dir(b.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create inventory dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(b.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp inventory: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp inventory: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp inventory: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, b.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace inventory: %w", err)
	}
	return nil
}
