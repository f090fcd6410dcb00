package config

import (
	"bytes"
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// PathEntry is one entry of the paths setting.
type PathEntry struct {
	Dir    string
	Config map[string]any
}

// Paths keeps the configured directories in file order. It decodes from either a list
// of directories or a map from directory to adapter configuration.
type Paths []PathEntry

func (p *Paths) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*p = nil
		return nil
	case len(data) > 0 && data[0] == '[':
		var dirs []string
		if err := json.Unmarshal(data, &dirs); err != nil {
			return fmt.Errorf("paths: %w", err)
		}
		*p = fromDirs(dirs)
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("paths: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("paths: expected a list or an object")
	}
	var out Paths
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("paths: %w", err)
		}
		dir, _ := tok.(string)
		var cfg map[string]any
		if err := dec.Decode(&cfg); err != nil {
			return fmt.Errorf("paths.%s: %w", dir, err)
		}
		out = append(out, PathEntry{Dir: dir, Config: cfg})
	}
	*p = out
	return nil
}

func (p *Paths) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.SequenceNode:
		var dirs []string
		if err := node.Decode(&dirs); err != nil {
			return fmt.Errorf("paths: %w", err)
		}
		*p = fromDirs(dirs)
		return nil
	case yaml.MappingNode:
		out := make(Paths, 0, len(node.Content)/2)
		for i := 0; i+1 < len(node.Content); i += 2 {
			var cfg map[string]any
			if err := node.Content[i+1].Decode(&cfg); err != nil {
				return fmt.Errorf("paths.%s: %w", node.Content[i].Value, err)
			}
			out = append(out, PathEntry{Dir: node.Content[i].Value, Config: cfg})
		}
		*p = out
		return nil
	default:
		return fmt.Errorf("paths: expected a list or a map")
	}
}

func fromDirs(dirs []string) Paths {
	out := make(Paths, 0, len(dirs))
	for _, d := range dirs {
		out = append(out, PathEntry{Dir: d})
	}
	return out
}
