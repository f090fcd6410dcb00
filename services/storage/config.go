package storage

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"cdnsync/pkg/cdnerr"
)

// Config is a decoded adapter configuration map as found in the project config file.
type Config map[string]any

// Lookup returns the value at a dotted path such as "aws.credentials.key".
func (c Config) Lookup(path string) (any, bool) {
	var cur any = map[string]any(c)
	for _, part := range strings.Split(path, ".") {
		m, ok := asMap(cur)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, cur != nil
}

// String returns the string at path. Scalars are formatted; maps and lists are absent.
func (c Config) String(path string) string {
	v, ok := c.Lookup(path)
	if !ok {
		return ""
	}
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case bool, int, int64, float64, uint64:
		return fmt.Sprint(t)
	default:
		return ""
	}
}

// Bool returns the boolean at path. Strings such as "true" or "1" are accepted.
func (c Config) Bool(path string) bool {
	v, ok := c.Lookup(path)
	if !ok {
		return false
	}
	switch t := v.(type) {
	case bool:
		return t
	case string:
		b, _ := strconv.ParseBool(strings.TrimSpace(t))
		return b
	case int:
		return t != 0
	case float64:
		return t != 0
	default:
		return false
	}
}

// Strings returns the value at path as a list. A single string becomes a one-element list.
func (c Config) Strings(path string) []string {
	v, ok := c.Lookup(path)
	if !ok {
		return nil
	}
	switch t := v.(type) {
	case string:
		if strings.TrimSpace(t) == "" {
			return nil
		}
		return []string{t}
	case []string:
		return append([]string(nil), t...)
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// StringMap returns the map at path with every value formatted as a string.
func (c Config) StringMap(path string) map[string]string {
	v, ok := c.Lookup(path)
	if !ok {
		return nil
	}
	m, ok := asMap(v)
	if !ok {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, val := range m {
		if val == nil {
			out[k] = ""
			continue
		}
		out[k] = fmt.Sprint(val)
	}
	return out
}

// Settings reads the keys shared by every object store backend: bucket, url, target-dir,
// append-hash, cache-control and metadata.
func (c Config) Settings(component string) (Settings, error) {
	s := Settings{
		Bucket:       c.String("bucket"),
		RootDir:      c.String("target-dir"),
		AppendHash:   c.Bool("append-hash"),
		CacheControl: c.String("cache-control"),
		URLs:         c.Strings("url"),
	}
	if meta := c.StringMap("metadata"); len(meta) > 0 {
		s.Metadata = StaticMetadata(meta)
	}
	if err := s.Validate(component); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// Require returns a ConfigurationError naming every path that has no string value.
func (c Config) Require(component string, paths ...string) error {
	var missing []string
	for _, p := range paths {
		if c.String(p) == "" {
			missing = append(missing, p)
		}
	}
	switch len(missing) {
	case 0:
		return nil
	case 1:
		return cdnerr.Missing(component, missing[0])
	default:
		sort.Strings(missing)
		return &cdnerr.ConfigurationError{Component: component, Msg: "missing " + strings.Join(missing, ", ")}
	}
}

func asMap(v any) (map[string]any, bool) {
	switch t := v.(type) {
	case map[string]any:
		return t, true
	case Config:
		return t, true
	default:
		return nil, false
	}
}
