package storage

import "maps"

// Metadata is additional object metadata: either a fixed map or a function of the
// pushed filename. The zero value resolves to no metadata.
type Metadata struct {
	static   map[string]string
	computed func(filename string) map[string]string
}

// StaticMetadata returns Metadata that always resolves to m.
func StaticMetadata(m map[string]string) Metadata {
	return Metadata{static: maps.Clone(m)}
}

// ComputedMetadata returns Metadata resolved by calling fn with the filename.
func ComputedMetadata(fn func(filename string) map[string]string) Metadata {
	return Metadata{computed: fn}
}

// IsZero reports whether m carries no metadata source.
func (m Metadata) IsZero() bool {
	return m.static == nil && m.computed == nil
}

// Resolve returns the metadata for filename. The result is always a fresh map.
func (m Metadata) Resolve(filename string) map[string]string {
	switch {
	case m.computed != nil:
		out := m.computed(filename)
		if out == nil {
			return map[string]string{}
		}
		return maps.Clone(out)
	case m.static != nil:
		return maps.Clone(m.static)
	default:
		return map[string]string{}
	}
}
