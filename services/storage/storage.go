// Package storage defines the adapter contract used by the publish walk and the object
// store algorithm shared by every bucket-style backend.
package storage

import "context"

// RemoteFile is the remote identity of a pushed file. URL is scheme-less (host/path).
type RemoteFile struct {
	RemoteName string
	URL        string
	// Uploaded is false when the remote copy was already current and the upload was skipped.
	Uploaded bool
}

// Adapter publishes single files to a remote distribution store.
type Adapter interface {
	// PushFile publishes content under filename, which is relative to the adapter root.
	// Backend failures are returned as *cdnerr.TransportError.
	PushFile(ctx context.Context, filename string, content []byte, contentType string, forceUpdate bool) (RemoteFile, error)
}

// Factory builds an Adapter from a decoded configuration map. Invalid configuration is
// reported as *cdnerr.ConfigurationError.
type Factory func(cfg map[string]any) (Adapter, error)
