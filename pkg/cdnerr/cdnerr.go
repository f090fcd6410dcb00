// Package cdnerr holds the error taxonomy shared by the publish and resolve paths.
// Every type works with errors.As; wrapped causes are reachable through Unwrap.
package cdnerr

import "fmt"

// ConfigurationError reports missing or invalid adapter or resolver configuration.
type ConfigurationError struct {
	Component string
	Field     string
	Msg       string
}

func (e *ConfigurationError) Error() string {
	switch {
	case e.Field != "" && e.Msg != "":
		return fmt.Sprintf("%s: %s: %s", e.Component, e.Field, e.Msg)
	case e.Field != "":
		return fmt.Sprintf("%s: %s is required", e.Component, e.Field)
	default:
		return fmt.Sprintf("%s: %s", e.Component, e.Msg)
	}
}

// Missing is shorthand for a ConfigurationError naming a required field.
func Missing(component, field string) *ConfigurationError {
	return &ConfigurationError{Component: component, Field: field}
}

// IOError reports a local file that could not be read during a publish run.
type IOError struct {
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("read %q: %v", e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// TransportError reports a remote backend failure other than "object not found".
type TransportError struct {
	Op  string
	Key string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %q: %v", e.Op, e.Key, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// NotPublishedError is returned when a local path has no inventory entry.
type NotPublishedError struct {
	Path string
}

func (e *NotPublishedError) Error() string {
	return fmt.Sprintf("file %q not published to CDN", e.Path)
}
