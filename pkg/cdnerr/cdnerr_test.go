package cdnerr

import (
	"errors"
	"fmt"
	"io/fs"
	"testing"
)

func TestErrorMessages(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "missing field",
			err:  Missing("s3 adapter", "bucket"),
			want: "s3 adapter: bucket is required",
		},
		{
			name: "field with message",
			err:  &ConfigurationError{Component: "config", Field: "paths", Msg: "must be a list or map"},
			want: "config: paths: must be a list or map",
		},
		{
			name: "message only",
			err:  &ConfigurationError{Component: "resolver", Msg: "no inventory loaded"},
			want: "resolver: no inventory loaded",
		},
		{
			name: "not published",
			err:  &NotPublishedError{Path: "unknown.png"},
			want: `file "unknown.png" not published to CDN`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Fatalf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestUnwrap(t *testing.T) {
	ioErr := fmt.Errorf("publish: %w", &IOError{Path: "/tmp/a.css", Err: fs.ErrPermission})
	if !errors.Is(ioErr, fs.ErrPermission) {
		t.Fatalf("expected IOError to unwrap to fs.ErrPermission")
	}
	var target *IOError
	if !errors.As(ioErr, &target) || target.Path != "/tmp/a.css" {
		t.Fatalf("errors.As IOError failed: %v", ioErr)
	}

	cause := errors.New("access denied")
	tErr := &TransportError{Op: "head", Key: "img/a.png", Err: cause}
	if !errors.Is(tErr, cause) {
		t.Fatalf("expected TransportError to unwrap to cause")
	}
}
