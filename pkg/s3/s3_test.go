package s3

import (
	"errors"
	"fmt"
	"testing"

	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

func TestIsNotFound(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "modelled not found", err: &s3types.NotFound{}, want: true},
		{name: "no such key", err: &s3types.NoSuchKey{}, want: true},
		{name: "wrapped generic not found", err: fmt.Errorf("head: %w", &smithy.GenericAPIError{Code: "NotFound"}), want: true},
		{name: "access denied", err: &smithy.GenericAPIError{Code: "AccessDenied"}, want: false},
		{name: "plain error", err: errors.New("connection reset"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsNotFound(tt.err); got != tt.want {
				t.Fatalf("IsNotFound(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestNormalizeEndpoint(t *testing.T) {
	tests := []struct {
		endpoint   string
		disableTLS bool
		want       string
	}{
		{endpoint: "", want: ""},
		{endpoint: "seaweed:8333", want: "https://seaweed:8333"},
		{endpoint: "seaweed:8333", disableTLS: true, want: "http://seaweed:8333"},
		{endpoint: "http://minio:9000", want: "http://minio:9000"},
	}

	for _, tt := range tests {
		if got := normalizeEndpoint(tt.endpoint, tt.disableTLS); got != tt.want {
			t.Fatalf("normalizeEndpoint(%q, %v) = %q, want %q", tt.endpoint, tt.disableTLS, got, tt.want)
		}
	}
}

func TestOptionsFromEnv(t *testing.T) {
	t.Setenv("S3_REGION", "")
	t.Setenv("S3_ENDPOINT", "localhost:8333")
	t.Setenv("S3_FORCE_PATH_STYLE", "")
	t.Setenv("S3_DISABLE_TLS", "true")

	opts := OptionsFromEnv()
	if opts.Region != "us-east-1" {
		t.Fatalf("Region = %q", opts.Region)
	}
	if !opts.ForcePathStyle {
		t.Fatalf("expected path style when an endpoint is configured")
	}
	if !opts.DisableTLS {
		t.Fatalf("expected DisableTLS")
	}
}
