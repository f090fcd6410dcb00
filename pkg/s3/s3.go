package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// Options configures a Client. Zero values fall back to the AWS default credential
// chain and the public AWS endpoints.
type Options struct {
	Region         string
	Endpoint       string
	AccessKey      string
	SecretKey      string
	Profile        string
	ForcePathStyle bool
	DisableTLS     bool
	Timeout        time.Duration
}

// Client is a thin wrapper around the AWS SDK v2 S3 client exposing the calls the
// publish path needs.
type Client struct {
	api *s3.Client
}

// ObjectHead is the subset of HeadObject output used to reconcile metadata.
type ObjectHead struct {
	Metadata     map[string]string
	ContentType  string
	CacheControl string
	Size         int64
}

// PutInput describes a single public object upload.
type PutInput struct {
	Bucket       string
	Key          string
	Body         []byte
	ContentType  string
	CacheControl string
	Metadata     map[string]string
	PublicRead   bool
}

// NewClient initialises a Client from explicit options.
func NewClient(ctx context.Context, opts Options) (*Client, error) {
	if strings.TrimSpace(opts.Region) == "" {
		return nil, errors.New("s3: region is required")
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(opts.Region),
		awsconfig.WithHTTPClient(&http.Client{Timeout: timeout}),
	}
	if opts.AccessKey != "" || opts.SecretKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, ""),
		))
	}
	if opts.Profile != "" {
		loadOpts = append(loadOpts, awsconfig.WithSharedConfigProfile(opts.Profile))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, err
	}

	endpoint := normalizeEndpoint(opts.Endpoint, opts.DisableTLS)
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.UsePathStyle = opts.ForcePathStyle
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})

	return &Client{api: client}, nil
}

// OptionsFromEnv reads the S3_* environment variables into Options.
//
// Recognised environment variables:
//   - S3_REGION (default "us-east-1").
//   - S3_ENDPOINT: optional host:port or URL of an S3 compatible endpoint.
//   - S3_ACCESS_KEY / S3_SECRET_KEY: optional static credentials.
//   - S3_DISABLE_TLS (bool; default false) to toggle TLS usage on bare endpoints.
//   - S3_FORCE_PATH_STYLE (bool; default false unless S3_ENDPOINT is set).
func OptionsFromEnv() Options {
	region := os.Getenv("S3_REGION")
	if region == "" {
		region = "us-east-1"
	}
	opts := Options{
		Region:    region,
		Endpoint:  strings.TrimSpace(os.Getenv("S3_ENDPOINT")),
		AccessKey: os.Getenv("S3_ACCESS_KEY"),
		SecretKey: os.Getenv("S3_SECRET_KEY"),
	}
	opts.DisableTLS, _ = strconv.ParseBool(os.Getenv("S3_DISABLE_TLS"))
	opts.ForcePathStyle = opts.Endpoint != ""
	if v := strings.TrimSpace(os.Getenv("S3_FORCE_PATH_STYLE")); v != "" {
		if parsed, err := strconv.ParseBool(v); err == nil {
			opts.ForcePathStyle = parsed
		}
	}
	return opts
}

func normalizeEndpoint(endpoint string, disableTLS bool) string {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return ""
	}
	if strings.HasPrefix(endpoint, "http://") || strings.HasPrefix(endpoint, "https://") {
		return endpoint
	}
	scheme := "https"
	if disableTLS {
		scheme = "http"
	}
	return fmt.Sprintf("%s://%s", scheme, endpoint)
}

// HeadObject fetches metadata of an existing object. Use IsNotFound on the error to
// tell a missing object apart from transport failures.
func (c *Client) HeadObject(ctx context.Context, bucket, key string) (ObjectHead, error) {
	if c == nil {
		return ObjectHead{}, errors.New("nil client")
	}

	out, err := c.api.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: &bucket,
		Key:    &key,
	})
	if err != nil {
		return ObjectHead{}, err
	}

	return ObjectHead{
		Metadata:     out.Metadata,
		ContentType:  aws.ToString(out.ContentType),
		CacheControl: aws.ToString(out.CacheControl),
		Size:         aws.ToInt64(out.ContentLength),
	}, nil
}

// PutObject uploads the object body together with its metadata.
func (c *Client) PutObject(ctx context.Context, in PutInput) error {
	if c == nil {
		return errors.New("nil client")
	}

	size := int64(len(in.Body))
	params := &s3.PutObjectInput{
		Bucket:        aws.String(in.Bucket),
		Key:           aws.String(in.Key),
		Body:          bytes.NewReader(in.Body),
		ContentLength: &size,
		Metadata:      in.Metadata,
	}
	if in.ContentType != "" {
		params.ContentType = aws.String(in.ContentType)
	}
	if in.CacheControl != "" {
		params.CacheControl = aws.String(in.CacheControl)
	}
	if in.PublicRead {
		params.ACL = s3types.ObjectCannedACLPublicRead
	}

	_, err := c.api.PutObject(ctx, params)
	return err
}

// IsNotFound reports whether err means the object does not exist. HEAD responses carry
// no body, so the SDK surfaces them either as the modelled NotFound type or as a
// generic API error with a NotFound/NoSuchKey code.
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	var notFound *s3types.NotFound
	if errors.As(err, &notFound) {
		return true
	}
	var noSuchKey *s3types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey":
			return true
		}
	}
	return false
}
