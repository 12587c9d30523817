// Package s3 archives error records as JSON objects in an S3 bucket.
//
// Objects are keyed by session so a session's failures can be listed with
// a single prefix query:
//
//	<prefix>/session=<session-id>/<timestamp>-<record-id>.json
package s3

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/pithecene-io/framesync/adapter"
)

// DefaultTimeout is the default per-upload timeout.
const DefaultTimeout = 10 * time.Second

// Config configures the S3 sink.
type Config struct {
	// Bucket is the S3 bucket name (required).
	Bucket string
	// Prefix is the key prefix within the bucket (optional).
	Prefix string
	// Region is the AWS region (optional, uses default chain if empty).
	Region string
	// Endpoint is a custom endpoint for S3-compatible providers
	// (e.g. MinIO, R2). Empty uses the default AWS endpoint.
	Endpoint string
	// UsePathStyle forces path-style addressing.
	UsePathStyle bool
	// Timeout is the per-upload timeout (default 10s).
	Timeout time.Duration
}

// Validate checks that required configuration is present.
func (c *Config) Validate() error {
	if c.Bucket == "" {
		return errors.New("s3 sink requires a bucket")
	}
	return nil
}

// PutObjectAPI is the subset of the S3 client used by the sink.
type PutObjectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Adapter uploads one object per error record.
type Adapter struct {
	config Config
	client PutObjectAPI
}

// New creates an S3 sink using the AWS default credential chain
// (env vars, shared config, IAM role).
func New(ctx context.Context, cfg Config) (*Adapter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var opts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	awsConfig, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("s3 sink: load AWS config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		endpoint := cfg.Endpoint
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = &endpoint
		})
	}
	if cfg.UsePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}

	return NewWithClient(cfg, s3.NewFromConfig(awsConfig, s3Opts...))
}

// NewWithClient creates an S3 sink around an existing client.
func NewWithClient(cfg Config, client PutObjectAPI) (*Adapter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Adapter{config: cfg, client: client}, nil
}

// Key returns the object key for record.
func (a *Adapter) Key(record *adapter.ErrorRecord) string {
	session := record.SessionID
	if session == "" {
		session = "unknown"
	}
	stamp := strings.NewReplacer(":", "", "-", "").Replace(record.Timestamp)
	name := fmt.Sprintf("%s-%s.json", stamp, record.ID)
	return path.Join(a.config.Prefix, "session="+session, name)
}

// Publish uploads the record as a JSON object.
func (a *Adapter) Publish(ctx context.Context, record *adapter.ErrorRecord) error {
	body, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("s3: marshal record: %w", err)
	}

	putCtx, cancel := context.WithTimeout(ctx, a.config.Timeout)
	defer cancel()

	_, err = a.client.PutObject(putCtx, &s3.PutObjectInput{
		Bucket:      aws.String(a.config.Bucket),
		Key:         aws.String(a.Key(record)),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("s3: put object: %w", err)
	}
	return nil
}

// Close releases adapter resources. The S3 client holds none.
func (a *Adapter) Close() error {
	return nil
}

var _ adapter.Adapter = (*Adapter)(nil)
