// Package lode archives error records into a Lode dataset, Hive-partitioned
// by day and session so one session's errors can be read back together.
package lode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/justapithecus/lode/lode"
	lodes3 "github.com/justapithecus/lode/lode/s3"

	"github.com/pithecene-io/framesync/adapter"
)

// DefaultDataset is the dataset ID used when none is configured.
const DefaultDataset = "framesync_errors"

// DefaultTimeout is the default per-write timeout.
const DefaultTimeout = 10 * time.Second

// Partition keys, in layout order.
const (
	keyDay     = "day"
	keySession = "session_id"
)

// Config configures the Lode archive sink.
type Config struct {
	// Dataset is the Lode dataset ID (default: framesync_errors).
	Dataset string
	// Timeout is the per-write timeout (default 10s).
	Timeout time.Duration
}

// S3Config selects S3 storage for the dataset.
type S3Config struct {
	// Bucket is the S3 bucket name (required).
	Bucket string
	// Prefix is the key prefix within the bucket (optional).
	Prefix string
	// Region is the AWS region (optional, uses default chain if empty).
	Region string
	// Endpoint is a custom endpoint for S3-compatible providers.
	Endpoint string
	// UsePathStyle forces path-style addressing.
	UsePathStyle bool
}

// Adapter writes one Lode snapshot per error record.
type Adapter struct {
	dataset lode.Dataset
	config  Config
}

// NewFS creates a sink storing the dataset under root.
func NewFS(cfg Config, root string) (*Adapter, error) {
	if root == "" {
		return nil, errors.New("lode sink requires a root directory")
	}
	return NewWithFactory(cfg, lode.NewFSFactory(root))
}

// NewS3 creates a sink storing the dataset in S3, using the AWS default
// credential chain.
func NewS3(ctx context.Context, cfg Config, s3cfg S3Config) (*Adapter, error) {
	if s3cfg.Bucket == "" {
		return nil, errors.New("lode sink: S3 bucket is required")
	}

	var opts []func(*config.LoadOptions) error
	if s3cfg.Region != "" {
		opts = append(opts, config.WithRegion(s3cfg.Region))
	}
	awsConfig, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("lode sink: load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		if s3cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(s3cfg.Endpoint)
		}
		o.UsePathStyle = s3cfg.UsePathStyle
	})
	factory := func() (lode.Store, error) {
		return lodes3.New(client, lodes3.Config{
			Bucket: s3cfg.Bucket,
			Prefix: s3cfg.Prefix,
		})
	}
	return NewWithFactory(cfg, factory)
}

// NewWithFactory creates a sink over an arbitrary Lode store factory.
// Use lode.NewMemoryFactory() for testing.
func NewWithFactory(cfg Config, factory lode.StoreFactory) (*Adapter, error) {
	if cfg.Dataset == "" {
		cfg.Dataset = DefaultDataset
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	ds, err := NewDataset(cfg.Dataset, factory)
	if err != nil {
		return nil, fmt.Errorf("lode sink: %w", err)
	}
	return &Adapter{dataset: ds, config: cfg}, nil
}

// NewDataset opens the error dataset with the layout and codec the sink
// writes, for reading it back.
func NewDataset(id string, factory lode.StoreFactory) (lode.Dataset, error) {
	return lode.NewDataset(
		lode.DatasetID(id),
		factory,
		lode.WithHiveLayout(keyDay, keySession),
		lode.WithCodec(lode.NewJSONLCodec()),
	)
}

// Publish implements adapter.Adapter.
func (a *Adapter) Publish(ctx context.Context, record *adapter.ErrorRecord) error {
	row, err := toRow(record)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, a.config.Timeout)
	defer cancel()
	if _, err := a.dataset.Write(ctx, []any{row}, lode.Metadata{}); err != nil {
		return fmt.Errorf("lode sink: write: %w", err)
	}
	return nil
}

// Close implements adapter.Adapter. Datasets hold no resources.
func (a *Adapter) Close() error {
	return nil
}

// toRow flattens record into a map carrying the partition keys.
func toRow(record *adapter.ErrorRecord) (map[string]any, error) {
	data, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("lode sink: marshal record: %w", err)
	}
	var row map[string]any
	if err := json.Unmarshal(data, &row); err != nil {
		return nil, fmt.Errorf("lode sink: flatten record: %w", err)
	}
	row[keyDay] = day(record.Timestamp)
	row[keySession] = record.SessionID
	return row, nil
}

// day derives the day partition from an RFC 3339 timestamp, falling back to
// the current UTC day.
func day(ts string) string {
	if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
		return t.UTC().Format(time.DateOnly)
	}
	return time.Now().UTC().Format(time.DateOnly)
}

var _ adapter.Adapter = (*Adapter)(nil)
