// Package objectstore stores binary media in an S3-compatible bucket such as
// MinIO.
package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"
)

// ErrNotFound is returned by Get for a missing object.
var ErrNotFound = errors.New("object not found")

// Config describes how to reach the object store.
type Config struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	// PublicURL prefixes object URLs handed to clients. Defaults to Endpoint.
	PublicURL    string
	UsePathStyle bool
}

// Client puts and gets objects.
type Client struct {
	s3        *s3.Client
	region    string
	publicURL string
}

// New builds a client with static credentials against cfg.Endpoint.
func New(ctx context.Context, cfg Config) (*Client, error) {
	endpoint := strings.TrimRight(cfg.Endpoint, "/")
	if endpoint == "" {
		return nil, errors.New("object store endpoint is required")
	}

	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
		o.UsePathStyle = cfg.UsePathStyle
	})

	public := strings.TrimRight(cfg.PublicURL, "/")
	if public == "" {
		public = endpoint
	}
	return &Client{s3: client, region: cfg.Region, publicURL: public}, nil
}

// EnsureBuckets creates any of the buckets that do not exist yet.
func (c *Client) EnsureBuckets(ctx context.Context, buckets ...string) error {
	for _, bucket := range buckets {
		if _, err := c.s3.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(bucket)}); err == nil {
			continue
		}

		input := &s3.CreateBucketInput{Bucket: aws.String(bucket)}
		if c.region != "" && c.region != "us-east-1" {
			input.CreateBucketConfiguration = &types.CreateBucketConfiguration{
				LocationConstraint: types.BucketLocationConstraint(c.region),
			}
		}
		if _, err := c.s3.CreateBucket(ctx, input); err != nil {
			var owned *types.BucketAlreadyOwnedByYou
			var exists *types.BucketAlreadyExists
			if errors.As(err, &owned) || errors.As(err, &exists) {
				continue
			}
			return fmt.Errorf("create bucket %s: %w", bucket, err)
		}
	}
	return nil
}

// Put uploads data and returns the object's public URL.
func (c *Client) Put(ctx context.Context, bucket, name, contentType string, data []byte) (string, error) {
	input := &s3.PutObjectInput{
		Bucket:        aws.String(bucket),
		Key:           aws.String(name),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	if _, err := c.s3.PutObject(ctx, input); err != nil {
		return "", fmt.Errorf("put object %s/%s: %w", bucket, name, err)
	}
	return c.URL(bucket, name), nil
}

// Get downloads an object.
func (c *Client) Get(ctx context.Context, bucket, name string) ([]byte, error) {
	out, err := c.s3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(name),
	})
	if err != nil {
		var missing *types.NoSuchKey
		if errors.As(err, &missing) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get object %s/%s: %w", bucket, name, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("read object %s/%s: %w", bucket, name, err)
	}
	return data, nil
}

// URL is where clients can fetch an object.
func (c *Client) URL(bucket, name string) string {
	return c.publicURL + "/" + url.PathEscape(bucket) + "/" + url.PathEscape(name)
}

// ObjectName derives a collision-free object name from an uploaded filename.
func ObjectName(filename string) string {
	base := path.Base(strings.ReplaceAll(filename, `\`, "/"))
	if base == "." || base == "/" || base == "" {
		base = "upload"
	}
	return uuid.NewString() + "_" + base
}
