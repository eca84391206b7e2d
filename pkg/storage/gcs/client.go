package gcs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	storage "google.golang.org/api/storage/v1"

	"github.com/angelmondragon/caisseflow/pkg/config"
	"github.com/angelmondragon/caisseflow/pkg/logger"
)

// Client writes ledger exports to a single bucket through the JSON API.
type Client struct {
	svc    *storage.Service
	bucket string
}

type Pinger interface {
	Ping(ctx context.Context) error
}

// NewClient builds the storage service. An explicit endpoint (fake-gcs-server,
// tests) disables authentication.
func NewClient(ctx context.Context, cfg config.GCSConfig, gcp config.GCPConfig, logg *logger.Logger, extra ...option.ClientOption) (*Client, error) {
	if strings.TrimSpace(cfg.LedgerBucket) == "" {
		return nil, errors.New("gcs bucket name is required")
	}

	opts := []option.ClientOption{option.WithScopes(storage.DevstorageReadWriteScope)}
	switch {
	case cfg.Endpoint != "":
		opts = append(opts, option.WithEndpoint(cfg.Endpoint), option.WithoutAuthentication())
	case gcp.CredentialsJSON != "":
		opts = append(opts, option.WithCredentialsJSON([]byte(gcp.CredentialsJSON)))
	}
	opts = append(opts, extra...)

	svc, err := storage.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating storage service: %w", err)
	}

	client := &Client{svc: svc, bucket: cfg.LedgerBucket}
	if err := client.Ping(ctx); err != nil {
		return nil, fmt.Errorf("gcs health check failed: %w", err)
	}

	if logg != nil {
		logg.Info(ctx, "gcs client initialized")
	}
	return client, nil
}

// Bucket returns the configured bucket name.
func (c *Client) Bucket() string {
	if c == nil {
		return ""
	}
	return c.bucket
}

// Ping checks the bucket is reachable with the current credentials.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.svc == nil {
		return errors.New("gcs client not initialized")
	}
	if _, err := c.svc.Buckets.Get(c.bucket).Context(ctx).Do(); err != nil {
		return fmt.Errorf("get bucket %q: %w", c.bucket, err)
	}
	return nil
}

// Upload writes data to object, replacing any previous version.
func (c *Client) Upload(ctx context.Context, object, contentType string, data []byte) error {
	if c == nil || c.svc == nil {
		return errors.New("gcs client not initialized")
	}
	if strings.TrimSpace(object) == "" {
		return errors.New("object name is required")
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	_, err := c.svc.Objects.
		Insert(c.bucket, &storage.Object{Name: object, ContentType: contentType}).
		Media(bytes.NewReader(data), googleapi.ContentType(contentType)).
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("upload %s/%s: %w", c.bucket, object, err)
	}
	return nil
}

// Download reads the full object body.
func (c *Client) Download(ctx context.Context, object string) ([]byte, error) {
	if c == nil || c.svc == nil {
		return nil, errors.New("gcs client not initialized")
	}
	resp, err := c.svc.Objects.Get(c.bucket, object).Context(ctx).Download()
	if err != nil {
		return nil, fmt.Errorf("download %s/%s: %w", c.bucket, object, err)
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

// IsNotFound reports whether err is a 404 from the storage API.
func IsNotFound(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == 404
}
