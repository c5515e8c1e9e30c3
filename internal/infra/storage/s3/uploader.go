package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"rentcar/internal/app/policies"
)

var (
	ErrReaderRequired = errors.New("s3: reader is required")
	ErrInvalidRef     = errors.New("s3: invalid evidence reference")
)

const refPrefix = "evidence/"

// Client stores check-in/check-out images in an S3-compatible bucket. References handed
// back to callers are object keys under evidence/<booking id>/.
type Client struct {
	bucket         string
	client         *minio.Client
	logger         *slog.Logger
	bucketInitOnce sync.Once
	bucketInitErr  error
}

// NewClient configures the evidence store using the provided endpoint and credentials.
func NewClient(endpoint string, useSSL bool, accessKey, secretKey, bucket string, logger *slog.Logger) (*Client, error) {
	cleanEndpoint := strings.TrimSpace(endpoint)
	if cleanEndpoint == "" {
		return nil, errors.New("s3: endpoint is required")
	}
	if bucket = strings.TrimSpace(bucket); bucket == "" {
		return nil, errors.New("s3: bucket is required")
	}

	opts := &minio.Options{
		Creds:  credentials.NewStaticV4(strings.TrimSpace(accessKey), strings.TrimSpace(secretKey), ""),
		Secure: useSSL,
	}
	minioClient, err := minio.New(parseEndpoint(cleanEndpoint), opts)
	if err != nil {
		return nil, fmt.Errorf("s3: create client: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{bucket: bucket, client: minioClient, logger: logger}, nil
}

// Upload stores body under a fresh key for the booking and returns that key.
func (c *Client) Upload(ctx context.Context, bookingID, filename, contentType string, body io.Reader, size int64) (string, error) {
	if body == nil {
		return "", ErrReaderRequired
	}
	if err := c.ensureBucket(ctx); err != nil {
		return "", err
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	if size <= 0 {
		size = -1
	}
	key := ObjectKey(bookingID, filename)
	_, err := c.client.PutObject(ctx, c.bucket, key, body, size, minio.PutObjectOptions{
		ContentType:  contentType,
		UserMetadata: map[string]string{"booking-id": bookingID},
	})
	if err != nil {
		return "", fmt.Errorf("s3: put object: %w", err)
	}
	c.logger.InfoContext(ctx, "evidence uploaded", "bucket", c.bucket, "key", key, "booking_id", bookingID)
	return key, nil
}

// Exists reports whether ref names a stored object.
func (c *Client) Exists(ctx context.Context, ref string) (bool, error) {
	key, err := cleanRef(ref)
	if err != nil {
		return false, nil
	}
	if _, err := c.client.StatObject(ctx, c.bucket, key, minio.StatObjectOptions{}); err != nil {
		switch minio.ToErrorResponse(err).Code {
		case "NoSuchKey", "NoSuchBucket":
			return false, nil
		}
		return false, fmt.Errorf("s3: stat object: %w", err)
	}
	return true, nil
}

// URL returns a time-limited download link for ref.
func (c *Client) URL(ctx context.Context, ref string, ttl time.Duration) (string, error) {
	key, err := cleanRef(ref)
	if err != nil {
		return "", err
	}
	u, err := c.client.PresignedGetObject(ctx, c.bucket, key, ttl, url.Values{})
	if err != nil {
		return "", fmt.Errorf("s3: presign: %w", err)
	}
	return u.String(), nil
}

// Ping checks the bucket is reachable.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.client.BucketExists(ctx, c.bucket)
	return err
}

// ObjectKey builds evidence/<booking id>/<uuid><ext>.
func ObjectKey(bookingID, filename string) string {
	ext := strings.ToLower(path.Ext(strings.TrimSpace(filename)))
	if len(ext) > 8 {
		ext = ""
	}
	booking := strings.Trim(strings.ReplaceAll(strings.TrimSpace(bookingID), "/", "_"), ".")
	if booking == "" {
		booking = "unassigned"
	}
	return refPrefix + booking + "/" + uuid.NewString() + ext
}

func cleanRef(ref string) (string, error) {
	key := strings.Trim(strings.TrimSpace(ref), "/")
	if !strings.HasPrefix(key, refPrefix) || strings.Contains(key, "..") {
		return "", ErrInvalidRef
	}
	return key, nil
}

func (c *Client) ensureBucket(ctx context.Context) error {
	c.bucketInitOnce.Do(func() {
		exists, err := c.client.BucketExists(ctx, c.bucket)
		if err != nil {
			c.bucketInitErr = fmt.Errorf("s3: check bucket: %w", err)
			return
		}
		if exists {
			return
		}
		if err := c.client.MakeBucket(ctx, c.bucket, minio.MakeBucketOptions{}); err != nil {
			c.bucketInitErr = fmt.Errorf("s3: create bucket: %w", err)
		}
	})
	return c.bucketInitErr
}

func parseEndpoint(endpoint string) string {
	if parsed, err := url.Parse(endpoint); err == nil && parsed.Host != "" {
		return parsed.Host
	}
	return endpoint
}

var _ policies.EvidenceStore = (*Client)(nil)
