// Package snapshot publishes the knowledge snapshot to S3-compatible storage
// and hands out pre-signed download URLs. When no bucket is configured the
// NoopPublisher is used and nothing leaves the host.
package snapshot

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/hyperengineering/resonance/internal/config"
	"github.com/hyperengineering/resonance/internal/types"
)

// ErrNotConfigured is returned when snapshot storage is not configured.
var ErrNotConfigured = errors.New("snapshot storage not configured")

// Publisher uploads knowledge snapshots and generates download URLs.
type Publisher interface {
	// Publish uploads k as the current snapshot and as a numbered revision.
	Publish(ctx context.Context, k *types.Knowledge) error

	// PresignedURL returns a pre-signed URL for the current snapshot.
	// Returns ErrNotConfigured when storage is not configured.
	PresignedURL(ctx context.Context) (url string, expiry time.Time, err error)
}

// s3Client is the subset of minio.Client used by S3Publisher.
type s3Client interface {
	PutObject(ctx context.Context, bucket, objectName string, reader io.Reader, size int64, contentType string) error
	PresignedGetObject(ctx context.Context, bucket, objectName string, expiry time.Duration) (*url.URL, error)
}

// minioClientWrapper adapts *minio.Client to s3Client.
type minioClientWrapper struct {
	client *minio.Client
}

func (w *minioClientWrapper) PutObject(ctx context.Context, bucket, objectName string, reader io.Reader, size int64, contentType string) error {
	_, err := w.client.PutObject(ctx, bucket, objectName, reader, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	return err
}

func (w *minioClientWrapper) PresignedGetObject(ctx context.Context, bucket, objectName string, expiry time.Duration) (*url.URL, error) {
	return w.client.PresignedGetObject(ctx, bucket, objectName, expiry, nil)
}

// S3Publisher writes snapshots to an S3-compatible bucket.
type S3Publisher struct {
	client    s3Client
	bucket    string
	prefix    string
	urlExpiry time.Duration
}

// Publish uploads the snapshot JSON under the current and revision keys.
func (p *S3Publisher) Publish(ctx context.Context, k *types.Knowledge) error {
	data, err := json.MarshalIndent(k, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	for _, key := range []string{revisionKey(p.prefix, k.ReflectionCount), currentKey(p.prefix)} {
		if err := p.client.PutObject(ctx, p.bucket, key, bytes.NewReader(data), int64(len(data)), "application/json"); err != nil {
			return fmt.Errorf("upload snapshot %s: %w", key, err)
		}
	}
	return nil
}

// PresignedURL returns a pre-signed GET URL for the current snapshot.
func (p *S3Publisher) PresignedURL(ctx context.Context) (string, time.Time, error) {
	presigned, err := p.client.PresignedGetObject(ctx, p.bucket, currentKey(p.prefix), p.urlExpiry)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("generate pre-signed URL: %w", err)
	}
	return presigned.String(), time.Now().Add(p.urlExpiry), nil
}

// NoopPublisher is used when storage is not configured.
type NoopPublisher struct{}

// Publish does nothing.
func (NoopPublisher) Publish(ctx context.Context, k *types.Knowledge) error {
	return nil
}

// PresignedURL returns ErrNotConfigured.
func (NoopPublisher) PresignedURL(ctx context.Context) (string, time.Time, error) {
	return "", time.Time{}, ErrNotConfigured
}

// New returns NoopPublisher when the bucket is empty and an S3Publisher otherwise.
func New(cfg config.SnapshotConfig) (Publisher, error) {
	if cfg.Bucket == "" {
		return NoopPublisher{}, nil
	}

	useSSL := true
	if cfg.UseSSL != nil {
		useSSL = *cfg.UseSSL
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: useSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create S3 client: %w", err)
	}

	expiry := time.Duration(cfg.URLExpiry)
	if expiry <= 0 {
		expiry = time.Hour
	}
	return &S3Publisher{
		client:    &minioClientWrapper{client: client},
		bucket:    cfg.Bucket,
		prefix:    cfg.Prefix,
		urlExpiry: expiry,
	}, nil
}

// currentKey is {prefix}/knowledge/current.json.
func currentKey(prefix string) string {
	return path.Join(prefix, "knowledge", "current.json")
}

// revisionKey is {prefix}/knowledge/revisions/{count}.json, zero padded so
// listings sort in order.
func revisionKey(prefix string, count int) string {
	return path.Join(prefix, "knowledge", "revisions", fmt.Sprintf("%06d.json", count))
}
