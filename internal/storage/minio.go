package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/minio/minio-go/v7/pkg/lifecycle"
)

var ErrObjectMissing = errors.New("object not in archive")

const mediaPrefix = "media/"

// Object is an open archived object. Body must be closed.
type Object struct {
	Body        io.ReadCloser
	Size        int64
	ContentType string
}

type MinioOptions struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	// Retention sets a bucket lifecycle rule; rounded up to whole days.
	Retention time.Duration
}

// Archive keeps copies of platform media in a MinIO bucket so downloads
// keep working after the platform drops its copy.
type Archive struct {
	client *minio.Client
	bucket string
}

func NewArchive(ctx context.Context, opts MinioOptions) (*Archive, error) {
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	exists, err := client.BucketExists(ctx, opts.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", opts.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, opts.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", opts.Bucket, err)
		}
		slog.Info("created bucket", "bucket", opts.Bucket)
	}

	if opts.Retention > 0 {
		days := int((opts.Retention + 24*time.Hour - 1) / (24 * time.Hour))
		cfg := lifecycle.NewConfiguration()
		cfg.Rules = []lifecycle.Rule{{
			ID:         "expire-media",
			Status:     "Enabled",
			RuleFilter: lifecycle.Filter{Prefix: mediaPrefix},
			Expiration: lifecycle.Expiration{Days: lifecycle.ExpirationDays(days)},
		}}
		if err := client.SetBucketLifecycle(ctx, opts.Bucket, cfg); err != nil {
			slog.Warn("failed to set bucket lifecycle", "bucket", opts.Bucket, "error", err)
		}
	}

	slog.Info("connected to minio", "endpoint", opts.Endpoint, "bucket", opts.Bucket)
	return &Archive{client: client, bucket: opts.Bucket}, nil
}

// Key is the object name for a platform media id.
func Key(externalMediaID string) string {
	return mediaPrefix + externalMediaID
}

// Put streams r into the archive. size may be -1 when unknown.
func (a *Archive) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	_, err := a.client.PutObject(ctx, a.bucket, key, r, size, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}

func (a *Archive) Open(ctx context.Context, key string) (*Object, error) {
	info, err := a.client.StatObject(ctx, a.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, ErrObjectMissing
		}
		return nil, fmt.Errorf("stat %s: %w", key, err)
	}

	obj, err := a.client.GetObject(ctx, a.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	return &Object{Body: obj, Size: info.Size, ContentType: info.ContentType}, nil
}

// Purge removes every archived media object. Failures do not stop the
// purge; they are reported together once the listing is exhausted.
func (a *Archive) Purge(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	objects := a.client.ListObjects(ctx, a.bucket, minio.ListObjectsOptions{Prefix: mediaPrefix, Recursive: true})
	return removeErrors(a.client.RemoveObjects(ctx, a.bucket, objects, minio.RemoveObjectsOptions{}))
}

// removeErrors drains results and joins every failure in it.
func removeErrors(results <-chan minio.RemoveObjectError) error {
	var errs []error
	for res := range results {
		if res.Err != nil {
			errs = append(errs, fmt.Errorf("remove %s: %w", res.ObjectName, res.Err))
		}
	}
	return errors.Join(errs...)
}
