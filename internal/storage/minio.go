package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/promptgist/promptgist/internal/config"
	"github.com/promptgist/promptgist/internal/document"
)

// MinIOStorage is a thin wrapper around the minio client used by services.
type MinIOStorage struct {
	client *minio.Client
	bucket string
}

// NewMinIOStorage creates a new MinIO storage client and ensures the bucket exists.
func NewMinIOStorage(cfg config.MinIOConfig) (*MinIOStorage, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("minio config missing")
	}
	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio new: %w", err)
	}
	s := &MinIOStorage{client: mc, bucket: cfg.Bucket}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := mc.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		// already exists is fine
		exist, xerr := mc.BucketExists(ctx, s.bucket)
		if xerr != nil || !exist {
			return nil, fmt.Errorf("minio bucket ensure: %w", err)
		}
	}
	return s, nil
}

func (s *MinIOStorage) UploadFile(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error {
	_, err := s.client.PutObject(ctx, s.bucket, key, reader, size, minio.PutObjectOptions{ContentType: contentType})
	return err
}

// GetPresignedURL returns a presigned GET URL valid for the given duration.
// filename, when set, is sent back as the attachment name.
func (s *MinIOStorage) GetPresignedURL(ctx context.Context, key, filename string, expires time.Duration) (string, error) {
	reqParams := make(url.Values)
	if filename != "" {
		reqParams.Set("response-content-disposition", fmt.Sprintf("attachment; filename=%q", filename))
	}
	presigned, err := s.client.PresignedGetObject(ctx, s.bucket, key, expires, reqParams)
	if err != nil {
		return "", err
	}
	return presigned.String(), nil
}

// ObjectStore is the part of MinIOStorage the archive needs.
type ObjectStore interface {
	UploadFile(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error
	GetPresignedURL(ctx context.Context, key, filename string, expires time.Duration) (string, error)
}

// VersionArchive keeps a copy of every checkpoint as an HTML object under
// "versions/<documentId>/<versionId>.html".
type VersionArchive struct {
	store  ObjectStore
	expiry time.Duration
}

func NewVersionArchive(store ObjectStore, expiry time.Duration) *VersionArchive {
	if expiry <= 0 {
		expiry = 15 * time.Minute
	}
	return &VersionArchive{store: store, expiry: expiry}
}

func VersionKey(v *document.Version) string {
	return "versions/" + v.DocumentID + "/" + v.ID + ".html"
}

func (a *VersionArchive) PutVersion(ctx context.Context, v *document.Version) error {
	body := []byte(v.Content)
	return a.store.UploadFile(ctx, VersionKey(v), bytes.NewReader(body), int64(len(body)), "text/html; charset=utf-8")
}

func (a *VersionArchive) VersionURL(ctx context.Context, v *document.Version) (string, error) {
	return a.store.GetPresignedURL(ctx, VersionKey(v), v.DocumentID+"-"+v.ID+".html", a.expiry)
}
