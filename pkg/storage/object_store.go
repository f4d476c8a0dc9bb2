package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

var ErrObjectNotFound = errors.New("object not found")

// ObjectStore provides read access to stored artifacts.
type ObjectStore interface {
	Get(ctx context.Context, key string) (io.ReadCloser, error)
}

// DirStore serves objects from a local directory.
type DirStore struct {
	root string
}

func NewDirStore(root string) (*DirStore, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("stat artifact dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("artifact path %q is not a directory", root)
	}
	return &DirStore{root: root}, nil
}

// Get opens the file for key. Keys may not escape the root directory.
func (d *DirStore) Get(_ context.Context, key string) (io.ReadCloser, error) {
	clean := filepath.Clean("/" + strings.TrimSpace(key))
	f, err := os.Open(filepath.Join(d.root, clean))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("open object: %w", err)
	}
	return f, nil
}

// MinioStore implements ObjectStore for MinIO/S3 compatible storage.
type MinioStore struct {
	client *minio.Client
	bucket string
	prefix string
}

// NewMinioStore connects to MinIO and checks that the bucket exists.
// Artifacts are published out of band, so a missing bucket is an error.
func NewMinioStore(endpoint, accessKey, secretKey, bucket, prefix string, useSSL bool) (*MinioStore, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio client: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("bucket %q does not exist", bucket)
	}
	return &MinioStore{client: client, bucket: bucket, prefix: strings.Trim(prefix, "/")}, nil
}

// Get downloads an object.
func (m *MinioStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	name := strings.TrimLeft(key, "/")
	if m.prefix != "" {
		name = m.prefix + "/" + name
	}
	obj, err := m.client.GetObject(ctx, m.bucket, name, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get object: %w", err)
	}
	// GetObject is lazy; Stat surfaces a missing key before the caller reads.
	if _, err := obj.Stat(); err != nil {
		_ = obj.Close()
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, name)
		}
		return nil, fmt.Errorf("stat object: %w", err)
	}
	return obj, nil
}
