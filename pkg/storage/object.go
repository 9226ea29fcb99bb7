package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ObjectConfig configures an S3-compatible object backend. MinIO, S3, and
// GCS (through storage.googleapis.com interoperability) all speak this
// dialect.
type ObjectConfig struct {
	// Endpoint is the host[:port] of the object store.
	Endpoint string `mapstructure:"endpoint"`

	// Bucket holding all objects for this storage instance.
	Bucket string `mapstructure:"bucket"`

	// AccessKey and SecretKey authenticate the client.
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`

	// Region is optional for MinIO, required for some S3 regions.
	Region string `mapstructure:"region"`

	// UseSSL enables TLS (default true for non-local endpoints).
	UseSSL bool `mapstructure:"use_ssl"`
}

// ObjectStorage implements FileStorage over any S3-compatible store.
type ObjectStorage struct {
	client   *minio.Client
	bucket   string
	provider Provider
}

// NewObjectStorage creates an object backend. provider records which
// family (minio/s3/gcs) this instance represents for profile gating.
func NewObjectStorage(provider Provider, cfg ObjectConfig) (*ObjectStorage, error) {
	endpoint := cfg.Endpoint
	switch provider {
	case ProviderS3:
		if endpoint == "" {
			endpoint = "s3.amazonaws.com"
		}
	case ProviderGCS:
		if endpoint == "" {
			endpoint = "storage.googleapis.com"
		}
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, initError(provider, err)
	}

	return &ObjectStorage{
		client:   client,
		bucket:   cfg.Bucket,
		provider: provider,
	}, nil
}

func (s *ObjectStorage) Provider() Provider { return s.provider }

func key(path string) string {
	return strings.TrimPrefix(path, "/")
}

func (s *ObjectStorage) Read(ctx context.Context, path string, offset int64, length int64) ([]byte, error) {
	opts := minio.GetObjectOptions{}
	if length >= 0 {
		if err := opts.SetRange(offset, offset+length-1); err != nil {
			return nil, opError("read", path, err)
		}
	} else if offset > 0 {
		if err := opts.SetRange(offset, 0); err != nil {
			return nil, opError("read", path, err)
		}
	}

	obj, err := s.client.GetObject(ctx, s.bucket, key(path), opts)
	if err != nil {
		return nil, opError("read", path, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		if isNotFound(err) {
			return nil, os.ErrNotExist
		}
		return nil, opError("read", path, err)
	}
	return data, nil
}

func (s *ObjectStorage) Write(ctx context.Context, path string, data []byte) (int, error) {
	_, err := s.client.PutObject(ctx, s.bucket, key(path),
		bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{})
	if err != nil {
		return 0, opError("write", path, err)
	}
	return len(data), nil
}

// Mkdir is a no-op: object prefixes materialize with their first object.
func (s *ObjectStorage) Mkdir(ctx context.Context, path string, createParents bool) error {
	return nil
}

func (s *ObjectStorage) Exists(ctx context.Context, path string) (bool, error) {
	_, err := s.client.StatObject(ctx, s.bucket, key(path), minio.StatObjectOptions{})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, opError("stat", path, err)
	}
	return true, nil
}

func (s *ObjectStorage) List(ctx context.Context, path string) ([]string, error) {
	prefix := key(path)
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}

	var names []string
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: prefix}) {
		if obj.Err != nil {
			return nil, opError("list", path, obj.Err)
		}
		names = append(names, strings.TrimPrefix(obj.Key, prefix))
	}
	return names, nil
}

func (s *ObjectStorage) Remove(ctx context.Context, path string, recursive bool) error {
	if !recursive {
		return opError("remove", path,
			s.client.RemoveObject(ctx, s.bucket, key(path), minio.RemoveObjectOptions{}))
	}

	prefix := key(path)
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			return opError("remove", path, obj.Err)
		}
		if err := s.client.RemoveObject(ctx, s.bucket, obj.Key, minio.RemoveObjectOptions{}); err != nil {
			return opError("remove", obj.Key, err)
		}
	}
	return nil
}

func (s *ObjectStorage) Copy(ctx context.Context, src, dst string) error {
	_, err := s.client.CopyObject(ctx,
		minio.CopyDestOptions{Bucket: s.bucket, Object: key(dst)},
		minio.CopySrcOptions{Bucket: s.bucket, Object: key(src)})
	return opError("copy", src, err)
}

func (s *ObjectStorage) Size(ctx context.Context, path string) (int64, error) {
	info, err := s.client.StatObject(ctx, s.bucket, key(path), minio.StatObjectOptions{})
	if err != nil {
		if isNotFound(err) {
			return 0, os.ErrNotExist
		}
		return 0, opError("stat", path, err)
	}
	return info.Size, nil
}

func isNotFound(err error) bool {
	var resp minio.ErrorResponse
	if errors.As(err, &resp) {
		return resp.Code == "NoSuchKey" || resp.Code == "NoSuchBucket" || resp.StatusCode == 404
	}
	return false
}

var _ FileStorage = (*ObjectStorage)(nil)
