// Package storage provides a uniform file abstraction over local disk,
// object stores (MinIO, S3, GCS via the S3-compatible endpoint), and Redis
// for shared temporary data.
package storage

import (
	"context"

	"github.com/Zipstack/unstract-sdk-go/pkg/sdkerr"
)

// Provider identifies a storage backend implementation.
type Provider string

const (
	ProviderLocal Provider = "local"
	ProviderGCS   Provider = "gcs"
	ProviderS3    Provider = "s3"
	ProviderAzure Provider = "azure"
	ProviderMinio Provider = "minio"
	ProviderRedis Provider = "redis"
)

// FileStorage is the uniform backend contract. Paths are slash-separated;
// object backends treat them as keys, the local backend as filesystem paths.
type FileStorage interface {
	// Read returns up to length bytes starting at offset. length < 0 reads
	// to the end.
	Read(ctx context.Context, path string, offset int64, length int64) ([]byte, error)

	// Write stores data at path, creating or replacing the object.
	Write(ctx context.Context, path string, data []byte) (int, error)

	// Mkdir creates a directory. Object backends treat this as a no-op
	// since prefixes materialize with their first object.
	Mkdir(ctx context.Context, path string, createParents bool) error

	// Exists reports whether path refers to an object or file.
	Exists(ctx context.Context, path string) (bool, error)

	// List returns the entries directly under path.
	List(ctx context.Context, path string) ([]string, error)

	// Remove deletes path. Non-recursive removal of a non-empty directory
	// fails.
	Remove(ctx context.Context, path string, recursive bool) error

	// Copy duplicates src to dst within the backend.
	Copy(ctx context.Context, src, dst string) error

	// Size returns the object length in bytes.
	Size(ctx context.Context, path string) (int64, error)

	// Provider identifies the backend.
	Provider() Provider
}

// ReadAll reads the whole object.
func ReadAll(ctx context.Context, fs FileStorage, path string) ([]byte, error) {
	return fs.Read(ctx, path, 0, -1)
}

func opError(op, path string, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := sdkerr.AsError(err); ok {
		return err
	}
	return sdkerr.Wrap(sdkerr.KindFileOp, op+" failed for "+path, err)
}

func initError(provider Provider, err error) error {
	return sdkerr.Wrap(sdkerr.KindStorage,
		"could not initialize "+string(provider)+" storage", err)
}
