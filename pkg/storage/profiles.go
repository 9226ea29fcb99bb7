package storage

import (
	"context"
	"errors"
	"log/slog"
	"os"

	"github.com/Zipstack/unstract-sdk-go/pkg/sdkerr"
)

var permanentProviders = map[Provider]bool{
	ProviderGCS:   true,
	ProviderS3:    true,
	ProviderMinio: true,
	ProviderLocal: true,
}

var sharedTemporaryProviders = map[Provider]bool{
	ProviderMinio: true,
	ProviderRedis: true,
}

// PermanentStorage wraps a backend accepted for durable data (GCS, S3,
// MinIO, local) and carries the legacy copy-on-read migration path.
type PermanentStorage struct {
	FileStorage
}

// NewPermanentStorage validates the backend against the permanent profile.
func NewPermanentStorage(fs FileStorage) (*PermanentStorage, error) {
	if !permanentProviders[fs.Provider()] {
		return nil, sdkerr.Newf(sdkerr.KindStorage,
			"provider %s is not supported for permanent storage", fs.Provider())
	}
	return &PermanentStorage{FileStorage: fs}, nil
}

// ReadWithLegacyFallback reads path from the backend. When the object is
// absent but legacyPath exists on the local disk, the legacy file is
// uploaded to the backend first and then read. This migrates data written
// under the earlier on-disk layout.
func (s *PermanentStorage) ReadWithLegacyFallback(ctx context.Context, path, legacyPath string) ([]byte, error) {
	data, err := ReadAll(ctx, s.FileStorage, path)
	if err == nil {
		return data, nil
	}
	if !errors.Is(err, os.ErrNotExist) || legacyPath == "" {
		return nil, err
	}

	legacy, legacyErr := os.ReadFile(legacyPath)
	if legacyErr != nil {
		// No legacy copy either; surface the original not-found.
		return nil, err
	}

	slog.Info("Migrating legacy file to permanent storage",
		"legacy_path", legacyPath, "path", path)
	if _, err := s.Write(ctx, path, legacy); err != nil {
		return nil, err
	}
	return legacy, nil
}

// SharedTemporaryStorage wraps a backend accepted for shared scratch data
// (MinIO, Redis).
type SharedTemporaryStorage struct {
	FileStorage
}

// NewSharedTemporaryStorage validates the backend against the shared
// temporary profile.
func NewSharedTemporaryStorage(fs FileStorage) (*SharedTemporaryStorage, error) {
	if !sharedTemporaryProviders[fs.Provider()] {
		return nil, sdkerr.Newf(sdkerr.KindStorage,
			"provider %s is not supported for shared temporary storage", fs.Provider())
	}
	return &SharedTemporaryStorage{FileStorage: fs}, nil
}
