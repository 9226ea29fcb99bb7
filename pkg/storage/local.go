package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"
)

// LocalStorage implements FileStorage on the local filesystem.
type LocalStorage struct{}

// NewLocalStorage creates a local filesystem backend.
func NewLocalStorage() *LocalStorage {
	return &LocalStorage{}
}

func (s *LocalStorage) Provider() Provider { return ProviderLocal }

func (s *LocalStorage) Read(ctx context.Context, path string, offset int64, length int64) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, err
		}
		return nil, opError("read", path, err)
	}
	defer f.Close()

	if offset > 0 {
		if _, err := f.Seek(offset, io.SeekStart); err != nil {
			return nil, opError("seek", path, err)
		}
	}

	if length < 0 {
		data, err := io.ReadAll(f)
		return data, opError("read", path, err)
	}

	buf := make([]byte, length)
	n, err := io.ReadFull(f, buf)
	if err == io.ErrUnexpectedEOF || err == io.EOF {
		err = nil
	}
	return buf[:n], opError("read", path, err)
}

func (s *LocalStorage) Write(ctx context.Context, path string, data []byte) (int, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return 0, opError("write", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return 0, opError("write", path, err)
	}
	return len(data), nil
}

func (s *LocalStorage) Mkdir(ctx context.Context, path string, createParents bool) error {
	var err error
	if createParents {
		err = os.MkdirAll(path, 0o755)
	} else {
		err = os.Mkdir(path, 0o755)
	}
	return opError("mkdir", path, err)
}

func (s *LocalStorage) Exists(ctx context.Context, path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, opError("stat", path, err)
}

func (s *LocalStorage) List(ctx context.Context, path string) ([]string, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, opError("list", path, err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		names = append(names, entry.Name())
	}
	return names, nil
}

func (s *LocalStorage) Remove(ctx context.Context, path string, recursive bool) error {
	var err error
	if recursive {
		err = os.RemoveAll(path)
	} else {
		err = os.Remove(path)
	}
	return opError("remove", path, err)
}

func (s *LocalStorage) Copy(ctx context.Context, src, dst string) error {
	data, err := s.Read(ctx, src, 0, -1)
	if err != nil {
		return err
	}
	_, err = s.Write(ctx, dst, data)
	return err
}

func (s *LocalStorage) Size(ctx context.Context, path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, err
		}
		return 0, opError("stat", path, err)
	}
	return info.Size(), nil
}

var _ FileStorage = (*LocalStorage)(nil)
