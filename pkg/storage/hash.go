package storage

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"os"
)

// hashChunkSize is the buffer used for digesting files (128 KiB).
const hashChunkSize = 128 * 1024

// mimeSniffBytes is how much of the file the mime sniffer reads.
const mimeSniffBytes = 100

// HashFromFile computes the sha256 of a file in hashChunkSize reads.
func HashFromFile(ctx context.Context, fs FileStorage, path string) (string, error) {
	hasher := sha256.New()
	var offset int64
	for {
		chunk, err := fs.Read(ctx, path, offset, hashChunkSize)
		if err != nil {
			return "", err
		}
		if len(chunk) == 0 {
			break
		}
		hasher.Write(chunk)
		offset += int64(len(chunk))
		if len(chunk) < hashChunkSize {
			break
		}
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// HashBytes computes the sha256 of a byte slice.
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// MimeType sniffs the content type from the first bytes of the file.
func MimeType(ctx context.Context, fs FileStorage, path string) (string, error) {
	head, err := fs.Read(ctx, path, 0, mimeSniffBytes)
	if err != nil {
		return "", err
	}
	return http.DetectContentType(head), nil
}

// Download copies a remote object to a local filesystem path.
func Download(ctx context.Context, fs FileStorage, remotePath, localPath string) error {
	data, err := ReadAll(ctx, fs, remotePath)
	if err != nil {
		return err
	}
	f, err := os.Create(localPath)
	if err != nil {
		return opError("download", localPath, err)
	}
	defer f.Close()
	if _, err := io.Copy(f, bytes.NewReader(data)); err != nil {
		return opError("download", localPath, err)
	}
	return nil
}
