// Package x2text implements the text extraction adapter shells. The
// LLMWhisperer dialects drive a remote asynchronous service; the local
// extractor parses common document formats in process.
package x2text

import (
	"context"
	"encoding/json"
	"path"
	"strings"

	"github.com/Zipstack/unstract-sdk-go/pkg/adapter"
	"github.com/Zipstack/unstract-sdk-go/pkg/storage"
)

// Result is the outcome of one extraction.
type Result struct {
	ExtractedText string
	Metadata      map[string]any
}

// X2Text is the capability contract of an extraction adapter. When
// outputPath is non-empty the extracted text is written there and the
// metadata sidecar lands in a sibling metadata directory.
type X2Text interface {
	adapter.Adapter

	Process(ctx context.Context, inputPath, outputPath string) (*Result, error)
}

// textKeys are stripped from the metadata sidecar; the text itself
// lives in the output file.
var textKeys = []string{"text", "result_text"}

// writeOutput persists the extracted text and its metadata sidecar at
// <dir>/metadata/<stem>.json next to the output file.
func writeOutput(ctx context.Context, fs storage.FileStorage, outputPath, text string, metadata map[string]any) error {
	if outputPath == "" {
		return nil
	}
	if _, err := fs.Write(ctx, outputPath, []byte(text)); err != nil {
		return err
	}

	sidecar := make(map[string]any, len(metadata))
	for key, value := range metadata {
		sidecar[key] = value
	}
	for _, key := range textKeys {
		delete(sidecar, key)
	}

	dir := path.Join(path.Dir(outputPath), "metadata")
	if err := fs.Mkdir(ctx, dir, true); err != nil {
		return err
	}

	payload, err := json.MarshalIndent(sidecar, "", "  ")
	if err != nil {
		return err
	}

	base := path.Base(outputPath)
	stem := strings.TrimSuffix(base, path.Ext(base))
	_, err = fs.Write(ctx, path.Join(dir, stem+".json"), payload)
	return err
}
