package tool

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Zipstack/unstract-sdk-go/pkg/sdkerr"
	"github.com/Zipstack/unstract-sdk-go/pkg/storage"
)

// Output types a tool may declare in its properties.
const (
	OutputJSON = "JSON"
	OutputTXT  = "TXT"
)

// ToolEntry is one tool's completion record in the ledger.
type ToolEntry struct {
	ToolName    string  `json:"tool_name"`
	ElapsedTime float64 `json:"elapsed_time"`
	OutputType  string  `json:"output_type"`
}

// Metadata is the execution ledger at <DATA_DIR>/METADATA.json. The
// orchestrator creates it before the first tool; each tool appends one
// entry and rewrites the file whole.
type Metadata struct {
	WorkflowID       string      `json:"workflow_id"`
	ExecutionID      string      `json:"execution_id"`
	OrganizationID   string      `json:"organization_id"`
	SourceName       string      `json:"source_name"`
	SourceHash       string      `json:"source_hash"`
	ToolMetadata     []ToolEntry `json:"tool_metadata"`
	TotalElapsedTime float64     `json:"total_elapsed_time"`
}

// ReadMetadata loads the ledger from the data directory.
func ReadMetadata(ctx context.Context, fs storage.FileStorage, dir DataDir) (*Metadata, error) {
	raw, err := storage.ReadAll(ctx, fs, dir.MetadataPath())
	if err != nil {
		return nil, sdkerr.Wrap(sdkerr.KindSdk, "could not read execution metadata", err)
	}
	var meta Metadata
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, sdkerr.Wrap(sdkerr.KindSdk, "malformed execution metadata", err)
	}
	return &meta, nil
}

// AppendEntry records one tool completion and rewrites the ledger.
// TotalElapsedTime only ever grows.
func AppendEntry(ctx context.Context, fs storage.FileStorage, dir DataDir, entry ToolEntry) error {
	meta, err := ReadMetadata(ctx, fs, dir)
	if err != nil {
		return err
	}

	meta.ToolMetadata = append(meta.ToolMetadata, entry)
	meta.TotalElapsedTime += entry.ElapsedTime

	raw, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return sdkerr.Wrap(sdkerr.KindSdk, "could not encode execution metadata", err)
	}
	if _, err := fs.Write(ctx, dir.MetadataPath(), raw); err != nil {
		return sdkerr.Wrap(sdkerr.KindSdk, "could not write execution metadata", err)
	}
	return nil
}

// Execution is the per-run context handed to a tool. It carries the
// record stream, the data directory, and collects the tool's result.
type Execution struct {
	Stream  *Streamer
	Dir     DataDir
	FS      storage.FileStorage
	Meta    *Metadata
	RunID   string
	outType string

	result    any
	resultSet bool
}

// InputFile is the path the tool reads its input from.
func (e *Execution) InputFile() string { return e.Dir.Infile() }

// OutputDir is the scratch folder the tool writes files into.
func (e *Execution) OutputDir() string { return e.Dir.CopyTo() }

// Info streams an INFO log record.
func (e *Execution) Info(format string, args ...any) {
	e.Stream.Log(StageTool, LevelInfo, fmt.Sprintf(format, args...))
}

// Error streams an ERROR log record.
func (e *Execution) Error(format string, args ...any) {
	e.Stream.Log(StageTool, LevelError, fmt.Sprintf(format, args...))
}

// WriteResult records the tool's result for emission after Run returns.
// A JSON output type requires a mapping.
func (e *Execution) WriteResult(data any) error {
	if e.outType == OutputJSON {
		switch data.(type) {
		case map[string]any:
		default:
			return sdkerr.New(sdkerr.KindSdk, "JSON output type requires the result to be a mapping")
		}
	}
	e.result = data
	e.resultSet = true
	return nil
}
