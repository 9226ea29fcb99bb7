package tool

import (
	"context"
	"os"
	"path"

	"github.com/Zipstack/unstract-sdk-go/pkg/sdkerr"
	"github.com/Zipstack/unstract-sdk-go/pkg/storage"
)

// EnvDataDir names the per-execution working directory.
const EnvDataDir = "TOOL_DATA_DIR"

// Well-known entries inside the data directory.
const (
	SourceFile   = "SOURCE"
	InputFile    = "INFILE"
	CopyToFolder = "COPY_TO_FOLDER"
	MetadataFile = "METADATA.json"
)

// DataDir is the per-execution working directory shared between the
// orchestrator and the tool process.
type DataDir struct {
	Root string
}

// DataDirFromEnv resolves the data directory from TOOL_DATA_DIR.
func DataDirFromEnv() (DataDir, error) {
	root := os.Getenv(EnvDataDir)
	if root == "" {
		return DataDir{}, sdkerr.Newf(sdkerr.KindSdk, "data directory is required (set %s)", EnvDataDir)
	}
	return DataDir{Root: root}, nil
}

// Source is the immutable original input.
func (d DataDir) Source() string { return path.Join(d.Root, SourceFile) }

// Infile is the current tool's input, overwritten with each tool's
// serialized result for the next stage.
func (d DataDir) Infile() string { return path.Join(d.Root, InputFile) }

// CopyTo is the scratch folder a tool writes output files into.
func (d DataDir) CopyTo() string { return path.Join(d.Root, CopyToFolder) }

// MetadataPath locates the execution ledger.
func (d DataDir) MetadataPath() string { return path.Join(d.Root, MetadataFile) }

// PrepareRun empties and recreates the scratch folder. Called once at the
// start of every RUN, so a tool always sees an empty COPY_TO_FOLDER.
func (d DataDir) PrepareRun(ctx context.Context, fs storage.FileStorage) error {
	scratch := d.CopyTo()
	if exists, err := fs.Exists(ctx, scratch); err != nil {
		return err
	} else if exists {
		if err := fs.Remove(ctx, scratch, true); err != nil {
			return err
		}
	}
	return fs.Mkdir(ctx, scratch, true)
}
