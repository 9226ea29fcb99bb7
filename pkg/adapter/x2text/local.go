package x2text

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"
	"github.com/xuri/excelize/v2"

	"github.com/Zipstack/unstract-sdk-go/pkg/adapter"
	"github.com/Zipstack/unstract-sdk-go/pkg/sdkerr"
	"github.com/Zipstack/unstract-sdk-go/pkg/storage"
)

var localExtractorInfo = adapter.Info{
	ID:          "localText|1f1f1b63-2b6a-46d5-9a32-2ba49b25e2c9",
	Name:        "Local Text Extractor",
	Kind:        adapter.KindX2Text,
	Description: "In-process extraction for PDF, DOCX, XLSX and plain text",
	Icon:        "/icons/adapter-icons/localText.png",
}

// LocalConfig is the adapter metadata slice of the local extractor.
type LocalConfig struct {
	// PageSeparator is placed between PDF pages and spreadsheet sheets.
	PageSeparator string `mapstructure:"page_seperator" json:"page_seperator,omitempty"`
}

// Local parses common document formats without a remote service. All
// parsing happens on in-memory bytes so any storage backend works.
type Local struct {
	config LocalConfig
	fs     storage.FileStorage
}

// NewLocal constructs the extractor from adapter metadata.
func NewLocal(metadata map[string]any) (adapter.Adapter, error) {
	var cfg LocalConfig
	if err := adapter.DecodeMetadata(metadata, &cfg); err != nil {
		return nil, err
	}
	return NewLocalFromConfig(cfg), nil
}

// NewLocalFromConfig constructs the extractor from a typed config.
func NewLocalFromConfig(cfg LocalConfig) *Local {
	if cfg.PageSeparator == "" {
		cfg.PageSeparator = "\n\n"
	}
	return &Local{config: cfg, fs: storage.NewLocalStorage()}
}

// SetFileStorage overrides the backend used for input and output paths.
func (l *Local) SetFileStorage(fs storage.FileStorage) { l.fs = fs }

func (l *Local) Info() adapter.Info { return localExtractorInfo }

func (l *Local) SchemaJSON() (string, error) { return adapter.SchemaFor(&LocalConfig{}) }

func (l *Local) ConfiguredURLs() []string { return nil }

func (l *Local) TestConnection(_ context.Context) error { return nil }

func (l *Local) Process(ctx context.Context, inputPath, outputPath string) (*Result, error) {
	data, err := storage.ReadAll(ctx, l.fs, inputPath)
	if err != nil {
		return nil, err
	}

	var text string
	metadata := map[string]any{"source": path.Base(inputPath)}

	switch strings.ToLower(path.Ext(inputPath)) {
	case ".pdf":
		text, err = l.extractPDF(data, metadata)
	case ".docx":
		text, err = l.extractDocx(data, metadata)
	case ".xlsx":
		text, err = l.extractXlsx(data, metadata)
	default:
		text = string(data)
		metadata["type"] = "plain"
	}
	if err != nil {
		return nil, err
	}

	if err := writeOutput(ctx, l.fs, outputPath, text, metadata); err != nil {
		return nil, err
	}
	return &Result{ExtractedText: text, Metadata: metadata}, nil
}

func (l *Local) extractPDF(data []byte, metadata map[string]any) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", sdkerr.Wrap(sdkerr.KindExtractor, "failed to parse PDF", err)
	}

	var pages []string
	total := reader.NumPage()
	for pageNum := 1; pageNum <= total; pageNum++ {
		page := reader.Page(pageNum)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		if strings.TrimSpace(text) != "" {
			pages = append(pages, text)
		}
	}

	metadata["type"] = "pdf"
	metadata["pages"] = total
	return strings.Join(pages, l.config.PageSeparator), nil
}

func (l *Local) extractDocx(data []byte, metadata map[string]any) (string, error) {
	doc, err := docx.ReadDocxFromMemory(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", sdkerr.Wrap(sdkerr.KindExtractor, "failed to parse DOCX", err)
	}
	defer doc.Close()

	metadata["type"] = "docx"
	return doc.Editable().GetContent(), nil
}

func (l *Local) extractXlsx(data []byte, metadata map[string]any) (string, error) {
	workbook, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return "", sdkerr.Wrap(sdkerr.KindExtractor, "failed to parse XLSX", err)
	}
	defer workbook.Close()

	var sheetsText []string
	sheets := workbook.GetSheetList()
	for _, sheet := range sheets {
		rows, err := workbook.GetRows(sheet)
		if err != nil {
			continue
		}

		var builder strings.Builder
		builder.WriteString(fmt.Sprintf("--- Sheet: %s ---\n", sheet))
		for _, row := range rows {
			builder.WriteString(strings.Join(row, "\t"))
			builder.WriteString("\n")
		}
		sheetsText = append(sheetsText, builder.String())
	}

	metadata["type"] = "xlsx"
	metadata["sheets"] = len(sheets)
	return strings.Join(sheetsText, l.config.PageSeparator), nil
}

var _ X2Text = (*Local)(nil)

func init() {
	adapter.MustRegister(adapter.Registration{Info: localExtractorInfo, New: NewLocal})
}
