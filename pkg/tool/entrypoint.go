package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/alecthomas/kong"
	"github.com/google/uuid"
	"github.com/joho/godotenv"

	sdk "github.com/Zipstack/unstract-sdk-go"
	"github.com/Zipstack/unstract-sdk-go/pkg/logger"
	"github.com/Zipstack/unstract-sdk-go/pkg/sdkerr"
	"github.com/Zipstack/unstract-sdk-go/pkg/storage"
)

// EnvExecutionByTool discriminates how fatal errors terminate: "True"
// means exit the process, anything else means return the error to the
// embedding caller.
const EnvExecutionByTool = "EXECUTION_BY_TOOL"

// Tool is implemented by a tool binary and driven by the entrypoint.
type Tool interface {
	// Validate checks the parsed settings before the run starts.
	Validate(ctx context.Context, settings map[string]any) error

	// Run executes the tool. It reads exec.InputFile(), writes files
	// into exec.OutputDir(), and must call exec.WriteResult exactly once.
	Run(ctx context.Context, exec *Execution, settings map[string]any) error
}

// Descriptors locates the static descriptor files emitted by the
// SPEC, PROPERTIES, ICON and VARIABLES commands.
type Descriptors struct {
	SpecPath       string
	PropertiesPath string
	IconPath       string
	VariablesPath  string
}

// DefaultDescriptors returns the conventional config/ layout.
func DefaultDescriptors() Descriptors {
	return Descriptors{
		SpecPath:       "config/spec.json",
		PropertiesPath: "config/properties.json",
		IconPath:       "config/icon.svg",
		VariablesPath:  "config/runtime_variables.json",
	}
}

// CLI defines the tool command line.
type CLI struct {
	Command  string `help:"Tool command to run." enum:"SPEC,PROPERTIES,ICON,VARIABLES,RUN" required:""`
	Settings string `help:"Tool settings as a JSON document, used by RUN." default:"{}"`
	LogLevel string `name:"log-level" help:"Log level." enum:"DEBUG,INFO,WARN,ERROR,FATAL" default:"INFO"`
}

// Runner binds a Tool to its descriptors, storage, and record stream.
type Runner struct {
	tool   Tool
	desc   Descriptors
	fs     storage.FileStorage
	stream *Streamer
}

// Option customizes a Runner.
type Option func(*Runner)

// WithDescriptors overrides the descriptor file locations.
func WithDescriptors(desc Descriptors) Option {
	return func(r *Runner) { r.desc = desc }
}

// WithFileStorage overrides the data-directory backend.
func WithFileStorage(fs storage.FileStorage) Option {
	return func(r *Runner) { r.fs = fs }
}

// WithStreamer overrides the record stream destination.
func WithStreamer(s *Streamer) Option {
	return func(r *Runner) { r.stream = s }
}

// NewRunner creates a runner with default descriptors, local storage,
// and a stdout stream.
func NewRunner(t Tool, opts ...Option) *Runner {
	r := &Runner{
		tool:   t,
		desc:   DefaultDescriptors(),
		fs:     storage.NewLocalStorage(),
		stream: NewStdoutStreamer(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Main parses the command line and executes the tool. Fatal errors are
// streamed as ERROR log records; when EXECUTION_BY_TOOL is "True" the
// process exits with status 1, otherwise the error is returned.
func Main(t Tool, opts ...Option) error {
	var cli CLI
	kong.Parse(&cli)

	// Missing .env is fine; the orchestrator usually injects env directly.
	_ = godotenv.Load()

	logger.Init(logger.ParseLevel(cli.LogLevel), "simple")

	runner := NewRunner(t, opts...)
	if err := runner.Execute(context.Background(), cli); err != nil {
		runner.stream.Log(StageTool, LevelError, err.Error())
		if strings.EqualFold(os.Getenv(EnvExecutionByTool), "true") {
			os.Exit(1)
		}
		return err
	}
	return nil
}

// Execute runs one tool command.
func (r *Runner) Execute(ctx context.Context, cli CLI) error {
	switch cli.Command {
	case RecordSpec:
		return r.emitDescriptor(cli.Command, r.desc.SpecPath, r.stream.Spec)
	case RecordProperties:
		return r.emitDescriptor(cli.Command, r.desc.PropertiesPath, r.stream.Properties)
	case RecordIcon:
		return r.emitDescriptor(cli.Command, r.desc.IconPath, r.stream.Icon)
	case RecordVariables:
		return r.emitDescriptor(cli.Command, r.desc.VariablesPath, r.stream.Variables)
	case "RUN":
		return r.run(ctx, cli.Settings)
	default:
		return sdkerr.Newf(sdkerr.KindSdk, "unknown command %q", cli.Command)
	}
}

// emitDescriptor reads one static descriptor file and emits it. Static
// commands touch nothing but the descriptor file itself.
func (r *Runner) emitDescriptor(command, path string, emit func(string)) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return sdkerr.Wrap(sdkerr.KindSdk,
			fmt.Sprintf("could not read %s descriptor at %s", command, path), err)
	}
	emit(string(raw))
	return nil
}

func (r *Runner) run(ctx context.Context, settingsJSON string) error {
	dir, err := DataDirFromEnv()
	if err != nil {
		return err
	}
	if err := dir.PrepareRun(ctx, r.fs); err != nil {
		return err
	}

	var settings map[string]any
	if err := json.Unmarshal([]byte(settingsJSON), &settings); err != nil {
		return sdkerr.Wrap(sdkerr.KindSdk, "malformed tool settings", err)
	}
	settings, _ = ExpandSettings(settings).(map[string]any)

	meta, err := ReadMetadata(ctx, r.fs, dir)
	if err != nil {
		return err
	}

	name, outType := r.toolIdentity()
	exec := &Execution{
		Stream:  r.stream,
		Dir:     dir,
		FS:      r.fs,
		Meta:    meta,
		RunID:   uuid.NewString(),
		outType: outType,
	}

	if err := r.tool.Validate(ctx, settings); err != nil {
		return err
	}

	slog.Info("starting tool run",
		"tool", name,
		"run_id", exec.RunID,
		"sdk_version", sdk.Version,
		"workflow_id", meta.WorkflowID,
		"execution_id", meta.ExecutionID)
	r.stream.Update(StateRunning, "Tool "+name+" is running")

	start := time.Now()
	if err := r.tool.Run(ctx, exec, settings); err != nil {
		return err
	}
	if !exec.resultSet {
		return sdkerr.New(sdkerr.KindSdk, "tool finished without writing a result")
	}
	elapsed := time.Since(start).Seconds()

	r.stream.Result(meta.WorkflowID, elapsed, exec.result)

	if err := AppendEntry(ctx, r.fs, dir, ToolEntry{
		ToolName:    name,
		ElapsedTime: elapsed,
		OutputType:  outType,
	}); err != nil {
		return err
	}

	return r.writeInfile(ctx, dir, exec.result)
}

// toolIdentity derives the tool's name and output type from the
// properties descriptor. Absent descriptor values fall back to "tool"
// and JSON.
func (r *Runner) toolIdentity() (name, outType string) {
	name, outType = "tool", OutputJSON

	raw, err := os.ReadFile(r.desc.PropertiesPath)
	if err != nil {
		return name, outType
	}
	var props struct {
		FunctionName string `json:"functionName"`
		DisplayName  string `json:"displayName"`
		OutputType   string `json:"output_type"`
	}
	if err := json.Unmarshal(raw, &props); err != nil {
		return name, outType
	}
	if props.FunctionName != "" {
		name = props.FunctionName
	} else if props.DisplayName != "" {
		name = props.DisplayName
	}
	if props.OutputType != "" {
		outType = strings.ToUpper(props.OutputType)
	}
	return name, outType
}

// writeInfile overwrites INFILE with the serialized result so the next
// tool in the stage reads this tool's output.
func (r *Runner) writeInfile(ctx context.Context, dir DataDir, result any) error {
	var payload []byte
	switch v := result.(type) {
	case string:
		payload = []byte(v)
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return sdkerr.Wrap(sdkerr.KindSdk, "could not encode tool result", err)
		}
		payload = encoded
	}
	if _, err := r.fs.Write(ctx, dir.Infile(), payload); err != nil {
		return sdkerr.Wrap(sdkerr.KindSdk, "could not write tool result to input file", err)
	}
	return nil
}
