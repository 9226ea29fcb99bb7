// Package tool implements the tool host: the stdout record protocol, the
// per-execution data directory contract, the METADATA.json ledger, and the
// kong-based entrypoint a tool binary hands control to.
package tool

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// Record types emitted on stdout.
const (
	RecordSpec              = "SPEC"
	RecordProperties        = "PROPERTIES"
	RecordIcon              = "ICON"
	RecordVariables         = "VARIABLES"
	RecordLog               = "LOG"
	RecordUpdate            = "UPDATE"
	RecordCost              = "COST"
	RecordSingleStepMessage = "SINGLE_STEP_MESSAGE"
	RecordResult            = "RESULT"
)

// Log levels of LOG records.
const (
	LevelDebug = "DEBUG"
	LevelInfo  = "INFO"
	LevelWarn  = "WARN"
	LevelError = "ERROR"
	LevelFatal = "FATAL"
)

// Stages of LOG records.
const (
	StageTool = "TOOL_RUN"
)

// Update states of UPDATE records.
const (
	StateRunning = "RUNNING"
)

// Streamer writes newline-delimited JSON records to a single writer.
// Stdout is reserved for this stream; diagnostics go to stderr via slog.
type Streamer struct {
	mu  sync.Mutex
	w   io.Writer
	now func() time.Time
}

// NewStreamer creates a streamer writing to w.
func NewStreamer(w io.Writer) *Streamer {
	return &Streamer{w: w, now: time.Now}
}

// NewStdoutStreamer creates the default streamer for a tool process.
func NewStdoutStreamer() *Streamer {
	return NewStreamer(os.Stdout)
}

func (s *Streamer) emit(record map[string]any, recordType string) {
	record["type"] = recordType
	record["emitted_at"] = s.now().UTC().Format(time.RFC3339)

	payload, err := json.Marshal(record)
	if err != nil {
		fmt.Fprintf(os.Stderr, "could not encode %s record: %v\n", recordType, err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.w.Write(payload)
	s.w.Write([]byte("\n"))
}

// Spec emits the tool's JSON schema descriptor.
func (s *Streamer) Spec(spec string) {
	s.emit(map[string]any{"spec": spec}, RecordSpec)
}

// Properties emits the tool's properties descriptor.
func (s *Streamer) Properties(properties string) {
	s.emit(map[string]any{"properties": properties}, RecordProperties)
}

// Icon emits the tool's SVG icon.
func (s *Streamer) Icon(icon string) {
	s.emit(map[string]any{"icon": icon}, RecordIcon)
}

// Variables emits the tool's runtime variable descriptor.
func (s *Streamer) Variables(variables string) {
	s.emit(map[string]any{"variables": variables}, RecordVariables)
}

// Log emits one LOG record.
func (s *Streamer) Log(stage, level, message string) {
	s.emit(map[string]any{
		"stage": stage,
		"level": level,
		"log":   message,
	}, RecordLog)
}

// Update emits a state transition visible to the orchestrator.
func (s *Streamer) Update(state, message string) {
	s.emit(map[string]any{
		"state":   state,
		"message": message,
	}, RecordUpdate)
}

// Cost reports a billable cost incurred by the tool.
func (s *Streamer) Cost(cost float64, costUnits string) {
	s.emit(map[string]any{
		"cost":       cost,
		"cost_units": costUnits,
	}, RecordCost)
}

// SingleStepMessage reports progress while stepping through a debug run.
func (s *Streamer) SingleStepMessage(message string) {
	s.emit(map[string]any{"message": message}, RecordSingleStepMessage)
}

// Result emits the final RESULT record of a run.
func (s *Streamer) Result(workflowID string, elapsed float64, output any) {
	s.emit(map[string]any{
		"result": map[string]any{
			"workflow_id":  workflowID,
			"elapsed_time": elapsed,
			"output":       output,
		},
	}, RecordResult)
}
