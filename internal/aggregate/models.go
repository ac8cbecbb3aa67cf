package aggregate

import (
	"encoding/json"

	"github.com/acheong08/spr-behavior/pkg/models"
)

// TraceeEvent represents a single Tracee JSON event
type TraceeEvent struct {
	Timestamp       int64         `json:"timestamp"`
	ProcessID       int           `json:"processId"`
	ThreadID        int           `json:"threadId"`
	ProcessName     string        `json:"processName"`
	ParentProcessID int           `json:"parentProcessId"`
	EventName       string        `json:"eventName"`
	ReturnValue     int64         `json:"returnValue"`
	Args            []TraceeArg   `json:"args"`
	Container       ContainerInfo `json:"container"`
}

// TraceeArg represents an argument in a Tracee event
type TraceeArg struct {
	Name  string          `json:"name"`
	Type  string          `json:"type"`
	Value json.RawMessage `json:"value"`
}

// ContainerInfo represents container metadata
type ContainerInfo struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Image string `json:"image"`
}

// Input formats understood by the aggregator
const (
	FormatEvents = "events" // one models.Event per line
	FormatTracee = "tracee" // one Tracee event per line
)

// Result is the output of one aggregation run
type Result struct {
	Collection   string          `json:"collection" yaml:"collection"`
	TotalEvents  int             `json:"total_events" yaml:"total_events"`
	TotalCalls   int             `json:"total_calls" yaml:"total_calls"`
	SkippedLines int             `json:"skipped_lines" yaml:"skipped_lines"`
	Summary      *models.Summary `json:"summary" yaml:"summary"`
}
