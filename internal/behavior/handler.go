package behavior

import (
	"slices"
	"sort"

	"go.uber.org/zap"

	"github.com/acheong08/spr-behavior/pkg/models"
)

// Handler consumes events of the categories it accepts and reduces them into
// one report. A handler is constructed per analysis, mutated only while the
// stream is consumed and read-only once Finalize has been called.
type Handler interface {
	// Key is the category name the report is stored under
	Key() string
	Accepts(event *models.Event) bool
	Handle(event *models.Event)
	// Finalize builds the report. Repeated calls return the same report.
	Finalize() any
}

// Recorder receives counters from the engine. See internal/metrics.
type Recorder interface {
	EventDispatched(category string, calls int)
	CallSkipped(handler, api string)
	UnknownDescriptor(api string)
}

type nopRecorder struct{}

func (nopRecorder) EventDispatched(string, int) {}
func (nopRecorder) CallSkipped(string, string)  {}
func (nopRecorder) UnknownDescriptor(string)    {}

// Default sentinel: the build watcher runs as <workdir>/buildwatch
const (
	DefaultSentinelName   = "buildwatch"
	DefaultSentinelSuffix = "/buildwatch"
)

type options struct {
	logger         *zap.Logger
	recorder       Recorder
	sentinelName   string
	sentinelSuffix string
}

// Option configures handlers and dispatchers
type Option func(*options)

// WithLogger sets the logger used for recoverable conditions
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithRecorder sets the metrics recorder
func WithRecorder(r Recorder) Option {
	return func(o *options) {
		if r != nil {
			o.recorder = r
		}
	}
}

// WithSentinel overrides the process name and command-line suffix used to
// infer the working directory
func WithSentinel(name, suffix string) Option {
	return func(o *options) {
		if name != "" {
			o.sentinelName = name
		}
		if suffix != "" {
			o.sentinelSuffix = suffix
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{
		logger:         zap.NewNop(),
		recorder:       nopRecorder{},
		sentinelName:   DefaultSentinelName,
		sentinelSuffix: DefaultSentinelSuffix,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// eventTypes is the list of categories a handler subscribes to
type eventTypes []string

func (t eventTypes) accepts(event *models.Event) bool {
	return slices.Contains(t, event.Category())
}

// stringSet collapses duplicates; sorted() gives stable report output
type stringSet map[string]struct{}

func (s stringSet) add(v string) {
	s[v] = struct{}{}
}

func (s stringSet) sorted() []string {
	out := make([]string, 0, len(s))
	for v := range s {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
