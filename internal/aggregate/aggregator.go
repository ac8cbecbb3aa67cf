package aggregate

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/acheong08/spr-behavior/internal/behavior"
	"github.com/acheong08/spr-behavior/pkg/models"
)

// maxLineSize bounds a single JSONL record; events carry whole call traces
const maxLineSize = 64 * 1024 * 1024

// Aggregator reads behavior traces and reduces them through the handler set
type Aggregator struct {
	logger     *zap.Logger
	dispatcher *behavior.Dispatcher

	totalEvents  int
	totalCalls   int
	skippedLines int
}

// NewAggregator creates a new Aggregator backed by the default handlers.
// The options are passed to every handler.
func NewAggregator(logger *zap.Logger, opts ...behavior.Option) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts = append([]behavior.Option{behavior.WithLogger(logger)}, opts...)
	return &Aggregator{
		logger:     logger,
		dispatcher: behavior.NewDefaultDispatcher(opts...),
	}
}

// ProcessFile reads a JSONL file and aggregates it
func (a *Aggregator) ProcessFile(filename, collection, format string) (*Result, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	return a.ProcessReader(file, collection, format)
}

// ProcessReader reads JSONL from an io.Reader and aggregates it
func (a *Aggregator) ProcessReader(reader io.Reader, collection, format string) (*Result, error) {
	return a.ProcessReaderContext(context.Background(), reader, collection, format)
}

// ProcessReaderContext is ProcessReader with cancellation. Records are fed to
// the handlers concurrently, one goroutine per handler.
func (a *Aggregator) ProcessReaderContext(ctx context.Context, reader io.Reader, collection, format string) (*Result, error) {
	var read func(io.Reader, func(*models.Event) error) error
	switch format {
	case FormatEvents, "":
		read = a.readEvents
	case FormatTracee:
		read = a.readTracee
	default:
		return nil, fmt.Errorf("unknown input format %q", format)
	}

	if err := a.stream(ctx, func(emit func(*models.Event) error) error {
		return read(reader, emit)
	}); err != nil {
		return nil, err
	}
	return a.buildResult(collection), nil
}

// Add dispatches one already-decoded event
func (a *Aggregator) Add(event *models.Event) {
	a.totalEvents++
	a.totalCalls += len(event.Calls)
	a.dispatcher.Dispatch(event)
}

// Result finalizes the handlers and returns the aggregate
func (a *Aggregator) Result(collection string) *Result {
	return a.buildResult(collection)
}

// stream runs the dispatcher over everything produce emits
func (a *Aggregator) stream(ctx context.Context, produce func(emit func(*models.Event) error) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	events := make(chan models.Event, 64)
	done := make(chan error, 1)
	go func() {
		done <- a.dispatcher.Run(ctx, events)
	}()

	err := produce(func(event *models.Event) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		select {
		case events <- *event:
			a.totalEvents++
			a.totalCalls += len(event.Calls)
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	close(events)

	if runErr := <-done; err == nil {
		err = runErr
	}
	return err
}

func (a *Aggregator) readEvents(reader io.Reader, emit func(*models.Event) error) error {
	var emitErr error
	err := a.scanLines(reader, func(line []byte) error {
		if emitErr != nil {
			return nil
		}
		var event models.Event
		if err := json.Unmarshal(line, &event); err != nil {
			return err
		}
		emitErr = emit(&event)
		return nil
	})
	if err != nil {
		return err
	}
	return emitErr
}

func (a *Aggregator) readTracee(reader io.Reader, emit func(*models.Event) error) error {
	collector := NewTraceeCollector()
	err := a.scanLines(reader, func(line []byte) error {
		var event TraceeEvent
		if err := json.Unmarshal(line, &event); err != nil {
			return err
		}
		collector.Add(&event)
		return nil
	})
	if err != nil {
		return err
	}

	events := collector.Events()
	for i := range events {
		if err := emit(&events[i]); err != nil {
			return err
		}
	}
	return nil
}

// scanLines feeds every non-blank line to fn, skipping lines fn rejects
func (a *Aggregator) scanLines(reader io.Reader, fn func([]byte) error) error {
	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		if strings.TrimSpace(string(line)) == "" {
			continue
		}

		if err := fn(line); err != nil {
			a.skippedLines++
			a.logger.Debug("skipping invalid line", zap.Int("line", lineNo), zap.Error(err))
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading input: %w", err)
	}
	return nil
}

func (a *Aggregator) buildResult(collection string) *Result {
	return &Result{
		Collection:   collection,
		TotalEvents:  a.totalEvents,
		TotalCalls:   a.totalCalls,
		SkippedLines: a.skippedLines,
		Summary:      a.dispatcher.Summary(),
	}
}
