package behavior

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/acheong08/spr-behavior/pkg/models"
)

// ErrDuplicateHandler is returned when two handlers share a key
var ErrDuplicateHandler = errors.New("duplicate handler key")

// Dispatcher fans events out to every handler subscribed to their category
// and merges the finalized reports under each handler's key.
type Dispatcher struct {
	opts     options
	handlers []Handler
	keys     map[string]bool
}

// NewDispatcher creates a dispatcher with no handlers
func NewDispatcher(opts ...Option) *Dispatcher {
	return &Dispatcher{
		opts: buildOptions(opts),
		keys: make(map[string]bool),
	}
}

// NewDefaultDispatcher registers the files, network and apistats handlers.
// The options are shared with every handler.
func NewDefaultDispatcher(opts ...Option) *Dispatcher {
	d := NewDispatcher(opts...)
	// keys are distinct, registration cannot fail
	_ = d.Register(NewFileActivityHandler(opts...))
	_ = d.Register(NewNetworkActivityHandler(opts...))
	_ = d.Register(NewAPIStatsHandler(opts...))
	return d
}

// Register adds a handler
func (d *Dispatcher) Register(h Handler) error {
	if d.keys[h.Key()] {
		return fmt.Errorf("%w: %s", ErrDuplicateHandler, h.Key())
	}
	d.keys[h.Key()] = true
	d.handlers = append(d.handlers, h)
	return nil
}

// Handlers returns the registered handlers in registration order
func (d *Dispatcher) Handlers() []Handler {
	return d.handlers
}

// Dispatch delivers one event to every accepting handler
func (d *Dispatcher) Dispatch(event *models.Event) {
	d.opts.recorder.EventDispatched(event.Category(), len(event.Calls))
	for _, h := range d.handlers {
		if h.Accepts(event) {
			h.Handle(event)
		}
	}
}

// Run consumes events until the channel closes. Each handler runs in its own
// goroutine and sees the events in arrival order; handlers share no state.
func (d *Dispatcher) Run(ctx context.Context, events <-chan models.Event) error {
	feeds := make([]chan *models.Event, len(d.handlers))
	var wg sync.WaitGroup
	for i, h := range d.handlers {
		feeds[i] = make(chan *models.Event, 64)
		wg.Add(1)
		go func(h Handler, feed <-chan *models.Event) {
			defer wg.Done()
			for event := range feed {
				h.Handle(event)
			}
		}(h, feeds[i])
	}

	closeFeeds := func() {
		for _, feed := range feeds {
			close(feed)
		}
		wg.Wait()
	}

	for {
		select {
		case <-ctx.Done():
			closeFeeds()
			return ctx.Err()
		case event, ok := <-events:
			if !ok {
				closeFeeds()
				return nil
			}
			d.opts.recorder.EventDispatched(event.Category(), len(event.Calls))
			for i, h := range d.handlers {
				if !h.Accepts(&event) {
					continue
				}
				select {
				case feeds[i] <- &event:
				case <-ctx.Done():
					closeFeeds()
					return ctx.Err()
				}
			}
		}
	}
}

// Results finalizes every handler and returns the reports by key
func (d *Dispatcher) Results() map[string]any {
	results := make(map[string]any, len(d.handlers))
	for _, h := range d.handlers {
		results[h.Key()] = h.Finalize()
	}
	d.opts.logger.Debug("handlers finalized", zap.Int("handlers", len(results)))
	return results
}

// Summary finalizes every handler and assembles the typed summary. Reports
// from handlers other than the built-in ones are not part of it.
func (d *Dispatcher) Summary() *models.Summary {
	summary := &models.Summary{}
	for key, report := range d.Results() {
		switch r := report.(type) {
		case *models.FilesReport:
			summary.Files = r
		case *models.NetworkReport:
			summary.Network = r
		case models.APIStats:
			summary.APIStats = r
		default:
			d.opts.logger.Debug("report not part of summary", zap.String("key", key))
		}
	}
	return summary
}
