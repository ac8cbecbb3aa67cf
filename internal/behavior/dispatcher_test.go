package behavior

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/acheong08/spr-behavior/pkg/models"
)

// recordingHandler remembers which events it saw
type recordingHandler struct {
	eventTypes
	key  string
	seen []int
}

func (h *recordingHandler) Key() string {
	return h.key
}

func (h *recordingHandler) Accepts(event *models.Event) bool {
	return h.accepts(event)
}

func (h *recordingHandler) Handle(event *models.Event) {
	h.seen = append(h.seen, event.ProcessID)
}

func (h *recordingHandler) Finalize() any {
	return h.seen
}

type countingRecorder struct {
	mu       sync.Mutex
	events   int
	calls    int
	skipped  int
	unknowns int
}

func (r *countingRecorder) EventDispatched(_ string, calls int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events++
	r.calls += calls
}

func (r *countingRecorder) CallSkipped(string, string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.skipped++
}

func (r *countingRecorder) UnknownDescriptor(string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unknowns++
}

func sampleEvents() []models.Event {
	return []models.Event{
		*process(100,
			call("creat", "3", str("/tmp/a"), str("0644")),
			call("write", "10", str("3"), str("..."), str("10")),
			call("connect", "-115", str("6"), models.ListValue("AF_INET", "1.2.3.4", "80"), str("16")),
		),
		*process(101,
			call("openat", "5", str("AT_FDCWD"), str("/etc/passwd"), str("O_RDONLY")),
			call("read", "100", str("5"), str(""), str("100")),
			call("read", "100", str("8"), str(""), str("100")),
			call("connect", "0", str("6"), models.ListValue("AF_UNIX", "/run/x.sock"), str("16")),
		),
	}
}

func TestDispatcherRoutesByCategory(t *testing.T) {
	d := NewDispatcher()
	proc := &recordingHandler{eventTypes: eventTypes{"process"}, key: "proc"}
	net := &recordingHandler{eventTypes: eventTypes{"netflow"}, key: "net"}
	require.NoError(t, d.Register(proc))
	require.NoError(t, d.Register(net))

	d.Dispatch(&models.Event{ProcessID: 1})
	d.Dispatch(&models.Event{ProcessID: 2, Type: "netflow"})
	d.Dispatch(&models.Event{ProcessID: 3, Type: "process"})

	results := d.Results()
	assert.Equal(t, []int{1, 3}, results["proc"])
	assert.Equal(t, []int{2}, results["net"])
}

func TestDispatcherRejectsDuplicateKeys(t *testing.T) {
	d := NewDispatcher()
	require.NoError(t, d.Register(NewAPIStatsHandler()))
	err := d.Register(NewAPIStatsHandler())
	assert.ErrorIs(t, err, ErrDuplicateHandler)
	assert.Len(t, d.Handlers(), 1)
}

func TestDefaultDispatcherSummary(t *testing.T) {
	rec := &countingRecorder{}
	d := NewDefaultDispatcher(WithRecorder(rec))
	for _, ev := range sampleEvents() {
		d.Dispatch(&ev)
	}

	results := d.Results()
	assert.Len(t, results, 3)
	assert.Contains(t, results, models.KeyFiles)
	assert.Contains(t, results, models.KeyNetwork)
	assert.Contains(t, results, models.KeyAPIStats)

	summary := d.Summary()
	require.NotNil(t, summary.Files)
	require.NotNil(t, summary.Network)
	assert.Equal(t, []string{"/etc/passwd", "/tmp/a"}, summary.Files.Opened.All)
	assert.Equal(t, []string{"/tmp/a"}, summary.Files.WrittenFilenames)
	assert.Equal(t, []string{"/etc/passwd"}, summary.Files.ReadFilenames)
	assert.Equal(t, []string{"1.2.3.4:80"}, summary.Network.ConnectedIPs)
	assert.Equal(t, []string{"/run/x.sock"}, summary.Network.ConnectedSockets)
	assert.Equal(t, 2, summary.APIStats["101"]["read"])

	assert.Equal(t, 2, rec.events)
	assert.Equal(t, 7, rec.calls)
	assert.Equal(t, 1, rec.unknowns)
}

func TestDispatcherRunMatchesSequential(t *testing.T) {
	sequential := NewDefaultDispatcher()
	for _, ev := range sampleEvents() {
		sequential.Dispatch(&ev)
	}

	concurrent := NewDefaultDispatcher()
	events := make(chan models.Event)
	go func() {
		defer close(events)
		for _, ev := range sampleEvents() {
			events <- ev
		}
	}()
	require.NoError(t, concurrent.Run(context.Background(), events))

	assert.Equal(t, sequential.Summary(), concurrent.Summary())
}

func TestDispatcherRunCancelled(t *testing.T) {
	d := NewDefaultDispatcher()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := d.Run(ctx, make(chan models.Event))
	assert.ErrorIs(t, err, context.Canceled)
}
