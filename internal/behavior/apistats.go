package behavior

import (
	"maps"
	"strconv"

	"go.uber.org/zap"

	"github.com/acheong08/spr-behavior/pkg/models"
)

// APIStatsHandler counts api calls per process
type APIStatsHandler struct {
	eventTypes
	opts options

	processes models.APIStats
	report    models.APIStats
}

// NewAPIStatsHandler creates a handler for process events
func NewAPIStatsHandler(opts ...Option) *APIStatsHandler {
	return &APIStatsHandler{
		eventTypes: eventTypes{models.DefaultEventType},
		opts:       buildOptions(opts),
		processes:  make(models.APIStats),
	}
}

func (h *APIStatsHandler) Key() string {
	return models.KeyAPIStats
}

func (h *APIStatsHandler) Accepts(event *models.Event) bool {
	return h.accepts(event)
}

func (h *APIStatsHandler) Handle(event *models.Event) {
	if h.report != nil {
		h.opts.logger.Warn("event received after finalize", zap.String("handler", h.Key()), zap.Int("pid", event.ProcessID))
		return
	}

	pid := strconv.Itoa(event.ProcessID)
	counts, ok := h.processes[pid]
	if !ok {
		counts = make(map[string]int)
		h.processes[pid] = counts
	}
	for _, call := range event.Calls {
		counts[call.API]++
	}
}

func (h *APIStatsHandler) Finalize() any {
	if h.report != nil {
		return h.report
	}

	report := make(models.APIStats, len(h.processes))
	for pid, counts := range h.processes {
		report[pid] = maps.Clone(counts)
	}
	h.report = report
	return h.report
}
