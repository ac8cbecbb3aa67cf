package behavior

import (
	"go.uber.org/zap"

	"github.com/acheong08/spr-behavior/pkg/models"
)

// inetFamilies are the family tags of a connect address carrying host and port
var inetFamilies = map[string]bool{
	"AF_INET":  true,
	"AF_INET6": true,
	"2":        true,
	"10":       true,
}

// NetworkActivityHandler extracts the distinct endpoints contacted via connect
type NetworkActivityHandler struct {
	eventTypes
	opts options

	ips     stringSet
	sockets stringSet

	report *models.NetworkReport
}

// NewNetworkActivityHandler creates a handler for process events
func NewNetworkActivityHandler(opts ...Option) *NetworkActivityHandler {
	return &NetworkActivityHandler{
		eventTypes: eventTypes{models.DefaultEventType},
		opts:       buildOptions(opts),
		ips:        make(stringSet),
		sockets:    make(stringSet),
	}
}

func (h *NetworkActivityHandler) Key() string {
	return models.KeyNetwork
}

func (h *NetworkActivityHandler) Accepts(event *models.Event) bool {
	return h.accepts(event)
}

func (h *NetworkActivityHandler) Handle(event *models.Event) {
	if h.report != nil {
		h.opts.logger.Warn("event received after finalize", zap.String("handler", h.Key()), zap.Int("pid", event.ProcessID))
		return
	}

	for i := range event.Calls {
		call := &event.Calls[i]
		if call.API != "connect" {
			continue
		}
		sc, err := Decode(call)
		if err != nil {
			h.opts.logger.Debug("skipping call", zap.Int("pid", event.ProcessID), zap.Error(err))
			h.opts.recorder.CallSkipped(h.Key(), call.API)
			continue
		}
		h.handleConnect(sc.(ConnectCall))
	}
}

func (h *NetworkActivityHandler) handleConnect(c ConnectCall) {
	switch len(c.Address) {
	case 3:
		if inetFamilies[c.Address[0]] {
			h.ips.add(c.Address[1] + ":" + c.Address[2])
		}
	case 2:
		h.sockets.add(c.Address[1])
	}
}

func (h *NetworkActivityHandler) Finalize() any {
	if h.report == nil {
		h.report = &models.NetworkReport{
			ConnectedIPs:     h.ips.sorted(),
			ConnectedSockets: h.sockets.sorted(),
		}
	}
	return h.report
}
