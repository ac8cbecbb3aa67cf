package aggregate

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/acheong08/spr-behavior/pkg/models"
)

// TraceeCollector groups Tracee events per process, in arrival order, into
// the Event/Call model consumed by the handlers.
type TraceeCollector struct {
	order  []int
	events map[int]*models.Event
}

// NewTraceeCollector creates an empty collector
func NewTraceeCollector() *TraceeCollector {
	return &TraceeCollector{
		events: make(map[int]*models.Event),
	}
}

// Add appends one Tracee event to its process's call sequence
func (c *TraceeCollector) Add(event *TraceeEvent) {
	ev, exists := c.events[event.ProcessID]
	if !exists {
		ev = &models.Event{
			Type:        models.DefaultEventType,
			ProcessID:   event.ProcessID,
			ProcessName: event.ProcessName,
		}
		c.events[event.ProcessID] = ev
		c.order = append(c.order, event.ProcessID)
	}

	switch event.EventName {
	case "execve", "sched_process_exec":
		// comm changes on exec
		if event.ProcessName != "" {
			ev.ProcessName = event.ProcessName
		}
		if argv := stringSliceArg(event, "argv"); len(argv) > 0 {
			ev.CommandLine = strings.Join(argv, " ")
		}
	}

	ev.Calls = append(ev.Calls, convertCall(event))
}

// Events returns one Event per process, ordered by first appearance
func (c *TraceeCollector) Events() []models.Event {
	out := make([]models.Event, 0, len(c.order))
	for _, pid := range c.order {
		out = append(out, *c.events[pid])
	}
	return out
}

func convertCall(event *TraceeEvent) models.Call {
	call := models.Call{
		API:         event.EventName,
		Arguments:   make(map[string]models.Value, len(event.Args)),
		ReturnValue: models.StringValue(strconv.FormatInt(event.ReturnValue, 10)),
		Status:      "success",
		Time:        float64(event.Timestamp) / 1e9,
	}
	if event.ReturnValue < 0 {
		call.Status = "failure"
	}

	for i, arg := range event.Args {
		if v, ok := convertArg(arg.Value); ok {
			call.Arguments["p"+strconv.Itoa(i)] = v
		}
	}
	return call
}

// convertArg maps a Tracee argument onto a trace Value. Socket addresses
// become [family, address, port] or [family, path].
func convertArg(raw json.RawMessage) (models.Value, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return models.Value{}, false
	}

	if raw[0] == '{' {
		return convertSockaddr(raw)
	}

	var v models.Value
	if err := json.Unmarshal(raw, &v); err != nil {
		return models.Value{}, false
	}
	return v, true
}

func convertSockaddr(raw json.RawMessage) (models.Value, bool) {
	var fields map[string]models.Value
	if err := json.Unmarshal(raw, &fields); err != nil {
		return models.Value{}, false
	}

	family := fields["sa_family"].String()
	switch family {
	case "AF_INET":
		return models.ListValue(family, fields["sin_addr"].String(), fields["sin_port"].String()), true
	case "AF_INET6":
		return models.ListValue(family, fields["sin6_addr"].String(), fields["sin6_port"].String()), true
	case "AF_UNIX":
		return models.ListValue(family, fields["sun_path"].String()), true
	case "":
		return models.Value{}, false
	}
	return models.ListValue(family), true
}

func stringSliceArg(event *TraceeEvent, name string) []string {
	for _, arg := range event.Args {
		if arg.Name == name {
			var values []string
			if err := json.Unmarshal(arg.Value, &values); err == nil {
				return values
			}
			break
		}
	}
	return nil
}
