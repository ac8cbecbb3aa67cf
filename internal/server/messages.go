package server

import (
	"encoding/json"
	"fmt"

	"github.com/acheong08/spr-behavior/internal/aggregate"
	"github.com/acheong08/spr-behavior/pkg/models"
)

// MessageType represents the type of WebSocket message
type MessageType string

const (
	// Client -> Server
	TypeEvent  MessageType = "event"  // One process event to aggregate
	TypeFinish MessageType = "finish" // End of stream, produce the report
	TypeFetch  MessageType = "fetch"  // Fetch a previously produced report
	TypePing   MessageType = "ping"   // Keep-alive

	// Server -> Client
	TypeReport MessageType = "report" // Aggregated report
	TypeLog    MessageType = "log"    // Log messages for terminal
	TypeError  MessageType = "error"  // Error message
	TypePong   MessageType = "pong"
)

// Message is the base WebSocket message structure
type Message struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// FinishPayload sent by client to close the current stream
type FinishPayload struct {
	Collection string `json:"collection"`
}

// FetchPayload sent by client to retrieve a report
type FetchPayload struct {
	ID string `json:"id"`
}

// ReportPayload carries an aggregated report
type ReportPayload struct {
	ID     string            `json:"id"`
	Result *aggregate.Result `json:"result"`
}

// LogPayload for terminal output
type LogPayload struct {
	Message string `json:"message"`         // Log message
	Level   string `json:"level,omitempty"` // "info", "success", "warning", "error"
}

// ErrorPayload for error messages
type ErrorPayload struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// Helper functions to create messages

func NewReportMessage(id string, result *aggregate.Result) Message {
	payload := ReportPayload{
		ID:     id,
		Result: result,
	}
	payloadBytes, _ := json.Marshal(payload)
	return Message{Type: TypeReport, Payload: payloadBytes}
}

func NewLogMessage(message, level string) Message {
	payload := LogPayload{
		Message: message,
		Level:   level,
	}
	payloadBytes, _ := json.Marshal(payload)
	return Message{Type: TypeLog, Payload: payloadBytes}
}

func NewErrorMessage(message string, err error) Message {
	errMsg := message
	if err != nil {
		errMsg = fmt.Sprintf("%s: %v", message, err)
	}
	payload := ErrorPayload{Message: errMsg}
	payloadBytes, _ := json.Marshal(payload)
	return Message{Type: TypeError, Payload: payloadBytes}
}

// ParseEventPayload extracts the process event from a message
func ParseEventPayload(msg Message) (*models.Event, error) {
	var event models.Event
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		return nil, fmt.Errorf("failed to parse event payload: %w", err)
	}
	return &event, nil
}

// ParseFinishPayload extracts the finish payload; an empty payload is allowed
func ParseFinishPayload(msg Message) (*FinishPayload, error) {
	var payload FinishPayload
	if len(msg.Payload) == 0 {
		return &payload, nil
	}
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		return nil, fmt.Errorf("failed to parse finish payload: %w", err)
	}
	return &payload, nil
}

// ParseFetchPayload extracts the fetch payload
func ParseFetchPayload(msg Message) (*FetchPayload, error) {
	var payload FetchPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		return nil, fmt.Errorf("failed to parse fetch payload: %w", err)
	}
	if payload.ID == "" {
		return nil, fmt.Errorf("fetch payload has no id")
	}
	return &payload, nil
}
