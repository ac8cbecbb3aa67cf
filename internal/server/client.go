package server

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/acheong08/spr-behavior/internal/aggregate"
)

// Client represents a connected WebSocket client. Each client streams one
// trace at a time: event messages feed a private handler set until finish.
type Client struct {
	conn   *websocket.Conn
	server *Server
	send   chan Message

	// nil until the first event of a stream
	aggregator *aggregate.Aggregator
}

func newClient(conn *websocket.Conn, server *Server) *Client {
	return &Client{
		conn:   conn,
		server: server,
		send:   make(chan Message, 256),
	}
}

func (c *Client) SendMessage(msg Message) {
	select {
	case c.send <- msg:
	default:
		// Channel full, drop message
		c.server.logger.Warn("message channel full, dropping message", zap.String("type", string(msg.Type)))
	}
}

func (c *Client) SendLog(message, level string) {
	c.SendMessage(NewLogMessage(message, level))
}

func (c *Client) SendError(message string, err error) {
	c.SendMessage(NewErrorMessage(message, err))
}

func (c *Client) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteJSON(msg); err != nil {
				c.server.logger.Warn("error writing message", zap.Error(err))
				return
			}

		case <-ticker.C:
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) readPump() {
	defer func() {
		close(c.send)
	}()

	for {
		var msg Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.server.logger.Warn("websocket error", zap.Error(err))
			}
			return
		}

		switch msg.Type {
		case TypeEvent:
			c.handleEvent(msg)
		case TypeFinish:
			c.handleFinish(msg)
		case TypeFetch:
			c.handleFetch(msg)
		case TypePing:
			c.SendMessage(Message{Type: TypePong})
		default:
			c.SendError(fmt.Sprintf("Unknown message type: %s", msg.Type), nil)
		}
	}
}

func (c *Client) handleEvent(msg Message) {
	event, err := ParseEventPayload(msg)
	if err != nil {
		// one bad record never aborts the stream
		c.SendError("Skipping event", err)
		return
	}

	if c.aggregator == nil {
		c.aggregator = c.server.newAggregator()
	}
	c.aggregator.Add(event)
}

func (c *Client) handleFinish(msg Message) {
	payload, err := ParseFinishPayload(msg)
	if err != nil {
		c.SendError("Failed to parse finish request", err)
		return
	}
	if payload.Collection == "" {
		payload.Collection = "default"
	}

	agg := c.aggregator
	if agg == nil {
		agg = c.server.newAggregator()
	}
	c.aggregator = nil

	result := agg.Result(payload.Collection)
	id, err := c.server.publish(context.Background(), result)
	if err != nil {
		c.SendLog(fmt.Sprintf("Report %s not persisted: %v", id, err), "warning")
	}
	c.SendMessage(NewReportMessage(id, result))
}

func (c *Client) handleFetch(msg Message) {
	payload, err := ParseFetchPayload(msg)
	if err != nil {
		c.SendError("Failed to parse fetch request", err)
		return
	}

	result, err := c.server.lookup(context.Background(), payload.ID)
	if err != nil {
		if errors.Is(err, ErrReportNotFound) {
			c.SendError(fmt.Sprintf("Report %s not found", payload.ID), nil)
		} else {
			c.SendError("Failed to load report", err)
		}
		return
	}
	c.SendMessage(NewReportMessage(payload.ID, result))
}
