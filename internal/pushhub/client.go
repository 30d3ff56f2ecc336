package pushhub

import (
	"context"
	"qrscanner/pkg/domain"
	"qrscanner/pkg/logger"
	"qrscanner/pkg/wire"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Messages a client may send besides client_ready.
const (
	eventTestMessage  = "test_message"
	eventTestResponse = "test_response"
)

type client struct {
	ctx      context.Context //nolint: containedctx
	hub      *Hub
	ws       *websocket.Conn
	send     chan []byte
	done     chan struct{}
	stopOnce sync.Once
}

func (c *client) stop() {
	c.stopOnce.Do(func() { close(c.done) })
}

// readPump handles the messages sent by the client and keeps the read
// deadline moving while pongs arrive.
func (c *client) readPump() {
	defer c.hub.remove(c)

	pongWait := c.hub.opts.PongWait
	c.ws.SetReadLimit(c.hub.opts.MaxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		typ, data, err := c.ws.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
			default:
				if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					logger.Warn(c.ctx, "push channel closed unexpectedly", zap.Error(err))
				}
			}

			return
		}
		if typ != websocket.TextMessage {
			continue
		}

		msg, err := wire.Decode(data)
		if err != nil {
			logger.Warn(c.ctx, "dropping undecodable client message", zap.Error(err))

			continue
		}
		c.handle(msg)
	}
}

func (c *client) handle(msg wire.Message) {
	switch msg.Event {
	case domain.EventClientReady:
		raw, ok := wire.ScanID(msg.Data)
		if !ok {
			logger.Warn(c.ctx, "client_ready without scan_id")

			return
		}
		id, err := domain.ParseScanID(raw)
		if err != nil {
			logger.Warn(c.ctx, "client_ready with invalid scan_id", zap.String("scanID", raw))

			return
		}
		if c.hub.onReady == nil {
			return
		}
		if err := c.hub.onReady(c.ctx, id); err != nil {
			logger.Warn(c.ctx, "could not start scan", zap.String("scanID", raw), zap.Error(err))
		}
	case eventTestMessage:
		data := wire.Encode(wire.Message{Event: eventTestResponse, Data: []byte(`{"message":"test received"}`)})
		select {
		case c.send <- data:
		default:
		}
	default:
		logger.Debug(c.ctx, "ignoring client message", zap.String("event", msg.Event))
	}
}

// writePump is the only writer of the connection. It flushes queued
// broadcasts and pings the client.
func (c *client) writePump() {
	writeWait := c.hub.opts.WriteWait
	ticker := time.NewTicker(c.hub.opts.PongWait * 9 / 10)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()

	for {
		select {
		case data := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				logger.Debug(c.ctx, "could not write push message", zap.Error(err))
				c.hub.remove(c)

				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.hub.remove(c)

				return
			}
		case <-c.done:
			_ = c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))

			return
		}
	}
}
