package server

import (
	"encoding/json"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"volley/internal/runner"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	sendBuffer = 256
)

// wsConn is one websocket client. It is the publisher of every run the
// client starts, so events go back to the connection that asked for them.
type wsConn struct {
	ws         *websocket.Conn
	controller *runner.Controller
	logger     *zap.Logger

	send      chan Frame
	done      chan struct{}
	closeOnce sync.Once
}

func newWSConn(ws *websocket.Conn, controller *runner.Controller, logger *zap.Logger) *wsConn {
	return &wsConn{
		ws:         ws,
		controller: controller,
		logger:     logger,
		send:       make(chan Frame, sendBuffer),
		done:       make(chan struct{}),
	}
}

// Publish queues ev for the writer. Updates are dropped when the client
// falls behind; lifecycle frames wait for room unless the connection is gone.
func (c *wsConn) Publish(ev runner.Event) {
	f := NewFrame(ev)
	if ev.Type == runner.EventUpdate {
		select {
		case c.send <- f:
		case <-c.done:
		default:
		}
		return
	}
	c.enqueue(f)
}

func (c *wsConn) enqueue(f Frame) {
	select {
	case c.send <- f:
	case <-c.done:
	}
}

func (c *wsConn) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.ws.Close()
	})
}

func (c *wsConn) serve() {
	go c.writeLoop()
	c.readLoop()
}

func (c *wsConn) readLoop() {
	defer c.close()

	c.ws.SetReadLimit(1 << 20)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg ClientMessage
		if err := c.ws.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn("websocket read failed", zap.Error(err))
			}
			// A truncated or empty text message surfaces as io.ErrUnexpectedEOF
			// from the decoder; the connection itself is still healthy.
			var syntaxErr *json.SyntaxError
			var typeErr *json.UnmarshalTypeError
			if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) || errors.Is(err, io.ErrUnexpectedEOF) {
				c.enqueue(errorFrame("", "malformed message"))
				continue
			}
			return
		}
		c.handle(msg)
	}
}

func (c *wsConn) handle(msg ClientMessage) {
	switch msg.Type {
	case MessageStartTest:
		var cfg runner.Config
		if err := json.Unmarshal(msg.Config, &cfg); err != nil {
			c.enqueue(errorFrame("", err.Error()))
			return
		}
		if _, err := c.controller.Start(cfg, c); err != nil {
			c.enqueue(errorFrame("", err.Error()))
		}
	case MessageStopTest:
		// Unknown or finished runs are a no-op, as over REST.
		_ = c.controller.Stop(msg.TestID)
	default:
		c.enqueue(errorFrame("", "unknown message type "+msg.Type))
	}
}

func (c *wsConn) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case f := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteJSON(f); err != nil {
				c.logger.Debug("websocket write failed", zap.Error(err))
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}
