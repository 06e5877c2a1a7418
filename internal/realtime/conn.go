package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/lyehe/porterminal/internal/terminal"
)

const (
	readDeadline  = 90 * time.Second
	writeDeadline = 10 * time.Second
)

// wsConn adapts a gorilla websocket to terminal.Connection. Writes are
// serialized since gorilla allows one concurrent writer.
type wsConn struct {
	ws      *websocket.Conn
	writeMu sync.Mutex
	closed  atomic.Bool
}

var _ terminal.Connection = (*wsConn)(nil)

func newWSConn(ws *websocket.Conn) *wsConn {
	return &wsConn{ws: ws}
}

func (c *wsConn) write(messageType int, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.ws.SetWriteDeadline(time.Now().Add(writeDeadline))
	if err := c.ws.WriteMessage(messageType, data); err != nil {
		c.closed.Store(true)
		return err
	}
	return nil
}

func (c *wsConn) SendMessage(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.write(websocket.TextMessage, data)
}

func (c *wsConn) SendOutput(data []byte) error {
	return c.write(websocket.BinaryMessage, data)
}

// Receive blocks for the next data message. Cancelling ctx unblocks it by
// expiring the read deadline, after which the connection is unusable.
func (c *wsConn) Receive(ctx context.Context) (terminal.Inbound, error) {
	stop := context.AfterFunc(ctx, func() {
		c.ws.SetReadDeadline(time.Now())
	})
	defer stop()

	c.ws.SetReadDeadline(time.Now().Add(readDeadline))
	mt, data, err := c.ws.ReadMessage()
	if err != nil {
		c.closed.Store(true)
		if ctx.Err() != nil {
			return terminal.Inbound{}, ctx.Err()
		}
		return terminal.Inbound{}, err
	}
	return terminal.Inbound{Binary: mt == websocket.BinaryMessage, Data: data}, nil
}

// Close sends a close frame with code and reason, then drops the socket.
func (c *wsConn) Close(code int, reason string) error {
	if c.closed.Swap(true) {
		return c.ws.Close()
	}

	c.writeMu.Lock()
	c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason),
		time.Now().Add(writeDeadline))
	c.writeMu.Unlock()

	return c.ws.Close()
}

func (c *wsConn) IsConnected() bool {
	return !c.closed.Load()
}
