package relay

import (
	"context"

	"github.com/coder/websocket"
)

type wsConn struct {
	c *websocket.Conn
}

// WebSocket adapts an accepted or dialed websocket connection. Text and
// binary messages are forwarded as-is.
func WebSocket(c *websocket.Conn) Conn {
	return &wsConn{c: c}
}

func (w *wsConn) ReadFrame(ctx context.Context) (Frame, error) {
	typ, data, err := w.c.Read(ctx)
	if err != nil {
		return Frame{}, err
	}
	if typ == websocket.MessageText {
		return Frame{Type: MessageText, Data: data}, nil
	}
	return Frame{Type: MessageBinary, Data: data}, nil
}

func (w *wsConn) WriteFrame(ctx context.Context, f Frame) error {
	typ := websocket.MessageBinary
	if f.Type == MessageText {
		typ = websocket.MessageText
	}
	return w.c.Write(ctx, typ, f.Data)
}

// Close performs the close handshake and falls back to dropping the
// connection if the peer does not answer.
func (w *wsConn) Close() error {
	if err := w.c.Close(websocket.StatusNormalClosure, "relay closed"); err != nil {
		return w.c.CloseNow()
	}
	return nil
}
