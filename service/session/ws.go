package session

import (
	"context"

	"nhooyr.io/websocket"
)

// maxMessageBytes bounds a single websocket frame. Full EVM blocks with
// transaction bodies run to several megabytes.
const maxMessageBytes = 16 << 20

// Conn is the minimal connection surface a session needs. It allows the
// websocket layer to be mocked in tests without hitting real feeds.
type Conn interface {
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, data []byte) error
	Close() error
}

// Dialer opens a Conn to an endpoint.
type Dialer interface {
	Dial(ctx context.Context, endpoint string) (Conn, error)
}

// WebSocketDialer dials real websocket endpoints.
type WebSocketDialer struct{}

func (WebSocketDialer) Dial(ctx context.Context, endpoint string) (Conn, error) {
	c, _, err := websocket.Dial(ctx, endpoint, nil)
	if err != nil {
		return nil, err
	}
	c.SetReadLimit(maxMessageBytes)
	return &wsConn{c: c}, nil
}

type wsConn struct {
	c *websocket.Conn
}

func (w *wsConn) Read(ctx context.Context) ([]byte, error) {
	_, data, err := w.c.Read(ctx)
	return data, err
}

func (w *wsConn) Write(ctx context.Context, data []byte) error {
	return w.c.Write(ctx, websocket.MessageText, data)
}

func (w *wsConn) Close() error {
	return w.c.Close(websocket.StatusNormalClosure, "session disposed")
}
