package transport

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// Socket is one established duplex connection. ReadMessage blocks until a
// frame arrives or the connection dies; a peer closure surfaces as a
// *CloseError.
type Socket interface {
	ReadMessage() ([]byte, error)
	WriteMessage(data []byte) error
	Close() error
}

// Dialer establishes sockets. Fakes implement it in tests.
type Dialer interface {
	Dial(ctx context.Context, url string, header http.Header) (Socket, error)
}

// GorillaDialer dials real WebSocket connections.
type GorillaDialer struct {
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
}

// Dial establishes the connection.
func (d *GorillaDialer) Dial(ctx context.Context, url string, header http.Header) (Socket, error) {
	timeout := d.HandshakeTimeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: timeout,
	}

	conn, _, err := dialer.DialContext(ctx, url, header)
	if err != nil {
		return nil, err
	}

	writeTimeout := d.WriteTimeout
	if writeTimeout == 0 {
		writeTimeout = 5 * time.Second
	}

	return &gorillaSocket{conn: conn, writeTimeout: writeTimeout}, nil
}

// gorillaSocket adapts *websocket.Conn to the Socket interface.
type gorillaSocket struct {
	conn         *websocket.Conn
	writeTimeout time.Duration
}

func (s *gorillaSocket) ReadMessage() ([]byte, error) {
	_, data, err := s.conn.ReadMessage()
	if err != nil {
		var ce *websocket.CloseError
		if errors.As(err, &ce) {
			return nil, &CloseError{Code: ce.Code, Reason: ce.Text}
		}
		return nil, err
	}
	return data, nil
}

func (s *gorillaSocket) WriteMessage(data []byte) error {
	s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

// Close sends a normal-closure message and tears down the connection.
func (s *gorillaSocket) Close() error {
	s.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	return s.conn.Close()
}
