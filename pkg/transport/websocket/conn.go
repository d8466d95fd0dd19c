// Package websocket carries console input and output over a websocket.
package websocket

import (
	"golang.org/x/net/websocket"
)

// Conn is a websocket connection used as an input stream and a
// broadcast.Transmitter.
type Conn struct {
	*websocket.Conn
}

// Dial connects to url.
func Dial(url, origin string) (*Conn, error) {
	if origin == "" {
		origin = "http://localhost/"
	}
	conn, err := websocket.Dial(url, "", origin)
	if err != nil {
		return nil, err
	}
	return Wrap(conn), nil
}

// Wrap wraps an established connection.
func Wrap(conn *websocket.Conn) *Conn {
	conn.PayloadType = websocket.BinaryFrame
	return &Conn{Conn: conn}
}

// Name implements framework.Named.
func (c *Conn) Name() string { return "websocket" }

// Transmit implements broadcast.Transmitter. Each payload is one message.
func (c *Conn) Transmit(p []byte) error {
	return websocket.Message.Send(c.Conn, p)
}
