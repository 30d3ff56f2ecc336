package scanevents

import (
	"context"
	"errors"
	"qrscanner/pkg/wire"
)

// ErrConnClosed is returned by Conn.Send after the connection was closed.
var ErrConnClosed = errors.New("push channel closed")

// Conn is an open push channel.
type Conn interface {
	// Send writes one message to the server.
	Send(ctx context.Context, msg wire.Message) error
	// Messages delivers inbound messages in channel order. The channel is
	// closed when the connection is torn down.
	Messages() <-chan wire.Message
	// Close tears the connection down and releases its resources.
	Close() error
}

// Dialer opens push channels.
type Dialer interface {
	Dial(ctx context.Context) (Conn, error)
}

// DialerFunc adapts a function to the Dialer interface.
type DialerFunc func(ctx context.Context) (Conn, error)

// Dial calls f(ctx).
func (f DialerFunc) Dial(ctx context.Context) (Conn, error) { return f(ctx) }
