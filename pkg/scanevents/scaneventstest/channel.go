// Package scaneventstest provides an in-memory push channel for tests. Every
// connection dialed from a Channel receives every broadcast, the same way a
// browser page shares one socket with the events of all scans.
package scaneventstest

import (
	"context"
	"qrscanner/pkg/domain"
	"qrscanner/pkg/scanevents"
	"qrscanner/pkg/wire"
	"sync"
)

const bufferSize = 256

// Channel is an in-memory server side of the push channel.
type Channel struct {
	mu      sync.Mutex
	conns   map[*Conn]struct{}
	sent    []wire.Message
	dialErr error
	dials   int
}

// NewChannel returns an empty Channel.
func NewChannel() *Channel {
	return &Channel{conns: map[*Conn]struct{}{}}
}

var _ scanevents.Dialer = (*Channel)(nil)

// Dial opens a new connection, or fails with the error set by FailDial.
func (ch *Channel) Dial(ctx context.Context) (scanevents.Conn, error) {
	ch.mu.Lock()
	defer ch.mu.Unlock()

	ch.dials++
	if ch.dialErr != nil {
		return nil, ch.dialErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c := &Conn{ch: ch, in: make(chan wire.Message, bufferSize)}
	ch.conns[c] = struct{}{}

	return c, nil
}

// FailDial makes subsequent dials fail with err. A nil err restores dialing.
func (ch *Channel) FailDial(err error) {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	ch.dialErr = err
}

// Dials returns the number of dial attempts.
func (ch *Channel) Dials() int {
	ch.mu.Lock()
	defer ch.mu.Unlock()

	return ch.dials
}

// Publish broadcasts a domain event to every open connection.
func (ch *Channel) Publish(_ context.Context, ev domain.Event) error {
	msg, err := wire.New(ev)
	if err != nil {
		return err
	}
	ch.Broadcast(msg)

	return nil
}

// Broadcast sends msg to every open connection. Connections with a full
// buffer miss the message.
func (ch *Channel) Broadcast(msg wire.Message) {
	ch.mu.Lock()
	defer ch.mu.Unlock()

	for c := range ch.conns {
		select {
		case c.in <- msg:
		default:
		}
	}
}

// Drop tears every open connection down from the server side.
func (ch *Channel) Drop() {
	ch.mu.Lock()
	conns := ch.conns
	ch.conns = map[*Conn]struct{}{}
	ch.mu.Unlock()

	for c := range conns {
		c.shutdown()
	}
}

// Open returns the number of open connections.
func (ch *Channel) Open() int {
	ch.mu.Lock()
	defer ch.mu.Unlock()

	return len(ch.conns)
}

// Sent returns the messages clients sent, in order.
func (ch *Channel) Sent() []wire.Message {
	ch.mu.Lock()
	defer ch.mu.Unlock()

	return append([]wire.Message(nil), ch.sent...)
}

// Conn is one in-memory connection.
type Conn struct {
	ch   *Channel
	in   chan wire.Message
	once sync.Once
}

func (c *Conn) Send(ctx context.Context, msg wire.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.ch.mu.Lock()
	defer c.ch.mu.Unlock()
	if _, ok := c.ch.conns[c]; !ok {
		return scanevents.ErrConnClosed
	}
	c.ch.sent = append(c.ch.sent, msg)

	return nil
}

func (c *Conn) Messages() <-chan wire.Message { return c.in }

func (c *Conn) Close() error {
	c.ch.mu.Lock()
	delete(c.ch.conns, c)
	c.ch.mu.Unlock()
	c.shutdown()

	return nil
}

func (c *Conn) shutdown() {
	c.once.Do(func() { close(c.in) })
}
