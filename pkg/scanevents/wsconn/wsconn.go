// Package wsconn implements scanevents.Dialer over a WebSocket.
package wsconn

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"qrscanner/pkg/logger"
	"qrscanner/pkg/scanevents"
	"qrscanner/pkg/wire"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	defaultWriteWait      = 10 * time.Second
	defaultPongWait       = 60 * time.Second
	defaultMaxMessageSize = 4 << 20
	defaultBuffer         = 64
)

// Options configure the WebSocket transport.
type Options struct {
	// URL is the ws:// or wss:// endpoint of the push hub.
	URL string
	// Header is sent with the upgrade request.
	Header http.Header
	// HandshakeTimeout bounds the upgrade.
	HandshakeTimeout time.Duration
	// WriteWait bounds a single write.
	WriteWait time.Duration
	// PongWait is how long the connection may stay silent, pings included,
	// before it is considered dead.
	PongWait time.Duration
	// MaxMessageSize limits inbound messages. scan_complete carries the whole
	// result set, so the default is generous.
	MaxMessageSize int64
	// Buffer is the number of inbound messages queued for the dispatcher.
	Buffer int
}

func (o *Options) setDefaults() {
	if o.WriteWait <= 0 {
		o.WriteWait = defaultWriteWait
	}
	if o.PongWait <= 0 {
		o.PongWait = defaultPongWait
	}
	if o.MaxMessageSize <= 0 {
		o.MaxMessageSize = defaultMaxMessageSize
	}
	if o.Buffer <= 0 {
		o.Buffer = defaultBuffer
	}
}

// Dialer opens WebSocket push channels.
type Dialer struct {
	opts   Options
	dialer *websocket.Dialer
}

var _ scanevents.Dialer = (*Dialer)(nil)

// New creates a Dialer for the given options.
func New(opts Options) *Dialer {
	opts.setDefaults()

	return &Dialer{
		opts: opts,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: opts.HandshakeTimeout,
		},
	}
}

// Dial performs the WebSocket upgrade and starts reading.
func (d *Dialer) Dial(ctx context.Context) (scanevents.Conn, error) {
	ws, resp, err := d.dialer.DialContext(ctx, d.opts.URL, d.opts.Header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("could not dial %s: %w", d.opts.URL, err)
	}

	c := &conn{
		ctx:       logger.WithFields(context.WithoutCancel(ctx), zap.String("remote", d.opts.URL)),
		ws:        ws,
		in:        make(chan wire.Message, d.opts.Buffer),
		done:      make(chan struct{}),
		writeWait: d.opts.WriteWait,
	}
	go c.readPump(d.opts.PongWait, d.opts.MaxMessageSize)

	return c, nil
}

type conn struct {
	ctx       context.Context //nolint: containedctx
	ws        *websocket.Conn
	in        chan wire.Message
	done      chan struct{}
	closeOnce sync.Once
	writeMu   sync.Mutex
	writeWait time.Duration
}

func (c *conn) readPump(pongWait time.Duration, maxMessageSize int64) {
	defer close(c.in)

	c.ws.SetReadLimit(maxMessageSize)
	extend := func() error { return c.ws.SetReadDeadline(time.Now().Add(pongWait)) }
	_ = extend()
	c.ws.SetPingHandler(func(data string) error {
		_ = extend()
		err := c.ws.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(c.writeWait))
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}

		return err //nolint: wrapcheck
	})

	for {
		typ, data, err := c.ws.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
			default:
				if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					logger.Warn(c.ctx, "push channel read failed", zap.Error(err))
				}
			}

			return
		}
		_ = extend()
		if typ != websocket.TextMessage {
			continue
		}

		msg, err := wire.Decode(data)
		if err != nil {
			logger.Warn(c.ctx, "dropping undecodable push message", zap.Error(err))

			continue
		}

		select {
		case c.in <- msg:
		case <-c.done:
			return
		}
	}
}

func (c *conn) Send(ctx context.Context, msg wire.Message) error {
	select {
	case <-c.done:
		return scanevents.ErrConnClosed
	default:
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	deadline := time.Now().Add(c.writeWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.ws.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("could not set write deadline: %w", err)
	}
	if err := c.ws.WriteMessage(websocket.TextMessage, wire.Encode(msg)); err != nil {
		return fmt.Errorf("could not write message: %w", err)
	}

	return nil
}

func (c *conn) Messages() <-chan wire.Message { return c.in }

func (c *conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)

		c.writeMu.Lock()
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(c.writeWait))
		c.writeMu.Unlock()

		if cerr := c.ws.Close(); cerr != nil {
			err = fmt.Errorf("could not close websocket: %w", cerr)
		}
	})

	return err
}
