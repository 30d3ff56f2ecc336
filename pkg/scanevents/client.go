// Package scanevents implements the client side of the scan push channel.
//
// A Client is bound to one scan. It opens the channel on Connect, announces
// itself with a client_ready handshake and fans the scan_progress,
// scan_complete and scan_error events carrying its scan ID out to the
// registered listeners. Events for other scans share the channel and are
// dropped silently.
//
// Listeners run one at a time on the client's dispatch goroutine, in
// registration order and in the order the channel delivered the events. A
// panicking listener is logged and the remaining listeners still run. Once
// Disconnect returns no further listener invocation starts; one that was
// already admitted runs to completion.
package scanevents

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"qrscanner/pkg/domain"
	"qrscanner/pkg/logger"
	"qrscanner/pkg/metrics"
	"qrscanner/pkg/wire"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// Options configure a Client.
type Options struct {
	// Debug logs every inbound message at debug level.
	Debug bool
	// Metrics receives dispatch counters. Defaults to metrics.Default().
	Metrics *metrics.Instruments
}

type state int

const (
	stateIdle state = iota
	stateConnecting
	stateConnected
	stateClosed
)

// Client owns the push channel connection of a single scan.
type Client struct {
	scanID  string
	dialer  Dialer
	debug   bool
	metrics *metrics.Instruments

	mu           sync.Mutex
	state        state
	conn         Conn
	err          error
	disconnected bool

	onProgress   []func(domain.ProgressEvent)
	onComplete   []func(domain.CompleteEvent)
	onError      []func(domain.ErrorEvent)
	onConnect    []func()
	onDisconnect []func()
}

// New creates a client for scanID. It does not open the channel.
func New(scanID string, dialer Dialer, opts Options) *Client {
	in := opts.Metrics
	if in == nil {
		in = metrics.Default()
	}

	return &Client{
		scanID:  scanID,
		dialer:  dialer,
		debug:   opts.Debug,
		metrics: in,
	}
}

// ScanID returns the scan the client is bound to.
func (c *Client) ScanID() string { return c.scanID }

// Connected reports whether the channel is open.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.state == stateConnected
}

// Err returns the failure of the last Connect attempt, if any.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.err
}

// OnProgress registers a scan_progress listener.
func (c *Client) OnProgress(cb func(domain.ProgressEvent)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onProgress = append(c.onProgress, cb)
}

// OnComplete registers a scan_complete listener.
func (c *Client) OnComplete(cb func(domain.CompleteEvent)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onComplete = append(c.onComplete, cb)
}

// OnError registers a scan_error listener.
func (c *Client) OnError(cb func(domain.ErrorEvent)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onError = append(c.onError, cb)
}

// OnConnect registers a listener called once the channel is open.
func (c *Client) OnConnect(cb func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onConnect = append(c.onConnect, cb)
}

// OnDisconnect registers a listener called when the server or the network
// tears the channel down. An explicit Disconnect does not call it.
func (c *Client) OnDisconnect(cb func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onDisconnect = append(c.onDisconnect, cb)
}

// Connect opens the channel, sends client_ready and calls the connect
// listeners. A failure to open the channel is logged and kept in Err; no
// listener is called. Connect on a client that is open or was closed does
// nothing.
func (c *Client) Connect(ctx context.Context) {
	ctx = logger.WithFields(ctx, zap.String("scanID", c.scanID))

	c.mu.Lock()
	if c.state != stateIdle {
		c.mu.Unlock()
		logger.Warn(ctx, "connect ignored, push channel already used")

		return
	}
	c.state = stateConnecting
	c.mu.Unlock()

	conn, err := c.open(ctx)
	if err != nil {
		logger.Warn(ctx, "could not connect to push channel", zap.Error(err))

		c.mu.Lock()
		c.err = err
		if c.state == stateConnecting {
			c.state = stateIdle
		}
		c.mu.Unlock()

		return
	}

	c.mu.Lock()
	if c.state != stateConnecting {
		// Disconnect was called while dialing.
		c.mu.Unlock()
		_ = conn.Close()

		return
	}
	c.state = stateConnected
	c.conn = conn
	c.err = nil
	connectListeners := append([]func(){}, c.onConnect...)
	c.mu.Unlock()

	logger.Info(ctx, "connected to push channel")

	ctx = context.WithoutCancel(ctx)
	for i, cb := range connectListeners {
		if !c.invoke(ctx, domain.KindConnect, i, cb) {
			break
		}
	}

	go c.loop(ctx, conn)
}

func (c *Client) open(ctx context.Context) (Conn, error) {
	conn, err := c.dialer.Dial(ctx)
	if err != nil {
		return nil, fmt.Errorf("could not dial: %w", err)
	}

	hello, err := wire.New(domain.ClientReady{ScanID: c.scanID})
	if err != nil {
		_ = conn.Close()

		return nil, fmt.Errorf("could not build handshake: %w", err)
	}
	if err := conn.Send(ctx, hello); err != nil {
		_ = conn.Close()

		return nil, fmt.Errorf("could not send handshake: %w", err)
	}

	return conn, nil
}

// Disconnect closes the channel if it is open and stops dispatching. It is
// safe to call repeatedly and from within a listener.
func (c *Client) Disconnect() {
	c.mu.Lock()
	if c.state == stateIdle || c.disconnected {
		c.mu.Unlock()

		return
	}
	conn := c.conn
	c.conn = nil
	c.state = stateClosed
	c.disconnected = true
	c.mu.Unlock()

	if conn != nil {
		if err := conn.Close(); err != nil {
			logger.Warn(context.Background(), "could not close push channel",
				zap.String("scanID", c.scanID), zap.Error(err))
		}
	}
}

// Emit sends a named message while connected. Without an open channel it
// logs a warning and returns nil; nothing is queued.
func (c *Client) Emit(ctx context.Context, event string, data any) error {
	c.mu.Lock()
	conn := c.conn
	connected := c.state == stateConnected
	c.mu.Unlock()

	if !connected || conn == nil {
		logger.Warn(ctx, "push channel not connected, message dropped",
			zap.String("scanID", c.scanID), zap.String("event", event))

		return nil
	}

	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("could not marshal %s payload: %w", event, err)
	}
	if err := conn.Send(ctx, wire.Message{Event: event, Data: payload}); err != nil {
		return fmt.Errorf("could not send %s: %w", event, err)
	}

	return nil
}

func (c *Client) loop(ctx context.Context, conn Conn) {
	for msg := range conn.Messages() {
		if c.isDisconnected() {
			return
		}
		c.dispatch(ctx, msg)
	}

	c.mu.Lock()
	if c.disconnected || c.conn != conn {
		c.mu.Unlock()

		return
	}
	c.conn = nil
	c.state = stateClosed
	disconnectListeners := append([]func(){}, c.onDisconnect...)
	c.mu.Unlock()

	logger.Info(ctx, "push channel closed by peer")
	for i, cb := range disconnectListeners {
		if !c.invoke(ctx, domain.KindDisconnect, i, cb) {
			return
		}
	}
}

func (c *Client) isDisconnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.disconnected
}

func (c *Client) discard(ctx context.Context, event, reason string) {
	c.metrics.EventsDiscarded.Add(ctx, 1, metric.WithAttributes(
		attribute.String("event", event),
		attribute.String("reason", reason)))
}

func (c *Client) dispatch(ctx context.Context, msg wire.Message) {
	if c.debug {
		logger.Debug(ctx, "push message received",
			zap.String("event", msg.Event), zap.ByteString("data", msg.Data))
	}

	switch msg.Event {
	case domain.EventScanProgress, domain.EventScanComplete, domain.EventScanError:
	default:
		c.discard(ctx, msg.Event, "unknown_event")

		return
	}

	if id, ok := wire.ScanID(msg.Data); !ok || id != c.scanID {
		c.discard(ctx, msg.Event, "foreign_scan")

		return
	}

	var calls []func()
	var kind domain.EventKind
	c.mu.Lock()
	switch msg.Event {
	case domain.EventScanProgress:
		kind = domain.KindProgress
		var ev domain.ProgressEvent
		if err := decode(ctx, msg.Event, msg.Data, &ev); err != nil {
			c.mu.Unlock()
			c.malformed(ctx, msg.Event, err)

			return
		}
		for _, cb := range c.onProgress {
			calls = append(calls, func() { cb(ev) })
		}
	case domain.EventScanComplete:
		kind = domain.KindComplete
		ev, err := decodeComplete(ctx, msg.Data)
		if err != nil {
			c.mu.Unlock()
			c.malformed(ctx, msg.Event, err)

			return
		}
		for _, cb := range c.onComplete {
			calls = append(calls, func() { cb(ev) })
		}
	case domain.EventScanError:
		kind = domain.KindError
		var ev domain.ErrorEvent
		if err := decode(ctx, msg.Event, msg.Data, &ev); err != nil {
			c.mu.Unlock()
			c.malformed(ctx, msg.Event, err)

			return
		}
		for _, cb := range c.onError {
			calls = append(calls, func() { cb(ev) })
		}
	}
	c.mu.Unlock()

	c.metrics.EventsDispatched.Add(ctx, 1, metric.WithAttributes(attribute.String("event", msg.Event)))
	for i, call := range calls {
		if !c.invoke(ctx, kind, i, call) {
			return
		}
	}
}

func (c *Client) malformed(ctx context.Context, event string, err error) {
	logger.Warn(ctx, "malformed push payload", zap.String("event", event), zap.Error(err))
	c.discard(ctx, event, "malformed")
}

// decode fills v from data as far as the payload allows. A field holding a
// value of an unexpected type is left empty and logged; the event is still
// delivered since its scan_id already matched.
func decode(ctx context.Context, event string, data []byte, v any) error {
	err := json.Unmarshal(data, v)
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		logger.Warn(ctx, "push payload field ignored",
			zap.String("event", event), zap.String("field", typeErr.Field), zap.Error(err))

		return nil
	}
	if err != nil {
		return fmt.Errorf("could not decode %s: %w", event, err)
	}

	return nil
}

// decodeComplete accepts the flat payload and the variant nesting the
// results under "results".
func decodeComplete(ctx context.Context, data []byte) (domain.CompleteEvent, error) {
	var ev domain.CompleteEvent
	if err := decode(ctx, domain.EventScanComplete, data, &ev); err != nil {
		return domain.CompleteEvent{}, err
	}

	var nested struct {
		Results *domain.ScanResults `json:"results"`
	}
	if err := decode(ctx, domain.EventScanComplete, data, &nested); err == nil && nested.Results != nil {
		ev.ScanResults = *nested.Results
	}

	return ev, nil
}

// invoke runs one listener unless the client was disconnected. It reports
// whether dispatching may continue.
func (c *Client) invoke(ctx context.Context, kind domain.EventKind, index int, cb func()) (next bool) {
	if c.isDisconnected() {
		return false
	}

	defer func() {
		if p := recover(); p != nil {
			next = true
			c.metrics.ListenerFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", string(kind))))
			logger.Error(ctx, "push listener panicked",
				zap.String("kind", string(kind)),
				zap.Int("listener", index),
				zap.Any("panic", p))
		}
	}()
	cb()

	return true
}
