// Package pushhub serves the push channel. Scan events are broadcast to every
// connected client as wire envelopes; clients filter them by scan_id.
package pushhub

import (
	"context"
	"net/http"
	"qrscanner/internal/config"
	"qrscanner/pkg/controller"
	"qrscanner/pkg/domain"
	"qrscanner/pkg/logger"
	"qrscanner/pkg/metrics"
	"qrscanner/pkg/serrors"
	"qrscanner/pkg/wire"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const (
	defaultWriteWait      = 10 * time.Second
	defaultPongWait       = 60 * time.Second
	defaultMaxMessageSize = 64 << 10
	defaultSendBuffer     = 256
)

// Options tune the connections of the hub.
type Options struct {
	// WriteWait bounds a single write to a client.
	WriteWait time.Duration
	// PongWait is how long a client may stay silent before it is dropped.
	// Pings are sent every 9/10 of it.
	PongWait time.Duration
	// MaxMessageSize limits messages sent by clients.
	MaxMessageSize int64
	// SendBuffer is the number of broadcasts queued per client. A client whose
	// buffer is full is disconnected.
	SendBuffer int
	// CheckOrigin validates the Origin header of the upgrade. Nil accepts all
	// origins, the API already allows any origin through CORS.
	CheckOrigin func(r *http.Request) bool
}

// NewOptions constructs Options from the application config.
func NewOptions(cfg *config.Config) Options {
	return Options{
		WriteWait:      cfg.Push.WriteWait,
		PongWait:       cfg.Push.PongWait,
		MaxMessageSize: cfg.Push.MaxMessageSize,
		SendBuffer:     cfg.Push.SendBuffer,
	}
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
	if o.SendBuffer <= 0 {
		o.SendBuffer = defaultSendBuffer
	}
	if o.CheckOrigin == nil {
		o.CheckOrigin = func(*http.Request) bool { return true }
	}
}

// ReadyFunc is invoked when a client reports it is listening for a scan.
type ReadyFunc func(ctx context.Context, scanID domain.ScanID) error

// Hub keeps track of the open push channel connections.
type Hub struct {
	opts     Options
	onReady  ReadyFunc
	metrics  *metrics.Instruments
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*client]struct{}
	closed  bool
	wg      sync.WaitGroup
}

// New creates a Hub. onReady may be nil.
func New(opts Options, onReady ReadyFunc, in *metrics.Instruments) *Hub {
	opts.setDefaults()
	if in == nil {
		in = metrics.Default()
	}

	return &Hub{
		opts:    opts,
		onReady: onReady,
		metrics: in,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     opts.CheckOrigin,
		},
		clients: map[*client]struct{}{},
	}
}

// ServeHTTP upgrades the request and serves the connection until either side
// closes it.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	closed := h.closed
	h.mu.RUnlock()
	if closed {
		controller.WriteError(r.Context(), w, serrors.With(serrors.ErrClosed, "push channel is shutting down"))

		return
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied to the client
		logger.Warn(r.Context(), "could not upgrade push channel", zap.Error(err))

		return
	}

	c := &client{
		hub:  h,
		ws:   ws,
		send: make(chan []byte, h.opts.SendBuffer),
		done: make(chan struct{}),
	}
	c.ctx = logger.WithFields(context.WithoutCancel(r.Context()),
		zap.String("connID", uuid.NewString()),
		zap.String("remote", r.RemoteAddr))

	if !h.add(c) {
		_ = ws.Close()

		return
	}
	logger.Debug(c.ctx, "push channel connected")

	go func() {
		defer h.wg.Done()
		c.writePump()
	}()
	go func() {
		defer h.wg.Done()
		c.readPump()
	}()
}

// Publish broadcasts ev to every connection without blocking. Connections
// that cannot keep up are dropped.
func (h *Hub) Publish(ctx context.Context, ev domain.Event) {
	msg, err := wire.New(ev)
	if err != nil {
		logger.Error(ctx, "could not encode push event", zap.String("event", ev.EventName()), zap.Error(err))

		return
	}
	data := wire.Encode(msg)

	var slow []*client
	h.mu.RLock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		logger.Warn(c.ctx, "push channel buffer full, dropping connection", zap.String("event", msg.Event))
		h.metrics.PushDropped.Add(ctx, 1, metric.WithAttributes(attribute.String("event", msg.Event)))
		h.remove(c)
	}
}

// Len returns the number of open connections.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.clients)
}

// Close disconnects every client and waits for their pumps to stop. New
// connections are refused afterwards.
func (h *Hub) Close(ctx context.Context) error {
	h.mu.Lock()
	h.closed = true
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		h.remove(c)
	}

	stopped := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(stopped)
	}()

	select {
	case <-stopped:
		return nil
	case <-ctx.Done():
		return serrors.Wrap(serrors.ErrTimeout, ctx.Err(), "push channel connections did not stop in time")
	}
}

// add registers c and counts its two pumps, unless the hub is closed. The
// pumps are counted under the lock so Close never waits before they are.
func (h *Hub) add(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.wg.Add(2)
	h.clients[c] = struct{}{}
	h.metrics.PushConnections.Add(c.ctx, 1)

	return true
}

// remove unregisters c and stops its pumps. It is safe to call repeatedly.
func (h *Hub) remove(c *client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	h.mu.Unlock()

	if ok {
		h.metrics.PushConnections.Add(c.ctx, -1)
		logger.Debug(c.ctx, "push channel disconnected")
	}
	c.stop()
}
