package pushhub_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"qrscanner/internal/pushhub"
	"qrscanner/pkg/domain"
	"qrscanner/pkg/logger"
	"qrscanner/pkg/wire"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	if err := logger.Setup(logger.DevelopmentEnvironment, ""); err != nil {
		panic(err)
	}

	m.Run()
}

func newHub(t *testing.T, onReady pushhub.ReadyFunc) (*pushhub.Hub, string) {
	t.Helper()

	hub := pushhub.New(pushhub.Options{PongWait: 5 * time.Second}, onReady, nil)
	srv := httptest.NewServer(hub)
	t.Cleanup(func() {
		_ = hub.Close(context.Background())
		srv.Close()
	})

	return hub, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, hub *pushhub.Hub, url string) *websocket.Conn {
	t.Helper()

	before := hub.Len()
	ws, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	_ = resp.Body.Close()
	t.Cleanup(func() { _ = ws.Close() })

	require.Eventually(t, func() bool { return hub.Len() == before+1 }, time.Second, 10*time.Millisecond)

	return ws
}

func read(t *testing.T, ws *websocket.Conn) wire.Message {
	t.Helper()

	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := ws.ReadMessage()
	require.NoError(t, err)
	msg, err := wire.Decode(data)
	require.NoError(t, err)

	return msg
}

func TestHub_PublishBroadcasts(t *testing.T) {
	hub, url := newHub(t, nil)
	a := dial(t, hub, url)
	b := dial(t, hub, url)

	hub.Publish(context.Background(), domain.ProgressEvent{ScanID: "s1", Message: "Reading page 1/2"})

	for _, ws := range []*websocket.Conn{a, b} {
		msg := read(t, ws)
		require.Equal(t, domain.EventScanProgress, msg.Event)
		id, ok := wire.ScanID(msg.Data)
		require.True(t, ok)
		require.Equal(t, "s1", id)
		require.JSONEq(t, `{"scan_id":"s1","message":"Reading page 1/2"}`, string(msg.Data))
	}
}

func TestHub_ClientReadyStartsScan(t *testing.T) {
	started := make(chan domain.ScanID, 1)
	hub, url := newHub(t, func(_ context.Context, id domain.ScanID) error {
		started <- id

		return nil
	})
	ws := dial(t, hub, url)

	id := domain.NewScanID()
	msg, err := wire.New(domain.ClientReady{ScanID: id.String()})
	require.NoError(t, err)
	require.NoError(t, ws.WriteMessage(websocket.TextMessage, wire.Encode(msg)))

	select {
	case got := <-started:
		require.Equal(t, id, got)
	case <-time.After(2 * time.Second):
		t.Fatal("client_ready was not handled")
	}
}

func TestHub_IgnoresInvalidMessages(t *testing.T) {
	called := make(chan struct{}, 1)
	hub, url := newHub(t, func(context.Context, domain.ScanID) error {
		called <- struct{}{}

		return nil
	})
	ws := dial(t, hub, url)

	for _, raw := range []string{
		`not json`,
		`{"event":"client_ready"}`,
		`{"event":"client_ready","data":{"scan_id":"nope"}}`,
		`{"event":"something_else","data":{}}`,
	} {
		require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte(raw)))
	}

	// the connection survives and still answers
	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte(`{"event":"test_message","data":{}}`)))
	msg := read(t, ws)
	require.Equal(t, "test_response", msg.Event)
	require.Empty(t, called)
	require.Equal(t, 1, hub.Len())
}

func TestHub_ClientDisconnect(t *testing.T) {
	hub, url := newHub(t, nil)
	ws := dial(t, hub, url)

	require.NoError(t, ws.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	require.Eventually(t, func() bool { return hub.Len() == 0 }, time.Second, 10*time.Millisecond)
}

func TestHub_Close(t *testing.T) {
	hub, url := newHub(t, nil)
	ws := dial(t, hub, url)

	require.NoError(t, hub.Close(context.Background()))
	require.Equal(t, 0, hub.Len())

	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := ws.ReadMessage()
	require.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "unexpected error %v", err)

	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), "push channel is shutting down")
	_ = resp.Body.Close()
}

func TestHub_CloseWhileClientsConnect(t *testing.T) {
	hub, url := newHub(t, nil)

	var wg sync.WaitGroup
	conns := make(chan *websocket.Conn, 20)
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ws, resp, err := websocket.DefaultDialer.Dial(url, nil)
			if resp != nil {
				_ = resp.Body.Close()
			}
			if err == nil {
				conns <- ws
			}
		}()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, hub.Close(ctx))

	wg.Wait()
	close(conns)
	require.Equal(t, 0, hub.Len())

	// connections that slipped in before Close are closed by it
	for ws := range conns {
		require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
		_, _, err := ws.ReadMessage()
		require.Error(t, err)
		_ = ws.Close()
	}
}
