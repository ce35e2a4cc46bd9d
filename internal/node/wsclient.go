package node

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/omnes-tech/multi-static-call/internal/jsonrpc"
)

// WSClient is a request/response JSON-RPC client over one WebSocket
// connection. It dials lazily, correlates responses by ID and reconnects on
// the next Execute after a broken connection.
type WSClient struct {
	url     string
	timeout time.Duration
	logger  zerolog.Logger

	mu      sync.Mutex
	conn    *websocket.Conn
	pending map[int64]chan *jsonrpc.Response
	nextID  atomic.Int64
	closed  bool
}

// NewWSClient creates a WSClient for the given endpoint.
func NewWSClient(url string, timeout time.Duration, logger zerolog.Logger) *WSClient {
	return &WSClient{
		url:     url,
		timeout: timeout,
		logger:  logger.With().Str("component", "wsclient").Logger(),
		pending: make(map[int64]chan *jsonrpc.Response),
	}
}

// connect dials the endpoint and starts the read loop. Callers hold w.mu.
func (w *WSClient) connect(ctx context.Context) error {
	if w.conn != nil {
		return nil
	}
	if w.closed {
		return fmt.Errorf("ws client closed")
	}

	dialer := websocket.Dialer{HandshakeTimeout: w.timeout}
	conn, _, err := dialer.DialContext(ctx, w.url, nil)
	if err != nil {
		return fmt.Errorf("ws dial failed: %w", err)
	}
	w.conn = conn
	go w.readLoop(conn)

	w.logger.Debug().Str("url", w.url).Msg("ws connected")
	return nil
}

// readLoop distributes incoming responses to their waiting callers until
// the connection breaks.
func (w *WSClient) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			w.dropConn(conn, err)
			return
		}

		resp, err := jsonrpc.ParseResponse(data)
		if err != nil {
			w.logger.Warn().Err(err).Msg("unparseable ws message")
			continue
		}

		var id int64
		if raw, err := json.Marshal(resp.ID); err == nil {
			if err := json.Unmarshal(raw, &id); err != nil {
				continue
			}
		}

		w.mu.Lock()
		ch, ok := w.pending[id]
		if ok {
			delete(w.pending, id)
		}
		w.mu.Unlock()

		if ok {
			ch <- resp
		}
	}
}

// dropConn closes the broken connection and fails every pending call.
func (w *WSClient) dropConn(conn *websocket.Conn, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.conn == conn {
		w.conn = nil
	}
	conn.Close()

	for id, ch := range w.pending {
		close(ch)
		delete(w.pending, id)
	}

	if !w.closed {
		w.logger.Warn().Err(err).Msg("ws connection lost")
	}
}

// Execute sends one request and waits for its correlated response.
func (w *WSClient) Execute(ctx context.Context, req *jsonrpc.Request) (*jsonrpc.Response, error) {
	id := w.nextID.Add(1)
	wireReq := *req
	wireReq.ID = jsonrpc.NewIDInt(id)

	data, err := wireReq.Bytes()
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	ch := make(chan *jsonrpc.Response, 1)

	w.mu.Lock()
	if err := w.connect(ctx); err != nil {
		w.mu.Unlock()
		return nil, err
	}
	conn := w.conn
	w.pending[id] = ch
	err = conn.WriteMessage(websocket.TextMessage, data)
	w.mu.Unlock()

	if err != nil {
		w.dropConn(conn, err)
		return nil, fmt.Errorf("ws write failed: %w", err)
	}

	timeout := w.timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case resp, ok := <-ch:
		if !ok {
			return nil, fmt.Errorf("ws connection lost")
		}
		resp.ID = req.ID
		return resp, nil
	case <-timer.C:
		w.mu.Lock()
		delete(w.pending, id)
		w.mu.Unlock()
		return nil, fmt.Errorf("ws request timed out")
	case <-ctx.Done():
		w.mu.Lock()
		delete(w.pending, id)
		w.mu.Unlock()
		return nil, ctx.Err()
	}
}

// Close shuts the client down; subsequent Execute calls fail.
func (w *WSClient) Close() {
	w.mu.Lock()
	w.closed = true
	conn := w.conn
	w.conn = nil
	w.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
}
