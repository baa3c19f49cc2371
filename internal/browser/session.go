package browser

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"
)

// cdpRequest is one DevTools protocol command frame.
type cdpRequest struct {
	ID     int64          `json:"id"`
	Method string         `json:"method"`
	Params map[string]any `json:"params,omitempty"`
}

// cdpResponse is a command result or event frame.
type cdpResponse struct {
	ID     int64           `json:"id"`
	Method string          `json:"method"`
	Result json.RawMessage `json:"result"`
	Error  *cdpError       `json:"error"`
}

type cdpError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *cdpError) Error() string {
	return fmt.Sprintf("cdp error %d: %s", e.Code, e.Message)
}

// Conn is the transport a Session runs over. *websocket.Conn satisfies it.
type Conn interface {
	WriteJSON(v any) error
	ReadMessage() (int, []byte, error)
	Close() error
}

// Session is one live DevTools protocol connection. Command calls are safe
// for concurrent use; responses are matched by frame id by a single read
// pump, which also detects out-of-band disconnects.
type Session struct {
	conn   Conn
	nextID atomic.Int64

	mu      sync.Mutex
	pending map[int64]chan cdpResponse
	closed  chan struct{}
	once    sync.Once
}

// NewSession wraps an established connection and starts its read pump.
func NewSession(conn Conn) *Session {
	s := &Session{
		conn:    conn,
		pending: make(map[int64]chan cdpResponse),
		closed:  make(chan struct{}),
	}
	go s.readPump()
	return s
}

// Closed is signalled when the connection drops for any reason.
func (s *Session) Closed() <-chan struct{} {
	return s.closed
}

// Alive reports whether the session can still issue commands.
func (s *Session) Alive() bool {
	select {
	case <-s.closed:
		return false
	default:
		return true
	}
}

// Close tears down the connection and fails all pending calls.
func (s *Session) Close() error {
	var err error
	s.once.Do(func() {
		close(s.closed)
		err = s.conn.Close()
		s.mu.Lock()
		for id, ch := range s.pending {
			close(ch)
			delete(s.pending, id)
		}
		s.mu.Unlock()
	})
	return err
}

func (s *Session) readPump() {
	defer s.Close()
	for {
		_, payload, err := s.conn.ReadMessage()
		if err != nil {
			return
		}
		var resp cdpResponse
		if err := json.Unmarshal(payload, &resp); err != nil {
			continue
		}
		if resp.ID == 0 {
			// Event frame; the connector only cares about liveness.
			continue
		}
		s.mu.Lock()
		ch, ok := s.pending[resp.ID]
		if ok {
			delete(s.pending, resp.ID)
		}
		s.mu.Unlock()
		if ok {
			ch <- resp
		}
	}
}

// Call issues one protocol command and waits for its result.
func (s *Session) Call(ctx context.Context, method string, params map[string]any) (json.RawMessage, error) {
	if !s.Alive() {
		return nil, fmt.Errorf("session closed")
	}
	id := s.nextID.Add(1)
	ch := make(chan cdpResponse, 1)

	s.mu.Lock()
	s.pending[id] = ch
	s.mu.Unlock()

	if err := s.conn.WriteJSON(cdpRequest{ID: id, Method: method, Params: params}); err != nil {
		s.mu.Lock()
		delete(s.pending, id)
		s.mu.Unlock()
		return nil, fmt.Errorf("send %s: %w", method, err)
	}

	select {
	case resp, ok := <-ch:
		if !ok {
			return nil, fmt.Errorf("%s: session closed mid-call", method)
		}
		if resp.Error != nil {
			return nil, fmt.Errorf("%s: %w", method, resp.Error)
		}
		return resp.Result, nil
	case <-s.closed:
		return nil, fmt.Errorf("%s: session closed mid-call", method)
	case <-ctx.Done():
		s.mu.Lock()
		delete(s.pending, id)
		s.mu.Unlock()
		return nil, ctx.Err()
	}
}

// Navigate loads a URL in the attached page.
func (s *Session) Navigate(ctx context.Context, url string) error {
	_, err := s.Call(ctx, "Page.navigate", map[string]any{"url": url})
	return err
}

// Evaluate runs a JavaScript expression in the page and returns the raw
// result value.
func (s *Session) Evaluate(ctx context.Context, expression string) (json.RawMessage, error) {
	result, err := s.Call(ctx, "Runtime.evaluate", map[string]any{
		"expression":    expression,
		"returnByValue": true,
		"awaitPromise":  true,
	})
	if err != nil {
		return nil, err
	}
	var envelope struct {
		Result struct {
			Value json.RawMessage `json:"value"`
		} `json:"result"`
		ExceptionDetails *struct {
			Text string `json:"text"`
		} `json:"exceptionDetails"`
	}
	if err := json.Unmarshal(result, &envelope); err != nil {
		return nil, fmt.Errorf("decode evaluate result: %w", err)
	}
	if envelope.ExceptionDetails != nil {
		return nil, fmt.Errorf("evaluate: %s", envelope.ExceptionDetails.Text)
	}
	return envelope.Result.Value, nil
}

// CaptureScreenshot grabs the current viewport as PNG bytes.
func (s *Session) CaptureScreenshot(ctx context.Context) ([]byte, error) {
	result, err := s.Call(ctx, "Page.captureScreenshot", map[string]any{"format": "png"})
	if err != nil {
		return nil, err
	}
	var envelope struct {
		Data string `json:"data"`
	}
	if err := json.Unmarshal(result, &envelope); err != nil {
		return nil, fmt.Errorf("decode screenshot result: %w", err)
	}
	data, err := base64.StdEncoding.DecodeString(envelope.Data)
	if err != nil {
		return nil, fmt.Errorf("decode screenshot payload: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("screenshot payload is empty")
	}
	return data, nil
}

// dialSession connects to the page websocket endpoint.
func dialSession(ctx context.Context, url string) (*Session, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return NewSession(conn), nil
}
