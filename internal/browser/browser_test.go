package browser_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"clipnote/internal/browser"
	"clipnote/internal/config"
	"clipnote/internal/services"
)

// scriptedConn answers each command frame using the provided responder.
type scriptedConn struct {
	respond func(method string, id int64) any

	mu       sync.Mutex
	incoming chan []byte
	closed   bool
}

func newScriptedConn(respond func(method string, id int64) any) *scriptedConn {
	return &scriptedConn{respond: respond, incoming: make(chan []byte, 16)}
}

func (c *scriptedConn) WriteJSON(v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var frame struct {
		ID     int64  `json:"id"`
		Method string `json:"method"`
	}
	if err := json.Unmarshal(payload, &frame); err != nil {
		return err
	}
	if c.respond == nil {
		return nil
	}
	reply := c.respond(frame.Method, frame.ID)
	if reply == nil {
		return nil
	}
	encoded, err := json.Marshal(reply)
	if err != nil {
		return err
	}
	c.incoming <- encoded
	return nil
}

func (c *scriptedConn) ReadMessage() (int, []byte, error) {
	payload, ok := <-c.incoming
	if !ok {
		return 0, nil, errors.New("connection closed")
	}
	return 1, payload, nil
}

func (c *scriptedConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.incoming)
	}
	return nil
}

func okResponder(result any) func(string, int64) any {
	return func(_ string, id int64) any {
		return map[string]any{"id": id, "result": result}
	}
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Browser.ConnectAttempts = 3
	cfg.Browser.ConnectDelayMillis = 1
	return &cfg
}

func TestAcquireReturnsCachedSession(t *testing.T) {
	dials := 0
	connector := browser.NewConnector(testConfig(), nil).
		WithDialer(func(context.Context, string) (*browser.Session, error) {
			dials++
			return browser.NewSession(newScriptedConn(okResponder(map[string]any{}))), nil
		})
	defer connector.Close()

	first, err := connector.Acquire(context.Background())
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	second, err := connector.Acquire(context.Background())
	if err != nil {
		t.Fatalf("acquire again: %v", err)
	}
	if first != second {
		t.Fatal("expected cached session to be reused")
	}
	if dials != 1 {
		t.Fatalf("expected a single dial, got %d", dials)
	}
}

func TestAcquireReconnectsAfterDisconnect(t *testing.T) {
	dials := 0
	connector := browser.NewConnector(testConfig(), nil).
		WithDialer(func(context.Context, string) (*browser.Session, error) {
			dials++
			return browser.NewSession(newScriptedConn(okResponder(map[string]any{}))), nil
		})
	defer connector.Close()

	first, err := connector.Acquire(context.Background())
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}

	// Simulate an out-of-band disconnect from the surface.
	_ = first.Close()
	deadline := time.After(2 * time.Second)
	for connector.Connected() {
		select {
		case <-deadline:
			t.Fatal("cached handle not invalidated after disconnect")
		case <-time.After(5 * time.Millisecond):
		}
	}

	second, err := connector.Acquire(context.Background())
	if err != nil {
		t.Fatalf("reacquire: %v", err)
	}
	if second == first {
		t.Fatal("expected a fresh session after disconnect")
	}
	if dials != 2 {
		t.Fatalf("expected 2 dials, got %d", dials)
	}
}

func TestAcquireFailsAfterRetryBudget(t *testing.T) {
	dials := 0
	connector := browser.NewConnector(testConfig(), nil).
		WithDialer(func(context.Context, string) (*browser.Session, error) {
			dials++
			return nil, errors.New("connection refused")
		})

	_, err := connector.Acquire(context.Background())
	if err == nil {
		t.Fatal("expected failure")
	}
	if services.KindOf(err) != services.KindConnectorUnavailable {
		t.Fatalf("kind = %s", services.KindOf(err))
	}
	if dials != 3 {
		t.Fatalf("expected 3 attempts, got %d", dials)
	}
}

func TestSessionCallMatchesResponses(t *testing.T) {
	session := browser.NewSession(newScriptedConn(func(method string, id int64) any {
		return map[string]any{"id": id, "result": map[string]any{"echo": method}}
	}))
	defer session.Close()

	result, err := session.Call(context.Background(), "Page.navigate", map[string]any{"url": "about:blank"})
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	var decoded struct {
		Echo string `json:"echo"`
	}
	if err := json.Unmarshal(result, &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded.Echo != "Page.navigate" {
		t.Fatalf("mismatched response: %+v", decoded)
	}
}

func TestSessionCallSurfacesProtocolError(t *testing.T) {
	session := browser.NewSession(newScriptedConn(func(_ string, id int64) any {
		return map[string]any{"id": id, "error": map[string]any{"code": -32000, "message": "no target"}}
	}))
	defer session.Close()

	_, err := session.Call(context.Background(), "Page.navigate", nil)
	if err == nil || !strings.Contains(err.Error(), "no target") {
		t.Fatalf("expected protocol error, got %v", err)
	}
}

func TestCaptureScreenshotDecodesPayload(t *testing.T) {
	png := []byte{0x89, 'P', 'N', 'G'}
	session := browser.NewSession(newScriptedConn(func(_ string, id int64) any {
		return map[string]any{"id": id, "result": map[string]any{
			"data": base64.StdEncoding.EncodeToString(png),
		}}
	}))
	defer session.Close()

	data, err := session.CaptureScreenshot(context.Background())
	if err != nil {
		t.Fatalf("capture: %v", err)
	}
	if fmt.Sprintf("%x", data) != fmt.Sprintf("%x", png) {
		t.Fatalf("payload mismatch: %x", data)
	}
}

func TestEvaluateUnwrapsValue(t *testing.T) {
	session := browser.NewSession(newScriptedConn(func(_ string, id int64) any {
		return map[string]any{"id": id, "result": map[string]any{
			"result": map[string]any{"value": 42.5},
		}}
	}))
	defer session.Close()

	value, err := session.Evaluate(context.Background(), "video.currentTime")
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	var n float64
	if err := json.Unmarshal(value, &n); err != nil || n != 42.5 {
		t.Fatalf("unexpected value %s", value)
	}
}
