package upstream

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/relaymcp/meridian/internal/core/domain"
	"github.com/relaymcp/meridian/internal/core/ports"
	"github.com/relaymcp/meridian/internal/logger"
)

type fakeTransport struct {
	connectErrs []error
	connects    int32
	requests    int32
	reqErr      error
	events      chan ports.ConnectionEvent
	closed      int32
}

func (t *fakeTransport) Connect(context.Context) error {
	idx := int(atomic.AddInt32(&t.connects, 1)) - 1
	if idx < len(t.connectErrs) {
		return t.connectErrs[idx]
	}
	return nil
}

func (t *fakeTransport) Close(context.Context) error {
	atomic.AddInt32(&t.closed, 1)
	return nil
}

func (t *fakeTransport) Request(context.Context, string, map[string]any) (ports.RPCResult, error) {
	atomic.AddInt32(&t.requests, 1)
	if t.reqErr != nil {
		return ports.RPCResult{}, t.reqErr
	}
	return ports.RPCResult{Result: map[string]any{"ok": true}}, nil
}

func (t *fakeTransport) Events() <-chan ports.ConnectionEvent {
	return t.events
}

func testLogger(t *testing.T) *logger.StyledLogger {
	t.Helper()
	_, sl, cleanup, err := logger.NewWithTheme(&logger.Config{Level: "error"})
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	t.Cleanup(cleanup)
	return sl
}

func TestConnect_SucceedsFirstTry(t *testing.T) {
	tr := &fakeTransport{}
	c := NewClient("alpha", tr, nil, testLogger(t), 0)

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !c.State().IsConnected {
		t.Fatal("expected connected state")
	}
}

func TestConnect_RetriesThenFails(t *testing.T) {
	tr := &fakeTransport{connectErrs: []error{errors.New("refused"), errors.New("refused"), errors.New("refused")}}
	c := NewClient("alpha", tr, nil, testLogger(t), 0)

	err := c.Connect(context.Background())
	if err == nil {
		t.Fatal("expected error after exhausting attempts")
	}
	if atomic.LoadInt32(&tr.connects) != int32(domain.ConnectAttempts) {
		t.Fatalf("expected %d connect attempts, got %d", domain.ConnectAttempts, tr.connects)
	}
	if c.State().IsConnected {
		t.Fatal("expected disconnected state after exhausting attempts")
	}
}

func TestRequest_RejectsWhenDisconnected(t *testing.T) {
	tr := &fakeTransport{}
	c := NewClient("alpha", tr, nil, testLogger(t), 0)

	_, err := c.Request(context.Background(), "tools/list", nil)
	if err == nil {
		t.Fatal("expected error for disconnected client")
	}
}

func TestRequest_WrapsTransportError(t *testing.T) {
	tr := &fakeTransport{reqErr: errors.New("boom")}
	c := NewClient("alpha", tr, nil, testLogger(t), 0)
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}

	_, err := c.Request(context.Background(), "tools/list", nil)
	if err == nil {
		t.Fatal("expected wrapped error")
	}
	var upErr *domain.UpstreamError
	if !errors.As(err, &upErr) {
		t.Fatalf("expected *domain.UpstreamError, got %T", err)
	}
}

func TestRequest_AdmissionGateBlocksOnceBurstIsSpent(t *testing.T) {
	tr := &fakeTransport{}
	c := NewClient("alpha", tr, nil, testLogger(t), 1)
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}

	// burst of 1 at a rate of 1/sec: the first request spends the token,
	// the second has nothing left to wait for within a millisecond.
	if _, err := c.Request(context.Background(), "tools/list", nil); err != nil {
		t.Fatalf("first request: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond)
	defer cancel()
	if _, err := c.Request(ctx, "tools/list", nil); err == nil {
		t.Fatal("expected admission gate to block a second request once the burst is spent")
	}
}

func TestClose_MarksDisconnected(t *testing.T) {
	tr := &fakeTransport{}
	c := NewClient("alpha", tr, nil, testLogger(t), 0)
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}

	if err := c.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}
	if c.State().IsConnected {
		t.Fatal("expected disconnected state after close")
	}
	if atomic.LoadInt32(&tr.closed) != 1 {
		t.Fatal("expected transport Close to be called once")
	}
}
