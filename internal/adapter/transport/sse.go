package transport

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/tidwall/gjson"

	"github.com/relaymcp/meridian/internal/core/ports"
	"github.com/relaymcp/meridian/internal/util"
)

// sseJSON is the codec for the SSE transport's hot path: every call and
// every event-stream frame crosses it, so it trades stdlib encoding/json's
// reflection cost for jsoniter's, while staying wire-compatible.
var sseJSON = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	readyStateConnecting = 0
	readyStateOpen       = 1
	readyStateClosed     = 2
)

// SSETransport speaks MCP over an SSE event stream plus a POST back-channel:
// a GET opens the event source, each outbound call is a POST against the
// same endpoint, and responses are correlated by request id off the event
// stream.
type SSETransport struct {
	client     *http.Client
	pending    sync.Map // int64 -> chan ports.RPCResult
	pendingErr sync.Map // int64 -> chan error
	events     chan ports.ConnectionEvent
	url        string
	nextID     int64
	readyState atomic.Int32
	cancel     context.CancelFunc
}

func NewSSETransport(url string) *SSETransport {
	return &SSETransport{
		url:    util.NormaliseBaseURL(url),
		client: &http.Client{Timeout: 0},
		events: make(chan ports.ConnectionEvent, 8),
	}
}

func (t *SSETransport) Connect(ctx context.Context) error {
	t.readyState.Store(readyStateConnecting)

	streamCtx, cancel := context.WithCancel(context.Background())
	t.cancel = cancel

	req, err := http.NewRequestWithContext(streamCtx, http.MethodGet, t.url, nil)
	if err != nil {
		cancel()
		return fmt.Errorf("sse transport: build request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := t.client.Do(req)
	if err != nil {
		cancel()
		return fmt.Errorf("sse transport: connect: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		cancel()
		return fmt.Errorf("sse transport: unexpected status %d", resp.StatusCode)
	}

	t.readyState.Store(readyStateOpen)
	go t.readLoop(resp.Body)
	go t.probeReadyState(streamCtx)

	return nil
}

// readLoop parses "data: {...}" frames off the event stream and routes each
// decoded response to whichever pending call is waiting on its id.
func (t *SSETransport) readLoop(body io.ReadCloser) {
	defer body.Close()
	defer t.markClosed("event stream ended")

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)

	var dataLines []string
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			if len(dataLines) > 0 {
				t.dispatch(strings.Join(dataLines, "\n"))
				dataLines = dataLines[:0]
			}
			continue
		}
		if payload, ok := strings.CutPrefix(line, "data:"); ok {
			dataLines = append(dataLines, strings.TrimSpace(payload))
		}
	}
}

func (t *SSETransport) dispatch(raw string) {
	parsed := gjson.Parse(raw)
	idVal := parsed.Get("id")
	if !idVal.Exists() {
		return
	}
	id := idVal.Int()

	if errVal := parsed.Get("error.message"); errVal.Exists() {
		if ch, ok := t.pendingErr.LoadAndDelete(id); ok {
			ch.(chan error) <- fmt.Errorf("%s", errVal.String())
		}
		t.pending.Delete(id)
		return
	}

	result, err := decodeSSEFrame(parsed)
	if ch, ok := t.pending.LoadAndDelete(id); ok {
		t.pendingErr.Delete(id)
		if err != nil {
			if errCh, ok := t.pendingErr.LoadAndDelete(id); ok {
				errCh.(chan error) <- err
				return
			}
		}
		ch.(chan ports.RPCResult) <- result
	}
}

// decodeSSEFrame mirrors decodeFrame's shape (stdio.go) but runs the final
// result decode through jsoniter instead of encoding/json, since every SSE
// frame already passed through gjson's tolerant parse in dispatch.
func decodeSSEFrame(parsed gjson.Result) (ports.RPCResult, error) {
	result := parsed.Get("result")
	if !result.Exists() {
		return ports.RPCResult{}, fmt.Errorf("sse transport: response missing result")
	}

	var decoded map[string]any
	if err := sseJSON.Unmarshal([]byte(result.Raw), &decoded); err != nil {
		return ports.RPCResult{}, fmt.Errorf("sse transport: decode result: %w", err)
	}

	out := ports.RPCResult{Result: decoded}
	if cursor, ok := decoded["nextCursor"].(string); ok {
		out.Cursor = cursor
	}
	if items := extractItems(decoded); items != nil {
		out.Items = items
	}
	return out, nil
}

// probeReadyState polls the documented readiness signal every 30s;
// an SSE transport has no native ping, so a closed readyState is inferred
// from the read loop having already torn the stream down.
func (t *SSETransport) probeReadyState(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if t.readyState.Load() == readyStateClosed {
				return
			}
		}
	}
}

func (t *SSETransport) markClosed(reason string) {
	t.readyState.Store(readyStateClosed)
	select {
	case t.events <- ports.ConnectionEvent{Closed: true, Err: reason, At: time.Now()}:
	default:
	}
}

func (t *SSETransport) Close(ctx context.Context) error {
	if t.cancel != nil {
		t.cancel()
	}
	t.readyState.Store(readyStateClosed)
	return nil
}

func (t *SSETransport) Request(ctx context.Context, method string, params map[string]any) (ports.RPCResult, error) {
	if t.readyState.Load() == readyStateClosed {
		return ports.RPCResult{}, fmt.Errorf("sse transport: connection closed")
	}

	id := atomic.AddInt64(&t.nextID, 1)
	frame := map[string]any{
		"jsonrpc": "2.0",
		"id":      id,
		"method":  method,
		"params":  params,
	}
	body, err := sseJSON.Marshal(frame)
	if err != nil {
		return ports.RPCResult{}, fmt.Errorf("sse transport: encode request: %w", err)
	}

	resultCh := make(chan ports.RPCResult, 1)
	errCh := make(chan error, 1)
	t.pending.Store(id, resultCh)
	t.pendingErr.Store(id, errCh)
	defer func() {
		t.pending.Delete(id)
		t.pendingErr.Delete(id)
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(body))
	if err != nil {
		return ports.RPCResult{}, fmt.Errorf("sse transport: build post: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return ports.RPCResult{}, fmt.Errorf("sse transport: post: %w", err)
	}
	resp.Body.Close()
	if resp.StatusCode >= 400 {
		return ports.RPCResult{}, fmt.Errorf("sse transport: post status %d", resp.StatusCode)
	}

	select {
	case <-ctx.Done():
		return ports.RPCResult{}, ctx.Err()
	case err := <-errCh:
		return ports.RPCResult{}, err
	case result := <-resultCh:
		return result, nil
	}
}

func (t *SSETransport) Events() <-chan ports.ConnectionEvent {
	return t.events
}
