package transport

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tidwall/gjson"

	"github.com/relaymcp/meridian/internal/core/ports"
)

// StdioTransport spawns a child process and speaks newline-delimited
// JSON-RPC over its stdin/stdout, inheriting only the allow-listed
// environment variables.
type StdioTransport struct {
	cmd          *exec.Cmd
	stdin        *jsonWriter
	stdout       *bufio.Scanner
	events       chan ports.ConnectionEvent
	command      string
	args         []string
	envAllowlist []string
	nextID       int64
	mu           sync.Mutex
	closed       atomic.Bool
}

type jsonWriter struct {
	w  interface{ Write([]byte) (int, error) }
	mu sync.Mutex
}

func (j *jsonWriter) writeLine(b []byte) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if _, err := j.w.Write(append(b, '\n')); err != nil {
		return err
	}
	return nil
}

// NewStdioTransport builds a stdio transport for the given command/args,
// restricted to the given environment variable names. Unknown variable
// names map to empty string (the child sees them set, with an empty value).
func NewStdioTransport(command string, args []string, envAllowlist []string) *StdioTransport {
	return &StdioTransport{
		command:      command,
		args:         args,
		envAllowlist: envAllowlist,
		events:       make(chan ports.ConnectionEvent, 8),
	}
}

func (t *StdioTransport) inheritedEnv() []string {
	env := make([]string, 0, len(t.envAllowlist))
	for _, name := range t.envAllowlist {
		env = append(env, fmt.Sprintf("%s=%s", name, os.Getenv(name)))
	}
	return env
}

func (t *StdioTransport) Connect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	cmd := exec.CommandContext(ctx, t.command, t.args...)
	cmd.Env = t.inheritedEnv()

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("stdio transport: stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdio transport: stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("stdio transport: start: %w", err)
	}

	t.cmd = cmd
	t.stdin = &jsonWriter{w: stdin}
	t.stdout = bufio.NewScanner(stdout)
	t.stdout.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	t.closed.Store(false)

	go t.watchExit()

	return nil
}

// watchExit surfaces an unexpected child-process exit as a close event so
// the Upstream Client can demote the connection without waiting on a
// timed-out request.
func (t *StdioTransport) watchExit() {
	t.mu.Lock()
	cmd := t.cmd
	t.mu.Unlock()
	if cmd == nil {
		return
	}
	err := cmd.Wait()
	if t.closed.Load() {
		return
	}
	msg := "child process exited"
	if err != nil {
		msg = err.Error()
	}
	select {
	case t.events <- ports.ConnectionEvent{Closed: true, Err: msg, At: time.Now()}:
	default:
	}
}

func (t *StdioTransport) Close(ctx context.Context) error {
	t.closed.Store(true)
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cmd == nil || t.cmd.Process == nil {
		return nil
	}
	return t.cmd.Process.Kill()
}

func (t *StdioTransport) Request(ctx context.Context, method string, params map[string]any) (ports.RPCResult, error) {
	id := atomic.AddInt64(&t.nextID, 1)
	frame := map[string]any{
		"jsonrpc": "2.0",
		"id":      id,
		"method":  method,
		"params":  params,
	}
	body, err := json.Marshal(frame)
	if err != nil {
		return ports.RPCResult{}, fmt.Errorf("stdio transport: encode request: %w", err)
	}

	t.mu.Lock()
	writer := t.stdin
	scanner := t.stdout
	t.mu.Unlock()

	if writer == nil || scanner == nil {
		return ports.RPCResult{}, fmt.Errorf("stdio transport: not connected")
	}

	if err := writer.writeLine(body); err != nil {
		return ports.RPCResult{}, fmt.Errorf("stdio transport: write: %w", err)
	}

	type readResult struct {
		line string
		err  error
	}
	resultCh := make(chan readResult, 1)
	go func() {
		if scanner.Scan() {
			resultCh <- readResult{line: scanner.Text()}
			return
		}
		if err := scanner.Err(); err != nil {
			resultCh <- readResult{err: err}
			return
		}
		resultCh <- readResult{err: fmt.Errorf("stdio transport: stream closed")}
	}()

	select {
	case <-ctx.Done():
		return ports.RPCResult{}, ctx.Err()
	case res := <-resultCh:
		if res.err != nil {
			return ports.RPCResult{}, res.err
		}
		return decodeFrame(res.line)
	}
}

// decodeFrame uses gjson for a tolerant first pass over the response frame
// (some upstreams emit extra non-conforming fields), then fully decodes the
// result/error payload.
func decodeFrame(line string) (ports.RPCResult, error) {
	parsed := gjson.Parse(line)
	if errVal := parsed.Get("error.message"); errVal.Exists() {
		return ports.RPCResult{}, fmt.Errorf("%s", errVal.String())
	}

	result := parsed.Get("result")
	if !result.Exists() {
		return ports.RPCResult{}, fmt.Errorf("stdio transport: response missing result")
	}

	var decoded map[string]any
	if err := json.Unmarshal([]byte(result.Raw), &decoded); err != nil {
		return ports.RPCResult{}, fmt.Errorf("stdio transport: decode result: %w", err)
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

// extractItems pulls whichever list field a listing response carries
// (tools, prompts, resources, resourceTemplates) into a uniform slice.
func extractItems(decoded map[string]any) []map[string]any {
	for _, key := range []string{"tools", "prompts", "resources", "resourceTemplates"} {
		raw, ok := decoded[key].([]any)
		if !ok {
			continue
		}
		items := make([]map[string]any, 0, len(raw))
		for _, entry := range raw {
			if m, ok := entry.(map[string]any); ok {
				items = append(items, m)
			}
		}
		return items
	}
	return nil
}

func (t *StdioTransport) Events() <-chan ports.ConnectionEvent {
	return t.events
}
