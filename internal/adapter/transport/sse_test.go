package transport

import (
	"testing"

	"github.com/tidwall/gjson"
)

func TestNewSSETransport_NormalisesTrailingSlash(t *testing.T) {
	tr := NewSSETransport("http://localhost:9000/sse/")
	if tr.url != "http://localhost:9000/sse" {
		t.Errorf("expected trailing slash stripped, got %q", tr.url)
	}
}

func TestNewSSETransport_LeavesBareURLUntouched(t *testing.T) {
	tr := NewSSETransport("http://localhost:9000/sse")
	if tr.url != "http://localhost:9000/sse" {
		t.Errorf("expected url unchanged, got %q", tr.url)
	}
}

func TestDecodeSSEFrame_ExtractsCursorAndItems(t *testing.T) {
	raw := `{"result":{"tools":[{"name":"search"}],"nextCursor":"page2"}}`
	parsed := gjson.Parse(raw)

	res, err := decodeSSEFrame(parsed)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Cursor != "page2" {
		t.Errorf("expected cursor page2, got %q", res.Cursor)
	}
	if len(res.Items) != 1 || res.Items[0]["name"] != "search" {
		t.Errorf("expected one tool item named search, got %v", res.Items)
	}
}

func TestDecodeSSEFrame_MissingResultErrors(t *testing.T) {
	parsed := gjson.Parse(`{"id":1}`)
	if _, err := decodeSSEFrame(parsed); err == nil {
		t.Error("expected error for a frame with no result field")
	}
}
