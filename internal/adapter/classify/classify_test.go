package classify

import (
	"errors"
	"testing"

	"github.com/relaymcp/meridian/internal/core/ports"
)

func TestDefault_ConnectionTokens(t *testing.T) {
	cases := []string{
		"dial tcp: Connection refused",
		"context deadline exceeded: timeout",
		"dial tcp 127.0.0.1:9: ECONNREFUSED",
		"lookup upstream.local: ENOTFOUND",
	}
	for _, msg := range cases {
		if got := Default(errors.New(msg)); got != ports.ClassConnection {
			t.Errorf("Default(%q) = %v, want ClassConnection", msg, got)
		}
	}
}

func TestDefault_BusinessTokens(t *testing.T) {
	cases := []string{
		"Tool t1 not found",
		"Invalid parameters: missing field 'name'",
		"blocked by robots.txt",
		"completely novel upstream error",
	}
	for _, msg := range cases {
		if got := Default(errors.New(msg)); got != ports.ClassBusiness {
			t.Errorf("Default(%q) = %v, want ClassBusiness", msg, got)
		}
	}
}

func TestDefault_NilError(t *testing.T) {
	if got := Default(nil); got != ports.ClassBusiness {
		t.Errorf("Default(nil) = %v, want ClassBusiness", got)
	}
}

func TestIsNotFound(t *testing.T) {
	if !IsNotFound(errors.New("Tool t1 not found")) {
		t.Error("expected IsNotFound true for 'not found' message")
	}
	if IsNotFound(errors.New("Invalid parameters")) {
		t.Error("expected IsNotFound false for unrelated business error")
	}
	if IsNotFound(nil) {
		t.Error("expected IsNotFound false for nil error")
	}
}
