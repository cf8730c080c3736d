// Package classify implements the documented string-substring error
// classifier. It is intentionally a free function rather than
// a method on any adapter so it can be swapped out independently, per the
// open question recorded on string-based classification fragility: the
// listed tokens are preserved verbatim rather than re-derived, but callers
// see only the ports.ErrorClassifier seam and can supply their own.
package classify

import (
	"strings"

	"github.com/relaymcp/meridian/internal/core/ports"
)

// connectionTokens mark a transport-layer failure: retriable, can demote an
// upstream to unhealthy after enough consecutive hits.
var connectionTokens = []string{"Connection", "timeout", "ECONNREFUSED", "ENOTFOUND"}

// Default classifies err as connection-class only when it matches one of
// the listed tokens; everything else, including an unrecognised message, is
// business-class. This is the conservative direction: an upstream that
// starts returning novel error text is never retried into a demotion
// storm, it just surfaces the error unchanged.
func Default(err error) ports.ErrorClass {
	if err == nil {
		return ports.ClassBusiness
	}
	msg := err.Error()
	for _, tok := range connectionTokens {
		if strings.Contains(msg, tok) {
			return ports.ClassConnection
		}
	}
	return ports.ClassBusiness
}

// IsNotFound reports whether err represents an entity-not-found rejection
// specifically, the business-class case the Proxy Server responds to by
// evicting the stale Routing Table entry rather than merely not retrying.
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "not found")
}
