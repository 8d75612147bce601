// Package header selects which client request headers the gateway forwards
// to the upstream language-model server:
//
//	Client <--> Gateway <--> Upstream
//
// Each leg negotiates connection handling, compression and body framing on
// its own, so those headers stay on the leg they arrived on.
package header

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
)

// RequestIDHeader carries the generation record ID back to the client.
const RequestIDHeader = "X-Lmgate-Request-Id"

// skipRequest is the set of request headers (client --> gateway --> upstream)
// that are not forwarded upstream.
var skipRequest = map[string]struct{}{
	// Hop-by-hop.
	"Connection":        {},
	"Keep-Alive":        {},
	"Transfer-Encoding": {},
	"Upgrade":           {},
	"Te":                {},

	// Rewritten by http.Transport for the upstream URL.
	"Host": {},

	// Stripped so http.Transport negotiates gzip and decompresses for us.
	"Accept-Encoding": {},

	// The gateway re-encodes the body for the upstream dialect.
	"Content-Length": {},
	"Content-Type":   {},

	// Browser CORS negotiation ends at the gateway.
	"Origin": {},
}

// UpstreamRequestHeaders returns the client request headers from the Fiber
// context that should accompany the upstream request.
func UpstreamRequestHeaders(c *fiber.Ctx) http.Header {
	h := make(http.Header)
	c.Request().Header.VisitAll(func(key, value []byte) {
		k := http.CanonicalHeaderKey(string(key))
		if _, skip := skipRequest[k]; !skip {
			h.Add(k, string(value))
		}
	})
	return h
}
