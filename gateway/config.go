package gateway

import (
	"time"

	"github.com/papercomputeco/lmgate/pkg/eventstream"
	"github.com/papercomputeco/lmgate/pkg/stream"
)

// Config is the gateway server configuration. It is read once at startup.
type Config struct {
	// ListenAddr is the address to listen on (e.g., ":3335")
	ListenAddr string

	// UpstreamURL is the upstream model server URL (e.g., "http://localhost:11434")
	UpstreamURL string

	// ConnectTimeout bounds each upstream connection attempt.
	ConnectTimeout time.Duration

	// Delimiter separates records in the upstream generation stream.
	Delimiter stream.Delimiter

	// Field is the record field carrying generated text.
	Field string

	// DefaultModel is used when a request names no model.
	DefaultModel string

	// ShutdownTimeout is how long Close waits for in-flight responses before
	// cancelling their upstream streams. Zero means 10s.
	ShutdownTimeout time.Duration

	// Publisher is an optional event stream for finished generations.
	// If nil, event publishing is disabled.
	Publisher eventstream.Publisher
}

// DefaultModel is the model used when neither the request nor the config
// names one.
const DefaultModel = "llama2"
