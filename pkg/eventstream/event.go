package eventstream

import (
	"time"

	"github.com/google/uuid"

	"github.com/papercomputeco/lmgate/pkg/storage"
)

const (
	// SchemaVersionV1 is the first version of the event payload schema.
	SchemaVersionV1 = 1

	// EventTypeGenerationCompleted is emitted after a generation finishes,
	// whatever its outcome.
	EventTypeGenerationCompleted = "lmgate.generation.completed"
)

// GenerationCompletedEvent is a transport-neutral event payload for a
// finished generation.
type GenerationCompletedEvent struct {
	SchemaVersion int            `json:"schema_version"`
	EventType     string         `json:"event_type"`
	EventID       string         `json:"event_id"`
	EmittedAt     time.Time      `json:"emitted_at"`
	DurationMs    int64          `json:"duration_ms"`
	Record        storage.Record `json:"record"`
}

// NewGenerationCompletedEvent wraps record in a v1 event with a fresh ID.
func NewGenerationCompletedEvent(record *storage.Record) *GenerationCompletedEvent {
	return &GenerationCompletedEvent{
		SchemaVersion: SchemaVersionV1,
		EventType:     EventTypeGenerationCompleted,
		EventID:       "evt_" + uuid.NewString(),
		EmittedAt:     time.Now().UTC(),
		DurationMs:    record.Duration().Milliseconds(),
		Record:        *record,
	}
}
