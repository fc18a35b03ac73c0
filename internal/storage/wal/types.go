package wal

// ============================================================================
// WAL Type Definitions
// Responsibility: Define the stage journal records
// ============================================================================

// EventType defines journal event types
type EventType string

const (
	EventStage      EventType = "STAGE"      // A state machine stage completed
	EventLoopback   EventType = "LOOPBACK"   // adjust_weights re-entered detect
	EventCheckpoint EventType = "CHECKPOINT" // RunContext persisted between pipelines
	EventFailed     EventType = "FAILED"     // Run ended in the failed stage
)

// Event is one journal record
type Event struct {
	Seq         uint64    `json:"seq"`             // Monotonically increasing per file
	Type        EventType `json:"type"`            // Event type
	ExecutionID string    `json:"execution_id"`    // Run the event belongs to
	State       string    `json:"state,omitempty"` // State machine node that ran
	Stage       string    `json:"stage,omitempty"` // RunContext stage after the node
	Iteration   int       `json:"iteration"`       // Feedback iteration counter
	Detail      string    `json:"detail,omitempty"`
	Timestamp   int64     `json:"timestamp"` // Unix millisecond timestamp
	Checksum    uint32    `json:"checksum"`  // CRC32 over every other field
}

// EventHandler processes one event during Replay.
// Returning an error aborts the replay.
type EventHandler func(event Event) error
