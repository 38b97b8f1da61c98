package domain

import (
	"encoding/json"
	"time"
)

// ArtifactKind selects the sync behavior for a file: canvas operations are
// additive, document and image operations replace the whole artifact state.
type ArtifactKind string

const (
	KindCanvas   ArtifactKind = "canvas"
	KindDocument ArtifactKind = "document"
	KindImage    ArtifactKind = "image"
)

// Replacing reports whether operations of this kind supersede the entire
// local state (last-write-wins) instead of compositing onto it.
func (k ArtifactKind) Replacing() bool {
	return k == KindDocument || k == KindImage
}

// Valid reports whether k is one of the three known artifact kinds.
func (k ArtifactKind) Valid() bool {
	return k == KindCanvas || k == KindDocument || k == KindImage
}

// Operation is the unit exchanged over a channel: one artifact-mutating
// event. Payload stays opaque to the engine; only the bindings interpret it.
// On the wire the kind travels as the envelope's type tag; the json tag
// here serves log entries and other flat encodings.
type Operation struct {
	Kind         string          `json:"type,omitempty"`
	OriginUserID string          `json:"userId"`
	Timestamp    int64           `json:"timestamp"`
	Payload      json.RawMessage `json:"payload,omitempty"`
}

// ArtifactID identifies one editable file inside a project.
type ArtifactID struct {
	ProjectID string
	FileID    string
}

func (id ArtifactID) String() string {
	return id.ProjectID + "/" + id.FileID
}

// Snapshot is the durable whole-artifact state. An update replaces the
// entire blob; there is no partial write.
type Snapshot struct {
	ArtifactID     string    `json:"artifact_id"`
	Blob           []byte    `json:"blob"`
	LastModifiedBy string    `json:"last_modified_by"`
	Timestamp      int64     `json:"timestamp"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// LogEntry is one record of the append-only canvas operation log, replayed
// in timestamp order when no snapshot exists yet.
type LogEntry struct {
	ID         string    `json:"id"`
	ArtifactID string    `json:"artifact_id"`
	Operation  Operation `json:"operation"`
	CreatedAt  time.Time `json:"created_at"`
}

// ConnectionState is the lifecycle of a channel session's transport.
type ConnectionState string

const (
	StateConnecting   ConnectionState = "connecting"
	StateOpen         ConnectionState = "open"
	StateClosed       ConnectionState = "closed"
	StateReconnecting ConnectionState = "reconnecting"
	StateFailed       ConnectionState = "failed"
)

// SaveStatus is the binding-visible outcome of the latest explicit save.
type SaveStatus string

const (
	SaveIdle    SaveStatus = "idle"
	SaveSuccess SaveStatus = "success"
	SaveError   SaveStatus = "error"
)

// Now returns the producer-local clock value stamped on outgoing
// operations, in milliseconds since epoch.
func Now() int64 {
	return time.Now().UnixMilli()
}
