package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// ErrEmptyPayload is returned when a write is attempted with an empty payload.
var ErrEmptyPayload = errors.New("empty payload")

// RecordResult reports the outcome of RecordIfAbsent.
type RecordResult int

const (
	Inserted RecordResult = iota
	AlreadyPresent
)

func (r RecordResult) String() string {
	switch r {
	case Inserted:
		return "inserted"
	case AlreadyPresent:
		return "already_present"
	default:
		return "unknown"
	}
}

// CodeEvent is the first sighting of a payload. FirstSeen never changes once written.
// ArchiveFile is the snapshot name returned by the archiver, empty when
// archiving failed.
type CodeEvent struct {
	Payload     string    `json:"payload"`
	FirstSeen   time.Time `json:"first_seen"`
	SessionID   string    `json:"session_id,omitempty"`
	ArchiveFile string    `json:"archive_file,omitempty"`
}

// DuplicateObservation is a repeat sighting of a payload already recorded.
type DuplicateObservation struct {
	ID        int64     `json:"id"`
	Payload   string    `json:"payload"`
	SeenAt    time.Time `json:"seen_at"`
	SessionID string    `json:"session_id,omitempty"`
}
