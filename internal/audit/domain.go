package audit

import (
	"time"

	"github.com/google/uuid"
)

// Entry is one append-only record of a mutating action.
type Entry struct {
	ID        uuid.UUID      `json:"id"`
	ActorID   *int64         `json:"actorUserId,omitempty"`
	Action    string         `json:"action"`
	Resource  string         `json:"resource"`
	Details   map[string]any `json:"details,omitempty"`
	IP        string         `json:"ipAddress,omitempty"`
	UserAgent string         `json:"userAgent,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
}

// ActorInfo is the joined identity shown alongside an entry.
type ActorInfo struct {
	ID    int64  `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

// EntryWithActor pairs an entry with its actor, when one exists.
type EntryWithActor struct {
	Entry
	Actor *ActorInfo `json:"actor,omitempty"`
}

// QueryFilter narrows the read side of the log.
type QueryFilter struct {
	Page     int
	PageSize int
	ActorID  *int64
}
