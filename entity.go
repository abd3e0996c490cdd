package flume

import "time"

// Entity carries the timestamps common to all persisted Flume entities.
// Embed it in entity structs; adapters keep UpdatedAt current on writes.
type Entity struct {
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewEntity returns an Entity with both timestamps set to now (UTC).
func NewEntity() Entity {
	now := time.Now().UTC()
	return Entity{CreatedAt: now, UpdatedAt: now}
}

// Touch updates UpdatedAt to now (UTC).
func (e *Entity) Touch() {
	e.UpdatedAt = time.Now().UTC()
}
