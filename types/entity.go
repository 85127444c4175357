package types

import "time"

// Entity carries record timestamps. Embed it in persisted domain types.
type Entity struct {
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewEntity creates an Entity stamped at the given instant (UTC).
func NewEntity(at time.Time) Entity {
	at = at.UTC()
	return Entity{
		CreatedAt: at,
		UpdatedAt: at,
	}
}

// Touch moves UpdatedAt to the given instant.
func (e *Entity) Touch(at time.Time) {
	e.UpdatedAt = at.UTC()
}

// Age returns how long before now the entity was created.
func (e Entity) Age(now time.Time) time.Duration {
	return now.Sub(e.CreatedAt)
}
