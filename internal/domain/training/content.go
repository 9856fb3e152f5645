package training

import "time"

// ContentSet is a named group of items that can be assigned to a Training.
type ContentSet struct {
	ID   string
	Name string
}

// Translation is a learning item. Cycles reference translations, never own them.
type Translation struct {
	ID          string
	Word        string
	Translation string
}

// DegradedBuild records a build that ended without a persisted plan.
type DegradedBuild struct {
	TrainingID string    `json:"training_id"`
	SetIDs     []string  `json:"set_ids"`
	Seed       *int64    `json:"seed,omitempty"`
	Reason     string    `json:"reason"`
	Kind       string    `json:"kind"`
	FailedAt   time.Time `json:"failed_at"`
	Attempts   int       `json:"attempts"`
}
