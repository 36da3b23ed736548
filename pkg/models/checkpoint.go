package models

import "time"

// CheckpointPhase represents the current phase of a batch run
type CheckpointPhase string

const (
	PhaseItems    CheckpointPhase = "items"
	PhaseComplete CheckpointPhase = "complete"
)

// Checkpoint represents the saved state of a batch session
type Checkpoint struct {
	// Session identification
	SessionID   string    `json:"session_id"`    // UUID for this session
	CreatedAt   time.Time `json:"created_at"`    // When session started
	LastSavedAt time.Time `json:"last_saved_at"` // Last checkpoint time

	CurrentPhase CheckpointPhase `json:"current_phase"`

	// Item IDs selected for this run, in processing order
	ItemIDs []int64 `json:"item_ids"`

	// item_id -> true once a result line has been written
	CompletedItemIDs map[int64]bool `json:"completed_item_ids"`

	Stats SessionStats `json:"stats"`

	// Configuration snapshot (for validation)
	ConfigHash string `json:"config_hash"`
}

// Clone returns a deep copy safe to hand to another goroutine
func (c *Checkpoint) Clone() *Checkpoint {
	out := *c
	out.ItemIDs = append([]int64(nil), c.ItemIDs...)
	out.CompletedItemIDs = make(map[int64]bool, len(c.CompletedItemIDs))
	for id, done := range c.CompletedItemIDs {
		out.CompletedItemIDs[id] = done
	}
	return &out
}
