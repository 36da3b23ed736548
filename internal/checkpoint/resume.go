package checkpoint

import (
	"fmt"

	"github.com/lamim/medibill/internal/config"
	"github.com/lamim/medibill/pkg/models"
)

// ValidateCheckpoint verifies checkpoint is compatible with current config
func ValidateCheckpoint(cp *models.Checkpoint, cfg *config.Config) error {
	expectedHash := computeConfigHash(cfg)
	if cp.ConfigHash != expectedHash {
		return fmt.Errorf("checkpoint config mismatch: checkpoint was created with different model/preferences/templates (hash: %s vs %s)", cp.ConfigHash, expectedHash)
	}

	if cp.CurrentPhase == models.PhaseComplete {
		return fmt.Errorf("checkpoint is already complete, nothing to resume")
	}

	return nil
}

// PendingItems returns the checkpointed items that have no result yet, in
// the original run order. available is the current store contents; IDs that
// no longer exist are returned as missing.
func PendingItems(cp *models.Checkpoint, available []models.BillItem) (pending []models.BillItem, missing []int64) {
	byID := make(map[int64]models.BillItem, len(available))
	for _, item := range available {
		byID[item.ID] = item
	}

	for _, id := range cp.ItemIDs {
		if cp.CompletedItemIDs[id] {
			continue
		}
		item, ok := byID[id]
		if !ok {
			missing = append(missing, id)
			continue
		}
		pending = append(pending, item)
	}
	return pending, missing
}

// GetCompletedCount returns the number of completed items
func GetCompletedCount(cp *models.Checkpoint) int {
	return len(cp.CompletedItemIDs)
}

// GetTotalCount returns the number of items in the run
func GetTotalCount(cp *models.Checkpoint) int {
	return len(cp.ItemIDs)
}

// GetProgressPercentage returns completion percentage
func GetProgressPercentage(cp *models.Checkpoint) float64 {
	total := GetTotalCount(cp)
	if total == 0 {
		return 0.0
	}
	return float64(GetCompletedCount(cp)) / float64(total) * 100.0
}
