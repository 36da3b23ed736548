package checkpoint

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lamim/medibill/internal/config"
	"github.com/lamim/medibill/pkg/models"
)

const CheckpointFilename = "checkpoint.json"

// queueDepth bounds snapshots waiting for the background writer
const queueDepth = 10

// Manager records which bill items of a batch run already have a result line.
// Every interval completions a snapshot is handed to a background writer;
// MarkComplete and SaveSync write on the caller's goroutine.
type Manager struct {
	sessionDir string
	logger     *slog.Logger
	interval   int
	enabled    bool

	mu         sync.RWMutex
	checkpoint *models.Checkpoint
	sinceSave  int

	diskMu  sync.Mutex // one writer of checkpoint.json at a time
	queue   chan *models.Checkpoint
	stop    chan struct{}
	stopped sync.Once
	done    sync.WaitGroup

	errMu    sync.Mutex
	writeErr error
}

// NewManager starts a checkpoint for a run over itemIDs, kept in run order
func NewManager(sessionDir string, cfg *config.Config, itemIDs []int64, logger *slog.Logger) *Manager {
	return newManager(sessionDir, &models.Checkpoint{
		SessionID:        uuid.New().String(),
		CreatedAt:        time.Now(),
		CurrentPhase:     models.PhaseItems,
		ItemIDs:          append([]int64(nil), itemIDs...),
		CompletedItemIDs: make(map[int64]bool),
		ConfigHash:       computeConfigHash(cfg),
	}, cfg, logger)
}

// NewManagerFromCheckpoint continues a checkpoint returned by Load
func NewManagerFromCheckpoint(sessionDir string, cp *models.Checkpoint, cfg *config.Config, logger *slog.Logger) *Manager {
	if cp.CompletedItemIDs == nil {
		cp.CompletedItemIDs = make(map[int64]bool)
	}
	return newManager(sessionDir, cp, cfg, logger)
}

func newManager(sessionDir string, cp *models.Checkpoint, cfg *config.Config, logger *slog.Logger) *Manager {
	m := &Manager{
		sessionDir: sessionDir,
		logger:     logger,
		interval:   cfg.Generation.CheckpointInterval,
		enabled:    cfg.Generation.EnableCheckpointing,
		checkpoint: cp,
		queue:      make(chan *models.Checkpoint, queueDepth),
		stop:       make(chan struct{}),
	}
	if m.enabled {
		m.done.Add(1)
		go m.writeLoop()
	}
	return m
}

func (m *Manager) writeLoop() {
	defer m.done.Done()
	for {
		select {
		case cp := <-m.queue:
			m.persist(cp)
		case <-m.stop:
			for {
				select {
				case cp := <-m.queue:
					m.persist(cp)
				default:
					return
				}
			}
		}
	}
}

// persist writes a queued snapshot and keeps the first failure for Close
func (m *Manager) persist(cp *models.Checkpoint) {
	if err := m.writeFile(cp); err != nil {
		m.logger.Error("Failed to write checkpoint", "error", err, "completed_items", len(cp.CompletedItemIDs))
		m.errMu.Lock()
		if m.writeErr == nil {
			m.writeErr = err
		}
		m.errMu.Unlock()
	}
}

// writeFile replaces checkpoint.json through a .tmp file and rename
func (m *Manager) writeFile(cp *models.Checkpoint) error {
	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}

	m.diskMu.Lock()
	defer m.diskMu.Unlock()

	path := filepath.Join(m.sessionDir, CheckpointFilename)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write temp checkpoint: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to rename checkpoint: %w", err)
	}

	m.logger.Debug("Checkpoint saved",
		"completed_items", len(cp.CompletedItemIDs),
		"total_items", len(cp.ItemIDs),
		"phase", cp.CurrentPhase)
	return nil
}

// snapshot stamps LastSavedAt and returns a copy for writing
func (m *Manager) snapshot() *models.Checkpoint {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkpoint.LastSavedAt = time.Now()
	return m.checkpoint.Clone()
}

// Save hands a snapshot to the background writer. A full queue writes inline.
func (m *Manager) Save() error {
	if !m.enabled {
		return nil
	}

	cp := m.snapshot()
	select {
	case m.queue <- cp:
		return nil
	default:
		m.logger.Warn("Checkpoint queue full, writing inline", "completed_items", len(cp.CompletedItemIDs))
		return m.writeFile(cp)
	}
}

// SaveSync writes the current state before returning
func (m *Manager) SaveSync() error {
	if !m.enabled {
		return nil
	}
	return m.writeFile(m.snapshot())
}

// Load reads checkpoint.json from a session directory
func Load(sessionDir string, logger *slog.Logger) (*models.Checkpoint, error) {
	data, err := os.ReadFile(filepath.Join(sessionDir, CheckpointFilename))
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoint: %w", err)
	}

	var cp models.Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal checkpoint: %w", err)
	}

	logger.Info("Checkpoint loaded",
		"session_id", cp.SessionID,
		"phase", cp.CurrentPhase,
		"completed_items", len(cp.CompletedItemIDs),
		"total_items", len(cp.ItemIDs))

	return &cp, nil
}

// MarkItemComplete records an item whose result line has been written
func (m *Manager) MarkItemComplete(itemID int64, stats *models.SessionStats) error {
	if !m.enabled {
		return nil
	}

	m.mu.Lock()
	m.checkpoint.CompletedItemIDs[itemID] = true
	m.checkpoint.Stats = *stats
	m.sinceSave++
	due := m.sinceSave >= m.interval
	if due {
		m.sinceSave = 0
	}
	m.mu.Unlock()

	if !due {
		return nil
	}
	return m.Save()
}

// MarkComplete flags the run finished so it is no longer offered for resume
func (m *Manager) MarkComplete(stats *models.SessionStats) error {
	m.mu.Lock()
	m.checkpoint.CurrentPhase = models.PhaseComplete
	m.checkpoint.Stats = *stats
	m.mu.Unlock()

	return m.SaveSync()
}

// GetCheckpoint returns a copy of the current state
func (m *Manager) GetCheckpoint() *models.Checkpoint {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.checkpoint.Clone()
}

// Close flushes queued snapshots and returns the first background write error.
// Calling it again is a no-op apart from returning the same error.
func (m *Manager) Close() error {
	if !m.enabled {
		return nil
	}

	m.stopped.Do(func() { close(m.stop) })
	m.done.Wait()

	m.errMu.Lock()
	defer m.errMu.Unlock()
	return m.writeErr
}

// computeConfigHash covers the settings that change what a result line contains
func computeConfigHash(cfg *config.Config) string {
	explain := cfg.ModelFor(config.RoleExplain)
	data := fmt.Sprintf("%s|%s|%s|%v|%v|%s|%s",
		explain.Provider,
		explain.ModelName,
		cfg.Preferences.Language,
		cfg.DefaultFamilyMode(),
		cfg.Generation.IncludeIllustrations,
		cfg.PromptTemplates.Explanation,
		cfg.PromptTemplates.Illustration)
	hash := sha256.Sum256([]byte(data))
	return fmt.Sprintf("%x", hash[:8])
}
