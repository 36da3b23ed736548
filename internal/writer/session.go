package writer

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// Files inside a session directory
const (
	ResultsFilename      = "results.jsonl"
	LogFilename          = "session.log"
	ConfigBackupFilename = "config.toml.bak"
)

const sessionTimeFormat = "2006-01-02T15-04-05"

// SessionManager owns one session directory under the output directory
type SessionManager struct {
	outputDir  string
	sessionDir string
	resumed    bool
	logger     *slog.Logger
}

// NewSessionManager creates a fresh timestamped session directory, or opens
// an existing one when resumeFromSession is set.
func NewSessionManager(logger *slog.Logger, outputDir, resumeFromSession string) (*SessionManager, error) {
	if outputDir == "" {
		outputDir = "output"
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	sm := &SessionManager{outputDir: outputDir, logger: logger}

	if resumeFromSession != "" {
		if err := ValidateSessionPath(outputDir, resumeFromSession); err != nil {
			return nil, err
		}
		sm.sessionDir = filepath.Join(outputDir, resumeFromSession)
		if _, err := os.Stat(sm.sessionDir); os.IsNotExist(err) {
			return nil, fmt.Errorf("session directory not found: %s", sm.sessionDir)
		}
		sm.resumed = true
		logger.Info("Resuming from existing session", "path", sm.sessionDir)
		return sm, nil
	}

	sm.sessionDir = filepath.Join(outputDir, "session_"+time.Now().Format(sessionTimeFormat))
	// Two runs in the same second would share a directory
	if _, err := os.Stat(sm.sessionDir); err == nil {
		return nil, fmt.Errorf("session directory already exists: %s", sm.sessionDir)
	}
	if err := os.MkdirAll(sm.sessionDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create session directory: %w", err)
	}
	logger.Info("Created new session directory", "path", sm.sessionDir)

	return sm, nil
}

// GetSessionDir returns the session directory path
func (sm *SessionManager) GetSessionDir() string {
	return sm.sessionDir
}

// GetSessionName returns the directory name, e.g. session_2026-03-14T09-15-00
func (sm *SessionManager) GetSessionName() string {
	return filepath.Base(sm.sessionDir)
}

// Resumed reports whether the session was reopened
func (sm *SessionManager) Resumed() bool {
	return sm.resumed
}

// GetResultsPath returns the full path to the results file
func (sm *SessionManager) GetResultsPath() string {
	return filepath.Join(sm.sessionDir, ResultsFilename)
}

// GetLogPath returns the full path to the session log file
func (sm *SessionManager) GetLogPath() string {
	return filepath.Join(sm.sessionDir, LogFilename)
}

// GetConfigBackupPath returns the full path to the config backup
func (sm *SessionManager) GetConfigBackupPath() string {
	return filepath.Join(sm.sessionDir, ConfigBackupFilename)
}

// BackupConfig copies the config file to the session directory
func (sm *SessionManager) BackupConfig(configPath string) error {
	source, err := os.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	backupPath := sm.GetConfigBackupPath()
	if err := os.WriteFile(backupPath, source, 0644); err != nil {
		return fmt.Errorf("failed to write config backup: %w", err)
	}

	sm.logger.Info("Backed up config file", "path", backupPath)
	return nil
}

// SessionInfo describes a session directory on disk
type SessionInfo struct {
	Name      string
	Path      string
	CreatedAt time.Time
}

// ListSessions returns the session directories in outputDir, newest first.
// A missing output directory yields an empty list.
func ListSessions(outputDir string) ([]SessionInfo, error) {
	entries, err := os.ReadDir(outputDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read output directory: %w", err)
	}

	var sessions []SessionInfo
	for _, entry := range entries {
		if !entry.IsDir() || !sessionNameRegex.MatchString(entry.Name()) {
			continue
		}
		created, err := time.ParseInLocation(sessionTimeFormat, entry.Name()[len("session_"):], time.Local)
		if err != nil {
			continue
		}
		sessions = append(sessions, SessionInfo{
			Name:      entry.Name(),
			Path:      filepath.Join(outputDir, entry.Name()),
			CreatedAt: created,
		})
	}

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].CreatedAt.After(sessions[j].CreatedAt)
	})
	return sessions, nil
}
