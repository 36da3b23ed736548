package writer

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/lamim/medibill/pkg/models"
)

// maxRecordBytes bounds a single JSONL line when reading results back
const maxRecordBytes = 1 << 20

// ResultsWriter appends item records to results.jsonl, one JSON object per line.
// Safe for concurrent use.
type ResultsWriter struct {
	file    *os.File
	mu      sync.Mutex
	written int
	closed  bool
	logger  *slog.Logger
}

// NewResultsWriter opens the session results file. A resumed session appends
// to the existing file; a new session truncates it.
func NewResultsWriter(sessionMgr *SessionManager, logger *slog.Logger) (*ResultsWriter, error) {
	path := sessionMgr.GetResultsPath()

	flags := os.O_CREATE | os.O_WRONLY
	if sessionMgr.Resumed() {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}

	file, err := os.OpenFile(path, flags, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open results file: %w", err)
	}

	logger.Info("Opened results file", "path", path, "append", sessionMgr.Resumed())

	return &ResultsWriter{
		file:   file,
		logger: logger,
	}, nil
}

// WriteRecord writes a single record as one line
func (rw *ResultsWriter) WriteRecord(record models.ItemRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	rw.mu.Lock()
	defer rw.mu.Unlock()

	if rw.closed {
		return errors.New("results writer is closed")
	}
	if _, err := rw.file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write record: %w", err)
	}
	rw.written++

	return nil
}

// Written returns how many records this writer has written
func (rw *ResultsWriter) Written() int {
	rw.mu.Lock()
	defer rw.mu.Unlock()
	return rw.written
}

// Close syncs and closes the results file. Later calls are no-ops.
func (rw *ResultsWriter) Close() error {
	rw.mu.Lock()
	defer rw.mu.Unlock()

	if rw.closed {
		return nil
	}
	rw.closed = true

	if err := rw.file.Sync(); err != nil {
		rw.logger.Warn("Failed to sync results file", "error", err)
	}

	if err := rw.file.Close(); err != nil {
		return fmt.Errorf("failed to close results file: %w", err)
	}

	rw.logger.Info("Closed results file", "records", rw.written)
	return nil
}

// ReadResults loads every record from a results file. Blank lines are skipped;
// a line that is not valid JSON is an error that names the line number.
func ReadResults(path string) ([]models.ItemRecord, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open results file: %w", err)
	}
	defer func() { _ = file.Close() }()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), maxRecordBytes)

	var records []models.ItemRecord
	line := 0
	for scanner.Scan() {
		line++
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var record models.ItemRecord
		if err := json.Unmarshal(scanner.Bytes(), &record); err != nil {
			return nil, fmt.Errorf("results line %d: %w", line, err)
		}
		records = append(records, record)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read results file: %w", err)
	}
	return records, nil
}
