package writer

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/lamim/medibill/pkg/models"
)

func newTestSession(t *testing.T) *SessionManager {
	t.Helper()
	sm, err := NewSessionManager(discardLogger(), filepath.Join(t.TempDir(), "output"), "")
	if err != nil {
		t.Fatal(err)
	}
	return sm
}

func TestResultsWriter_WriteAndRead(t *testing.T) {
	sm := newTestSession(t)
	rw, err := NewResultsWriter(sm, discardLogger())
	if err != nil {
		t.Fatalf("NewResultsWriter failed: %v", err)
	}

	records := []models.ItemRecord{
		{
			ItemID: 1, Item: "Complete Blood Count (CBC)", Category: "Pathology", Cost: 450,
			Language: models.LanguageEnglish, Status: models.ItemStatusOK,
			Explanation: "A blood test.", InsuranceStatus: models.StatusLikelyCovered,
			Disclaimer: "Check with your insurer.", DurationMS: 1200,
		},
		{
			ItemID: 2, Item: "MRI Brain", Category: "Radiology", Cost: 8500,
			Language: models.LanguageHindi, Status: models.ItemStatusFailed,
			ErrorKind: "missing_field", Error: "explain: missing field insurance_status",
		},
	}
	for _, r := range records {
		if err := rw.WriteRecord(r); err != nil {
			t.Fatalf("WriteRecord failed: %v", err)
		}
	}
	if rw.Written() != 2 {
		t.Errorf("Written() = %d, want 2", rw.Written())
	}
	if err := rw.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	got, err := ReadResults(sm.GetResultsPath())
	if err != nil {
		t.Fatalf("ReadResults failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 records, got %d", len(got))
	}
	if got[0] != records[0] || got[1] != records[1] {
		t.Errorf("records differ:\n got %+v\nwant %+v", got, records)
	}

	data, err := os.ReadFile(sm.GetResultsPath())
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), `"insurance_note"`) {
		t.Error("empty optional fields should be omitted")
	}
}

func TestResultsWriter_CloseTwice(t *testing.T) {
	rw, err := NewResultsWriter(newTestSession(t), discardLogger())
	if err != nil {
		t.Fatal(err)
	}
	if err := rw.Close(); err != nil {
		t.Fatalf("first Close failed: %v", err)
	}
	if err := rw.Close(); err != nil {
		t.Errorf("second Close should be a no-op, got %v", err)
	}
	if err := rw.WriteRecord(models.ItemRecord{ItemID: 1}); err == nil {
		t.Error("WriteRecord after Close should fail")
	}
}

func TestResultsWriter_AppendOnResume(t *testing.T) {
	outputDir := t.TempDir()
	name := "session_2026-03-14T09-15-00"
	if err := os.MkdirAll(filepath.Join(outputDir, name), 0755); err != nil {
		t.Fatal(err)
	}

	for i := 1; i <= 2; i++ {
		sm, err := NewSessionManager(discardLogger(), outputDir, name)
		if err != nil {
			t.Fatal(err)
		}
		rw, err := NewResultsWriter(sm, discardLogger())
		if err != nil {
			t.Fatal(err)
		}
		if err := rw.WriteRecord(models.ItemRecord{ItemID: int64(i), Status: models.ItemStatusOK}); err != nil {
			t.Fatal(err)
		}
		if err := rw.Close(); err != nil {
			t.Fatal(err)
		}
	}

	got, err := ReadResults(filepath.Join(outputDir, name, ResultsFilename))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("expected appended records, got %d", len(got))
	}
}

func TestResultsWriter_Concurrent(t *testing.T) {
	sm := newTestSession(t)
	rw, err := NewResultsWriter(sm, discardLogger())
	if err != nil {
		t.Fatal(err)
	}

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			rec := models.ItemRecord{ItemID: int64(id), Item: fmt.Sprintf("item %d", id), Status: models.ItemStatusOK}
			if err := rw.WriteRecord(rec); err != nil {
				t.Errorf("WriteRecord failed: %v", err)
			}
		}(i)
	}
	wg.Wait()
	if err := rw.Close(); err != nil {
		t.Fatal(err)
	}

	got, err := ReadResults(sm.GetResultsPath())
	if err != nil {
		t.Fatalf("interleaved lines: %v", err)
	}
	if len(got) != n {
		t.Errorf("expected %d records, got %d", n, len(got))
	}
}

func TestReadResults_BadLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), ResultsFilename)
	content := `{"item_id":1,"status":"ok"}` + "\n\n" + `{"item_id":` + "\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	_, err := ReadResults(path)
	if err == nil || !strings.Contains(err.Error(), "line 3") {
		t.Errorf("expected error naming line 3, got %v", err)
	}
}

func BenchmarkResultsWriter_WriteRecord(b *testing.B) {
	sm, err := NewSessionManager(discardLogger(), filepath.Join(b.TempDir(), "output"), "")
	if err != nil {
		b.Fatal(err)
	}
	rw, err := NewResultsWriter(sm, discardLogger())
	if err != nil {
		b.Fatal(err)
	}
	defer func() { _ = rw.Close() }()

	record := models.ItemRecord{
		ItemID: 1, Item: "Complete Blood Count (CBC)", Category: "Pathology", Cost: 450,
		Status: models.ItemStatusOK, Explanation: strings.Repeat("x", 400),
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := rw.WriteRecord(record); err != nil {
			b.Fatal(err)
		}
	}
}
