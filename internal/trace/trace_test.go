package trace

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestRecorderRotation(t *testing.T) {
	tempDir := t.TempDir()

	r, err := NewRecorder(tempDir)
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < MaxRotatedFiles+2; i++ {
		if err := r.Start("run"); err != nil {
			t.Fatal(err)
		}
		r.Log("offer", "alice_iPhone 14 Pro", map[string]float64{"amount": 520})
		time.Sleep(10 * time.Millisecond) // distinct mod times
	}

	entries, err := os.ReadDir(tempDir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != MaxRotatedFiles {
		t.Errorf("expected %d files, got %d", MaxRotatedFiles, len(entries))
	}
}

func TestRecorderLogging(t *testing.T) {
	tempDir := t.TempDir()

	r, err := NewRecorder(tempDir)
	if err != nil {
		t.Fatal(err)
	}
	if err := r.Start("run1"); err != nil {
		t.Fatal(err)
	}

	r.Log("verdict", "bob_PS5 slim", "COUNTER")
	r.Close()

	entries, err := os.ReadDir(tempDir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 file, got %d", len(entries))
	}

	content, err := os.ReadFile(filepath.Join(tempDir, entries[0].Name()))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(content), `{"ts":`) {
		t.Errorf("unexpected log content format: %s", string(content))
	}
	if !strings.Contains(string(content), `"seller_id":"bob_PS5 slim"`) {
		t.Errorf("seller id missing from event: %s", string(content))
	}
}

func TestLogWithoutStartIsNoop(t *testing.T) {
	tempDir := t.TempDir()

	r, err := NewRecorder(tempDir)
	if err != nil {
		t.Fatal(err)
	}
	r.Log("offer", "nobody", nil)

	entries, err := os.ReadDir(tempDir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("expected no files, got %d", len(entries))
	}
}
