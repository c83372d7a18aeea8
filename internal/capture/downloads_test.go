package capture

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeGUIDFile(t *testing.T, outDir, guid string) string {
	t.Helper()
	dir := filepath.Join(outDir, downloadsDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, guid)
	if err := os.WriteFile(path, []byte("payload"), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDownloadTrackerRenamesAndRecords(t *testing.T) {
	outDir := t.TempDir()
	data := NewResourceData()
	tracker := NewDownloadTracker(data, outDir)

	guid := "d3adb33f-0000-4000-8000-000000000001"
	src := writeGUIDFile(t, outDir, guid)

	url := "https://evil.example/dl?id=7"
	tracker.Begin(guid, url, "invoice.pdf")
	target, err := tracker.Complete(guid)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}

	base := filepath.Base(target)
	if !strings.HasPrefix(base, "invoice_") || !strings.HasSuffix(base, ".pdf") {
		t.Errorf("target=%q, suggested name not honored", target)
	}
	if _, err := os.Stat(src); !os.IsNotExist(err) {
		t.Error("GUID file left behind")
	}
	if path, ok := data.FileFor(url); !ok || path != target {
		t.Errorf("FileFor=%q,%v", path, ok)
	}
	if st := data.Stats(); st.Downloads != 1 {
		t.Errorf("downloads=%d", st.Downloads)
	}
}

func TestDownloadTrackerSkipsClaimedURL(t *testing.T) {
	outDir := t.TempDir()
	data := NewResourceData()
	tracker := NewDownloadTracker(data, outDir)

	url := "https://evil.example/payload.exe"
	claimed := filepath.Join(outDir, downloadsDir, "payload_11223344.exe")
	data.SetFile(url, claimed)
	data.AddDownload()

	guid := "d3adb33f-0000-4000-8000-000000000002"
	src := writeGUIDFile(t, outDir, guid)

	tracker.Begin(guid, url, "payload.exe")
	target, err := tracker.Complete(guid)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if target != "" {
		t.Errorf("duplicate delivery renamed to %q", target)
	}
	if _, err := os.Stat(src); !os.IsNotExist(err) {
		t.Error("duplicate GUID file not removed")
	}
	if path, _ := data.FileFor(url); path != claimed {
		t.Errorf("claim overwritten: %q", path)
	}
	if st := data.Stats(); st.Downloads != 1 {
		t.Errorf("downloads double-counted: %d", st.Downloads)
	}
}

func TestDownloadTrackerNoSuggestedName(t *testing.T) {
	outDir := t.TempDir()
	data := NewResourceData()
	tracker := NewDownloadTracker(data, outDir)

	guid := "d3adb33f-0000-4000-8000-000000000003"
	writeGUIDFile(t, outDir, guid)

	tracker.Begin(guid, "https://evil.example/stage2.bin", "")
	target, err := tracker.Complete(guid)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if !strings.HasPrefix(filepath.Base(target), "stage2_") {
		t.Errorf("URL basename fallback wrong: %q", target)
	}
}

func TestDownloadTrackerCancel(t *testing.T) {
	outDir := t.TempDir()
	data := NewResourceData()
	tracker := NewDownloadTracker(data, outDir)

	guid := "d3adb33f-0000-4000-8000-000000000004"
	src := writeGUIDFile(t, outDir, guid)

	tracker.Begin(guid, "https://evil.example/x", "x.bin")
	tracker.Cancel(guid)
	if _, err := os.Stat(src); !os.IsNotExist(err) {
		t.Error("canceled partial file not removed")
	}

	// Unknown GUIDs are ignored on both paths.
	tracker.Cancel("no-such-guid")
	if target, err := tracker.Complete("no-such-guid"); err != nil || target != "" {
		t.Errorf("unknown GUID: %q, %v", target, err)
	}
}
