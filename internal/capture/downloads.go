package capture

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// DownloadTracker follows browser-level download events, the safety
// net behind the Fetch interceptor. Chromium writes these files under
// their GUID; the tracker renames them to the suggested filename and
// records them, unless the interceptor already claimed the URL.
type DownloadTracker struct {
	mu     sync.Mutex
	data   *ResourceData
	dir    string
	byGUID map[string]driverDownload
}

type driverDownload struct {
	url       string
	suggested string
}

func NewDownloadTracker(data *ResourceData, outDir string) *DownloadTracker {
	return &DownloadTracker{
		data:   data,
		dir:    filepath.Join(outDir, downloadsDir),
		byGUID: make(map[string]driverDownload),
	}
}

// Begin registers a starting download by its GUID.
func (t *DownloadTracker) Begin(guid, url, suggested string) {
	t.mu.Lock()
	t.byGUID[guid] = driverDownload{url: url, suggested: suggested}
	t.mu.Unlock()
}

// Complete moves the finished GUID file to its final name and records
// it. Returns "" when the URL was already claimed; the GUID file is a
// duplicate then and is removed.
func (t *DownloadTracker) Complete(guid string) (string, error) {
	t.mu.Lock()
	d, ok := t.byGUID[guid]
	delete(t.byGUID, guid)
	t.mu.Unlock()
	if !ok {
		return "", nil
	}

	src := filepath.Join(t.dir, guid)
	if _, claimed := t.data.FileFor(d.url); claimed {
		_ = os.Remove(src)
		return "", nil
	}

	name := d.suggested
	if name == "" {
		name = FilenameFor(d.url, "", "")
	} else {
		ext := filepath.Ext(name)
		name = SafeFilename(sanitizeName(strings.TrimSuffix(name, ext)), ext, d.url)
	}
	target := DedupPath(filepath.Join(t.dir, name))
	if err := os.Rename(src, target); err != nil {
		return "", err
	}
	t.data.SetFile(d.url, target)
	t.data.AddDownload()
	return target, nil
}

// Cancel drops an aborted download and its partial file.
func (t *DownloadTracker) Cancel(guid string) {
	t.mu.Lock()
	_, ok := t.byGUID[guid]
	delete(t.byGUID, guid)
	t.mu.Unlock()
	if ok {
		_ = os.Remove(filepath.Join(t.dir, guid))
	}
}
