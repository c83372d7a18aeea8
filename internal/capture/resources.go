// Package capture archives everything a session observes: resource
// bodies by type, download payloads intercepted before the renderer
// sees them, and the full request/response header record.
package capture

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/go-rod/rod/lib/proto"
)

// resourceDirs maps renderer resource types to their archive
// subdirectory. Types outside this map land in "other".
var resourceDirs = map[proto.NetworkResourceType]string{
	proto.NetworkResourceTypeImage:      "images",
	proto.NetworkResourceTypeScript:     "scripts",
	proto.NetworkResourceTypeStylesheet: "stylesheets",
	proto.NetworkResourceTypeFont:       "fonts",
	proto.NetworkResourceTypeMedia:      "media",
	proto.NetworkResourceTypeDocument:   "html",
}

const downloadsDir = "downloads"

// DirFor returns the archive subdirectory for a resource type.
func DirFor(t proto.NetworkResourceType) string {
	if dir, ok := resourceDirs[t]; ok {
		return dir
	}
	return "other"
}

// RequestRecord is one observed outgoing request. Body is kept so the
// replay fallback can re-issue the request exactly as it went out.
type RequestRecord struct {
	Method  string            `json:"method"`
	Headers map[string]string `json:"headers"`
	Body    string            `json:"body,omitempty"`
}

// ResponseRecord is one observed response.
type ResponseRecord struct {
	Status  int               `json:"status_code"`
	Headers map[string]string `json:"headers"`
}

// Stats counts session outcomes for the closing summary line.
type Stats struct {
	Downloads int `json:"downloads"`
	Warnings  int `json:"warnings"`
	Errors    int `json:"errors"`
}

// ResourceData is the shared capture state of one session. Event
// handlers run on separate goroutines, so every access locks.
type ResourceData struct {
	mu              sync.Mutex
	seen            map[string]bool
	requestHeaders  map[string]RequestRecord
	responseHeaders map[string]ResponseRecord
	urlToFile       map[string]string
	stats           Stats
}

func NewResourceData() *ResourceData {
	return &ResourceData{
		seen:            make(map[string]bool),
		requestHeaders:  make(map[string]RequestRecord),
		responseHeaders: make(map[string]ResponseRecord),
		urlToFile:       make(map[string]string),
	}
}

// MarkSeen records a URL and reports whether it was new.
func (d *ResourceData) MarkSeen(url string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.seen[url] {
		return false
	}
	d.seen[url] = true
	return true
}

func (d *ResourceData) RecordRequest(url string, rec RequestRecord) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.requestHeaders[url] = rec
}

func (d *ResourceData) RecordResponse(url string, rec ResponseRecord) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.responseHeaders[url] = rec
}

func (d *ResourceData) RequestFor(url string) (RequestRecord, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	rec, ok := d.requestHeaders[url]
	return rec, ok
}

// SetFile claims a URL's archive path. It reports false when another
// writer already saved the URL, which is the authoritative signal that
// the payload is on disk.
func (d *ResourceData) SetFile(url, path string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.urlToFile[url]; ok {
		return false
	}
	d.urlToFile[url] = path
	return true
}

func (d *ResourceData) FileFor(url string) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	path, ok := d.urlToFile[url]
	return path, ok
}

// FileCount reports how many distinct URLs landed on disk.
func (d *ResourceData) FileCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.urlToFile)
}

func (d *ResourceData) AddDownload() { d.bump(func(s *Stats) { s.Downloads++ }) }
func (d *ResourceData) AddWarning()  { d.bump(func(s *Stats) { s.Warnings++ }) }
func (d *ResourceData) AddError()    { d.bump(func(s *Stats) { s.Errors++ }) }

func (d *ResourceData) bump(f func(*Stats)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	f(&d.stats)
}

func (d *ResourceData) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats
}

// WriteMetadata flushes the header records to the session directory.
// It runs on every exit path, including after failed navigations.
func (d *ResourceData) WriteMetadata(dir string) error {
	d.mu.Lock()
	requests := make(map[string]RequestRecord, len(d.requestHeaders))
	for k, v := range d.requestHeaders {
		requests[k] = v
	}
	responses := make(map[string]ResponseRecord, len(d.responseHeaders))
	for k, v := range d.responseHeaders {
		responses[k] = v
	}
	d.mu.Unlock()

	if err := writeJSON(filepath.Join(dir, "http_request_headers.json"), requests); err != nil {
		return err
	}
	return writeJSON(filepath.Join(dir, "http_response_headers.json"), responses)
}

func writeJSON(path string, v interface{}) error {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0o644)
}
