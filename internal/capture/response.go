package capture

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"
)

// ErrBodyUnavailable means the renderer evicted the body before we
// asked for it; the saver falls back to an HTTP replay.
var ErrBodyUnavailable = errors.New("capture: response body unavailable")

const replayChunkSize = 65536

var replayClient = &http.Client{
	Timeout: 30 * time.Second,
	CheckRedirect: func(req *http.Request, via []*http.Request) error {
		return http.ErrUseLastResponse
	},
}

// Saver persists resource bodies observed through Network events.
type Saver struct {
	page   *rod.Page
	data   *ResourceData
	log    *zap.Logger
	outDir string

	// cookieHeader supplies the session cookies for replay fetches.
	cookieHeader func(url string) string
}

func NewSaver(page *rod.Page, data *ResourceData, log *zap.Logger, outDir string, cookieHeader func(string) string) *Saver {
	if cookieHeader == nil {
		cookieHeader = func(string) string { return "" }
	}
	return &Saver{page: page, data: data, log: log, outDir: outDir, cookieHeader: cookieHeader}
}

// HandleResponse archives one response: headers always, the body when
// the type is recognized and nothing saved this URL yet. Redirects
// carry no body and are skipped.
func (s *Saver) HandleResponse(e *proto.NetworkResponseReceived) {
	resp := e.Response
	headers := flattenHeaders(resp.Headers)
	s.data.RecordResponse(resp.URL, ResponseRecord{Status: resp.Status, Headers: headers})

	if resp.Status >= 300 && resp.Status < 400 {
		return
	}
	if _, saved := s.data.FileFor(resp.URL); saved {
		return
	}
	if !s.data.MarkSeen(resp.URL) {
		return
	}

	dir := DirFor(e.Type)
	name := FilenameFor(resp.URL, headerGet(headers, "content-type"), headerGet(headers, "content-disposition"))
	target := DedupPath(filepath.Join(s.outDir, dir, name))
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		s.log.Warn("[RESOURCE] mkdir failed", zap.String("dir", dir), zap.Error(err))
		s.data.AddWarning()
		return
	}

	if err := s.saveBody(e.RequestID, resp.URL, target); err != nil {
		if errors.Is(err, ErrBodyUnavailable) {
			if err := s.replay(resp.URL, target); err != nil {
				s.log.Warn("[RESOURCE] replay failed", zap.String("url", resp.URL), zap.Error(err))
				s.data.AddWarning()
				return
			}
		} else {
			s.log.Warn("[RESOURCE] save failed", zap.String("url", resp.URL), zap.Error(err))
			s.data.AddWarning()
			return
		}
	}

	s.data.SetFile(resp.URL, target)
	s.log.Debug("[RESOURCE] saved", zap.String("url", resp.URL), zap.String("file", target))
}

func (s *Saver) saveBody(id proto.NetworkRequestID, url, target string) error {
	result, err := proto.NetworkGetResponseBody{RequestID: id}.Call(s.page)
	if err != nil || result == nil || result.Body == "" {
		return ErrBodyUnavailable
	}
	body := []byte(result.Body)
	if result.Base64Encoded {
		body, err = base64.StdEncoding.DecodeString(result.Body)
		if err != nil {
			return fmt.Errorf("decode body for %s: %w", url, err)
		}
	}
	return os.WriteFile(target, body, 0o644)
}

// replay refetches a resource over plain HTTP with the recorded
// request identity, headers and body, when the renderer no longer
// holds the response.
func (s *Saver) replay(url, target string) error {
	rec, _ := s.data.RequestFor(url)
	method := rec.Method
	if method == "" {
		method = http.MethodGet
	}
	var body io.Reader
	if rec.Body != "" {
		body = strings.NewReader(rec.Body)
	}

	ctx, cancel := context.WithTimeout(s.context(), 30*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return err
	}
	for k, v := range rec.Headers {
		if strings.EqualFold(k, "content-length") {
			continue
		}
		req.Header.Set(k, v)
	}
	if cookie := s.cookieHeader(url); cookie != "" {
		req.Header.Set("cookie", cookie)
	}

	resp, err := replayClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("replay %s: status %d", url, resp.StatusCode)
	}

	out, err := os.Create(target)
	if err != nil {
		return err
	}
	defer out.Close()
	buf := make([]byte, replayChunkSize)
	if _, err := io.CopyBuffer(out, resp.Body, buf); err != nil {
		return err
	}
	return nil
}

func (s *Saver) context() context.Context {
	if s.page != nil {
		return s.page.GetContext()
	}
	return context.Background()
}

func flattenHeaders(h proto.NetworkHeaders) map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		out[k] = v.Str()
	}
	return out
}

func headerGet(headers map[string]string, name string) string {
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}
