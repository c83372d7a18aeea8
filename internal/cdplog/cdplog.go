// Package cdplog records a DevTools-level transcript of a session:
// navigation and redirect steps, every outgoing request with its POST
// body, and previews of scripts the page conjured out of thin air.
// Gating chains live in exactly those three places.
package cdplog

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"
)

const scriptPreviewLen = 200

// RedirectStep is one hop of the navigation chain, tagged before or
// after the commit.
type RedirectStep struct {
	Phase    string    `json:"phase"` // requested or committed
	FrameID  string    `json:"frame_id"`
	LoaderID string    `json:"loader_id,omitempty"`
	URL      string    `json:"url"`
	Reason   string    `json:"reason,omitempty"`
	Observed time.Time `json:"observed"`
}

// RequestStep is one outgoing request.
type RequestStep struct {
	URL       string    `json:"url"`
	Method    string    `json:"method"`
	PostData  string    `json:"post_data,omitempty"`
	Initiator string    `json:"initiator,omitempty"`
	Observed  time.Time `json:"observed"`
}

// ScriptStep previews a script with no source URL, the signature of
// eval'd or document.write'd code.
type ScriptStep struct {
	ScriptID string `json:"script_id"`
	Preview  string `json:"preview"`
	Length   int    `json:"length"`
}

// Logger accumulates the transcript for one page.
type Logger struct {
	mu        sync.Mutex
	page      *rod.Page
	log       *zap.Logger
	redirects []RedirectStep
	requests  []RequestStep
	scripts   []ScriptStep
}

func New(page *rod.Page, log *zap.Logger) *Logger {
	return &Logger{page: page, log: log}
}

// Start subscribes the transcript streams. EachEvent enables the
// Page, Network and Debugger domains on its own.
func (l *Logger) Start() {
	go l.page.EachEvent(
		func(e *proto.PageFrameRequestedNavigation) {
			l.mu.Lock()
			l.redirects = append(l.redirects, RedirectStep{
				Phase:    "requested",
				FrameID:  string(e.FrameID),
				URL:      e.URL,
				Reason:   string(e.Reason),
				Observed: time.Now().UTC(),
			})
			l.mu.Unlock()
		},
		func(e *proto.PageFrameNavigated) {
			l.mu.Lock()
			l.redirects = append(l.redirects, RedirectStep{
				Phase:    "committed",
				FrameID:  string(e.Frame.ID),
				LoaderID: string(e.Frame.LoaderID),
				URL:      e.Frame.URL,
				Observed: time.Now().UTC(),
			})
			l.mu.Unlock()
		},
		func(e *proto.NetworkRequestWillBeSent) {
			step := RequestStep{
				URL:      e.Request.URL,
				Method:   e.Request.Method,
				Observed: time.Now().UTC(),
			}
			if e.Initiator != nil {
				step.Initiator = string(e.Initiator.Type)
			}
			if e.Request.HasPostData {
				if body, err := (proto.NetworkGetRequestPostData{RequestID: e.RequestID}).Call(l.page); err == nil {
					step.PostData = body.PostData
				}
			}
			l.mu.Lock()
			l.requests = append(l.requests, step)
			l.mu.Unlock()
		},
		func(e *proto.DebuggerScriptParsed) {
			if e.URL != "" {
				return
			}
			step := ScriptStep{ScriptID: string(e.ScriptID)}
			if src, err := (proto.DebuggerGetScriptSource{ScriptID: e.ScriptID}).Call(l.page); err == nil {
				step.Length = len(src.ScriptSource)
				preview := src.ScriptSource
				if len(preview) > scriptPreviewLen {
					preview = preview[:scriptPreviewLen]
				}
				step.Preview = preview
			}
			l.mu.Lock()
			l.scripts = append(l.scripts, step)
			l.mu.Unlock()
		},
	)()
}

type transcript struct {
	Metadata struct {
		Redirects   int    `json:"redirects"`
		Requests    int    `json:"requests"`
		EvalScripts int    `json:"eval_scripts"`
		PageURL     string `json:"page_url"`
	} `json:"metadata"`
	Redirects []RedirectStep `json:"redirects"`
	Requests  []RequestStep  `json:"requests"`
	Scripts   []ScriptStep   `json:"eval_scripts"`
}

// Dump writes cdp_log.json into the session directory. The final page
// URL reads "<closed>" when the page is already gone.
func (l *Logger) Dump(dir string) error {
	l.mu.Lock()
	out := transcript{
		Redirects: append([]RedirectStep(nil), l.redirects...),
		Requests:  append([]RequestStep(nil), l.requests...),
		Scripts:   append([]ScriptStep(nil), l.scripts...),
	}
	l.mu.Unlock()

	out.Metadata.Redirects = len(out.Redirects)
	out.Metadata.Requests = len(out.Requests)
	out.Metadata.EvalScripts = len(out.Scripts)
	out.Metadata.PageURL = "<closed>"
	if l.page != nil {
		if info, err := l.page.Info(); err == nil {
			out.Metadata.PageURL = info.URL
		}
	}

	raw, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return err
	}
	path := filepath.Join(dir, "cdp_log.json")
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return err
	}
	l.log.Debug("cdp transcript written",
		zap.Int("redirects", out.Metadata.Redirects),
		zap.Int("requests", out.Metadata.Requests),
		zap.Int("eval_scripts", out.Metadata.EvalScripts))
	return nil
}
