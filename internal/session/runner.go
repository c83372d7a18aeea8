package session

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"

	"gatecap/internal/capture"
	"gatecap/internal/cdplog"
	"gatecap/internal/config"
	"gatecap/internal/spoof"
)

const (
	// navTimeout bounds a single navigation attempt; the outer run
	// deadline bounds everything after it.
	navTimeout = 40 * time.Second

	// interactiveCeiling bounds a headful dwell that nobody closes.
	interactiveCeiling = 24 * time.Hour
)

// Runner captures URLs one at a time, each in its own browser context.
type Runner struct {
	cfg     *config.Config
	log     *zap.Logger
	baseDir string
}

func NewRunner(cfg *config.Config, log *zap.Logger, runID string) *Runner {
	return &Runner{
		cfg:     cfg,
		log:     log,
		baseDir: filepath.Join(cfg.OutputDir, runID),
	}
}

// Capture archives one URL. Launch failures are the only hard errors;
// everything after the context exists degrades to warnings so the
// artefacts collected so far still get flushed.
func (r *Runner) Capture(ctx context.Context, rawURL string) error {
	outDir := OutputDirFor(rawURL, r.baseDir)
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return err
	}
	log := r.log.With(zap.String("url", rawURL))

	sess, err := NewContext(r.cfg, log)
	if err != nil {
		log.Error("context launch failed", zap.Error(err))
		return err
	}
	defer sess.Close()

	data := capture.NewResourceData()
	transcript := cdplog.New(sess.Page, log)
	transcript.Start()

	interceptor := capture.NewInterceptor(sess.Page, data, log, outDir, func(req spoof.RequestInfo) map[string]string {
		return sess.Manager.HeadersFor(req, sess.Plan)
	})
	if err := interceptor.Enable(); err != nil {
		log.Warn("fetch interception unavailable", zap.Error(err))
		data.AddWarning()
	}

	// Routing is live; now the init scripts can go in.
	sess.Manager.InstallPatches(sess.Page, sess.Plan)
	if err := sess.Manager.SetupPageHandlers(sess.Page, sess.Plan); err != nil {
		log.Warn("page handler setup failed", zap.Error(err))
		data.AddWarning()
	}

	saver := capture.NewSaver(sess.Page, data, log, outDir, cookieHeader(sess.Page))
	go sess.Page.EachEvent(func(e *proto.NetworkResponseReceived) {
		saver.HandleResponse(e)
	})()

	// Safety net for downloads the interceptor never saw: Chromium
	// writes them GUID-named, the tracker renames and records them.
	tracker := capture.NewDownloadTracker(data, outDir)
	_ = proto.BrowserSetDownloadBehavior{
		Behavior:         proto.BrowserSetDownloadBehaviorBehaviorAllowAndName,
		BrowserContextID: sess.Browser.BrowserContextID,
		DownloadPath:     filepath.Join(outDir, "downloads"),
		EventsEnabled:    true,
	}.Call(sess.Browser)
	go sess.Browser.EachEvent(
		func(e *proto.BrowserDownloadWillBegin) {
			tracker.Begin(e.GUID, e.URL, e.SuggestedFilename)
		},
		func(e *proto.BrowserDownloadProgress) {
			switch e.State {
			case proto.BrowserDownloadProgressStateCompleted:
				target, err := tracker.Complete(e.GUID)
				if err != nil {
					log.Warn("driver download save failed", zap.Error(err))
					data.AddError()
				} else if target != "" {
					log.Info("[DOWNLOAD] saved", zap.String("file", target))
				}
			case proto.BrowserDownloadProgressStateCanceled:
				tracker.Cancel(e.GUID)
			}
		},
	)()

	outer, cancel := context.WithTimeout(ctx, r.cfg.Timeout())
	defer cancel()
	defer r.flush(sess.Page, data, transcript, outDir, rawURL)

	if !r.navigate(outer, sess.Page, rawURL, data, log) {
		return nil
	}

	// Artefact calls run against the deadline-bound page so a wedged
	// renderer cannot stall past timeout_sec and defer the flush.
	page := deadlineBound(sess.Page, outer)
	if r.cfg.Headful {
		r.dwell(outer, page, log)
		return nil
	}
	r.savePageHTML(page, outDir, data, log)
	r.screenshot(page, outDir, data, log)
	return nil
}

func deadlineBound(page *rod.Page, ctx context.Context) *rod.Page {
	return page.Context(ctx)
}

// savePageHTML snapshots the final DOM, which often differs from the
// served document once the gating scripts have run.
func (r *Runner) savePageHTML(page *rod.Page, outDir string, data *capture.ResourceData, log *zap.Logger) {
	html, err := page.HTML()
	if err != nil {
		log.Warn("page HTML snapshot failed", zap.Error(err))
		data.AddWarning()
		return
	}
	if err := os.WriteFile(filepath.Join(outDir, "page.html"), []byte(html), 0o644); err != nil {
		log.Warn("page HTML write failed", zap.Error(err))
		data.AddWarning()
	}
}

// navigate drives one guarded navigation and classifies the outcome.
// It reports whether the page is worth screenshotting afterwards.
func (r *Runner) navigate(ctx context.Context, page *rod.Page, rawURL string, data *capture.ResourceData, log *zap.Logger) bool {
	err := navigateOnce(ctx, page, rawURL)
	if err != nil && isTLSError(err) {
		log.Info("[INFO] certificate error, retrying once", zap.Error(err))
		err = navigateOnce(ctx, page, rawURL)
	}

	switch {
	case err == nil:
		return true
	case isAborted(err):
		// Downloads abort their own navigation; the capture goes on.
		log.Info("[ABORT] navigation aborted by the page")
		return true
	case errors.Is(err, context.DeadlineExceeded):
		log.Warn("[TIMEOUT] navigation deadline reached")
		data.AddWarning()
		return true
	default:
		log.Error("navigation failed", zap.Error(err))
		data.AddError()
		return false
	}
}

func navigateOnce(ctx context.Context, page *rod.Page, rawURL string) error {
	p := page.Context(ctx).Timeout(navTimeout)
	wait := p.WaitNavigation(proto.PageLifecycleEventNameDOMContentLoaded)
	if err := p.Navigate(rawURL); err != nil {
		return err
	}
	wait()
	return p.GetContext().Err()
}

func (r *Runner) screenshot(page *rod.Page, outDir string, data *capture.ResourceData, log *zap.Logger) {
	bin, err := page.Screenshot(true, nil)
	if err != nil {
		log.Warn("screenshot failed", zap.Error(err))
		data.AddWarning()
		return
	}
	if err := os.WriteFile(filepath.Join(outDir, "screenshot.png"), bin, 0o644); err != nil {
		log.Warn("screenshot write failed", zap.Error(err))
		data.AddWarning()
	}
}

// dwell keeps a headful session open until the operator closes the
// tab or the ceiling expires.
func (r *Runner) dwell(ctx context.Context, page *rod.Page, log *zap.Logger) {
	log.Info("interactive session, waiting for tab close")
	bounded, cancel := context.WithTimeout(ctx, interactiveCeiling)
	defer cancel()

	tick := time.NewTicker(time.Second)
	defer tick.Stop()
	for {
		select {
		case <-bounded.Done():
			return
		case <-tick.C:
			if _, err := page.Info(); err != nil {
				return
			}
		}
	}
}

// flush runs on every exit path so a crashed or timed-out session
// still leaves its metadata behind.
func (r *Runner) flush(page *rod.Page, data *capture.ResourceData, transcript *cdplog.Logger, outDir, rawURL string) {
	if err := data.WriteMetadata(outDir); err != nil {
		r.log.Warn("metadata flush failed", zap.String("url", rawURL), zap.Error(err))
	}
	writeCookies(page, outDir, r.log, data)
	if err := transcript.Dump(outDir); err != nil {
		r.log.Warn("transcript flush failed", zap.String("url", rawURL), zap.Error(err))
	}

	st := data.Stats()
	r.log.Info("[STATS]",
		zap.String("url", rawURL),
		zap.Int("files", data.FileCount()),
		zap.Int("downloads", st.Downloads),
		zap.Int("warnings", st.Warnings),
		zap.Int("errors", st.Errors))
}

// writeCookies always produces cookies.json; a collection failure
// degrades to an empty array.
func writeCookies(page *rod.Page, outDir string, log *zap.Logger, data *capture.ResourceData) {
	raw := []byte("[]")
	if cookies, err := page.Cookies(nil); err == nil {
		if enc, err := json.MarshalIndent(cookies, "", "  "); err == nil {
			raw = enc
		}
	} else {
		log.Warn("cookie collection failed", zap.Error(err))
		data.AddWarning()
	}
	_ = os.WriteFile(filepath.Join(outDir, "cookies.json"), raw, 0o644)
}

// cookieHeader renders the page's cookies for replay requests.
func cookieHeader(page *rod.Page) func(string) string {
	return func(u string) string {
		cookies, err := page.Cookies([]string{u})
		if err != nil {
			return ""
		}
		parts := make([]string, 0, len(cookies))
		for _, c := range cookies {
			parts = append(parts, c.Name+"="+c.Value)
		}
		return strings.Join(parts, "; ")
	}
}

func isAborted(err error) bool {
	return err != nil && strings.Contains(err.Error(), "ERR_ABORTED")
}

func isTLSError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "ERR_CERT") || strings.Contains(msg, "SSL")
}
