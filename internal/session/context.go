// Package session owns the lifecycle of one capture: launching a
// spoofed browser context, driving the navigation, and flushing every
// artefact the page produced.
package session

import (
	"errors"
	"fmt"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"

	"gatecap/internal/catalog"
	"gatecap/internal/config"
	"gatecap/internal/gates"
	"gatecap/internal/spoof"
)

// ErrContextLaunch marks a failure before any page existed. Nothing
// was captured, so no metadata is written for it.
var ErrContextLaunch = errors.New("session: context launch failed")

// Context bundles one spoofed browser context and its frozen plan.
type Context struct {
	Browser *rod.Browser
	Page    *rod.Page
	Plan    *spoof.Plan
	Manager *spoof.Manager

	launch *launcher.Launcher
}

// NewContext resolves the spoofing plan, launches Chromium, and
// applies the plan to a fresh incognito page. Gate instances are
// created per context; some carry per-origin state.
func NewContext(cfg *config.Config, log *zap.Logger) (*Context, error) {
	plan, err := catalog.Resolve(catalog.ResolveOptions{
		CountryCode:  cfg.Spoof.Country,
		Language:     cfg.Spoof.Language,
		UASelector:   cfg.Spoof.UASelector,
		UAFull:       cfg.Spoof.UAFull,
		DriverEngine: cfg.Spoof.Engine,
		Referrer:     cfg.Spoof.Referrer,
		GatesEnabled: cfg.Spoof.Gates,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrContextLaunch, err)
	}

	l := launcher.New().
		Headless(!cfg.Headful).
		Set("disable-blink-features", "AutomationControlled")
	if cfg.Proxy != "" {
		l = l.Proxy(cfg.Proxy)
	}
	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrContextLaunch, err)
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("%w: %v", ErrContextLaunch, err)
	}

	ctx := &Context{Plan: plan, launch: l}
	if err := ctx.openPage(browser, log); err != nil {
		_ = browser.Close()
		l.Kill()
		return nil, fmt.Errorf("%w: %v", ErrContextLaunch, err)
	}
	return ctx, nil
}

func (c *Context) openPage(browser *rod.Browser, log *zap.Logger) error {
	incognito, err := browser.Incognito()
	if err != nil {
		return err
	}
	c.Browser = incognito

	page, err := incognito.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return err
	}
	c.Page = page

	// Adversarial pages hide behind broken certificates on purpose.
	if err := (proto.SecuritySetIgnoreCertificateErrors{Ignore: true}).Call(page); err != nil {
		return err
	}
	if err := spoof.EmulateContext(page, c.Plan); err != nil {
		return err
	}

	// Patch installation and live handlers happen in the runner after
	// request routing is enabled, so init scripts never run ahead of
	// the interception the first request will pass through.
	c.Manager = spoof.NewManager(log, gates.All())
	return c.Manager.Apply(page, c.Plan)
}

// Close tears down the page, the browser and the launched process.
func (c *Context) Close() {
	if c.Page != nil {
		_ = c.Page.Close()
	}
	if c.Browser != nil {
		_ = c.Browser.Close()
	}
	if c.launch != nil {
		c.launch.Kill()
	}
}
