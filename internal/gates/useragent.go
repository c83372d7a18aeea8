package gates

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"gatecap/internal/spoof"
	"gatecap/internal/ua"
)

const (
	touchJSMobile  = "Object.defineProperty(window, 'ontouchstart', {value: null});"
	touchJSDesktop = "if ('ontouchstart' in window) {} else Object.defineProperty(window, 'ontouchstart', {value: null});"
)

// UserAgentGate pins the user-agent surface: the UA header itself, the
// static and Accept-CH-driven client hints, the navigator patches and
// the worker-scope injection.
type UserAgentGate struct {
	mu       sync.Mutex
	acceptCH map[string][]string // origin -> requested hint names
}

func NewUserAgentGate() *UserAgentGate {
	return &UserAgentGate{acceptCH: make(map[string][]string)}
}

func (g *UserAgentGate) Name() string { return "UserAgentGate" }

// Handle memoizes Accept-CH grants per origin so later requests to the
// same origin receive the high-entropy hints the server asked for.
func (g *UserAgentGate) Handle(page *rod.Page, plan *spoof.Plan) error {
	if !plan.SpoofUA || !plan.Profile.SupportsHints {
		return nil
	}
	go page.EachEvent(func(e *proto.NetworkResponseReceived) {
		accept := headerValue(e.Response.Headers, "accept-ch")
		if accept == "" {
			return
		}
		hints := make([]string, 0, 4)
		for _, h := range strings.Split(accept, ",") {
			hints = append(hints, strings.ToLower(strings.TrimSpace(h)))
		}
		origin := originOf(e.Response.URL)
		g.mu.Lock()
		g.acceptCH[origin] = hints
		g.mu.Unlock()
	})()
	return nil
}

func headerValue(headers proto.NetworkHeaders, name string) string {
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return v.Str()
		}
	}
	return ""
}

func originOf(url string) string {
	parts := strings.SplitN(url, "/", 4)
	if len(parts) < 3 {
		return url
	}
	return strings.Join(parts[:3], "/")
}

// Headers returns the user-agent header plus the low-entropy hint trio
// every Chromium request carries.
func (g *UserAgentGate) Headers(plan *spoof.Plan) map[string]string {
	if !plan.SpoofUA {
		return nil
	}
	headers := map[string]string{"user-agent": plan.UserAgent}
	if plan.Profile.SupportsHints {
		if secChUA, err := ua.GenerateSecChUA(plan.UserAgent); err == nil {
			headers["sec-ch-ua"] = secChUA
		}
		mobile := "?0"
		if plan.Profile.Mobile {
			mobile = "?1"
		}
		headers["sec-ch-ua-mobile"] = mobile
		headers["sec-ch-ua-platform"] = fmt.Sprintf("%q", plan.Profile.Entropy.Platform)
	}
	return headers
}

// InjectHeaders emits only the high-entropy hints the request's origin
// asked for through Accept-CH.
func (g *UserAgentGate) InjectHeaders(req spoof.RequestInfo, plan *spoof.Plan) map[string]string {
	if !plan.SpoofUA {
		return nil
	}
	g.mu.Lock()
	requested := g.acceptCH[req.Origin()]
	g.mu.Unlock()
	if len(requested) == 0 {
		return nil
	}

	entropy := plan.Profile.Entropy
	headers := make(map[string]string, len(requested))
	for _, hint := range requested {
		switch hint {
		case "sec-ch-ua-model":
			headers[hint] = fmt.Sprintf("%q", entropy.Model)
		case "sec-ch-ua-platform-version":
			headers[hint] = fmt.Sprintf("%q", entropy.PlatformVersion)
		case "sec-ch-ua-full-version":
			headers[hint] = fmt.Sprintf("%q", plan.Profile.EngineFullVersion)
		case "sec-ch-ua-arch":
			headers[hint] = fmt.Sprintf("%q", entropy.Architecture)
		case "sec-ch-ua-bitness":
			headers[hint] = fmt.Sprintf("%q", entropy.Bitness)
		case "sec-ch-ua-wow64":
			if entropy.WOW64 {
				headers[hint] = "?1"
			} else {
				headers[hint] = "?0"
			}
		case "sec-ch-ua-full-version-list":
			if list, err := ua.GenerateSecChUAFullVersionList(plan.UserAgent); err == nil {
				headers[hint] = list
			}
		}
	}
	return headers
}

func (g *UserAgentGate) JSPatches(plan *spoof.Plan) []string {
	if !plan.SpoofUA || plan.StealthDriver() {
		return nil
	}
	if plan.Engine == "chromium" {
		return []string{"spoof_useragent.js", "chromium_stealth.js", "extra_stealth.js"}
	}
	return []string{"fwk_stealth.js", "extra_stealth.js"}
}

func (g *UserAgentGate) TemplateVars(plan *spoof.Plan) map[string]string {
	if !plan.SpoofUA {
		return nil
	}
	profile := plan.Profile
	entropy := profile.Entropy

	langJS, _ := json.Marshal(plan.Languages)

	mobile := "false"
	if profile.Mobile {
		mobile = "true"
	}
	wow64 := "false"
	if entropy.WOW64 {
		wow64 = "true"
	}
	touch := touchJSDesktop
	if profile.Mobile {
		touch = touchJSMobile
	}

	fullVersion := profile.EngineFullVersion
	if fullVersion == "" {
		fullVersion = profile.BrandVersion
	}

	return map[string]string{
		"__USER_AGENT__":       plan.UserAgent,
		"__CHROMIUM_V__":       profile.EngineVersion,
		"__BRAND__":            profile.Brand,
		"__BRAND_V__":          majorOf(profile.BrandVersion),
		"__UA_FULL_VERSION__":  fullVersion,
		"__ARCH__":             orDefault(entropy.Architecture, "x86"),
		"__BITNESS__":          orDefault(entropy.Bitness, "64"),
		"__WOW64__":            wow64,
		"__MODEL__":            entropy.Model,
		"__MOBILE__":           mobile,
		"__PLATFORM__":         ua.JSPlatform(profile.OSFamily, plan.UserAgent),
		"__PLATFORM_VERSION__": orDefault(entropy.PlatformVersion, "15.0"),
		"__TZ__":               plan.TimezoneID,
		"__RAND_MEM__":         fmt.Sprint(plan.Memory),
		"__CORES__":            fmt.Sprint(plan.Cores),
		"__LANG_JS__":          string(langJS),
		"__TOUCH_JS__":         touch,
	}
}

// workerSession addresses CDP calls at an auto-attached worker target
// through the page's connection.
type workerSession struct {
	page *rod.Page
	id   proto.TargetSessionID
}

func (s *workerSession) Call(ctx context.Context, sessionID, method string, params interface{}) ([]byte, error) {
	return s.page.Call(ctx, sessionID, method, params)
}

func (s *workerSession) GetSessionID() proto.TargetSessionID { return s.id }

func (s *workerSession) GetContext() context.Context { return s.page.GetContext() }

// SetupPageHandlers injects the worker-scope patches into every
// dedicated or service worker the page spawns. Init scripts and
// Emulation overrides never reach worker scopes, so each new target is
// patched over its own session before it is resumed.
func (g *UserAgentGate) SetupPageHandlers(page *rod.Page, plan *spoof.Plan) error {
	sources := workerPatchSources(plan)
	if len(sources) == 0 {
		return nil
	}

	err := proto.TargetSetAutoAttach{
		AutoAttach:             true,
		WaitForDebuggerOnStart: true,
		Flatten:                true,
	}.Call(page)
	if err != nil {
		return fmt.Errorf("worker auto-attach: %w", err)
	}

	go page.EachEvent(func(e *proto.TargetAttachedToTarget) {
		session := &workerSession{page: page, id: e.SessionID}
		switch e.TargetInfo.Type {
		case "worker", "service_worker", "shared_worker":
			for _, source := range sources {
				_, _ = proto.RuntimeEvaluate{Expression: source}.Call(session)
			}
		}
		// Every attached target starts paused; resume it whether or
		// not it got the patches.
		_ = proto.RuntimeRunIfWaitingForDebugger{}.Call(session)
	})()
	return nil
}

// workerPatchSources renders what a worker scope needs: the navigator
// patch when the UA is spoofed, and the timezone patch when a country
// pins the zone. Workers run in their own process, so the page-session
// timezone override never reaches them.
func workerPatchSources(plan *spoof.Plan) []string {
	if len(plan.TemplateVars) == 0 {
		return nil
	}
	templates := spoof.NewTemplates()
	var sources []string
	if plan.SpoofUA {
		if source, err := templates.Render("spoof_worker.js", plan.TemplateVars); err == nil {
			sources = append(sources, source)
		}
	}
	if plan.CountryCode != "" {
		if source, err := templates.Render("timezone_spoof.js", plan.TemplateVars); err == nil {
			sources = append(sources, source)
		}
	}
	return sources
}

func majorOf(v string) string {
	if i := strings.IndexByte(v, '.'); i >= 0 {
		return v[:i]
	}
	return v
}

func orDefault(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
