package spoof

import (
	"strings"

	"github.com/go-rod/rod"
)

// RequestInfo describes one intercepted request at the moment header
// injection runs.
type RequestInfo struct {
	URL     string
	Method  string
	Headers map[string]string
}

// Origin returns the scheme://host[:port] prefix of the request URL,
// the key under which Accept-CH grants are memoized.
func (r RequestInfo) Origin() string {
	parts := strings.SplitN(r.URL, "/", 4)
	if len(parts) < 3 {
		return r.URL
	}
	return strings.Join(parts[:3], "/")
}

// Gate is one spoofing policy module. Implementations must be
// idempotent: running a gate twice against the same plan yields the
// same headers, patches and template variables.
type Gate interface {
	Name() string

	// Handle performs per-page setup (event subscriptions, CDP
	// overrides) before navigation.
	Handle(page *rod.Page, plan *Plan) error

	// Headers returns static headers applied to every request.
	Headers(plan *Plan) map[string]string

	// JSPatches names the template files to install for this plan.
	JSPatches(plan *Plan) []string

	// TemplateVars returns the variables this gate exports into the
	// shared template namespace.
	TemplateVars(plan *Plan) map[string]string
}

// HeaderInjector is implemented by gates that add per-request headers
// that depend on the request itself.
type HeaderInjector interface {
	InjectHeaders(req RequestInfo, plan *Plan) map[string]string
}

// PageHandlerGate is implemented by gates that need hooks on the live
// page after patch installation, such as worker injection.
type PageHandlerGate interface {
	SetupPageHandlers(page *rod.Page, plan *Plan) error
}
