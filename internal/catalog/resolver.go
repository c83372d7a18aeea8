package catalog

import (
	"strings"

	"gatecap/internal/spoof"
	"gatecap/internal/ua"
)

// defaultUA backs sessions that spoof nothing; the real browser UA is
// close enough that no override is installed for it.
const defaultUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
	"(KHTML, like Gecko) Chrome/125.0.0.0 Safari/537.36"

// ResolveOptions are the user-facing spoofing knobs before resolution.
type ResolveOptions struct {
	CountryCode  string
	Language     string
	UASelector   string // "<OS>;;<Browser>" catalog category
	UAFull       string // literal UA, bypasses the catalog
	DriverEngine string // auto, standard or stealth
	Referrer     string
	GatesEnabled map[string]bool
}

// Resolve turns the configured knobs into a frozen spoofing plan:
// country becomes a concrete coordinate and timezone, the UA selector
// becomes a concrete user agent, and the UA drives the hardware draw.
// Resolution is randomized per call so repeated captures of the same
// target do not share a fingerprint.
func Resolve(opts ResolveOptions) (*spoof.Plan, error) {
	plan := &spoof.Plan{
		DriverEngine: opts.DriverEngine,
		Referrer:     opts.Referrer,
		GatesEnabled: opts.GatesEnabled,
		TimezoneID:   "UTC",
	}
	if plan.DriverEngine == "" {
		plan.DriverEngine = "auto"
	}

	uaStr := strings.TrimSpace(opts.UAFull)
	if uaStr == "" && opts.UASelector != "" {
		chosen, err := ChooseUA(opts.UASelector)
		if err != nil {
			return nil, err
		}
		uaStr = chosen
	}
	plan.SpoofUA = uaStr != ""
	if uaStr == "" {
		uaStr = defaultUA
	}
	plan.UserAgent = uaStr
	plan.Profile = ua.Parse(uaStr)
	if plan.SpoofUA {
		plan.Engine = ua.DetectEngine(uaStr)
	} else {
		plan.Engine = "chromium"
	}

	if opts.Language != "" {
		plan.AcceptLanguage = opts.Language
		primary := strings.TrimSpace(strings.SplitN(opts.Language, ",", 2)[0])
		plan.Locale = primary
		plan.Languages = []string{primary}
		if base, _, found := strings.Cut(primary, "-"); found {
			plan.Languages = append(plan.Languages, base)
		}
	} else {
		plan.Locale = "en-US"
		plan.Languages = []string{"en-US", "en"}
	}

	if opts.CountryCode != "" {
		cc := strings.ToUpper(opts.CountryCode)
		point, err := RandomPointIn(cc)
		if err != nil {
			return nil, err
		}
		plan.CountryCode = cc
		plan.Geolocation = &point
		plan.TimezoneID = TimezoneFor(cc)
	}

	if plan.SpoofUA {
		base, err := SelectBaseProfile(plan.Profile.OSFamily)
		if err != nil {
			return nil, err
		}
		draw := base.Draw()
		plan.BaseProfileID = draw.ProfileID
		plan.Memory = draw.Memory
		plan.Cores = draw.Cores
		plan.ScreenW = draw.ScreenW
		plan.ScreenH = draw.ScreenH
		plan.WebGLVendor = draw.WebGLVendor
		plan.WebGLRenderer = draw.WebGLRenderer
		plan.ConnectionProfile = draw.ProfileID
	} else {
		plan.Memory = 8
		plan.Cores = 4
		plan.ScreenW, plan.ScreenH = 1280, 720
		plan.WebGLVendor, plan.WebGLRenderer = "Intel", "Intel(R) HD Graphics 530"
		plan.ConnectionProfile = "wifi"
	}

	return plan, nil
}
