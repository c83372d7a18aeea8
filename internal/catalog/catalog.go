// Package catalog serves the embedded static datasets behind identity
// resolution: country polygons, IANA zone mappings, the user-agent
// catalog and the base hardware profiles. Each table is parsed once
// and immutable afterwards.
package catalog

import (
	"embed"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"sync"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkt"
	"github.com/paulmach/orb/planar"

	"gatecap/internal/spoof"
)

//go:embed data
var dataFS embed.FS

// BaseProfile is one coherent hardware class. Pools are drawn from at
// resolve time so every session gets a fresh but plausible draw.
type BaseProfile struct {
	ID     string      `json:"id"`
	OS     []string    `json:"os"`
	Mem    []int       `json:"mem"`
	Cores  []int       `json:"cores"`
	Screen [][2]int    `json:"screen"`
	WebGL  [][2]string `json:"webgl"`
}

// HardwareDraw is one concrete sample from a base profile's pools.
type HardwareDraw struct {
	ProfileID     string
	Memory        int
	Cores         int
	ScreenW       int
	ScreenH       int
	WebGLVendor   string
	WebGLRenderer string
}

// Draw samples one value from each pool of the profile.
func (p BaseProfile) Draw() HardwareDraw {
	d := HardwareDraw{ProfileID: p.ID, Memory: 8, Cores: 4, ScreenW: 1280, ScreenH: 720}
	if len(p.Mem) > 0 {
		d.Memory = p.Mem[rand.Intn(len(p.Mem))]
	}
	if len(p.Cores) > 0 {
		d.Cores = p.Cores[rand.Intn(len(p.Cores))]
	}
	if len(p.Screen) > 0 {
		s := p.Screen[rand.Intn(len(p.Screen))]
		d.ScreenW, d.ScreenH = s[0], s[1]
	}
	if len(p.WebGL) > 0 {
		w := p.WebGL[rand.Intn(len(p.WebGL))]
		d.WebGLVendor, d.WebGLRenderer = w[0], w[1]
	} else {
		d.WebGLVendor, d.WebGLRenderer = "Intel", "Intel(R) HD Graphics 530"
	}
	return d
}

var (
	zonesOnce sync.Once
	zonesErr  error
	zones     map[string][]string

	geoOnce sync.Once
	geoErr  error
	geo     map[string][]orb.Polygon

	uasOnce sync.Once
	uasErr  error
	uas     map[string][]string

	profilesOnce sync.Once
	profilesErr  error
	profiles     []BaseProfile
)

func loadZones() (map[string][]string, error) {
	zonesOnce.Do(func() {
		raw, err := dataFS.ReadFile("data/zone.tab")
		if err != nil {
			zonesErr = fmt.Errorf("catalog: read zone.tab: %w", err)
			return
		}
		zones = make(map[string][]string)
		for _, line := range strings.Split(string(raw), "\n") {
			line = strings.TrimSpace(line)
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			parts := strings.SplitN(line, "\t", 4)
			if len(parts) < 3 {
				continue
			}
			cc := strings.ToUpper(parts[0])
			zones[cc] = append(zones[cc], parts[2])
		}
	})
	return zones, zonesErr
}

func loadGeo() (map[string][]orb.Polygon, error) {
	geoOnce.Do(func() {
		f, err := dataFS.Open("data/country_geo.csv")
		if err != nil {
			geoErr = fmt.Errorf("catalog: open country_geo.csv: %w", err)
			return
		}
		defer f.Close()
		records, err := csv.NewReader(f).ReadAll()
		if err != nil {
			geoErr = fmt.Errorf("catalog: parse country_geo.csv: %w", err)
			return
		}
		geo = make(map[string][]orb.Polygon, len(records))
		for i, row := range records {
			if i == 0 || len(row) < 2 {
				continue
			}
			g, err := wkt.Unmarshal(row[1])
			if err != nil {
				geoErr = fmt.Errorf("catalog: bad geometry for %s: %w", row[0], err)
				return
			}
			var polys []orb.Polygon
			switch v := g.(type) {
			case orb.Polygon:
				polys = []orb.Polygon{v}
			case orb.MultiPolygon:
				polys = v
			default:
				geoErr = fmt.Errorf("catalog: unsupported geometry for %s", row[0])
				return
			}
			geo[strings.ToUpper(row[0])] = polys
		}
	})
	return geo, geoErr
}

func loadUAs() (map[string][]string, error) {
	uasOnce.Do(func() {
		raw, err := dataFS.ReadFile("data/user-agents.json")
		if err != nil {
			uasErr = fmt.Errorf("catalog: read user-agents.json: %w", err)
			return
		}
		if err := json.Unmarshal(raw, &uas); err != nil {
			uasErr = fmt.Errorf("catalog: parse user-agents.json: %w", err)
		}
	})
	return uas, uasErr
}

func loadProfiles() ([]BaseProfile, error) {
	profilesOnce.Do(func() {
		raw, err := dataFS.ReadFile("data/base_profiles.json")
		if err != nil {
			profilesErr = fmt.Errorf("catalog: read base_profiles.json: %w", err)
			return
		}
		if err := json.Unmarshal(raw, &profiles); err != nil {
			profilesErr = fmt.Errorf("catalog: parse base_profiles.json: %w", err)
		}
	})
	return profiles, profilesErr
}

// HasCountry reports whether a country code is in the geometry table.
func HasCountry(cc string) bool {
	table, err := loadGeo()
	if err != nil {
		return false
	}
	_, ok := table[strings.ToUpper(cc)]
	return ok
}

// Countries lists the supported country codes, sorted.
func Countries() []string {
	table, err := loadGeo()
	if err != nil {
		return nil
	}
	out := make([]string, 0, len(table))
	for cc := range table {
		out = append(out, cc)
	}
	sort.Strings(out)
	return out
}

// RandomPointIn draws a uniform-ish random point inside the country's
// territory. Multi-part countries are weighted by component area, and
// the point is rejection-sampled inside the chosen component.
func RandomPointIn(cc string) (spoof.Geolocation, error) {
	table, err := loadGeo()
	if err != nil {
		return spoof.Geolocation{}, err
	}
	polys, ok := table[strings.ToUpper(cc)]
	if !ok || len(polys) == 0 {
		return spoof.Geolocation{}, fmt.Errorf("catalog: unknown country code %q", cc)
	}

	total := 0.0
	areas := make([]float64, len(polys))
	for i, p := range polys {
		a := planar.Area(p)
		if a < 0 {
			a = -a
		}
		areas[i] = a
		total += a
	}
	poly := polys[len(polys)-1]
	r := rand.Float64() * total
	for i, a := range areas {
		if r < a {
			poly = polys[i]
			break
		}
		r -= a
	}

	bound := poly.Bound()
	point := bound.Center()
	for i := 0; i < 10000; i++ {
		candidate := orb.Point{
			bound.Min[0] + rand.Float64()*(bound.Max[0]-bound.Min[0]),
			bound.Min[1] + rand.Float64()*(bound.Max[1]-bound.Min[1]),
		}
		if planar.PolygonContains(poly, candidate) {
			point = candidate
			break
		}
	}

	return spoof.Geolocation{
		Latitude:  point[1],
		Longitude: point[0],
		Accuracy:  100 + rand.Float64()*100,
	}, nil
}

// TimezoneFor picks a random IANA zone used in the country, or UTC
// when the country maps no zones.
func TimezoneFor(cc string) string {
	table, err := loadZones()
	if err != nil {
		return "UTC"
	}
	pool, ok := table[strings.ToUpper(cc)]
	if !ok || len(pool) == 0 {
		return "UTC"
	}
	return pool[rand.Intn(len(pool))]
}

// ZonesFor returns every zone mapped to the country.
func ZonesFor(cc string) []string {
	table, err := loadZones()
	if err != nil {
		return nil
	}
	return table[strings.ToUpper(cc)]
}

// ChooseUA picks a random user agent from the "<OS>;;<Browser>"
// catalog category.
func ChooseUA(selector string) (string, error) {
	table, err := loadUAs()
	if err != nil {
		return "", err
	}
	pool, ok := table[selector]
	if !ok || len(pool) == 0 {
		return "", fmt.Errorf("catalog: no user agents for selector %q", selector)
	}
	return pool[rand.Intn(len(pool))], nil
}

// UASelectors lists the catalog categories, sorted.
func UASelectors() []string {
	table, err := loadUAs()
	if err != nil {
		return nil
	}
	out := make([]string, 0, len(table))
	for k := range table {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// SelectBaseProfile picks a random hardware class compatible with the
// OS family. Falls back to the whole table when nothing matches.
func SelectBaseProfile(osFamily string) (BaseProfile, error) {
	all, err := loadProfiles()
	if err != nil {
		return BaseProfile{}, err
	}
	if len(all) == 0 {
		return BaseProfile{}, fmt.Errorf("catalog: base profile table is empty")
	}
	var candidates []BaseProfile
	for _, p := range all {
		for _, os := range p.OS {
			if os == osFamily {
				candidates = append(candidates, p)
				break
			}
		}
	}
	if len(candidates) == 0 {
		candidates = all
	}
	return candidates[rand.Intn(len(candidates))], nil
}
