package spoof

import (
	"embed"
	"fmt"
	"strings"
	"sync"
)

//go:embed js
var templateFS embed.FS

// Templates loads and renders the embedded JS patch files. Raw
// template text is cached after the first read.
type Templates struct {
	mu    sync.Mutex
	cache map[string]string
}

func NewTemplates() *Templates {
	return &Templates{cache: make(map[string]string)}
}

func (t *Templates) load(name string) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if cached, ok := t.cache[name]; ok {
		return cached, nil
	}
	raw, err := templateFS.ReadFile("js/" + name)
	if err != nil {
		return "", fmt.Errorf("spoof: template %s: %w", name, err)
	}
	t.cache[name] = string(raw)
	return string(raw), nil
}

// Render loads a template and substitutes its placeholders. A key
// already in __KEY__ form is used verbatim; any other key is upcased
// and wrapped. Values are inserted as-is, so a gate exporting into a
// string literal must pre-escape. Unknown placeholders are left
// intact for the next render layer.
func (t *Templates) Render(name string, vars map[string]string) (string, error) {
	rendered, err := t.load(name)
	if err != nil {
		return "", err
	}
	for key, value := range vars {
		placeholder := key
		if !strings.HasPrefix(key, "__") || !strings.HasSuffix(key, "__") {
			placeholder = "__" + strings.ToUpper(key) + "__"
		}
		rendered = strings.ReplaceAll(rendered, placeholder, value)
	}
	return rendered, nil
}

// TemplateNames lists the embedded patch files.
func TemplateNames() ([]string, error) {
	entries, err := templateFS.ReadDir("js")
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	return names, nil
}
