package prompt

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"text/template"
)

// DefaultTemplateName is the fallback the library degrades to when a trader
// requests a named template that is not present on disk (§4.F).
const DefaultTemplateName = "default"

// Library loads a directory of plain-text prompt templates addressable by
// name. Every file `<name>.txt` under dir becomes the template named `name`;
// a `default.txt` file is required.
type Library struct {
	dir   string
	funcs template.FuncMap

	mu        sync.RWMutex
	templates map[string]*Template
}

// NewLibrary scans dir for `*.txt` templates and loads them eagerly, failing
// if no `default` template is present.
func NewLibrary(dir string, funcs template.FuncMap) (*Library, error) {
	lib := &Library{dir: dir, funcs: funcs, templates: make(map[string]*Template)}
	if err := lib.reload(); err != nil {
		return nil, err
	}
	if _, ok := lib.templates[DefaultTemplateName]; !ok {
		return nil, fmt.Errorf("prompt library %q: missing required %q template", dir, DefaultTemplateName)
	}
	return lib, nil
}

func (l *Library) reload() error {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return fmt.Errorf("prompt library: read dir %q: %w", l.dir, err)
	}

	l.mu.RLock()
	existing := l.templates
	l.mu.RUnlock()

	loaded := make(map[string]*Template, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".txt") {
			continue
		}
		name := strings.TrimSuffix(entry.Name(), ".txt")
		if tpl, ok := existing[name]; ok {
			if _, err := tpl.ReloadIfChanged(); err != nil {
				return fmt.Errorf("prompt library: reload %q: %w", name, err)
			}
			loaded[name] = tpl
			continue
		}
		tpl, err := NewTemplate(filepath.Join(l.dir, entry.Name()), l.funcs)
		if err != nil {
			return fmt.Errorf("prompt library: load %q: %w", name, err)
		}
		loaded[name] = tpl
	}
	l.mu.Lock()
	l.templates = loaded
	l.mu.Unlock()
	return nil
}

// Reload re-scans the directory, picking up added/changed/removed templates.
func (l *Library) Reload() error { return l.reload() }

// Get returns the template registered under name, degrading to the default
// template (and reporting degraded=true) when name is absent.
func (l *Library) Get(name string) (tpl *Template, degraded bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if name != "" {
		if t, ok := l.templates[name]; ok {
			return t, false
		}
	}
	return l.templates[DefaultTemplateName], true
}

// Render looks up name (degrading to default) and renders it with data.
func (l *Library) Render(name string, data any) (string, bool, error) {
	tpl, degraded := l.Get(name)
	if tpl == nil {
		return "", degraded, fmt.Errorf("prompt library: no %q template available", DefaultTemplateName)
	}
	out, err := tpl.Render(data)
	return out, degraded, err
}
