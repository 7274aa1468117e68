package templates

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"exampaper-rag/internal/apperr"
)

//go:embed builtin/*.yaml
var builtinFS embed.FS

// Registry is the immutable set of templates known at startup
type Registry struct {
	templates map[string]*Template
}

// NewRegistry loads the builtin templates and, when dir is not empty, every
// *.yaml file in dir. A file may replace a builtin by reusing its id.
func NewRegistry(dir string) (*Registry, error) {
	r := &Registry{templates: make(map[string]*Template)}
	if err := r.loadFS(builtinFS, "builtin"); err != nil {
		return nil, err
	}
	if dir != "" {
		if _, err := os.Stat(dir); err != nil {
			return nil, fmt.Errorf("failed to open template dir: %w", err)
		}
		if err := r.loadFS(os.DirFS(dir), "."); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Registry) loadFS(fsys fs.FS, root string) error {
	matches, err := fs.Glob(fsys, filepath.ToSlash(filepath.Join(root, "*.yaml")))
	if err != nil {
		return fmt.Errorf("failed to list templates: %w", err)
	}
	sort.Strings(matches)
	for _, name := range matches {
		data, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("failed to read template %s: %w", name, err)
		}
		tpl, err := Parse(data)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		r.templates[tpl.ID] = tpl
	}
	return nil
}

// Parse decodes and checks a single YAML template
func Parse(data []byte) (*Template, error) {
	var tpl Template
	if err := yaml.Unmarshal(data, &tpl); err != nil {
		return nil, fmt.Errorf("failed to parse template: %w", err)
	}
	if err := tpl.compile(); err != nil {
		return nil, err
	}
	return &tpl, nil
}

// Get returns the template with the given id
func (r *Registry) Get(id string) (*Template, error) {
	tpl, ok := r.templates[id]
	if !ok {
		return nil, apperr.Errorf(apperr.TemplateNotFound, "template %q not found", id)
	}
	return tpl, nil
}

// IDs lists the registered template ids in sorted order
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.templates))
	for id := range r.templates {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
