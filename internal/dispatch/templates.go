package dispatch

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Template is one notification kind's presentation.
type Template struct {
	Title string `yaml:"title"`
	Tag   string `yaml:"tag,omitempty"`
	URL   string `yaml:"url,omitempty"`
}

// Templates maps a notification kind ("test", "assignment", "message", ...)
// to its presentation. Unknown kinds fall back to the "default" entry.
type Templates struct {
	byKind map[string]Template
}

// defaultTemplates covers operation without a templates file.
var defaultTemplates = map[string]Template{
	"default": {Title: "Notification"},
	"test":    {Title: "Test Notification", Tag: "pushgate-test"},
}

// LoadTemplates reads the templates file. A missing file yields the built-in
// defaults; a malformed file is an error.
func LoadTemplates(path string) (*Templates, error) {
	byKind := make(map[string]Template, len(defaultTemplates))
	for kind, tpl := range defaultTemplates {
		byKind[kind] = tpl
	}

	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &Templates{byKind: byKind}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read templates file: %w", err)
	}

	var loaded map[string]Template
	if err := yaml.Unmarshal(raw, &loaded); err != nil {
		return nil, fmt.Errorf("parse templates file %s: %w", path, err)
	}
	for kind, tpl := range loaded {
		byKind[kind] = tpl
	}
	return &Templates{byKind: byKind}, nil
}

// Resolve returns the template for a kind, falling back to "default".
func (t *Templates) Resolve(kind string) Template {
	if tpl, ok := t.byKind[kind]; ok {
		return tpl
	}
	return t.byKind["default"]
}
