package api

import (
	"embed"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed templates/*.yaml
var builtinFS embed.FS

// LoadTemplate reads a .guided.yaml file, sets FilePath, and validates it.
func LoadTemplate(filename string) (*Template, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("reading template file: %w", err)
	}

	t, err := ParseTemplate(data)
	if err != nil {
		return nil, fmt.Errorf("template %s: %w", filename, err)
	}

	absPath, err := filepath.Abs(filename)
	if err != nil {
		return nil, fmt.Errorf("resolving absolute path: %w", err)
	}
	t.FilePath = absPath
	return t, nil
}

// ParseTemplate unmarshals and validates a template document.
func ParseTemplate(data []byte) (*Template, error) {
	var t Template
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parsing template: %w", err)
	}
	if err := t.Validate(); err != nil {
		return nil, fmt.Errorf("validating template: %w", err)
	}
	return &t, nil
}

// BuiltinTemplate returns one of the templates shipped with the binary,
// e.g. "linear-regression" or "t-test".
func BuiltinTemplate(name string) (*Template, error) {
	data, err := builtinFS.ReadFile(path.Join("templates", name+".yaml"))
	if err != nil {
		return nil, fmt.Errorf("unknown built-in template %q (available: %s)", name, strings.Join(BuiltinTemplates(), ", "))
	}
	return ParseTemplate(data)
}

// BuiltinTemplates lists the names of the shipped templates.
func BuiltinTemplates() []string {
	entries, err := builtinFS.ReadDir("templates")
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, strings.TrimSuffix(e.Name(), ".yaml"))
	}
	slices.Sort(names)
	return names
}

// ResolveTemplate accepts either a built-in template name or a file path.
func ResolveTemplate(ref string) (*Template, error) {
	if slices.Contains(BuiltinTemplates(), ref) {
		return BuiltinTemplate(ref)
	}
	return LoadTemplate(ref)
}
