package processing

import (
	"bytes"
	"fmt"
	"maps"
	"os"
	"strings"
	"text/template"

	"github.com/Masterminds/sprig/v3"
	"gopkg.in/yaml.v3"

	"github.com/systemstart/guidedstats/pkg/api"
)

// LoadContextFile reads a YAML file and returns it as a map.
func LoadContextFile(filename string) (map[string]any, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("reading context file: %w", err)
	}

	var ctx map[string]any
	if err := yaml.Unmarshal(data, &ctx); err != nil {
		return nil, fmt.Errorf("parsing context file: %w", err)
	}

	if ctx == nil {
		ctx = make(map[string]any)
	}

	return ctx, nil
}

// MergeContext performs a shallow merge of local context over global context.
// Local keys override global keys at the top level.
func MergeContext(global, local map[string]any) map[string]any {
	merged := make(map[string]any, len(global)+len(local))
	maps.Copy(merged, global)
	maps.Copy(merged, local)
	return merged
}

// InterpolateScript expands template expressions in the path-like fields of
// s (template, data, datasetName and import actions) against ctx, so one
// script can be pointed at different data with a context file.
func InterpolateScript(s *api.Script, ctx map[string]any) error {
	fields := []*string{&s.Template, &s.Data, &s.DatasetName}
	for i := range s.Actions {
		fields = append(fields, &s.Actions[i].Import)
	}
	for _, f := range fields {
		out, err := interpolate(*f, ctx)
		if err != nil {
			return err
		}
		*f = out
	}
	return nil
}

func interpolate(text string, ctx map[string]any) (string, error) {
	if !strings.Contains(text, "{{") {
		return text, nil
	}
	tmpl, err := template.New("script").Funcs(sprig.FuncMap()).Option("missingkey=error").Parse(text)
	if err != nil {
		return "", fmt.Errorf("parsing %q: %w", text, err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, ctx); err != nil {
		return "", fmt.Errorf("expanding %q: %w", text, err)
	}
	return buf.String(), nil
}
