// Package export renders the text a user takes away from a session: the
// notebook code equivalent to each step, suggestion snippets and reports.
package export

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"text/template"

	"github.com/Masterminds/sprig/v3"
)

// ErrUnknownTemplate is returned when no template exists for a name.
var ErrUnknownTemplate = errors.New("unknown export template")

// WorkflowVariable is the notebook variable bound to the workflow in
// generated snippets.
const WorkflowVariable = "gs"

//go:embed templates/*.tmpl
var templateFS embed.FS

var templates = template.Must(
	template.New("export").Funcs(sprig.TxtFuncMap()).Funcs(template.FuncMap{
		"pylist": pyList,
		"pystr":  strconv.Quote,
		"pyfunc": pyTransform,
		"pybool": pyBool,
	}).ParseFS(templateFS, "templates/*.tmpl"),
)

// Render executes the named template (without the .tmpl suffix).
func Render(name string, data any) (string, error) {
	tmpl := templates.Lookup(name + ".tmpl")
	if tmpl == nil {
		return "", fmt.Errorf("%w: %q", ErrUnknownTemplate, name)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("executing template %q: %w", name, err)
	}
	return strings.TrimSpace(buf.String()) + "\n", nil
}

// Has reports whether a template with the given name exists.
func Has(name string) bool {
	return templates.Lookup(name+".tmpl") != nil
}

func pyList(items any) string {
	var parts []string
	switch t := items.(type) {
	case []string:
		for _, s := range t {
			parts = append(parts, strconv.Quote(s))
		}
	case []any:
		for _, v := range t {
			if s, ok := v.(string); ok {
				parts = append(parts, strconv.Quote(s))
			} else {
				parts = append(parts, fmt.Sprint(v))
			}
		}
	default:
		return fmt.Sprint(items)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func pyBool(b bool) string {
	if b {
		return "True"
	}
	return "False"
}

var pyTransforms = map[string]string{
	"log":    "np.log",
	"log1p":  "np.log1p",
	"sqrt":   "np.sqrt",
	"zscore": "lambda s: (s - s.mean()) / s.std()",
}

func pyTransform(name string) string {
	if f, ok := pyTransforms[name]; ok {
		return f
	}
	return name
}
