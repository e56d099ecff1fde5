package processing

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/systemstart/guidedstats/pkg/api"
)

// DiscoverTemplates finds *.guided.yaml files under root up to maxDepth.
// A maxDepth of -1 means unlimited. 0 means only root itself.
// Results are sorted by path depth (parents before children), then by path.
func DiscoverTemplates(root string, maxDepth int) ([]*api.Template, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving root path: %w", err)
	}

	paths, err := collectTemplatePaths(absRoot, maxDepth)
	if err != nil {
		return nil, err
	}

	slices.SortFunc(paths, func(a, b string) int {
		if d := pathDepth(a) - pathDepth(b); d != 0 {
			return d
		}
		return strings.Compare(a, b)
	})

	return loadAll(absRoot, paths)
}

func collectTemplatePaths(absRoot string, maxDepth int) ([]string, error) {
	matches, err := doublestar.Glob(os.DirFS(absRoot), api.DefaultTemplateInclude)
	if err != nil {
		return nil, fmt.Errorf("glob %q: %w", api.DefaultTemplateInclude, err)
	}

	var paths []string
	for _, m := range matches {
		if maxDepth >= 0 && pathDepth(filepath.Dir(m)) > maxDepth {
			continue
		}
		paths = append(paths, m)
	}
	return paths, nil
}

func loadAll(absRoot string, paths []string) ([]*api.Template, error) {
	templates := make([]*api.Template, 0, len(paths))
	for _, p := range paths {
		t, err := api.LoadTemplate(filepath.Join(absRoot, filepath.FromSlash(p)))
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", p, err)
		}
		templates = append(templates, t)
	}
	return templates, nil
}

func pathDepth(p string) int {
	if p == "." {
		return 0
	}
	return strings.Count(filepath.ToSlash(p), "/") + 1
}
