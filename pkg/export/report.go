package export

import (
	"fmt"
	"strings"

	"github.com/systemstart/guidedstats/pkg/stats"
)

type reportTerm struct {
	Name         string
	Coef, SE     float64
	Lower, Upper float64
	PText        string
	Significant  bool
}

// Report writes an APA-style summary of fitted model results.
func Report(res *stats.Results) (string, error) {
	switch res.Model {
	case stats.ModelOLS:
		return regressionReport(res)
	case stats.ModelRidge, stats.ModelLasso:
		return Render("penalized_report", map[string]any{
			"model":    res.Model,
			"alpha":    res.Stats["alpha"],
			"rsquared": res.Stats["rsquared"],
			"terms":    slopes(res.Terms),
		})
	case stats.ModelTTest:
		return ttestReport(res)
	}
	return "", fmt.Errorf("%w: no report for model %q", ErrUnknownTemplate, res.Model)
}

func slopes(terms []stats.Term) []stats.Term {
	out := make([]stats.Term, 0, len(terms))
	for _, t := range terms {
		if t.Name != "const" {
			out = append(out, t)
		}
	}
	return out
}

func regressionReport(res *stats.Results) (string, error) {
	var terms []reportTerm
	for _, t := range slopes(res.Terms) {
		rt := reportTerm{Name: t.Name, Coef: t.Coef}
		if t.StdErr != nil {
			rt.SE = *t.StdErr
		}
		if t.CILower != nil && t.CIUpper != nil {
			rt.Lower, rt.Upper = *t.CILower, *t.CIUpper
		}
		if t.PValue != nil {
			rt.PText = pText(*t.PValue)
			rt.Significant = *t.PValue < 0.05
		} else {
			rt.PText = "p = n/a"
		}
		terms = append(terms, rt)
	}
	return Render("regression_report", map[string]any{
		"rsquared": res.Stats["rsquared"],
		"dfModel":  res.Stats["df_model"],
		"dfResid":  res.Stats["df_resid"],
		"fvalue":   res.Stats["fvalue"],
		"fpvalue":  res.Stats["f_pvalue"],
		"terms":    terms,
	})
}

func ttestReport(res *stats.Results) (string, error) {
	data := map[string]any{
		"ptext":       pText(res.Stats["pvalue"]),
		"reject":      res.Stats["reject"] == 1,
		"alternative": "two-sided",
	}
	for k, v := range res.Stats {
		if _, ok := data[k]; !ok {
			data[k] = v
		}
	}
	if alt, ok := res.Params["alternative"].(string); ok {
		data["alternative"] = alt
	}
	return Render("ttest_report", data)
}

func pText(p float64) string {
	switch {
	case p < 0.001:
		return "p < .001"
	case p < 0.05:
		return strings.Replace(fmt.Sprintf("p = %.3f", p), "0.", ".", 1)
	default:
		return strings.Replace(fmt.Sprintf("p = %.2f", p), "0.", ".", 1)
	}
}
