// Package report renders a finished search as markdown or HTML.
package report

import (
	"fmt"
	"slices"
	"strings"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"

	"github.com/thalesfsp/tune/internal/leaderboard"
	"github.com/thalesfsp/tune/internal/metrics"
	"github.com/thalesfsp/tune/internal/search"
)

// Summary is what a report shows. Only Trials is required.
type Summary struct {
	Title       string
	Metric      string
	Direction   leaderboard.Direction
	Trials      []leaderboard.Trial
	Holdout     metrics.Scores
	Importances []search.Importance
}

// FromReport builds a Summary from a pipeline report.
func FromReport(title string, metric string, direction leaderboard.Direction, r *search.Report) Summary {
	return Summary{
		Title:       title,
		Metric:      metric,
		Direction:   direction,
		Trials:      r.Leaderboard.Trials(),
		Holdout:     r.Holdout,
		Importances: r.Importances,
	}
}

// Markdown renders s.
func Markdown(s Summary) string {
	var b strings.Builder

	title := s.Title
	if title == "" {
		title = "Hyperparameter search"
	}

	fmt.Fprintf(&b, "# %s\n\n", title)

	board := leaderboard.New()
	for _, t := range s.Trials {
		board.Append(t)
	}

	if s.Metric != "" && board.Len() > 0 {
		if best, err := board.Best(s.Metric, s.Direction); err == nil {
			fmt.Fprintf(&b, "Best trial: **%d** with %s = %.4f (%s).\n\n", best.Index, s.Metric, best.Averages[s.Metric], s.Direction)

			for _, name := range sortedKeys(best.Hyperparameters) {
				fmt.Fprintf(&b, "- `%s` = %g\n", name, best.Hyperparameters[name])
			}

			b.WriteString("\n")
		}
	}

	b.WriteString("## Leaderboard\n\n")
	b.WriteString(board.Markdown(s.Metric))
	b.WriteString("\n")

	if len(s.Holdout) > 0 {
		b.WriteString("## Holdout\n\n| metric | value |\n| --- | --- |\n")

		for _, name := range metrics.Names {
			if v, ok := s.Holdout[name]; ok {
				fmt.Fprintf(&b, "| %s | %.4f |\n", name, v)
			}
		}

		b.WriteString("\n")
	}

	if len(s.Importances) > 0 {
		b.WriteString("## Feature importances\n\n| feature | weight |\n| --- | --- |\n")

		for _, imp := range s.Importances {
			fmt.Fprintf(&b, "| %s | %.4f |\n", imp.Feature, imp.Weight)
		}

		b.WriteString("\n")
	}

	return b.String()
}

// HTML renders s as a standalone HTML page.
func HTML(s Summary) []byte {
	p := parser.NewWithExtensions(parser.CommonExtensions)

	title := s.Title
	if title == "" {
		title = "Hyperparameter search"
	}

	renderer := html.NewRenderer(html.RendererOptions{
		Flags: html.CommonFlags | html.CompletePage,
		Title: title,
	})

	return markdown.ToHTML([]byte(Markdown(s)), p, renderer)
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}

	slices.Sort(keys)

	return keys
}
