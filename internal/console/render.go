package console

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"

	"insurebot-chat/internal/models"
)

// Renderer formats assistant markdown for the terminal.
type Renderer interface {
	Render(markdown string) (string, error)
}

// NewMarkdownRenderer builds a glamour renderer. style is a glamour
// standard style name ("dark", "light", "notty", "ascii") or a JSON style
// file path.
func NewMarkdownRenderer(style string, width int) (Renderer, error) {
	if style == "" {
		style = "dark"
	}
	if width <= 0 {
		width = 80
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithStylePath(style),
		glamour.WithWordWrap(width),
		glamour.WithEmoji(),
	)
	if err != nil {
		return nil, fmt.Errorf("create markdown renderer: %w", err)
	}
	return r, nil
}

// PlainRenderer prints markdown untouched.
type PlainRenderer struct{}

func (PlainRenderer) Render(markdown string) (string, error) {
	return markdown + "\n", nil
}

// formatRecommendations renders plans as a markdown table.
func formatRecommendations(recs []models.Recommendation) string {
	var b strings.Builder
	b.WriteString("### Recommended plans\n\n")
	b.WriteString("| # | Company | Plan | Premium (₹/yr) | CSR % | Score | Why |\n")
	b.WriteString("|---|---|---|---|---|---|---|\n")
	for i, r := range recs {
		fmt.Fprintf(&b, "| %d | %s | %s | %.0f | %.1f | %.2f | %s |\n",
			i+1, escapeCell(r.Company), escapeCell(r.ProductName), r.PremiumEstimate, r.CSR, r.Score, escapeCell(r.USP))
	}
	return b.String()
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}
