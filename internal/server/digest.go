package server

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/yuin/goldmark"

	"github.com/digityx/insightd/internal/database"
)

var md = goldmark.New()

// renderDigest builds a markdown digest of the given insights, grouped by
// category, and converts it to HTML.
func renderDigest(insights []database.Insight) (string, error) {
	var buf bytes.Buffer
	if err := md.Convert([]byte(digestMarkdown(insights)), &buf); err != nil {
		return "", fmt.Errorf("rendering digest: %w", err)
	}
	return buf.String(), nil
}

func digestMarkdown(insights []database.Insight) string {
	var b strings.Builder
	b.WriteString("# Insights\n\n")

	if len(insights) == 0 {
		b.WriteString("Aucun insight pour le moment.\n")
		return b.String()
	}

	open := 0
	for _, i := range insights {
		if i.Statut == database.InsightStatusNew {
			open++
		}
	}
	fmt.Fprintf(&b, "%d insights, dont %d nouveaux.\n", len(insights), open)

	byCategory := make(map[string][]database.Insight)
	var order []string
	for _, i := range insights {
		if _, ok := byCategory[i.Type]; !ok {
			order = append(order, i.Type)
		}
		byCategory[i.Type] = append(byCategory[i.Type], i)
	}

	for _, category := range order {
		fmt.Fprintf(&b, "\n## %s\n\n", category)
		for _, i := range byCategory[category] {
			fmt.Fprintf(&b, "- **%s** (confiance %d/100", i.Titre, i.ScoreConfiance)
			if i.Statut != database.InsightStatusNew {
				fmt.Fprintf(&b, ", %s", i.Statut)
			}
			b.WriteString(")")
			if i.Description != "" {
				fmt.Fprintf(&b, " : %s", i.Description)
			}
			if i.ActionSuggeree != "" {
				fmt.Fprintf(&b, " _%s_", i.ActionSuggeree)
			}
			b.WriteString("\n")
		}
	}
	return b.String()
}
