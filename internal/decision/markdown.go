package decision

import (
	"fmt"
	"strings"
)

// RenderMarkdown renders claim results as a Markdown checklist.
func RenderMarkdown(results []*ClaimResult) string {
	var sb strings.Builder

	sb.WriteString("# Claims\n\n")
	supportedCount := 0
	for _, r := range results {
		if r.Verdict == VerdictSupported {
			supportedCount++
		}
	}
	sb.WriteString(fmt.Sprintf("%d/%d claims supported\n\n", supportedCount, len(results)))

	for _, r := range results {
		sb.WriteString(fmt.Sprintf("## %s: %s\n\n", r.Claim, r.Subject))
		sb.WriteString(fmt.Sprintf("Verdict: **%s**\n\n", r.Verdict))
		sb.WriteString("| # | Criterion | Threshold | Actual | Pass |\n")
		sb.WriteString("|---|-----------|-----------|--------|------|\n")
		for i, c := range r.Criteria {
			passStr := "PASS"
			if !c.Pass {
				passStr = "FAIL"
			}
			sb.WriteString(fmt.Sprintf("| %d | %s | %s | %s | %s |\n",
				i+1, c.Name, c.Threshold, c.Actual, passStr))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}
