package research

import (
	"context"
	"fmt"
	"strings"
)

const reportPromptTemplate = `Create a comprehensive research report on: %s

Use these learnings to create the report:
%s

The report should:
1. Start with an executive summary
2. Be organized into logical sections
3. Include all key findings and details
4. End with conclusions and potential areas for further research

Use markdown formatting.`

// GenerateReport turns a finalized Result into a markdown document with an
// executive summary, organized sections, conclusions, and a literal Sources
// section listing every visited URL in first-seen order. A model failure
// propagates; there is no fallback report.
func (e *Engine) GenerateReport(ctx context.Context, query string, result *Result) (string, error) {
	learnings := result.Learnings()
	urls := result.VisitedURLs()

	e.emit(GeneratingReport{Info: fmt.Sprintf("Creating report with %d learnings", len(learnings))})

	var bullets strings.Builder
	for _, learning := range learnings {
		bullets.WriteString("- ")
		bullets.WriteString(learning)
		bullets.WriteString("\n")
	}

	prompt := fmt.Sprintf(reportPromptTemplate, query, bullets.String())
	report, err := e.llm.Complete(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("generating report: %w", err)
	}

	return report + sourcesSection(urls), nil
}

func sourcesSection(urls []string) string {
	var b strings.Builder
	b.WriteString("\n\n## Sources\n\n")
	for _, url := range urls {
		b.WriteString("- ")
		b.WriteString(url)
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
