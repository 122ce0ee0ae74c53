package research

import (
	"context"
	"fmt"
	"strings"
)

// Disclaimer is appended to answers produced without live web search.
const Disclaimer = "\n\n> *Note: This research was generated using the model's knowledge rather than live web search results.*"

const knowledgeFallbackPrompt = `I need to research "%s" but don't have access to search results right now.
Please provide a comprehensive overview based on your knowledge.

Include:
1. Key facts and information about %s
2. Important concepts, dates, people, or events related to this topic
3. A balanced perspective showing different viewpoints if applicable
4. A brief conclusion

Format your response in markdown with clear sections.`

const simpleSummaryPrompt = `Based on the following research materials about "%s", provide a concise summary:

%s

Your response should be well-structured with:
1. Key findings and insights
2. Important details
3. A brief conclusion

Use markdown formatting.`

// SimpleResearch performs a single-pass, non-recursive lookup: search once,
// summarize the combined content in one model call, and append a sources
// section. When the search yields nothing usable the model answers from its
// own knowledge and the result carries a disclaimer. None of the
// orchestrator's recursion or concurrency machinery is involved.
func (e *Engine) SimpleResearch(ctx context.Context, query string) (string, error) {
	e.emit(ResearchStart{Topic: query})

	results, err := e.searcher.Search(ctx, query)
	if err != nil {
		return "", fmt.Errorf("searching %q: %w", query, err)
	}

	if len(results) == 0 {
		e.emit(RateLimit{Message: "No search results found. Using model knowledge directly."})
		e.emit(SourceProcessing{Title: "Using model knowledge", URL: "No web search"})
		e.emit(NewLearning{Text: "Using model knowledge instead of web search"})

		answer, err := e.llm.Complete(ctx, fmt.Sprintf(knowledgeFallbackPrompt, query, query))
		if err != nil {
			return "", err
		}
		return answer + Disclaimer, nil
	}

	var content strings.Builder
	var urls []string
	for _, result := range results {
		e.emit(SourceProcessing{Title: result.Title, URL: result.URL})
		if result.Content == "" {
			continue
		}
		fmt.Fprintf(&content, "\n\n## %s\n\n%s", result.Title, result.Content)
		urls = append(urls, result.URL)
	}

	if content.Len() == 0 {
		e.emit(RateLimit{Message: "Search results had no content. Using model knowledge directly."})
		answer, err := e.llm.Complete(ctx, fmt.Sprintf(knowledgeFallbackPrompt, query, query))
		if err != nil {
			return "", err
		}
		return answer + Disclaimer, nil
	}

	summary, err := e.llm.Complete(ctx, fmt.Sprintf(simpleSummaryPrompt, query, content.String()))
	if err != nil {
		return "", err
	}
	return summary + sourcesSection(urls), nil
}
