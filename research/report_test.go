package research

import (
	"context"
	"errors"
	"strings"
	"testing"

	"magellan/search"
)

func TestGenerateReportAppendsSources(t *testing.T) {
	var sawPrompt string
	engine := followupEngine(func(prompt string) (string, error) {
		sawPrompt = prompt
		return "# Report\n\nbody", nil
	})

	result := NewResult()
	result.AddLearnings([]string{"alpha", "beta"})
	result.AddURL("https://a.test")
	result.AddURL("https://b.test")
	result.Finalize()

	report, err := engine.GenerateReport(context.Background(), "the topic", result)
	if err != nil {
		t.Fatalf("GenerateReport failed: %v", err)
	}

	if !strings.Contains(sawPrompt, "- alpha\n- beta\n") {
		t.Errorf("learnings not passed as bullets:\n%s", sawPrompt)
	}
	if !strings.Contains(report, "## Sources") {
		t.Error("report missing Sources section")
	}
	if !strings.Contains(report, "- https://a.test\n- https://b.test") {
		t.Errorf("sources not listed in first-seen order:\n%s", report)
	}
	if !strings.HasPrefix(report, "# Report") {
		t.Errorf("model body not at the top:\n%s", report)
	}
}

func TestGenerateReportPropagatesModelFailure(t *testing.T) {
	engine := followupEngine(func(string) (string, error) {
		return "", errors.New("model down")
	})

	if _, err := engine.GenerateReport(context.Background(), "topic", NewResult()); err == nil {
		t.Fatal("expected error from model failure")
	}
}

func TestSimpleResearchSummarizesResults(t *testing.T) {
	searcher := &fakeSearcher{results: map[string][]search.Result{
		"coffee": {
			{Title: "Roasting", URL: "https://roast.test", Content: "roast facts"},
			{Title: "Empty", URL: "https://empty.test", Content: ""},
			{Title: "Brewing", URL: "https://brew.test", Content: "brew facts"},
		},
	}}
	var sawPrompt string
	provider := &scriptedProvider{chat: func(prompt string) (string, error) {
		sawPrompt = prompt
		return "a tidy summary", nil
	}}
	engine := NewEngine(testClient(provider), searcher)

	answer, err := engine.SimpleResearch(context.Background(), "coffee")
	if err != nil {
		t.Fatalf("SimpleResearch failed: %v", err)
	}

	if !strings.Contains(sawPrompt, "## Roasting") || !strings.Contains(sawPrompt, "roast facts") {
		t.Errorf("source content missing from summary prompt:\n%s", sawPrompt)
	}
	if strings.Contains(sawPrompt, "## Empty") {
		t.Error("content-free source should be skipped")
	}
	if !strings.Contains(answer, "## Sources") ||
		!strings.Contains(answer, "- https://roast.test") ||
		!strings.Contains(answer, "- https://brew.test") {
		t.Errorf("sources section wrong:\n%s", answer)
	}
	if strings.Contains(answer, "https://empty.test") {
		t.Error("content-free source must not appear in Sources")
	}
	if strings.Contains(answer, Disclaimer) {
		t.Error("disclaimer must not appear when live results were used")
	}
}

func TestSimpleResearchFallsBackToModelKnowledge(t *testing.T) {
	engine := followupEngine(func(prompt string) (string, error) {
		if !strings.Contains(prompt, "don't have access to search results") {
			t.Errorf("expected knowledge fallback prompt, got:\n%s", prompt)
		}
		return "what I know", nil
	})

	answer, err := engine.SimpleResearch(context.Background(), "obscure topic")
	if err != nil {
		t.Fatalf("SimpleResearch failed: %v", err)
	}
	if !strings.HasSuffix(answer, Disclaimer) {
		t.Errorf("expected disclaimer suffix:\n%s", answer)
	}
	if strings.Contains(answer, "## Sources") {
		t.Error("fallback answer must not have a Sources section")
	}
}

func TestSimpleResearchFallsBackWhenAllContentEmpty(t *testing.T) {
	searcher := &fakeSearcher{results: map[string][]search.Result{
		"hollow": {
			{Title: "Shell", URL: "https://shell.test", Content: ""},
		},
	}}
	provider := &scriptedProvider{chat: func(string) (string, error) {
		return "knowledge answer", nil
	}}
	engine := NewEngine(testClient(provider), searcher)

	answer, err := engine.SimpleResearch(context.Background(), "hollow")
	if err != nil {
		t.Fatalf("SimpleResearch failed: %v", err)
	}
	if !strings.HasSuffix(answer, Disclaimer) {
		t.Errorf("expected disclaimer suffix:\n%s", answer)
	}
}
