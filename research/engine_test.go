package research

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"magellan/llm"
	"magellan/search"
)

// scriptedProvider answers chat requests through a function of the latest
// user prompt, so tests can can the whole model conversation.
type scriptedProvider struct {
	mu    sync.Mutex
	calls int
	chat  func(prompt string) (string, error)
}

func (s *scriptedProvider) Name() string  { return "scripted" }
func (s *scriptedProvider) Model() string { return "scripted-model" }

func (s *scriptedProvider) Chat(_ context.Context, messages []llm.ChatMessage) (llm.LLMResponse, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	prompt := messages[len(messages)-1].Content
	reply, err := s.chat(prompt)
	if err != nil {
		return llm.LLMResponse{}, err
	}
	return llm.LLMResponse{Content: reply}, nil
}

func (s *scriptedProvider) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// fakeSearcher serves canned results per query and records every call.
type fakeSearcher struct {
	mu      sync.Mutex
	results map[string][]search.Result
	queries []string
}

func (f *fakeSearcher) Search(_ context.Context, query string) ([]search.Result, error) {
	f.mu.Lock()
	f.queries = append(f.queries, query)
	f.mu.Unlock()
	return f.results[query], nil
}

func (f *fakeSearcher) queryCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queries)
}

func testClient(p llm.Provider) *llm.Client {
	return llm.NewClient(p).WithBaseDelay(time.Microsecond)
}

func sources(query string, n int) []search.Result {
	out := make([]search.Result, n)
	for i := range out {
		out[i] = search.Result{
			Title:   fmt.Sprintf("%s source %d", query, i+1),
			URL:     fmt.Sprintf("https://example.test/%s/%d", query, i+1),
			Content: fmt.Sprintf("content about %s, part %d", query, i+1),
		}
	}
	return out
}

// researchScript wires a provider that answers analysis prompts with two
// bullets naming the source, and follow-up prompts with canned topics.
func researchScript(followups map[string]string) func(string) (string, error) {
	return func(prompt string) (string, error) {
		switch {
		case strings.Contains(prompt, "follow-up research topics"):
			for query, response := range followups {
				if strings.Contains(prompt, fmt.Sprintf("about %q", query)) {
					return response, nil
				}
			}
			return "[]", nil
		case strings.Contains(prompt, "Analyze this content"):
			title := titleFromAnalysisPrompt(prompt)
			return fmt.Sprintf("* finding one from %s\n* finding two from %s", title, title), nil
		default:
			return "a report", nil
		}
	}
}

func titleFromAnalysisPrompt(prompt string) string {
	// The analysis prompt embeds the source title as: from "<title>":
	start := strings.Index(prompt, "from \"")
	if start == -1 {
		return "unknown"
	}
	rest := prompt[start+len("from \""):]
	end := strings.Index(rest, "\"")
	if end == -1 {
		return "unknown"
	}
	return rest[:end]
}

func TestResearchTopicZeroDepthIsFree(t *testing.T) {
	provider := &scriptedProvider{chat: func(string) (string, error) { return "", nil }}
	searcher := &fakeSearcher{}
	engine := NewEngine(testClient(provider), searcher)

	acc := NewResult()
	acc.AddLearning("pre-existing")

	got, err := engine.ResearchTopic(context.Background(), "anything", 0, 2, acc)
	if err != nil {
		t.Fatalf("ResearchTopic failed: %v", err)
	}
	if got != acc {
		t.Error("expected the shared accumulator back")
	}
	if diff := cmp.Diff([]string{"pre-existing"}, got.Learnings()); diff != "" {
		t.Errorf("accumulator changed (-want +got):\n%s", diff)
	}
	if searcher.queryCount() != 0 || provider.callCount() != 0 {
		t.Errorf("expected zero network calls, got %d searches and %d model calls",
			searcher.queryCount(), provider.callCount())
	}
}

func TestResearchTopicRecursionBoundedByDepth(t *testing.T) {
	followupJSON := `[{"query": "X sub1", "research_goal": "dig into sub1"},
		{"query": "X sub2", "research_goal": "dig into sub2"}]`
	provider := &scriptedProvider{chat: researchScript(map[string]string{"X": followupJSON})}
	searcher := &fakeSearcher{results: map[string][]search.Result{
		"X":      sources("X", 1),
		"X sub1": sources("X sub1", 1),
		"X sub2": sources("X sub2", 1),
	}}
	engine := NewEngine(testClient(provider), searcher, WithConcurrency(1))

	result, err := engine.ResearchTopic(context.Background(), "X", 2, 2, nil)
	if err != nil {
		t.Fatalf("ResearchTopic failed: %v", err)
	}

	// depth=2 means exactly two levels: root plus its follow-ups. The
	// children must not search further even though their analysis produced
	// learnings.
	if searcher.queryCount() != 3 {
		t.Errorf("expected 3 searches (root + 2 follow-ups), got %d: %v",
			searcher.queryCount(), searcher.queries)
	}
	if result.LearningCount() == 0 {
		t.Error("expected accumulated learnings")
	}
}

func TestResearchTopicBreadthFlooredAtOne(t *testing.T) {
	var followupRequests []string
	provider := &scriptedProvider{chat: func(prompt string) (string, error) {
		if strings.Contains(prompt, "follow-up research topics") {
			followupRequests = append(followupRequests, prompt)
			return `[{"query": "narrower", "research_goal": "go deeper"}]`, nil
		}
		return "* a finding", nil
	}}
	searcher := &fakeSearcher{results: map[string][]search.Result{
		"topic":    sources("topic", 1),
		"narrower": sources("narrower", 1),
	}}
	engine := NewEngine(testClient(provider), searcher, WithConcurrency(1))

	if _, err := engine.ResearchTopic(context.Background(), "topic", 3, 1, nil); err != nil {
		t.Fatalf("ResearchTopic failed: %v", err)
	}

	if len(followupRequests) != 2 {
		t.Fatalf("expected 2 follow-up generations, got %d", len(followupRequests))
	}
	for i, prompt := range followupRequests {
		if !strings.Contains(prompt, "generate 1 follow-up") {
			t.Errorf("request %d: breadth must stay floored at 1: %q", i, firstLine(prompt))
		}
	}
}

func TestResearchTopicDeduplicatesAccumulator(t *testing.T) {
	// Every source yields the identical finding; the final result must
	// contain it exactly once, and each URL exactly once.
	provider := &scriptedProvider{chat: func(prompt string) (string, error) {
		if strings.Contains(prompt, "follow-up research topics") {
			return `[{"query": "dup sub", "research_goal": "more of the same"}]`, nil
		}
		return "* the one finding", nil
	}}
	searcher := &fakeSearcher{results: map[string][]search.Result{
		"dup":     sources("dup", 2),
		"dup sub": sources("dup", 2), // same URLs as the root
	}}
	engine := NewEngine(testClient(provider), searcher, WithConcurrency(1))

	result, err := engine.ResearchTopic(context.Background(), "dup", 2, 1, nil)
	if err != nil {
		t.Fatalf("ResearchTopic failed: %v", err)
	}

	if diff := cmp.Diff([]string{"the one finding"}, result.Learnings()); diff != "" {
		t.Errorf("learnings not deduplicated (-want +got):\n%s", diff)
	}
	urls := result.VisitedURLs()
	seen := map[string]bool{}
	for _, u := range urls {
		if seen[u] {
			t.Errorf("duplicate URL in result: %s", u)
		}
		seen[u] = true
	}
	if len(urls) != 2 {
		t.Errorf("expected 2 unique URLs, got %d: %v", len(urls), urls)
	}
}

func TestResearchTopicRejectedFollowupBatchEndsBranch(t *testing.T) {
	provider := &scriptedProvider{chat: func(prompt string) (string, error) {
		if strings.Contains(prompt, "follow-up research topics") {
			// Second entry is missing research_goal: whole batch invalid.
			return `[{"query": "ok", "research_goal": "fine"}, {"query": "broken"}]`, nil
		}
		return "* a finding", nil
	}}
	searcher := &fakeSearcher{results: map[string][]search.Result{
		"topic": sources("topic", 1),
	}}
	engine := NewEngine(testClient(provider), searcher, WithConcurrency(1))

	result, err := engine.ResearchTopic(context.Background(), "topic", 2, 2, nil)
	if err != nil {
		t.Fatalf("ResearchTopic failed: %v", err)
	}

	// The branch finishes without recursing: only the root search happened.
	if searcher.queryCount() != 1 {
		t.Errorf("expected 1 search, got %d: %v", searcher.queryCount(), searcher.queries)
	}
	if result.LearningCount() != 1 {
		t.Errorf("expected the root learning to survive, got %d", result.LearningCount())
	}
}

func TestResearchTopicIsolatesSourceFailures(t *testing.T) {
	provider := &scriptedProvider{chat: func(prompt string) (string, error) {
		if strings.Contains(prompt, "iso source 2") {
			return "", errors.New("analysis blew up")
		}
		if strings.Contains(prompt, "Analyze this content") {
			return fmt.Sprintf("* finding from %s", titleFromAnalysisPrompt(prompt)), nil
		}
		return "[]", nil
	}}
	searcher := &fakeSearcher{results: map[string][]search.Result{
		"iso": sources("iso", 3),
	}}
	engine := NewEngine(testClient(provider), searcher, WithConcurrency(1))

	result, err := engine.ResearchTopic(context.Background(), "iso", 1, 2, nil)
	if err != nil {
		t.Fatalf("ResearchTopic failed: %v", err)
	}

	want := []string{
		"finding from iso source 1",
		"finding from iso source 3",
	}
	if diff := cmp.Diff(want, result.Learnings()); diff != "" {
		t.Errorf("surviving learnings (-want +got):\n%s", diff)
	}
	// All three URLs were visited, including the one whose analysis failed.
	if len(result.VisitedURLs()) != 3 {
		t.Errorf("expected 3 visited URLs, got %v", result.VisitedURLs())
	}
}

func TestResearchTopicEmptySearchEndsBranchQuietly(t *testing.T) {
	provider := &scriptedProvider{chat: func(string) (string, error) { return "", nil }}
	searcher := &fakeSearcher{} // every query yields nil results
	var events []Event
	engine := NewEngine(testClient(provider), searcher,
		WithConcurrency(1),
		WithObserver(func(ev Event) { events = append(events, ev) }))

	result, err := engine.ResearchTopic(context.Background(), "ghost topic", 2, 2, nil)
	if err != nil {
		t.Fatalf("ResearchTopic failed: %v", err)
	}
	if result.LearningCount() != 0 {
		t.Errorf("expected empty result, got %d learnings", result.LearningCount())
	}

	foundNotice := false
	for _, ev := range events {
		if rl, ok := ev.(RateLimit); ok && strings.Contains(rl.Message, "No results") {
			foundNotice = true
		}
	}
	if !foundNotice {
		t.Error("expected a no-results notification event")
	}
}

func TestResearchTopicNodeCeilingPrunes(t *testing.T) {
	provider := &scriptedProvider{chat: researchScript(map[string]string{
		"wide": `[{"query": "wide a", "research_goal": "a"}, {"query": "wide b", "research_goal": "b"}]`,
	})}
	searcher := &fakeSearcher{results: map[string][]search.Result{
		"wide":   sources("wide", 1),
		"wide a": sources("wide a", 1),
		"wide b": sources("wide b", 1),
	}}
	engine := NewEngine(testClient(provider), searcher, WithConcurrency(1), WithMaxNodes(2))

	if _, err := engine.ResearchTopic(context.Background(), "wide", 2, 2, nil); err != nil {
		t.Fatalf("ResearchTopic failed: %v", err)
	}
	if searcher.queryCount() > 2 {
		t.Errorf("node ceiling ignored: %d searches: %v", searcher.queryCount(), searcher.queries)
	}
}

func TestResearchTopicDeterministicWhenSerialized(t *testing.T) {
	newFixture := func() (*Engine, *fakeSearcher) {
		provider := &scriptedProvider{chat: researchScript(map[string]string{
			"X": `[{"query": "X sub1", "research_goal": "s1"}, {"query": "X sub2", "research_goal": "s2"}]`,
		})}
		searcher := &fakeSearcher{results: map[string][]search.Result{
			"X":      sources("X", 2),
			"X sub1": sources("X sub1", 2),
			"X sub2": sources("X sub2", 2),
		}}
		return NewEngine(testClient(provider), searcher, WithConcurrency(1)), searcher
	}

	engine1, _ := newFixture()
	first, err := engine1.ResearchTopic(context.Background(), "X", 2, 2, nil)
	if err != nil {
		t.Fatalf("first run failed: %v", err)
	}

	engine2, _ := newFixture()
	second, err := engine2.ResearchTopic(context.Background(), "X", 2, 2, nil)
	if err != nil {
		t.Fatalf("second run failed: %v", err)
	}

	if diff := cmp.Diff(first.Learnings(), second.Learnings()); diff != "" {
		t.Errorf("learnings differ between identical serialized runs:\n%s", diff)
	}
	if diff := cmp.Diff(first.VisitedURLs(), second.VisitedURLs()); diff != "" {
		t.Errorf("visited URLs differ between identical serialized runs:\n%s", diff)
	}
}

func TestResearchTopicConcurrentBranchesShareAccumulator(t *testing.T) {
	provider := &scriptedProvider{chat: researchScript(map[string]string{
		"par": `[{"query": "par a", "research_goal": "a"}, {"query": "par b", "research_goal": "b"}]`,
	})}
	searcher := &fakeSearcher{results: map[string][]search.Result{
		"par":   sources("par", 1),
		"par a": sources("par a", 2),
		"par b": sources("par b", 2),
	}}
	engine := NewEngine(testClient(provider), searcher, WithConcurrency(2))

	result, err := engine.ResearchTopic(context.Background(), "par", 2, 2, nil)
	if err != nil {
		t.Fatalf("ResearchTopic failed: %v", err)
	}

	// Root source plus two per child branch, all in one accumulator.
	if len(result.VisitedURLs()) != 5 {
		t.Errorf("expected 5 unique URLs, got %d: %v", len(result.VisitedURLs()), result.VisitedURLs())
	}
	seen := map[string]bool{}
	for _, l := range result.Learnings() {
		if seen[l] {
			t.Errorf("duplicate learning after concurrent run: %q", l)
		}
		seen[l] = true
	}
}

func firstLine(s string) string {
	if i := strings.Index(s, "\n"); i >= 0 {
		return s[:i]
	}
	return s
}
