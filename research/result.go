// Package research implements the recursive, depth/breadth-bounded
// research engine: web searches fan out per topic, a language model distills
// each source into findings, follow-up topics spawn recursive branches, and
// everything accumulates into one shared Result.
package research

import "sync"

// Result aggregates findings and source URLs across an entire research
// call tree. One Result is shared by reference between all concurrent
// branches of a run; mutation is append-only until Finalize. Safe for
// concurrent use.
type Result struct {
	mu          sync.Mutex
	learnings   []string
	visitedURLs []string
}

// NewResult creates an empty accumulator.
func NewResult() *Result {
	return &Result{}
}

// AddLearning appends one finding.
func (r *Result) AddLearning(text string) {
	r.mu.Lock()
	r.learnings = append(r.learnings, text)
	r.mu.Unlock()
}

// AddLearnings appends a batch of findings.
func (r *Result) AddLearnings(texts []string) {
	if len(texts) == 0 {
		return
	}
	r.mu.Lock()
	r.learnings = append(r.learnings, texts...)
	r.mu.Unlock()
}

// AddURL appends one visited source URL.
func (r *Result) AddURL(url string) {
	r.mu.Lock()
	r.visitedURLs = append(r.visitedURLs, url)
	r.mu.Unlock()
}

// Learnings returns a copy of the accumulated findings.
func (r *Result) Learnings() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.learnings))
	copy(out, r.learnings)
	return out
}

// VisitedURLs returns a copy of the accumulated source URLs.
func (r *Result) VisitedURLs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.visitedURLs))
	copy(out, r.visitedURLs)
	return out
}

// LearningCount returns the number of accumulated findings.
func (r *Result) LearningCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.learnings)
}

// Finalize deduplicates findings and URLs in place, keeping first-seen
// order so report ordering is reproducible. Must only run after all
// branches have joined; it is idempotent.
func (r *Result) Finalize() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.learnings = dedupe(r.learnings)
	r.visitedURLs = dedupe(r.visitedURLs)
}

func dedupe(items []string) []string {
	seen := make(map[string]struct{}, len(items))
	out := items[:0]
	for _, item := range items {
		if _, ok := seen[item]; ok {
			continue
		}
		seen[item] = struct{}{}
		out = append(out, item)
	}
	return out
}
