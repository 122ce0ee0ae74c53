// Recursive Research Orchestrator.
//
// Drives the depth/breadth-bounded expansion: search a topic, distill each
// source into findings, generate follow-up topics, recurse with decremented
// budgets. Sibling branches run concurrently under a bounded semaphore and
// share one Result accumulator by reference; deduplication happens once,
// after the final join barrier.

package research

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"magellan/llm"
	"magellan/search"
)

const (
	// DefaultConcurrency bounds simultaneously in-flight branches.
	DefaultConcurrency = 2
	// DefaultMaxNodes is the hard ceiling on branches researched per run.
	// Fan-out grows combinatorially with depth and breadth; the documented
	// budget formula alone does not bound total node count.
	DefaultMaxNodes = 32

	analysisContentLimit = 5000
)

const analysisPromptTemplate = `Analyze this content about "%s" from "%s":

%s

Provide 2-3 key learnings as bullet points starting with *.`

// Engine orchestrates recursive research runs.
// Safe for concurrent use; each run gets its own semaphore and node budget.
type Engine struct {
	llm         *llm.Client
	searcher    search.Searcher
	logger      *zap.Logger
	observer    Observer
	concurrency int64
	maxNodes    int32
}

// Option configures an Engine.
type Option func(*Engine)

// WithObserver registers the progress event observer.
func WithObserver(obs Observer) Option {
	return func(e *Engine) { e.observer = obs }
}

// WithLogger attaches a structured logger.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithConcurrency bounds simultaneously in-flight branches (floored at 1).
// At 1, sibling branches run sequentially in topic order, which makes runs
// reproducible given canned client responses.
func WithConcurrency(n int) Option {
	return func(e *Engine) {
		if n >= 1 {
			e.concurrency = int64(n)
		}
	}
}

// WithMaxNodes sets the hard ceiling on branches per run.
func WithMaxNodes(n int) Option {
	return func(e *Engine) {
		if n >= 1 {
			e.maxNodes = int32(n)
		}
	}
}

// NewEngine creates a research engine over an LLM client and a searcher.
func NewEngine(client *llm.Client, searcher search.Searcher, opts ...Option) *Engine {
	e := &Engine{
		llm:         client,
		searcher:    searcher,
		logger:      zap.NewNop(),
		concurrency: DefaultConcurrency,
		maxNodes:    DefaultMaxNodes,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) emit(ev Event) {
	if e.observer != nil {
		e.observer(ev)
	}
}

// run carries per-run state shared across all branches of one call tree.
type run struct {
	sem   *semaphore.Weighted
	nodes atomic.Int32
}

// ResearchTopic recursively researches a topic. depth bounds recursion
// levels, breadth the follow-up topics requested per level. acc may be nil
// for a fresh run; when non-nil it is mutated in place and returned, so a
// caller can thread one accumulator through multiple root queries.
//
// The returned Result is finalized (deduplicated, first-seen order) and
// must not be mutated afterwards. The only error returned is context
// cancellation; branch failures degrade completeness instead of failing
// the run.
func (e *Engine) ResearchTopic(ctx context.Context, query string, depth, breadth int, acc *Result) (*Result, error) {
	if acc == nil {
		acc = NewResult()
	}
	if depth <= 0 {
		return acc, nil
	}

	r := &run{sem: semaphore.NewWeighted(e.concurrency)}
	if err := e.research(ctx, r, query, depth, breadth, acc); err != nil {
		return acc, err
	}

	// Single dedup pass after the full join barrier. Branches that finish
	// late may have appended entries first seen earlier by a sibling;
	// deduplicating before the join would discard them.
	acc.Finalize()
	return acc, nil
}

// research is one branch of the call tree.
func (e *Engine) research(ctx context.Context, r *run, query string, depth, breadth int, acc *Result) error {
	if depth <= 0 {
		return nil
	}
	if r.nodes.Add(1) > e.maxNodes {
		e.logger.Warn("node ceiling reached, pruning branch",
			zap.String("query", query),
			zap.Int32("max_nodes", e.maxNodes))
		return nil
	}

	e.emit(ResearchStart{Topic: query})
	e.logger.Info("researching topic",
		zap.String("query", query),
		zap.Int("depth", depth),
		zap.Int("breadth", breadth))

	topics, err := e.expand(ctx, r, query, depth, breadth, acc)
	if err != nil {
		return err
	}

	return e.fanOut(ctx, r, topics, depth, breadth, acc)
}

// expand runs the bounded phase of a branch - search, per-source analysis,
// follow-up generation - under the run semaphore, releasing it before the
// recursive fan-out so waiting children cannot deadlock against their
// parents.
func (e *Engine) expand(ctx context.Context, r *run, query string, depth, breadth int, acc *Result) ([]FollowupTopic, error) {
	if err := r.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer r.sem.Release(1)

	results, err := e.searcher.Search(ctx, query)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		// Branch-level failure: log and let siblings continue.
		e.logger.Error("search failed", zap.String("query", query), zap.Error(err))
		e.emit(RateLimit{Message: fmt.Sprintf("Search error for '%s'", query)})
		return nil, nil
	}
	if len(results) == 0 {
		e.emit(RateLimit{Message: fmt.Sprintf("No results found for '%s'", query)})
		return nil, nil
	}

	// Sources are processed strictly sequentially within a branch to keep
	// per-branch model-call ordering deterministic and respect rate limits.
	for _, result := range results {
		e.emit(SourceProcessing{Title: result.Title, URL: result.URL})
		if result.Content == "" {
			e.logger.Warn("empty content, skipping source", zap.String("url", result.URL))
			continue
		}

		if err := e.analyzeSource(ctx, query, result, acc); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			// Per-item isolation: one dead source never aborts the batch.
			e.logger.Error("failed to process source",
				zap.String("url", result.URL),
				zap.Error(err))
		}
	}

	if depth <= 1 || acc.LearningCount() == 0 {
		return nil, nil
	}

	content := strings.Join(acc.Learnings(), "\n")
	return e.GenerateFollowupTopics(ctx, content, query, breadth), nil
}

// analyzeSource records the source URL and distills its content into
// findings appended to the accumulator.
func (e *Engine) analyzeSource(ctx context.Context, query string, result search.Result, acc *Result) error {
	acc.AddURL(result.URL)

	content := result.Content
	if runes := []rune(content); len(runes) > analysisContentLimit {
		content = string(runes[:analysisContentLimit])
	}

	prompt := fmt.Sprintf(analysisPromptTemplate, query, result.Title, content)
	analysis, err := e.llm.Complete(ctx, prompt)
	if err != nil {
		return fmt.Errorf("analyzing %s: %w", result.URL, err)
	}

	learnings := ExtractLearnings(analysis)
	for _, learning := range learnings {
		e.emit(NewLearning{Text: learning})
	}
	acc.AddLearnings(learnings)
	return nil
}

// fanOut recurses into follow-up topics, all sharing the accumulator.
// With concurrency 1 the branches run sequentially in topic order;
// otherwise siblings launch together and join before returning.
func (e *Engine) fanOut(ctx context.Context, r *run, topics []FollowupTopic, depth, breadth int, acc *Result) error {
	if len(topics) == 0 {
		return nil
	}

	childBreadth := breadth - 1
	if childBreadth < 1 {
		childBreadth = 1
	}

	if e.concurrency <= 1 {
		for _, topic := range topics {
			e.emit(FollowupTopicEvent{Query: topic.Query})
			if err := e.research(ctx, r, topic.Query, depth-1, childBreadth, acc); err != nil {
				return err
			}
		}
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, topic := range topics {
		e.emit(FollowupTopicEvent{Query: topic.Query})
		g.Go(func() error {
			if err := e.research(gctx, r, topic.Query, depth-1, childBreadth, acc); err != nil {
				if gctx.Err() != nil {
					return err
				}
				// A failed sibling degrades completeness, never the run.
				e.logger.Error("follow-up branch failed",
					zap.String("query", topic.Query),
					zap.Error(err))
			}
			return nil
		})
	}
	return g.Wait()
}
