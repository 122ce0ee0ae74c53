// Client - retrying wrapper around providers with conversation contexts.
//
// Information Hiding:
// - Retry/backoff policy for rate limits and transient failures
// - Conversation context bookkeeping keyed by caller-supplied ids
// - Optional persistence of context history behind ContextStore

package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/google/uuid"
	openai "github.com/sashabaranov/go-openai"
)

const (
	// DefaultMaxAttempts is how many times a completion is tried before the
	// last error is propagated to the caller.
	DefaultMaxAttempts = 3
	// MaxAttemptsCeiling caps configurable retry attempts.
	MaxAttemptsCeiling = 5
	// defaultBaseDelay is the initial backoff delay, doubled per attempt.
	defaultBaseDelay = time.Second

	promptPreviewLen = 50
)

// ContextStore persists conversation context history between runs.
// storage.ConversationStorage satisfies this interface.
type ContextStore interface {
	Save(ctx context.Context, sessionID string, history []ChatMessage) error
	Load(ctx context.Context, sessionID string) ([]ChatMessage, error)
}

// AttemptFunc observes each completion attempt with a truncated prompt
// preview. It must not block; it has no effect on control flow.
type AttemptFunc func(promptPreview string)

// RateLimitFunc observes rate-limit conditions encountered during retries.
// It must not block; it has no effect on control flow.
type RateLimitFunc func(message string)

// Client wraps a Provider with retry/backoff and conversation contexts.
// Safe for concurrent use.
type Client struct {
	provider    Provider
	maxAttempts int
	baseDelay   time.Duration

	mu       sync.Mutex
	contexts map[string][]ChatMessage
	store    ContextStore

	onAttempt   AttemptFunc
	onRateLimit RateLimitFunc
}

// NewClient creates a new LLM client from a provider.
func NewClient(provider Provider) *Client {
	return &Client{
		provider:    provider,
		maxAttempts: DefaultMaxAttempts,
		baseDelay:   defaultBaseDelay,
		contexts:    make(map[string][]ChatMessage),
	}
}

// WithMaxAttempts sets the retry attempt ceiling (clamped to [1, 5]).
func (c *Client) WithMaxAttempts(n int) *Client {
	if n < 1 {
		n = 1
	}
	if n > MaxAttemptsCeiling {
		n = MaxAttemptsCeiling
	}
	c.maxAttempts = n
	return c
}

// WithBaseDelay overrides the initial backoff delay. Tests use a tiny delay.
func (c *Client) WithBaseDelay(d time.Duration) *Client {
	c.baseDelay = d
	return c
}

// WithContextStore enables best-effort persistence of conversation contexts.
func (c *Client) WithContextStore(store ContextStore) *Client {
	c.store = store
	return c
}

// OnAttempt registers an observer invoked once per completion attempt.
func (c *Client) OnAttempt(fn AttemptFunc) *Client {
	c.onAttempt = fn
	return c
}

// OnRateLimit registers an observer for rate-limit conditions.
func (c *Client) OnRateLimit(fn RateLimitFunc) *Client {
	c.onRateLimit = fn
	return c
}

// Provider returns the underlying provider.
func (c *Client) Provider() Provider {
	return c.provider
}

// NewContextID returns a fresh conversation context identifier.
func (c *Client) NewContextID() string {
	return uuid.NewString()
}

// Complete sends a single-turn prompt and returns the completion text.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	return c.complete(ctx, "", "", prompt)
}

// CompleteWithSystem sends a single-turn prompt with a system instruction.
func (c *Client) CompleteWithSystem(ctx context.Context, system, prompt string) (string, error) {
	return c.complete(ctx, "", system, prompt)
}

// CompleteInContext appends the prompt to the context's turn history, sends
// the full history, and records the reply so later calls with the same id
// continue the conversation. An unknown id creates a new context.
func (c *Client) CompleteInContext(ctx context.Context, contextID, prompt string) (string, error) {
	return c.complete(ctx, contextID, "", prompt)
}

// CompleteInContextWithSystem is CompleteInContext with a system instruction.
func (c *Client) CompleteInContextWithSystem(ctx context.Context, contextID, system, prompt string) (string, error) {
	return c.complete(ctx, contextID, system, prompt)
}

func (c *Client) complete(ctx context.Context, contextID, system, prompt string) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", errors.New("prompt must not be empty")
	}

	history := c.historyFor(ctx, contextID)

	messages := make([]ChatMessage, 0, len(history)+2)
	if system != "" {
		messages = append(messages, SystemMessage(system))
	}
	messages = append(messages, history...)
	messages = append(messages, UserMessage(prompt))

	reply, err := c.chatWithRetry(ctx, messages, prompt)
	if err != nil {
		return "", err
	}

	if contextID != "" {
		c.recordExchange(ctx, contextID, prompt, reply)
	}
	return reply, nil
}

// chatWithRetry runs the completion with exponential backoff. Rate limits
// and transient errors share the same policy; after the attempt ceiling the
// last error propagates.
func (c *Client) chatWithRetry(ctx context.Context, messages []ChatMessage, prompt string) (string, error) {
	delay := c.baseDelay
	var lastErr error

	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		if c.onAttempt != nil {
			c.onAttempt(previewOf(prompt))
		}

		resp, err := c.provider.Chat(ctx, messages)
		if err == nil {
			return resp.Content, nil
		}
		lastErr = err

		if IsRateLimit(err) && c.onRateLimit != nil {
			c.onRateLimit(fmt.Sprintf("%s rate limited, retrying in %s", c.provider.Name(), delay))
		}

		if attempt == c.maxAttempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}

	return "", fmt.Errorf("completion failed after %d attempts: %w", c.maxAttempts, lastErr)
}

// historyFor returns the turn history for a context id, loading it from the
// store on first sight of an unknown id.
func (c *Client) historyFor(ctx context.Context, contextID string) []ChatMessage {
	if contextID == "" {
		return nil
	}

	c.mu.Lock()
	history, ok := c.contexts[contextID]
	c.mu.Unlock()
	if ok {
		return history
	}

	if c.store != nil {
		if loaded, err := c.store.Load(ctx, contextID); err == nil && len(loaded) > 0 {
			c.mu.Lock()
			c.contexts[contextID] = loaded
			c.mu.Unlock()
			return loaded
		}
	}
	return nil
}

func (c *Client) recordExchange(ctx context.Context, contextID, prompt, reply string) {
	c.mu.Lock()
	c.contexts[contextID] = append(c.contexts[contextID],
		UserMessage(prompt),
		AssistantMessage(reply),
	)
	history := c.contexts[contextID]
	c.mu.Unlock()

	if c.store != nil {
		_ = c.store.Save(ctx, contextID, history) // Best-effort persistence
	}
}

// History returns a copy of the turn history for a context id.
func (c *Client) History(contextID string) []ChatMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	history := c.contexts[contextID]
	out := make([]ChatMessage, len(history))
	copy(out, history)
	return out
}

// IsRateLimit reports whether an error is a rate-limit condition from any
// supported provider.
func IsRateLimit(err error) bool {
	if err == nil {
		return false
	}

	var anthErr *anthropic.Error
	if errors.As(err, &anthErr) && anthErr.StatusCode == 429 {
		return true
	}

	var oaiErr *openai.APIError
	if errors.As(err, &oaiErr) && oaiErr.HTTPStatusCode == 429 {
		return true
	}

	// Gemini and stringly-typed provider errors.
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "rate_limit") ||
		strings.Contains(msg, "resource_exhausted") ||
		strings.Contains(msg, "429")
}

func previewOf(prompt string) string {
	trimmed := strings.TrimSpace(prompt)
	if len(trimmed) > promptPreviewLen {
		return trimmed[:promptPreviewLen] + "..."
	}
	return trimmed
}
