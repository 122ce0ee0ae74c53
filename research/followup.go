package research

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	jsonutil "magellan/internal/json"
)

// FollowupTopic is a more specific sub-query proposed by the model,
// together with the goal the follow-up research hopes to satisfy.
type FollowupTopic struct {
	Query        string `json:"query"`
	ResearchGoal string `json:"research_goal"`
}

const followupPromptTemplate = `Given the following content from research about "%s", generate %d follow-up research topics.
Each topic should be more specific than the original query.

Content:
%s

Return exactly %d topics, each with:
1. A specific search query
2. The research goal explaining what we hope to learn

Format as a JSON array of objects with keys 'query' and 'research_goal'.`

// GenerateFollowupTopics asks the model for numTopics follow-up sub-queries
// derived from the accumulated findings. Any entry missing either field
// invalidates the whole batch. Parse and validation failures yield an empty
// list, never an error: zero follow-ups is a valid terminal condition for a
// branch. The result is truncated to numTopics even if more come back.
func (e *Engine) GenerateFollowupTopics(ctx context.Context, content, query string, numTopics int) []FollowupTopic {
	if numTopics < 1 {
		return nil
	}

	prompt := fmt.Sprintf(followupPromptTemplate, query, numTopics, content, numTopics)

	response, err := e.llm.Complete(ctx, prompt)
	if err != nil {
		e.logger.Warn("follow-up generation failed",
			zap.String("query", query),
			zap.Error(err))
		return nil
	}

	topics, err := jsonutil.ExtractJSONFromResponse[[]FollowupTopic](response)
	if err != nil {
		e.logger.Warn("could not parse follow-up topics",
			zap.String("query", query),
			zap.Error(err))
		return nil
	}

	// Reject the whole batch if any entry is incomplete: the upstream
	// format is self-contained objects, so a partial entry means the
	// response is not trustworthy.
	for _, topic := range topics {
		if strings.TrimSpace(topic.Query) == "" || strings.TrimSpace(topic.ResearchGoal) == "" {
			e.logger.Warn("follow-up batch rejected: entry missing query or research_goal",
				zap.String("query", query))
			return nil
		}
	}

	if len(topics) > numTopics {
		topics = topics[:numTopics]
	}
	return topics
}
