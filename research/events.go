// Progress events emitted by the research engine.
//
// Events form a closed set of variants, one payload shape per kind, so the
// presentation layer can switch on type instead of inspecting ad hoc
// payloads. Delivery is fire-and-forget: an absent observer never changes
// engine control flow.

package research

// Event is a progress notification from the research engine.
// The only implementations are the variants in this file.
type Event interface {
	isEvent()
}

// ResearchStart signals that a branch began researching a topic.
type ResearchStart struct {
	Topic string
}

// SourceProcessing signals that one search result is being analyzed.
type SourceProcessing struct {
	Title string
	URL   string
}

// NewLearning carries a single finding extracted from a source.
type NewLearning struct {
	Text string
}

// FollowupTopicEvent signals that a follow-up branch is about to be explored.
type FollowupTopicEvent struct {
	Query string
}

// RateLimit reports rate limiting, missing results, or other degraded
// conditions the user may want to see ("rate limited, falling back").
type RateLimit struct {
	Message string
}

// GeneratingReport signals that final report synthesis started.
type GeneratingReport struct {
	Info string
}

// ModelCall reports one language-model call attempt with a truncated
// prompt preview.
type ModelCall struct {
	Preview string
}

func (ResearchStart) isEvent()      {}
func (SourceProcessing) isEvent()   {}
func (NewLearning) isEvent()        {}
func (FollowupTopicEvent) isEvent() {}
func (RateLimit) isEvent()          {}
func (GeneratingReport) isEvent()   {}
func (ModelCall) isEvent()          {}

// Observer receives progress events. It must not block: events from
// concurrent branches interleave arbitrarily and a slow observer stalls
// the branch that emitted the event.
type Observer func(Event)
