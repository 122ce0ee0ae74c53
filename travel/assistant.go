// Package travel implements the trip-planning assistant: parsing free-text
// travel requests into structured details, filling in fields the user left
// out across conversation turns, and calling the flight and weather tools.
package travel

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	jsonutil "magellan/internal/json"
	"magellan/llm"
)

// Unknown marks a travel detail the user has not provided yet.
const Unknown = "unknown"

const (
	plannerSystemPrompt = "You are a helpful travel planning assistant."
	parserSystemPrompt  = "You are a travel request parser. You extract structured information from natural language travel requests."
	updaterSystemPrompt = "You are a travel request parser. Return only valid JSON objects with no additional text."
)

const parseRequestTemplate = `Please parse this travel request and extract the key information. For dates, assume they are in M/D format for the year %d. If a key's value is not explicitly mentioned, mark it as 'unknown'. Return ONLY a JSON object with these exact keys:
- start_date: in YYYY-MM-DD format
- end_date: in YYYY-MM-DD format
- origin: the city the user is leaving from
- destination: the destination city

Travel request: %s

Respond with ONLY the JSON object, no other text.`

const updateFieldsTemplate = `The user provided the following additional information: '%s'
Current travel details: %s

Please update ONLY these missing fields if possible: %s
Rules:
1. If the information is invalid or unclear for any field, keep it as 'unknown'
2. Return ONLY a valid JSON object with all fields, including unchanged ones
3. Do not include any explanation text, ONLY the JSON object
4. Format dates as YYYY-MM-DD
5. Use lowercase city names

Response format example:
{
    "start_date": "2024-04-15",
    "end_date": "2024-04-20",
    "origin": "new york",
    "destination": "london"
}`

// Details holds the four facts needed before a trip can be planned.
// Fields the user has not supplied carry the Unknown marker.
type Details struct {
	StartDate   string `json:"start_date"`
	EndDate     string `json:"end_date"`
	Origin      string `json:"origin"`
	Destination string `json:"destination"`
}

// NewDetails returns Details with every field unknown.
func NewDetails() Details {
	return Details{
		StartDate:   Unknown,
		EndDate:     Unknown,
		Origin:      Unknown,
		Destination: Unknown,
	}
}

// Complete reports whether every field has been filled in.
func (d Details) Complete() bool {
	return len(d.MissingFields()) == 0
}

// MissingFields names the fields still unknown, in user-facing terms.
func (d Details) MissingFields() []string {
	var missing []string
	if d.StartDate == Unknown || d.StartDate == "" {
		missing = append(missing, "start date")
	}
	if d.EndDate == Unknown || d.EndDate == "" {
		missing = append(missing, "end date")
	}
	if d.Origin == Unknown || d.Origin == "" {
		missing = append(missing, "departure city")
	}
	if d.Destination == Unknown || d.Destination == "" {
		missing = append(missing, "destination")
	}
	return missing
}

// missingKeys names the unknown fields by their JSON keys, for prompts.
func (d Details) missingKeys() []string {
	var keys []string
	if d.StartDate == Unknown || d.StartDate == "" {
		keys = append(keys, "start_date")
	}
	if d.EndDate == Unknown || d.EndDate == "" {
		keys = append(keys, "end_date")
	}
	if d.Origin == Unknown || d.Origin == "" {
		keys = append(keys, "origin")
	}
	if d.Destination == Unknown || d.Destination == "" {
		keys = append(keys, "destination")
	}
	return keys
}

// Assistant drives trip planning conversations over an llm.Client, which
// supplies retry handling and per-context history.
type Assistant struct {
	llm  *llm.Client
	year int
}

// NewAssistant creates an assistant. year anchors M/D dates in requests
// that omit the year.
func NewAssistant(client *llm.Client, year int) *Assistant {
	return &Assistant{llm: client, year: year}
}

// NewContextID mints a conversation context for chat continuity.
func (a *Assistant) NewContextID() string {
	return a.llm.NewContextID()
}

// Chat sends a free-form planning message inside a conversation context.
func (a *Assistant) Chat(ctx context.Context, contextID, prompt string) (string, error) {
	return a.llm.CompleteInContextWithSystem(ctx, contextID, plannerSystemPrompt, prompt)
}

// ParseRequest extracts structured travel details from a natural-language
// request. Fields the request does not mention come back as Unknown.
func (a *Assistant) ParseRequest(ctx context.Context, request string) (Details, error) {
	prompt := fmt.Sprintf(parseRequestTemplate, a.year, request)

	response, err := a.llm.CompleteWithSystem(ctx, parserSystemPrompt, prompt)
	if err != nil {
		return Details{}, fmt.Errorf("parsing travel request: %w", err)
	}

	details, err := jsonutil.ExtractJSONFromResponse[Details](response)
	if err != nil {
		return Details{}, fmt.Errorf("parsing travel request: %w", err)
	}
	return details, nil
}

// UpdateMissingFields folds a follow-up answer into the current details,
// touching only the fields still unknown. An unparseable model response
// leaves the details unchanged rather than failing the conversation.
func (a *Assistant) UpdateMissingFields(ctx context.Context, userInput string, current Details) (Details, error) {
	missing := current.missingKeys()
	if len(missing) == 0 {
		return current, nil
	}

	currentJSON, err := json.MarshalIndent(current, "", "    ")
	if err != nil {
		return current, fmt.Errorf("encoding travel details: %w", err)
	}

	prompt := fmt.Sprintf(updateFieldsTemplate, userInput, currentJSON, strings.Join(missing, ", "))

	response, err := a.llm.CompleteWithSystem(ctx, updaterSystemPrompt, prompt)
	if err != nil {
		return current, fmt.Errorf("updating travel details: %w", err)
	}

	updated, err := jsonutil.ExtractJSONFromResponse[Details](response)
	if err != nil {
		return current, nil
	}

	// Known fields are pinned; the model only fills gaps.
	if current.StartDate != Unknown && current.StartDate != "" {
		updated.StartDate = current.StartDate
	}
	if current.EndDate != Unknown && current.EndDate != "" {
		updated.EndDate = current.EndDate
	}
	if current.Origin != Unknown && current.Origin != "" {
		updated.Origin = current.Origin
	}
	if current.Destination != Unknown && current.Destination != "" {
		updated.Destination = current.Destination
	}
	normalize(&updated)
	return updated, nil
}

func normalize(d *Details) {
	if strings.TrimSpace(d.StartDate) == "" {
		d.StartDate = Unknown
	}
	if strings.TrimSpace(d.EndDate) == "" {
		d.EndDate = Unknown
	}
	if strings.TrimSpace(d.Origin) == "" {
		d.Origin = Unknown
	}
	if strings.TrimSpace(d.Destination) == "" {
		d.Destination = Unknown
	}
}
