package travel

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	defaultSerpAPIURL = "https://serpapi.com/search"
	maxFlightOptions  = 5
	optionSeparator   = "----------------------------------------"
)

// FlightQuery describes one flight search. ReturnDate empty means one way.
type FlightQuery struct {
	Departure     string
	Arrival       string
	DepartureDate string
	ReturnDate    string
}

// FlightClient searches flights through the SerpApi Google Flights engine.
type FlightClient struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewFlightClient creates a client authenticated with the given API key.
func NewFlightClient(apiKey string) *FlightClient {
	return &FlightClient{
		apiKey:     apiKey,
		baseURL:    defaultSerpAPIURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// WithBaseURL overrides the API endpoint, mainly for tests.
func (c *FlightClient) WithBaseURL(u string) *FlightClient {
	c.baseURL = u
	return c
}

// WithHTTPClient overrides the underlying HTTP client.
func (c *FlightClient) WithHTTPClient(hc *http.Client) *FlightClient {
	c.httpClient = hc
	return c
}

type airportStop struct {
	ID   string `json:"id"`
	Time string `json:"time"`
}

type flightSegment struct {
	DepartureAirport airportStop `json:"departure_airport"`
	ArrivalAirport   airportStop `json:"arrival_airport"`
	Airline          string      `json:"airline"`
	FlightNumber     string      `json:"flight_number"`
}

type layover struct {
	ID       string `json:"id"`
	Duration int    `json:"duration"`
}

type flightOption struct {
	Price         int             `json:"price"`
	TotalDuration int             `json:"total_duration"`
	Flights       []flightSegment `json:"flights"`
	Layovers      []layover       `json:"layovers"`
}

type flightSearchResponse struct {
	BestFlights  []flightOption `json:"best_flights"`
	OtherFlights []flightOption `json:"other_flights"`
}

// Search finds flights for the query. Round trips fetch the outbound and
// return legs as two one-way searches in parallel; a failed return leg
// degrades to outbound-only results instead of failing the search.
// The result is a plain-text block of numbered options.
func (c *FlightClient) Search(ctx context.Context, q FlightQuery) (string, error) {
	departureCode := AirportCode(q.Departure)
	arrivalCode := AirportCode(q.Arrival)

	departureDate, err := normalizeISODate(q.DepartureDate)
	if err != nil {
		return "", fmt.Errorf("invalid departure date: %w", err)
	}

	var returnDate string
	if q.ReturnDate != "" {
		returnDate, err = normalizeISODate(q.ReturnDate)
		if err != nil {
			return "", fmt.Errorf("invalid return date: %w", err)
		}
	}

	var outbound, inbound []flightOption
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		outbound, err = c.searchOneWay(gctx, departureCode, arrivalCode, departureDate)
		return err
	})
	if returnDate != "" {
		g.Go(func() error {
			options, err := c.searchOneWay(gctx, arrivalCode, departureCode, returnDate)
			if err != nil {
				return nil
			}
			inbound = options
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}

	if len(outbound) == 0 {
		return "No flights found for the specified route and dates.", nil
	}

	var sections []string
	sections = append(sections, formatOptions(outbound))
	if len(inbound) > 0 {
		sections = append(sections, "Return options:", formatOptions(inbound))
	}
	return strings.Join(sections, "\n"), nil
}

func (c *FlightClient) searchOneWay(ctx context.Context, departureID, arrivalID, date string) ([]flightOption, error) {
	params := url.Values{
		"engine":        {"google_flights"},
		"departure_id":  {departureID},
		"arrival_id":    {arrivalID},
		"outbound_date": {date},
		"currency":      {"USD"},
		"hl":            {"en"},
		"type":          {"2"},
		"api_key":       {c.apiKey},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("building flight request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching flight information: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("flight search returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var parsed flightSearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decoding flight response: %w", err)
	}

	return append(parsed.BestFlights, parsed.OtherFlights...), nil
}

// formatOptions renders up to maxFlightOptions flights as numbered text
// blocks separated by a dashed line.
func formatOptions(options []flightOption) string {
	if len(options) > maxFlightOptions {
		options = options[:maxFlightOptions]
	}

	var lines []string
	for i, flight := range options {
		lines = append(lines, fmt.Sprintf("Option %d:", i+1))
		if flight.Price > 0 {
			lines = append(lines, fmt.Sprintf("Price: $%d", flight.Price))
		}
		if flight.TotalDuration > 0 {
			lines = append(lines, fmt.Sprintf("Duration: %s", formatDuration(flight.TotalDuration)))
		}
		for _, segment := range flight.Flights {
			airline := segment.Airline
			if airline == "" {
				airline = "Unknown Airline"
			}
			lines = append(lines,
				fmt.Sprintf("\n%s %s", airline, segment.FlightNumber),
				fmt.Sprintf("%s %s → %s %s",
					segment.DepartureAirport.ID, segment.DepartureAirport.Time,
					segment.ArrivalAirport.ID, segment.ArrivalAirport.Time))
		}
		for _, stop := range flight.Layovers {
			lines = append(lines, fmt.Sprintf("Layover at %s: %s", stop.ID, formatDuration(stop.Duration)))
		}
		lines = append(lines, optionSeparator)
	}
	return strings.Join(lines, "\n")
}

func formatDuration(minutes int) string {
	return fmt.Sprintf("%dh %dm", minutes/60, minutes%60)
}

// normalizeISODate accepts "YYYY-MM-DD" optionally followed by a time of
// day and returns the bare date.
func normalizeISODate(s string) (string, error) {
	datePart := strings.Fields(strings.TrimSpace(s))
	if len(datePart) == 0 {
		return "", fmt.Errorf("empty date")
	}
	d, err := time.Parse(dateLayout, datePart[0])
	if err != nil {
		return "", fmt.Errorf("use YYYY-MM-DD: %w", err)
	}
	return d.Format(dateLayout), nil
}
