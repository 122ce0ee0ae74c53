package travel

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
)

func serpResponse(prices ...int) flightSearchResponse {
	var resp flightSearchResponse
	for _, price := range prices {
		resp.BestFlights = append(resp.BestFlights, flightOption{
			Price:         price,
			TotalDuration: 410,
			Flights: []flightSegment{{
				DepartureAirport: airportStop{ID: "JFK", Time: "2026-06-01 00:15"},
				ArrivalAirport:   airportStop{ID: "CDG", Time: "2026-06-01 13:05"},
				Airline:          "Norse Atlantic Airways",
				FlightNumber:     "N0 302",
			}},
		})
	}
	return resp
}

func TestFlightSearchFormatsOptions(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("engine") != "google_flights" || q.Get("api_key") != "test-key" {
			t.Errorf("missing query params: %v", q)
		}
		if q.Get("departure_id") != "JFK" || q.Get("arrival_id") != "CDG" {
			t.Errorf("city names not mapped to airport codes: %v", q)
		}
		resp := serpResponse(639)
		resp.BestFlights[0].Layovers = []layover{{ID: "LGW", Duration: 710}}
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client := NewFlightClient("test-key").WithBaseURL(server.URL)
	got, err := client.Search(context.Background(), FlightQuery{
		Departure:     "new york",
		Arrival:       "paris",
		DepartureDate: "2026-06-01",
	})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}

	for _, want := range []string{
		"Option 1:",
		"Price: $639",
		"Duration: 6h 50m",
		"Norse Atlantic Airways N0 302",
		"JFK 2026-06-01 00:15 → CDG 2026-06-01 13:05",
		"Layover at LGW: 11h 50m",
		optionSeparator,
	} {
		if !strings.Contains(got, want) {
			t.Errorf("result missing %q:\n%s", want, got)
		}
	}
}

func TestFlightSearchCapsOptionsAtFive(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(serpResponse(100, 200, 300, 400, 500, 600, 700))
	}))
	defer server.Close()

	client := NewFlightClient("k").WithBaseURL(server.URL)
	got, err := client.Search(context.Background(), FlightQuery{
		Departure:     "boston",
		Arrival:       "london",
		DepartureDate: "2026-06-01",
	})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if strings.Count(got, "Option ") != 5 {
		t.Errorf("expected 5 options, got %d:\n%s", strings.Count(got, "Option "), got)
	}
	if strings.Contains(got, "Option 6:") {
		t.Error("sixth option leaked through")
	}
}

func TestFlightSearchRoundTripFetchesBothLegs(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		q := r.URL.Query()
		if q.Get("departure_id") == "CDG" {
			// Return leg swaps the endpoints.
			if q.Get("arrival_id") != "JFK" {
				t.Errorf("return leg not swapped: %v", q)
			}
			if q.Get("outbound_date") != "2026-06-08" {
				t.Errorf("return leg date: %v", q)
			}
		}
		json.NewEncoder(w).Encode(serpResponse(500))
	}))
	defer server.Close()

	client := NewFlightClient("k").WithBaseURL(server.URL)
	got, err := client.Search(context.Background(), FlightQuery{
		Departure:     "new york",
		Arrival:       "paris",
		DepartureDate: "2026-06-01",
		ReturnDate:    "2026-06-08",
	})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if calls.Load() != 2 {
		t.Errorf("expected 2 upstream calls, got %d", calls.Load())
	}
	if !strings.Contains(got, "Return options:") {
		t.Errorf("missing return section:\n%s", got)
	}
}

func TestFlightSearchFailedReturnLegDegrades(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("departure_id") == "CDG" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(serpResponse(500))
	}))
	defer server.Close()

	client := NewFlightClient("k").WithBaseURL(server.URL)
	got, err := client.Search(context.Background(), FlightQuery{
		Departure:     "new york",
		Arrival:       "paris",
		DepartureDate: "2026-06-01",
		ReturnDate:    "2026-06-08",
	})
	if err != nil {
		t.Fatalf("Search should tolerate a failed return leg: %v", err)
	}
	if !strings.Contains(got, "Option 1:") {
		t.Errorf("outbound options missing:\n%s", got)
	}
	if strings.Contains(got, "Return options:") {
		t.Error("return section should be absent when the leg failed")
	}
}

func TestFlightSearchNoFlights(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(flightSearchResponse{})
	}))
	defer server.Close()

	client := NewFlightClient("k").WithBaseURL(server.URL)
	got, err := client.Search(context.Background(), FlightQuery{
		Departure:     "austin",
		Arrival:       "denver",
		DepartureDate: "2026-06-01",
	})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if got != "No flights found for the specified route and dates." {
		t.Errorf("unexpected message: %q", got)
	}
}

func TestFlightSearchRejectsBadDates(t *testing.T) {
	client := NewFlightClient("k")
	if _, err := client.Search(context.Background(), FlightQuery{
		Departure:     "austin",
		Arrival:       "denver",
		DepartureDate: "06/01/2026",
	}); err == nil {
		t.Error("expected error for malformed departure date")
	}
	if _, err := client.Search(context.Background(), FlightQuery{
		Departure:     "austin",
		Arrival:       "denver",
		DepartureDate: "2026-06-01",
		ReturnDate:    "junk",
	}); err == nil {
		t.Error("expected error for malformed return date")
	}
}

func TestFlightSearchAcceptsDateWithTime(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("outbound_date"); got != "2026-06-01" {
			t.Errorf("time suffix not stripped: %q", got)
		}
		json.NewEncoder(w).Encode(serpResponse(100))
	}))
	defer server.Close()

	client := NewFlightClient("k").WithBaseURL(server.URL)
	if _, err := client.Search(context.Background(), FlightQuery{
		Departure:     "austin",
		Arrival:       "denver",
		DepartureDate: "2026-06-01 09:30",
	}); err != nil {
		t.Fatalf("Search: %v", err)
	}
}
