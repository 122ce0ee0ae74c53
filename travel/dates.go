package travel

import (
	"fmt"
	"time"
)

const dateLayout = "2006-01-02"

// DateRange returns every ISO date from start through end inclusive.
func DateRange(start, end string) ([]string, error) {
	startDate, err := time.Parse(dateLayout, start)
	if err != nil {
		return nil, fmt.Errorf("invalid start date %q: %w", start, err)
	}
	endDate, err := time.Parse(dateLayout, end)
	if err != nil {
		return nil, fmt.Errorf("invalid end date %q: %w", end, err)
	}
	if endDate.Before(startDate) {
		return nil, fmt.Errorf("end date %s precedes start date %s", end, start)
	}

	var dates []string
	for d := startDate; !d.After(endDate); d = d.AddDate(0, 0, 1) {
		dates = append(dates, d.Format(dateLayout))
	}
	return dates, nil
}

// humanDate renders an ISO date as "January 2" for prompt text.
func humanDate(iso string) (string, error) {
	d, err := time.Parse(dateLayout, iso)
	if err != nil {
		return "", fmt.Errorf("invalid date %q: %w", iso, err)
	}
	return d.Format("January 2"), nil
}
