package travel

import "strings"

// cityAirports maps lowercase city names to their airport codes, primary
// airport first for cities served by more than one.
var cityAirports = map[string][]string{
	"new york":      {"JFK", "LGA", "EWR"},
	"london":        {"LHR", "LGW", "STN"},
	"paris":         {"CDG", "ORY"},
	"tokyo":         {"HND", "NRT"},
	"seoul":         {"ICN"},
	"los angeles":   {"LAX"},
	"chicago":       {"ORD", "MDW"},
	"beijing":       {"PEK"},
	"shanghai":      {"PVG"},
	"dubai":         {"DXB"},
	"singapore":     {"SIN"},
	"hong kong":     {"HKG"},
	"sydney":        {"SYD"},
	"melbourne":     {"MEL"},
	"san francisco": {"SFO"},
	"austin":        {"AUS"},
	"seattle":       {"SEA"},
	"miami":         {"MIA"},
	"dallas":        {"DFW"},
	"houston":       {"IAH"},
	"atlanta":       {"ATL"},
	"boston":        {"BOS"},
	"washington":    {"IAD", "DCA"},
	"denver":        {"DEN"},
	"las vegas":     {"LAS"},
	"toronto":       {"YYZ"},
	"vancouver":     {"YVR"},
	"montreal":      {"YUL"},
}

// AirportCode converts a city name to its primary airport code. Unknown
// cities are uppercased and passed through on the assumption the caller
// already supplied an airport code.
func AirportCode(city string) string {
	city = strings.ToLower(strings.TrimSpace(city))
	if codes, ok := cityAirports[city]; ok {
		return codes[0]
	}
	return strings.ToUpper(city)
}
