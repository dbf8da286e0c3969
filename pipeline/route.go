package pipeline

import (
	"strings"
	"unicode"

	"tourdoc/apperr"
)

// EncodeRoute turns "Colombo - Kandy - Ella" into the map page's route
// parameter: "&start;Colombo&Kandy&end;Ella". Whitespace inside the first
// place is removed; the others are kept as typed.
func EncodeRoute(route string) (string, error) {
	var places []string
	for _, p := range strings.Split(route, "-") {
		if p = strings.TrimSpace(p); p != "" {
			places = append(places, p)
		}
	}
	if len(places) < 2 {
		return "", apperr.Validation("pipeline.EncodeRoute", "route needs at least two places, got %d", len(places))
	}

	first := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, places[0])

	var b strings.Builder
	b.WriteString("&start;")
	b.WriteString(first)
	for _, mid := range places[1 : len(places)-1] {
		b.WriteString("&")
		b.WriteString(mid)
	}
	b.WriteString("&end;")
	b.WriteString(places[len(places)-1])
	return b.String(), nil
}
