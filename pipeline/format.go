package pipeline

import (
	"fmt"
	"strings"
	"time"

	"tourdoc/apperr"
	"tourdoc/document"
	"tourdoc/models"
)

const (
	dateLayout    = "2006-01-02"
	longDate      = "2 January 2006"
	dayDate       = "Monday, 2 January 2006"
	noOvernight   = "No overnight stay"
	hotelTBC      = "Overnight stay (hotel to be confirmed)"
	overnightText = "Overnight at %s"
)

type SummaryRow struct {
	Day      int
	Date     string
	Place    string
	Activity string
}

type DetailBlock struct {
	Day         int
	Date        string
	Place       string
	Activity    string
	Description string
	Meals       string
	Overnight   string
}

type AccommodationRow struct {
	Day   int
	Date  string
	Place string
	Hotel string
}

// Formatted is an itinerary with every display field worked out.
type Formatted struct {
	Company        models.CompanyInfo
	TouristName    string
	Route          string
	StartDate      time.Time
	EndDate        time.Time
	DateRange      string
	TotalDays      int
	TotalNights    int
	Travelers      int
	TravelersLabel string
	GeneratedOn    string

	Summary       []SummaryRow
	Details       []DetailBlock
	Accommodation []AccommodationRow
}

// Format derives the document fields of an itinerary.
func Format(it *models.Itinerary, company models.CompanyInfo, now time.Time) (Formatted, error) {
	p := it.Data
	start, err := time.Parse(dateLayout, strings.TrimSpace(p.StartDate))
	if err != nil {
		return Formatted{}, apperr.Validation("pipeline.Format", "start date %q is not YYYY-MM-DD", p.StartDate)
	}
	if p.Days < 1 {
		return Formatted{}, apperr.Validation("pipeline.Format", "day count must be at least 1, got %d", p.Days)
	}
	end := start.AddDate(0, 0, p.Days-1)

	f := Formatted{
		Company:        company,
		TouristName:    strings.TrimSpace(p.TouristName),
		Route:          strings.TrimSpace(p.Route),
		StartDate:      start,
		EndDate:        end,
		DateRange:      DateRange(start, p.Days),
		TotalDays:      p.Days,
		TotalNights:    p.Days - 1,
		Travelers:      p.Travelers,
		TravelersLabel: TravelersLabel(p.Travelers),
		GeneratedOn:    now.Format(longDate),
	}

	for i, plan := range p.DailyPlans {
		day := i + 1
		date := start.AddDate(0, 0, i).Format(dayDate)
		place := strings.TrimSpace(plan.Place)
		activity := plan.ResolvedActivity()
		hotel := plan.ResolvedHotel()

		f.Summary = append(f.Summary, SummaryRow{Day: day, Date: date, Place: place, Activity: activity})
		f.Details = append(f.Details, DetailBlock{
			Day:         day,
			Date:        date,
			Place:       place,
			Activity:    activity,
			Description: strings.TrimSpace(plan.Description),
			Meals:       MealTriplet(plan.Meals),
			Overnight:   overnight(plan.OvernightStay, hotel),
		})
		if plan.OvernightStay && hotel != "" {
			f.Accommodation = append(f.Accommodation, AccommodationRow{Day: day, Date: date, Place: place, Hotel: hotel})
		}
	}
	return f, nil
}

// DateRange renders "1 March 2026 - 4 March 2026", or a single date for one day.
func DateRange(start time.Time, days int) string {
	if days <= 1 {
		return start.Format(longDate)
	}
	return start.Format(longDate) + " - " + start.AddDate(0, 0, days-1).Format(longDate)
}

func TravelersLabel(n int) string {
	if n == 1 {
		return "1 Traveler"
	}
	return fmt.Sprintf("%d Travelers", n)
}

// MealTriplet renders the meal flags as "(B/L/D)" with "-" for a skipped meal.
func MealTriplet(m *models.Meals) string {
	if m == nil {
		m = &models.Meals{}
	}
	flag := func(on bool, letter string) string {
		if on {
			return letter
		}
		return "-"
	}
	return "(" + flag(m.Breakfast, "B") + "/" + flag(m.Lunch, "L") + "/" + flag(m.Dinner, "D") + ")"
}

func overnight(stay bool, hotel string) string {
	switch {
	case hotel != "" && stay:
		return fmt.Sprintf(overnightText, hotel)
	case stay:
		return hotelTBC
	default:
		return noOvernight
	}
}

// Data is the template view of f.
func (f Formatted) Data() document.Data {
	summary := make([]map[string]any, 0, len(f.Summary))
	for _, r := range f.Summary {
		summary = append(summary, map[string]any{
			"day": r.Day, "date": r.Date, "place": r.Place, "activity": r.Activity,
		})
	}
	details := make([]map[string]any, 0, len(f.Details))
	for _, d := range f.Details {
		details = append(details, map[string]any{
			"day": d.Day, "date": d.Date, "place": d.Place, "activity": d.Activity,
			"description": d.Description, "meals": d.Meals, "overnight": d.Overnight,
		})
	}
	accommodation := make([]map[string]any, 0, len(f.Accommodation))
	for _, a := range f.Accommodation {
		accommodation = append(accommodation, map[string]any{
			"day": a.Day, "date": a.Date, "place": a.Place, "hotel": a.Hotel,
		})
	}

	return document.Data{
		"company_name":    f.Company.Name,
		"company_address": f.Company.Address,
		"company_phone":   f.Company.Phone,
		"company_email":   f.Company.Email,
		"company_website": f.Company.Website,
		"tourist_name":    f.TouristName,
		"route":           f.Route,
		"start_date":      f.StartDate.Format(longDate),
		"end_date":        f.EndDate.Format(longDate),
		"date_range":      f.DateRange,
		"total_days":      f.TotalDays,
		"total_nights":    f.TotalNights,
		"travelers":       f.Travelers,
		"travelers_label": f.TravelersLabel,
		"generated_on":    f.GeneratedOn,
		"summary":         summary,
		"details":         details,
		"accommodation":   accommodation,
	}
}
