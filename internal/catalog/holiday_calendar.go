package catalog

import (
	"strings"
	"time"

	"ledger-config/internal/entity"
)

// HolidayCalendar lists the non-business days of a market. Currencies settle against one.
type HolidayCalendar struct {
	CalendarCode string `json:"calendarCode" validate:"required,max=20"`
	CalendarName string `json:"calendarName" validate:"required,max=120"`
	Country      string `json:"country" validate:"required,iso3166_1_alpha2"`
	WeekendDays  string `json:"weekendDays" validate:"max=40"`
	// Holidays is a ';'-separated list of YYYY-MM-DD dates.
	Holidays string `json:"holidays"`
}

const KindHolidayCalendar = "holiday-calendar"

var holidayCalendarDisplay = []string{"calendarCode", "calendarName"}

var HolidayCalendarSchema = entity.Schema[HolidayCalendar]{
	Kind:      KindHolidayCalendar,
	Label:     "Holiday calendar",
	UniqueKey: []string{"calendarCode"},
	Display:   holidayCalendarDisplay,
	Normalize: func(h *HolidayCalendar) {
		h.CalendarCode = upper(h.CalendarCode)
		h.Country = upper(h.Country)
		h.WeekendDays = upper(h.WeekendDays)
	},
	Check: func(h *HolidayCalendar) map[string]string {
		out := map[string]string{}
		for _, d := range splitList(h.WeekendDays, ",") {
			if _, ok := weekdays[d]; !ok {
				out["weekendDays"] = "must list weekday abbreviations such as SAT,SUN"
				break
			}
		}
		for _, d := range splitList(h.Holidays, ";") {
			if _, err := time.Parse(time.DateOnly, d); err != nil {
				out["holidays"] = "must be YYYY-MM-DD dates separated by ';'"
				break
			}
		}
		return out
	},
}

var weekdays = map[string]struct{}{
	"MON": {}, "TUE": {}, "WED": {}, "THU": {}, "FRI": {}, "SAT": {}, "SUN": {},
}

func upper(s string) string { return strings.ToUpper(strings.TrimSpace(s)) }

func splitList(s, sep string) []string {
	var out []string
	for _, p := range strings.Split(s, sep) {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
