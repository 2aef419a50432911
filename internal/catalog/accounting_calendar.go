package catalog

import "ledger-config/internal/entity"

// AccountingCalendar defines the fiscal year and period granularity books are closed on.
type AccountingCalendar struct {
	CalendarName         string `json:"calendarName" validate:"required,max=120"`
	FiscalYearStartMonth int    `json:"fiscalYearStartMonth" validate:"required,min=1,max=12"`
	PeriodType           string `json:"periodType" validate:"required,oneof=Monthly Quarterly SemiAnnual Annual"`
	HolidayCalendar      string `json:"holidayCalendar"`
	Description          string `json:"description" validate:"max=500"`
}

const KindAccountingCalendar = "accounting-calendar"

var AccountingCalendarSchema = entity.Schema[AccountingCalendar]{
	Kind:      KindAccountingCalendar,
	Label:     "Accounting calendar",
	UniqueKey: []string{"calendarName"},
	Display:   []string{"calendarName", "periodType"},
	Refs: []entity.Ref{
		{Field: "holidayCalendar", Kind: KindHolidayCalendar, Display: holidayCalendarDisplay},
	},
}
