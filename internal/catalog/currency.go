package catalog

import "ledger-config/internal/entity"

type Currency struct {
	Currency             string `json:"currency" validate:"required,iso4217"`
	CurrencyName         string `json:"currencyName" validate:"required,max=120"`
	BankHolidays         string `json:"bankHolidays" validate:"required"`
	SettlementDays       int    `json:"settlementDays" validate:"gte=0,lte=10"`
	ISDACurrencyNotation string `json:"ISDACurrencyNotation" validate:"required,len=3,alpha"`
	Decimals             int    `json:"decimals" validate:"gte=0,lte=8"`
	RoundingTruncation   bool   `json:"roundingTruncation"`
}

const KindCurrency = "currency"

var currencyDisplay = []string{"currency", "currencyName"}

var CurrencySchema = entity.Schema[Currency]{
	Kind:      KindCurrency,
	Label:     "Currency",
	UniqueKey: []string{"currency"},
	Display:   currencyDisplay,
	Refs: []entity.Ref{
		{Field: "bankHolidays", Kind: KindHolidayCalendar, Display: holidayCalendarDisplay},
	},
	Normalize: func(c *Currency) {
		c.Currency = upper(c.Currency)
		c.ISDACurrencyNotation = upper(c.ISDACurrencyNotation)
	},
}
