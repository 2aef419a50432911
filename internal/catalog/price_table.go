package catalog

import (
	"ledger-config/internal/entity"

	"github.com/shopspring/decimal"
)

// PriceTable names a source of security prices in one currency. Tolerance is the accepted
// day-over-day move, in percent, before a price is flagged.
type PriceTable struct {
	PriceTableName string          `json:"priceTableName" validate:"required,max=120"`
	Currency       string          `json:"currency" validate:"required"`
	PriceSource    string          `json:"priceSource" validate:"required,max=60"`
	PriceType      string          `json:"priceType" validate:"required,oneof=Close Bid Ask Mid NAV"`
	Tolerance      decimal.Decimal `json:"tolerance"`
	EffectiveDate  string          `json:"effectiveDate" validate:"required,datetime=2006-01-02"`
}

const KindPriceTable = "price-table"

var maxTolerance = decimal.NewFromInt(100)

var PriceTableSchema = entity.Schema[PriceTable]{
	Kind:      KindPriceTable,
	Label:     "Price table",
	UniqueKey: []string{"priceTableName", "currency"},
	Display:   []string{"priceTableName", "priceSource"},
	Refs: []entity.Ref{
		{Field: "currency", Kind: KindCurrency, Display: currencyDisplay},
	},
	Check: func(p *PriceTable) map[string]string {
		if p.Tolerance.IsNegative() || p.Tolerance.GreaterThan(maxTolerance) {
			return map[string]string{"tolerance": "must be between 0 and 100"}
		}
		return nil
	},
}
