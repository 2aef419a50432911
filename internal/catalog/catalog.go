package catalog

import (
	"fmt"

	"ledger-config/internal/entity"
)

// Catalog holds one service per config entity kind, all sharing a store and pipeline options.
type Catalog struct {
	HolidayCalendars    *entity.Service[HolidayCalendar]
	Currencies          *entity.Service[Currency]
	AccountingCalendars *entity.Service[AccountingCalendar]
	CostBasisRules      *entity.Service[CostBasisRule]
	LedgerLookups       *entity.Service[LedgerLookup]
	TransactionCodes    *entity.Service[TransactionCode]
	PriceTables         *entity.Service[PriceTable]
}

func New(store entity.Store, opts entity.Options) (*Catalog, error) {
	if opts.Validator == nil {
		opts.Validator = entity.NewValidator()
	}
	c := &Catalog{}
	var err error
	if c.HolidayCalendars, err = entity.NewService(HolidayCalendarSchema, store, opts); err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}
	if c.Currencies, err = entity.NewService(CurrencySchema, store, opts); err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}
	if c.AccountingCalendars, err = entity.NewService(AccountingCalendarSchema, store, opts); err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}
	if c.CostBasisRules, err = entity.NewService(CostBasisRuleSchema, store, opts); err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}
	if c.LedgerLookups, err = entity.NewService(LedgerLookupSchema, store, opts); err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}
	if c.TransactionCodes, err = entity.NewService(TransactionCodeSchema, store, opts); err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}
	if c.PriceTables, err = entity.NewService(PriceTableSchema, store, opts); err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}
	return c, nil
}
