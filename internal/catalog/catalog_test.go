package catalog

import (
	"context"
	"fmt"
	"testing"

	"ledger-config/internal/entity"

	"github.com/stretchr/testify/require"
)

func newCatalog(t *testing.T) (*Catalog, *entity.MemoryStore) {
	t.Helper()
	store := entity.NewMemoryStore()
	c, err := New(store, entity.Options{})
	require.NoError(t, err)
	return c, store
}

func seedCalendar(t *testing.T, c *Catalog) string {
	t.Helper()
	rec, err := c.HolidayCalendars.Create(context.Background(), "u1",
		[]byte(`{"calendarCode":"nyse","calendarName":"New York","country":"us","weekendDays":"sat,sun","holidays":"2026-01-01;2026-12-25"}`))
	require.NoError(t, err)
	require.Equal(t, "NYSE", rec.Data.CalendarCode)
	return rec.ID
}

func usdPayload(calendarID string) []byte {
	return []byte(fmt.Sprintf(`{"currency":"USD","currencyName":"US Dollar","bankHolidays":%q,"settlementDays":2,"ISDACurrencyNotation":"USD","decimals":2,"roundingTruncation":false}`, calendarID))
}

func TestCurrency_CreateThenDuplicate(t *testing.T) {
	c, store := newCatalog(t)
	ctx := context.Background()
	cal := seedCalendar(t, c)

	rec, err := c.Currencies.Create(ctx, "u1", usdPayload(cal))
	require.NoError(t, err)
	require.Equal(t, "USD", rec.Data.Currency)
	require.Equal(t, "NYSE", rec.Refs["bankHolidays"].Display["calendarCode"])

	_, err = c.Currencies.Create(ctx, "u1", usdPayload(cal))
	require.ErrorContains(t, err, "already present")
	require.Equal(t, 1, store.Count(KindCurrency))
}

func TestCurrency_Rules(t *testing.T) {
	c, _ := newCatalog(t)
	cal := seedCalendar(t, c)

	_, err := c.Currencies.Create(context.Background(), "u1",
		[]byte(fmt.Sprintf(`{"currency":"QQQ","currencyName":"Bad","bankHolidays":%q,"settlementDays":11,"ISDACurrencyNotation":"U1","decimals":9}`, cal)))
	var verr *entity.ValidationError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, "must be an ISO 4217 currency code", verr.Fields["currency"])
	require.Contains(t, verr.Fields, "settlementDays")
	require.Contains(t, verr.Fields, "ISDACurrencyNotation")
	require.Contains(t, verr.Fields, "decimals")

	_, err = c.Currencies.Create(context.Background(), "u1", usdPayload("00000000-0000-0000-0000-000000000000"))
	var rerr *entity.ReferenceError
	require.ErrorAs(t, err, &rerr)
	require.Equal(t, "bankHolidays", rerr.Field)
}

func TestHolidayCalendar_Check(t *testing.T) {
	c, _ := newCatalog(t)
	_, err := c.HolidayCalendars.Create(context.Background(), "u1",
		[]byte(`{"calendarCode":"LSE","calendarName":"London","country":"GB","weekendDays":"SAT,FUNDAY","holidays":"2026-13-01"}`))
	var verr *entity.ValidationError
	require.ErrorAs(t, err, &verr)
	require.Contains(t, verr.Fields, "weekendDays")
	require.Contains(t, verr.Fields, "holidays")
}

func TestTransactionCode_QuantityImpactNeedsCostBasisRule(t *testing.T) {
	c, _ := newCatalog(t)
	ctx := context.Background()

	_, err := c.TransactionCodes.Create(ctx, "u1",
		[]byte(`{"transactionCode":"buy","description":"Buy","ledgerEffect":"Debit","cashImpact":true,"quantityImpact":"Increase"}`))
	var verr *entity.ValidationError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, "is required when quantityImpact is not None", verr.Fields["costBasisRule"])

	rec, err := c.TransactionCodes.Create(ctx, "u1",
		[]byte(`{"transactionCode":"fee","description":"Fee","ledgerEffect":"Credit","cashImpact":true,"quantityImpact":"None"}`))
	require.NoError(t, err)
	require.Equal(t, "FEE", rec.Data.TransactionCode)
}

func TestPriceTable_ToleranceBounds(t *testing.T) {
	c, _ := newCatalog(t)
	ctx := context.Background()
	cal := seedCalendar(t, c)
	usd, err := c.Currencies.Create(ctx, "u1", usdPayload(cal))
	require.NoError(t, err)

	body := `{"priceTableName":"EOD","currency":%q,"priceSource":"Vendor","priceType":"Close","tolerance":%s,"effectiveDate":"2026-01-02"}`

	_, err = c.PriceTables.Create(ctx, "u1", []byte(fmt.Sprintf(body, usd.ID, "100.5")))
	var verr *entity.ValidationError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, "must be between 0 and 100", verr.Fields["tolerance"])

	rec, err := c.PriceTables.Create(ctx, "u1", []byte(fmt.Sprintf(body, usd.ID, "2.5")))
	require.NoError(t, err)
	require.Equal(t, "2.5", rec.Data.Tolerance.String())

	_, err = c.PriceTables.CreateFromRow(ctx, "u1", map[string]string{
		"priceTableName": "EOD", "currency": usd.ID, "priceSource": "Vendor", "priceType": "Close",
		"tolerance": "1", "effectiveDate": "2026-01-02",
	})
	require.ErrorContains(t, err, "already present")
}

func TestCostBasisRule_CompositeKey(t *testing.T) {
	c, _ := newCatalog(t)
	ctx := context.Background()
	cal := seedCalendar(t, c)
	usd, err := c.Currencies.Create(ctx, "u1", usdPayload(cal))
	require.NoError(t, err)

	body := `{"ruleName":"Default","method":"FIFO","assetClass":%q,"currency":%q}`
	_, err = c.CostBasisRules.Create(ctx, "u1", []byte(fmt.Sprintf(body, "Equity", usd.ID)))
	require.NoError(t, err)
	_, err = c.CostBasisRules.Create(ctx, "u1", []byte(fmt.Sprintf(body, "Bond", usd.ID)))
	require.NoError(t, err)
	_, err = c.CostBasisRules.Create(ctx, "u1", []byte(fmt.Sprintf(body, "Equity", usd.ID)))
	require.ErrorContains(t, err, "already present")

	_, err = c.CostBasisRules.Create(ctx, "u1", []byte(fmt.Sprintf(`{"ruleName":"X","method":"Random","assetClass":"Equity","currency":%q}`, usd.ID)))
	var verr *entity.ValidationError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, "must be one of: FIFO, LIFO, HIFO, AverageCost, SpecificLot", verr.Fields["method"])
}

func TestLedgerLookup_SeparatorsInKeyValues(t *testing.T) {
	c, store := newCatalog(t)
	ctx := context.Background()

	_, err := c.LedgerLookups.Create(ctx, "u1", []byte(`{"lookupType":"a|lookupCode=b","lookupCode":"c","lookupValue":"first"}`))
	require.NoError(t, err)
	_, err = c.LedgerLookups.Create(ctx, "u1", []byte(`{"lookupType":"a","lookupCode":"b|lookupCode=c","lookupValue":"second"}`))
	require.NoError(t, err)
	require.Equal(t, 2, store.Count(KindLedgerLookup))

	_, err = c.LedgerLookups.Create(ctx, "u1", []byte(`{"lookupType":"a","lookupCode":"b|lookupCode=c","lookupValue":"again"}`))
	require.ErrorContains(t, err, "already present")
}
