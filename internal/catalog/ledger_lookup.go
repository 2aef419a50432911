package catalog

import "ledger-config/internal/entity"

type LedgerLookup struct {
	LookupType  string `json:"lookupType" validate:"required,max=60"`
	LookupCode  string `json:"lookupCode" validate:"required,max=60"`
	LookupValue string `json:"lookupValue" validate:"required,max=250"`
	Description string `json:"description" validate:"max=500"`
	SortOrder   int    `json:"sortOrder" validate:"gte=0"`
}

const KindLedgerLookup = "ledger-lookup"

var LedgerLookupSchema = entity.Schema[LedgerLookup]{
	Kind:      KindLedgerLookup,
	Label:     "Ledger lookup",
	UniqueKey: []string{"lookupType", "lookupCode"},
	Display:   []string{"lookupType", "lookupCode", "lookupValue"},
}
