package catalog

import "ledger-config/internal/entity"

// TransactionCode classifies ledger postings and how they move cash and quantity.
type TransactionCode struct {
	TransactionCode string `json:"transactionCode" validate:"required,max=10,alphanum"`
	Description     string `json:"description" validate:"required,max=250"`
	LedgerEffect    string `json:"ledgerEffect" validate:"required,oneof=Debit Credit None"`
	CashImpact      bool   `json:"cashImpact"`
	QuantityImpact  string `json:"quantityImpact" validate:"required,oneof=Increase Decrease None"`
	CostBasisRule   string `json:"costBasisRule"`
}

const KindTransactionCode = "transaction-code"

var TransactionCodeSchema = entity.Schema[TransactionCode]{
	Kind:      KindTransactionCode,
	Label:     "Transaction code",
	UniqueKey: []string{"transactionCode"},
	Display:   []string{"transactionCode", "description"},
	Refs: []entity.Ref{
		{Field: "costBasisRule", Kind: KindCostBasisRule, Display: costBasisRuleDisplay},
	},
	Normalize: func(t *TransactionCode) {
		t.TransactionCode = upper(t.TransactionCode)
	},
	Check: func(t *TransactionCode) map[string]string {
		if t.QuantityImpact != "None" && t.QuantityImpact != "" && t.CostBasisRule == "" {
			return map[string]string{"costBasisRule": "is required when quantityImpact is not None"}
		}
		return nil
	},
}
