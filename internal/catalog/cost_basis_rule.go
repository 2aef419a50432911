package catalog

import "ledger-config/internal/entity"

// CostBasisRule selects the lot relief method applied to an asset class.
type CostBasisRule struct {
	RuleName    string `json:"ruleName" validate:"required,max=120"`
	Method      string `json:"method" validate:"required,oneof=FIFO LIFO HIFO AverageCost SpecificLot"`
	AssetClass  string `json:"assetClass" validate:"required,max=60"`
	Currency    string `json:"currency" validate:"required"`
	Description string `json:"description" validate:"max=500"`
}

const KindCostBasisRule = "cost-basis-rule"

var costBasisRuleDisplay = []string{"ruleName", "method", "assetClass"}

var CostBasisRuleSchema = entity.Schema[CostBasisRule]{
	Kind:      KindCostBasisRule,
	Label:     "Cost basis rule",
	UniqueKey: []string{"ruleName", "assetClass"},
	Display:   costBasisRuleDisplay,
	Refs: []entity.Ref{
		{Field: "currency", Kind: KindCurrency, Display: currencyDisplay},
	},
}
