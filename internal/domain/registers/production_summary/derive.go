package production_summary

import (
	"github.com/shopspring/decimal"

	"factorydesk/internal/core/apperror"
	"factorydesk/internal/core/types"
)

var one = decimal.NewFromInt(1)

// Inputs are the user-editable production inputs after coercion.
type Inputs struct {
	PhysicalStock types.Quantity
	BatchAdjusted types.Quantity
	QtyPerBatch   types.Quantity
}

// Derived are the figures computed from the sales total and the inputs.
type Derived struct {
	ToBeProducedDay        types.Quantity
	ProductionFinalBatches types.Quantity
	ProduceBatches         types.Quantity
	ToBeProducedBatches    types.Quantity
	ExpiryShortage         types.Quantity
}

// Derive computes the production figures. All outputs are rounded half away
// from zero to two places; a non-positive QtyPerBatch is treated as 1.
func Derive(total types.Quantity, in Inputs) Derived {
	qty := in.QtyPerBatch
	if !qty.IsPositive() {
		qty = one
	}

	day := types.Round2(types.NonNegative(total.Sub(in.PhysicalStock)))
	final := types.Round2(in.BatchAdjusted.Mul(qty))
	batches := types.DivRound2(day, qty)

	return Derived{
		ToBeProducedDay:        day,
		ProductionFinalBatches: final,
		ProduceBatches:         batches,
		ToBeProducedBatches:    batches,
		ExpiryShortage:         types.Round2(final.Sub(day)),
	}
}

// InputsPatch carries the inputs present in an update request.
type InputsPatch struct {
	PhysicalStock types.OptionalNumber `json:"physicalStock"`
	BatchAdjusted types.OptionalNumber `json:"batchAdjusted"`
	QtyPerBatch   types.OptionalNumber `json:"qtyPerBatch"`
}

// IsEmpty reports whether no input is present.
func (p InputsPatch) IsEmpty() bool {
	return !p.PhysicalStock.Set && !p.BatchAdjusted.Set && !p.QtyPerBatch.Set
}

// Merge applies the present fields over current. Empty or unparseable
// values fall back to 0 for stock and batchAdjusted and to 1 for
// qtyPerBatch; qtyPerBatch <= 0 becomes 1. Negative stock or batchAdjusted
// is rejected.
func (p InputsPatch) Merge(current Inputs) (Inputs, error) {
	out := current

	if p.PhysicalStock.Set {
		v := p.PhysicalStock.OrDefault(decimal.Zero)
		if v.IsNegative() {
			return Inputs{}, apperror.NewValidation("physicalStock must not be negative").
				WithDetail("physicalStock", v.String())
		}
		out.PhysicalStock = v
	}

	if p.BatchAdjusted.Set {
		v := p.BatchAdjusted.OrDefault(decimal.Zero)
		if v.IsNegative() {
			return Inputs{}, apperror.NewValidation("batchAdjusted must not be negative").
				WithDetail("batchAdjusted", v.String())
		}
		out.BatchAdjusted = v
	}

	if p.QtyPerBatch.Set {
		out.QtyPerBatch = p.QtyPerBatch.OrDefault(one)
	}
	if !out.QtyPerBatch.IsPositive() {
		out.QtyPerBatch = one
	}

	return out, nil
}
