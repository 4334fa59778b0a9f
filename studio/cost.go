package studio

import "productstudio/core"

// CostPolicy prices a request from its shape. Costs are computed once,
// before the reservation, and never change while the request runs.
type CostPolicy struct {
	FirstItem int64
	ExtraItem int64
	TextOnly  int64
	Edit      int64
}

// DefaultCostPolicy returns 16 for the first item, 4 per extra item, 20 for
// text-only and 16 for an edit.
func DefaultCostPolicy() CostPolicy {
	return CostPolicy{FirstItem: 16, ExtraItem: 4, TextOnly: 20, Edit: 16}
}

// CostPolicyFromConfig converts the configured prices.
func CostPolicyFromConfig(c core.CostConfig) CostPolicy {
	return CostPolicy{
		FirstItem: c.FirstItem,
		ExtraItem: c.ExtraItem,
		TextOnly:  c.TextOnly,
		Edit:      c.Edit,
	}
}

// BatchCost returns the price of a batch of items. Zero items is a
// text-to-image request.
func (p CostPolicy) BatchCost(items int) int64 {
	if items <= 0 {
		return p.TextOnly
	}
	return p.FirstItem + p.ExtraItem*int64(items-1)
}

// EditCost returns the flat price of a single-image edit.
func (p CostPolicy) EditCost() int64 {
	return p.Edit
}

// Units returns how many images a batch of items produces.
func Units(items int) int {
	if items <= 0 {
		return 1
	}
	return items
}
