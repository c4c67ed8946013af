package selection

import (
	"sort"

	"github.com/ledgerline/paysync/internal/domain"
)

// Prioritize orders payments for processing. Customers with an explicit
// priority entry come first (lower value wins), then larger amounts, then
// reference number for a stable order.
func Prioritize(payments []*domain.Payment, priorities map[string]int) []*domain.Payment {
	out := make([]*domain.Payment, len(payments))
	copy(out, payments)

	sort.Slice(out, func(i, j int) bool {
		// 1. Explicit customer priority (lower value first)
		pi, pj := customerOrder(out[i].CustomerID, priorities), customerOrder(out[j].CustomerID, priorities)
		if pi != pj {
			return pi < pj
		}

		// 2. Amount (largest outstanding first)
		if !out[i].Amount.Equal(out[j].Amount) {
			return out[i].Amount.GreaterThan(out[j].Amount)
		}

		// 3. Reference number (stable tie-break)
		return out[i].RefNbr < out[j].RefNbr
	})

	return out
}

func customerOrder(customerID string, priorities map[string]int) int {
	if p, ok := priorities[customerID]; ok {
		return p
	}
	// Unprioritized customers sort after every explicit entry
	return int(^uint(0) >> 1)
}
