package minisum

import (
	"github.com/perbu/minisum/pkg/tokens"
)

// Cost returns the estimated cost of one unit
func Cost(est tokens.Estimator, u SummaryUnit) int {
	return est.Count(u.Text)
}

// TotalCost sums the cost of all units
func TotalCost(est tokens.Estimator, units []SummaryUnit) int {
	return tokens.Total(est, Texts(units)...)
}

// Partition splits units into contiguous sub-lists whose total cost stays
// within budget. It is a single greedy pass: a unit joins the current
// sub-list while the sum fits, otherwise it starts the next one. A unit
// that alone exceeds the budget gets a sub-list of its own. Order is kept
// within and across sub-lists and every unit appears exactly once.
//
// The sub-lists share the backing array of units but have their capacity
// clipped, so appending to one never overwrites another.
func Partition(units []SummaryUnit, budget int, est tokens.Estimator) [][]SummaryUnit {
	if len(units) == 0 {
		return nil
	}
	if budget < 1 {
		budget = 1
	}

	var parts [][]SummaryUnit
	start, running := 0, 0
	for i, u := range units {
		c := Cost(est, u)
		if i > start && running+c > budget {
			parts = append(parts, units[start:i:i])
			start, running = i, 0
		}
		running += c
	}
	parts = append(parts, units[start:len(units):len(units)])

	return parts
}
