package minisum

import (
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/perbu/minisum/pkg/tokens"
)

func unitsOfCost(costs ...int) []SummaryUnit {
	units := make([]SummaryUnit, len(costs))
	for i, c := range costs {
		// prefix each unit with a distinct letter so they can be told apart
		units[i] = SummaryUnit{Text: string(rune('a'+i%26)) + strings.Repeat("x", c-1)}
	}
	return units
}

func costsOf(parts [][]SummaryUnit) [][]int {
	out := make([][]int, len(parts))
	for i, p := range parts {
		for _, u := range p {
			out[i] = append(out[i], Cost(tokens.Chars{}, u))
		}
	}
	return out
}

func TestPartition(t *testing.T) {
	tests := []struct {
		name   string
		costs  []int
		budget int
		want   [][]int
	}{
		{"empty", nil, 1000, nil},
		{"fits in one", []int{100, 100, 100}, 1000, [][]int{{100, 100, 100}}},
		{"exact budget", []int{500, 500, 1}, 1000, [][]int{{500, 500}, {1}}},
		{"five 600s", []int{600, 600, 600, 600, 600}, 1000, [][]int{{600}, {600}, {600}, {600}, {600}}},
		{"oversized alone", []int{5000}, 1000, [][]int{{5000}}},
		{"oversized in the middle", []int{200, 5000, 200, 300}, 1000, [][]int{{200}, {5000}, {200, 300}}},
		{"no look-back", []int{900, 200, 50}, 1000, [][]int{{900}, {200, 50}}},
		{"budget below one", []int{1, 1}, 0, [][]int{{1}, {1}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parts := Partition(unitsOfCost(tt.costs...), tt.budget, tokens.Chars{})
			if tt.want == nil {
				assert.Empty(t, parts)
				return
			}
			assert.Equal(t, tt.want, costsOf(parts))
		})
	}
}

func TestPartition_Properties(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	est := tokens.Chars{}

	for round := 0; round < 200; round++ {
		n := rng.Intn(30)
		costs := make([]int, n)
		for i := range costs {
			costs[i] = 1 + rng.Intn(400)
		}
		budget := 1 + rng.Intn(800)
		units := unitsOfCost(costs...)

		parts := Partition(units, budget, est)

		// Coverage and order: concatenating the parts gives the input back.
		var flat []SummaryUnit
		for _, p := range parts {
			require.NotEmpty(t, p)
			flat = append(flat, p...)
			if len(p) > 1 {
				assert.LessOrEqual(t, TotalCost(est, p), budget, "round %d", round)
			}
		}
		if n == 0 {
			assert.Empty(t, flat)
		} else {
			assert.Equal(t, units, flat, "round %d", round)
		}

		// Maximality: the first unit of each part did not fit into the previous one.
		for i := 1; i < len(parts); i++ {
			assert.Greater(t, TotalCost(est, parts[i-1])+Cost(est, parts[i][0]), budget)
		}
	}
}

func TestPartition_ClipsCapacity(t *testing.T) {
	units := unitsOfCost(600, 600)
	parts := Partition(units, 1000, tokens.Chars{})
	require.Len(t, parts, 2)

	_ = append(parts[0], SummaryUnit{Text: "intruder"})
	assert.Equal(t, units[1], parts[1][0])
}

func TestTotalCost(t *testing.T) {
	units := Units([]string{"ab", "", "摘要", "cdef"})
	est := tokens.Chars{}

	assert.Equal(t, 8, TotalCost(est, units))
	assert.Equal(t, tokens.Total(est, Texts(units)...), TotalCost(est, units))
	assert.Equal(t, len(units), TotalCost(unitCost{}, units))
	assert.Zero(t, TotalCost(est, nil))
}
