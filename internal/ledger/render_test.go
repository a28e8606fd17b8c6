package ledger_test

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"modalku/backend/internal/domain"
	"modalku/backend/internal/ledger"
	"modalku/backend/internal/money"
)

func newGolden(t *testing.T) *goldie.Goldie {
	return goldie.New(t,
		goldie.WithFixtureDir("testdata"),
		goldie.WithNameSuffix(".golden"),
	)
}

func TestRenderPayment(t *testing.T) {
	f := money.NewFormatter("id")
	g := newGolden(t)

	tests := []struct {
		name   string
		result domain.PaymentResult
	}{
		{
			name: "payment_partial",
			result: domain.PaymentResult{
				Amount: 8000,
				Allocations: []domain.Settlement{
					{Item: "Kopi", Amount: 6000, Left: 0},
					{Item: "Gula", Amount: 2000, Left: 3000},
				},
			},
		},
		{
			name: "payment_with_credit",
			result: domain.PaymentResult{
				Amount:      10000,
				Remaining:   6000,
				Allocations: []domain.Settlement{{Item: "Kopi", Amount: 4000}},
			},
		},
		{
			name:   "payment_no_debt",
			result: domain.PaymentResult{Amount: 5000, Remaining: 5000},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g.Assert(t, tt.name, []byte(ledger.RenderPayment(f, tt.result)))
		})
	}
}

func TestRenderDebt(t *testing.T) {
	f := money.NewFormatter("id")
	g := newGolden(t)

	tests := []struct {
		name   string
		result domain.DebtResult
	}{
		{
			name: "debt_partial",
			result: domain.DebtResult{
				Item:        "Gula",
				Amount:      7000,
				Remaining:   4000,
				Allocations: []domain.Settlement{{PaymentID: "pay-1", Amount: 3000, Left: 0}},
			},
		},
		{
			name: "debt_covered",
			result: domain.DebtResult{
				Item:   "Kopi",
				Amount: 4000,
				Allocations: []domain.Settlement{
					{PaymentID: "pay-1", Amount: 1000, Left: 0},
					{PaymentID: "pay-2", Amount: 3000, Left: 2000},
				},
			},
		},
		{
			name:   "debt_no_credit",
			result: domain.DebtResult{Item: "Roti", Amount: 12500, Remaining: 12500},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g.Assert(t, tt.name, []byte(ledger.RenderDebt(f, tt.result)))
		})
	}
}
