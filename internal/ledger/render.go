package ledger

import (
	"strings"

	"modalku/backend/internal/domain"
	"modalku/backend/internal/money"
)

// RenderPayment builds the confirmation shown after a capital contribution.
func RenderPayment(f *money.Formatter, result domain.PaymentResult) string {
	var b strings.Builder
	b.WriteString("Modal masuk " + f.Format(result.Amount) + "\n")
	if len(result.Allocations) == 0 {
		b.WriteString("Tidak ada hutang terbuka\n")
	}
	for _, s := range result.Allocations {
		if s.Left == 0 {
			b.WriteString("Lunas: " + s.Item + " (" + f.Format(s.Amount) + ")\n")
			continue
		}
		b.WriteString("Dicicil: " + s.Item + " (" + f.Format(s.Amount) + ", sisa " + f.Format(s.Left) + ")\n")
	}
	if result.Remaining > 0 {
		b.WriteString("Sisa " + f.Format(result.Remaining) + " jadi kredit\n")
	} else {
		b.WriteString("Sisa kredit: " + f.Format(0) + "\n")
	}
	return b.String()
}

// RenderDebt builds the confirmation shown after a credit-mode sale.
func RenderDebt(f *money.Formatter, result domain.DebtResult) string {
	var b strings.Builder
	b.WriteString("Hutang baru: " + result.Item + " " + f.Format(result.Amount) + "\n")
	var covered int64
	for _, s := range result.Allocations {
		covered += s.Amount
		b.WriteString("Dibayar dari modal: " + f.Format(s.Amount) + " (sisa modal " + f.Format(s.Left) + ")\n")
	}
	switch {
	case result.Remaining == 0:
		b.WriteString("Lunas dari kredit " + f.Format(covered) + "\n")
	case covered > 0:
		b.WriteString("Sisa hutang: " + f.Format(result.Remaining) + "\n")
	default:
		b.WriteString("Belum ada kredit, hutang " + f.Format(result.Remaining) + "\n")
	}
	return b.String()
}
