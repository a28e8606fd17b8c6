// Package money converts operator-typed amounts into whole currency units and
// renders them back for confirmations. Ledger arithmetic never leaves int64.
package money

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var (
	ErrEmpty      = errors.New("amount is empty")
	ErrMalformed  = errors.New("amount is not a number")
	ErrFractional = errors.New("amount has a fractional unit")
	ErrOverflow   = errors.New("amount is too large")
)

var (
	thousand = decimal.NewFromInt(1_000)
	million  = decimal.NewFromInt(1_000_000)
	maxUnits = decimal.NewFromInt(1 << 53)
)

// Parse reads amounts the way shop owners type them: "8000", "8.000",
// "Rp 8.000,00", "8rb", "1,5jt", "2.5k". Dots followed by groups of three
// digits are thousand separators; a comma is the decimal mark.
func Parse(raw string) (int64, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.TrimPrefix(s, "rp")
	s = strings.TrimPrefix(s, ".")
	s = strings.ReplaceAll(s, " ", "")
	if s == "" {
		return 0, ErrEmpty
	}

	multiplier := decimal.NewFromInt(1)
	switch {
	case strings.HasSuffix(s, "jt"):
		multiplier = million
		s = strings.TrimSuffix(s, "jt")
	case strings.HasSuffix(s, "rb"):
		multiplier = thousand
		s = strings.TrimSuffix(s, "rb")
	case strings.HasSuffix(s, "k"):
		multiplier = thousand
		s = strings.TrimSuffix(s, "k")
	}
	if s == "" {
		return 0, ErrMalformed
	}

	if strings.Contains(s, "e") {
		return 0, ErrMalformed
	}

	s = normalizeSeparators(s)
	value, err := decimal.NewFromString(s)
	if err != nil {
		return 0, ErrMalformed
	}
	value = value.Mul(multiplier)
	if !value.Equal(value.Truncate(0)) {
		return 0, ErrFractional
	}
	if value.Abs().GreaterThan(maxUnits) {
		return 0, ErrOverflow
	}
	return value.IntPart(), nil
}

func normalizeSeparators(s string) string {
	if strings.Contains(s, ",") {
		s = strings.ReplaceAll(s, ".", "")
		return strings.Replace(s, ",", ".", 1)
	}
	if !strings.Contains(s, ".") {
		return s
	}
	parts := strings.Split(s, ".")
	grouped := len(parts) > 2
	if len(parts) == 2 && len(parts[1]) == 3 {
		grouped = true
	}
	if !grouped {
		return s
	}
	for _, part := range parts[1:] {
		if len(part) != 3 {
			return s
		}
	}
	return strings.Join(parts, "")
}

// Formatter renders whole units with the locale's digit grouping.
type Formatter struct {
	printer *message.Printer
	symbol  string
}

func NewFormatter(locale string) *Formatter {
	tag, err := language.Parse(strings.TrimSpace(locale))
	if err != nil || locale == "" {
		tag = language.Indonesian
	}
	return &Formatter{printer: message.NewPrinter(tag), symbol: "Rp"}
}

func (f *Formatter) Format(units int64) string {
	if f == nil {
		f = NewFormatter("id")
	}
	if units < 0 {
		return "-" + f.symbol + " " + f.printer.Sprintf("%d", -units)
	}
	return f.symbol + " " + f.printer.Sprintf("%d", units)
}

// Format uses the Indonesian formatter.
func Format(units int64) string {
	return defaultFormatter.Format(units)
}

var defaultFormatter = NewFormatter("id")
