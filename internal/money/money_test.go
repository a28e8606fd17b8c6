package money

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		raw  string
		want int64
	}{
		{raw: "8000", want: 8000},
		{raw: "8.000", want: 8000},
		{raw: "1.250.000", want: 1250000},
		{raw: "Rp 8.000", want: 8000},
		{raw: "Rp. 10.000,00", want: 10000},
		{raw: "8rb", want: 8000},
		{raw: "1,5jt", want: 1500000},
		{raw: "2.5k", want: 2500},
		{raw: "8000.00", want: 8000},
		{raw: "-500", want: -500},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := Parse(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseRejects(t *testing.T) {
	_, err := Parse("")
	assert.ErrorIs(t, err, ErrEmpty)

	_, err = Parse("abc")
	assert.ErrorIs(t, err, ErrMalformed)

	_, err = Parse("10.5")
	assert.ErrorIs(t, err, ErrFractional)

	_, err = Parse("jt")
	assert.ErrorIs(t, err, ErrMalformed)

	_, err = Parse("99999999999999999999")
	assert.ErrorIs(t, err, ErrOverflow)

	for _, raw := range []string{"1e3", "1e20000000", "1e-20000000", "2E5rb"} {
		_, err = Parse(raw)
		assert.ErrorIs(t, err, ErrMalformed, raw)
	}
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "Rp 10.000", Format(10000))
	assert.Equal(t, "Rp 0", Format(0))
	assert.Equal(t, "-Rp 3.000", Format(-3000))
	assert.Equal(t, "Rp 1,250,000", NewFormatter("en").Format(1250000))
}
