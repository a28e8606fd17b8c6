package ledger

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type row struct {
	id   string
	free int64
}

func planFor(rows []row, writes *[]string, amounts *[]int64) matchPlan[row] {
	return matchPlan[row]{
		source:    func(context.Context) ([]row, error) { return rows, nil },
		available: func(r row) int64 { return r.free },
		write: func(_ context.Context, r row, amount int64) error {
			*writes = append(*writes, r.id)
			*amounts = append(*amounts, amount)
			return nil
		},
	}
}

func TestSettleWalksRowsInOrder(t *testing.T) {
	var writes []string
	var amounts []int64
	left, err := settle(context.Background(), planFor([]row{{"a", 6000}, {"b", 5000}, {"c", 900}}, &writes, &amounts), 8000)
	require.NoError(t, err)

	assert.Equal(t, int64(0), left)
	assert.Equal(t, []string{"a", "b"}, writes)
	assert.Equal(t, []int64{6000, 2000}, amounts)
}

func TestSettleSkipsExhaustedRows(t *testing.T) {
	var writes []string
	var amounts []int64
	left, err := settle(context.Background(), planFor([]row{{"a", 0}, {"b", -5}, {"c", 300}}, &writes, &amounts), 1000)
	require.NoError(t, err)

	assert.Equal(t, int64(700), left)
	assert.Equal(t, []string{"c"}, writes)
}

func TestSettleNothingNeeded(t *testing.T) {
	called := false
	plan := matchPlan[row]{
		source: func(context.Context) ([]row, error) {
			called = true
			return nil, nil
		},
	}
	left, err := settle(context.Background(), plan, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(0), left)
	assert.False(t, called)
}

func TestSettleStopsOnWriteError(t *testing.T) {
	boom := errors.New("boom")
	plan := matchPlan[row]{
		source:    func(context.Context) ([]row, error) { return []row{{"a", 100}, {"b", 100}}, nil },
		available: func(r row) int64 { return r.free },
		write: func(_ context.Context, r row, _ int64) error {
			if r.id == "b" {
				return boom
			}
			return nil
		},
	}
	left, err := settle(context.Background(), plan, 150)
	require.ErrorIs(t, err, boom)
	assert.Equal(t, int64(50), left)
}
