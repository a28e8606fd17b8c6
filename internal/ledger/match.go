package ledger

import "context"

// matchPlan describes one side of a FIFO settlement: where the locked
// counterpart rows come from, how much each can still absorb or offer, and how
// to persist one allocation against a row.
type matchPlan[T any] struct {
	source    func(ctx context.Context) ([]T, error)
	available func(row T) int64
	write     func(ctx context.Context, row T, amount int64) error
}

// settle walks the plan's rows in the order the source returned them and
// allocates min(available, remaining) to each until need is exhausted. It
// returns what is left of need.
func settle[T any](ctx context.Context, plan matchPlan[T], need int64) (int64, error) {
	if need <= 0 {
		return 0, nil
	}

	rows, err := plan.source(ctx)
	if err != nil {
		return need, err
	}

	remaining := need
	for _, row := range rows {
		if remaining == 0 {
			break
		}
		amount := min(plan.available(row), remaining)
		if amount <= 0 {
			continue
		}
		if err := plan.write(ctx, row, amount); err != nil {
			return remaining, err
		}
		remaining -= amount
	}
	return remaining, nil
}
