package queue

// MaxRetries is the ceiling after which an item becomes a dead letter. Dead
// letters stay in the queue but are excluded from automatic drains.
const MaxRetries = 3

// RetryState captures how many times an item has failed and whether it is
// still eligible for automatic retry. Transitions go through Attempt, so
// exhaustion is decided in one place instead of scattered counter checks.
type RetryState struct {
	Count   int
	ceiling int
}

// NewRetryState builds a state with the given failure count. A non-positive
// ceiling uses MaxRetries.
func NewRetryState(count, ceiling int) RetryState {
	if ceiling <= 0 {
		ceiling = MaxRetries
	}
	return RetryState{Count: count, ceiling: ceiling}
}

// Attempt records one more failure and returns the successor state. The count
// only ever increases.
func (r RetryState) Attempt() RetryState {
	return RetryState{Count: r.Count + 1, ceiling: r.ceiling}
}

// DeadLettered reports whether the item has exhausted its retry budget.
func (r RetryState) DeadLettered() bool {
	return r.Count >= r.ceiling
}

// Retryable reports whether the item may still be drained automatically.
func (r RetryState) Retryable() bool {
	return !r.DeadLettered()
}
