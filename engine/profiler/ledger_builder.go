package profiler

// LedgerBuilderOption is a functional option used to configure a Ledger during construction.
type LedgerBuilderOption func(*ledger)

// WithEnabled sets whether the ledger records sections from the first frame.
//
// Parameters:
//   - enabled: true to record
//
// Returns:
//   - LedgerBuilderOption: a function that applies the option
func WithEnabled(enabled bool) LedgerBuilderOption {
	return func(l *ledger) {
		l.enabled = enabled
	}
}

// WithAccumulation sets whether values average over frames from the start.
//
// Parameters:
//   - enabled: true to accumulate
//
// Returns:
//   - LedgerBuilderOption: a function that applies the option
func WithAccumulation(enabled bool) LedgerBuilderOption {
	return func(l *ledger) {
		l.accumulating = enabled
	}
}
