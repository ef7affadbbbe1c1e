package chaosstore

// A ChaosOption configures a Store.
type ChaosOption interface {
	Apply(*Store)
}

// WithFailureRate sets the fraction of calls that fail, from 0 (never) to 1 (always).
func WithFailureRate(rate float64) ChaosOption {
	return withFailureRate(rate)
}

type withFailureRate float64

func (w withFailureRate) Apply(s *Store) {
	s.rate = float64(w)
}
