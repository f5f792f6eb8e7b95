package facematch

import (
	"math"
	"sync/atomic"
)

// Matcher turns query embeddings into recognition results using a Store.
type Matcher struct {
	store     *Store
	tolerance atomic.Uint64 // math.Float64bits
}

// NewMatcher returns a matcher over store. The tolerance must be within [0, 1].
func NewMatcher(store *Store, tolerance float64) (*Matcher, error) {
	if store == nil {
		store = NewStore()
	}
	m := &Matcher{store: store}
	if err := m.SetTolerance(tolerance); err != nil {
		return nil, err
	}
	return m, nil
}

// SetTolerance changes the maximum distance accepted as a match.
func (m *Matcher) SetTolerance(tolerance float64) error {
	if math.IsNaN(tolerance) || tolerance < 0 || tolerance > 1 {
		return ErrInvalidTolerance
	}
	m.tolerance.Store(math.Float64bits(tolerance))
	return nil
}

func (m *Matcher) Tolerance() float64 {
	return math.Float64frombits(m.tolerance.Load())
}

func (m *Matcher) Store() *Store {
	return m.store
}

// Recognize returns one result per query, in query order.
// With an empty store every result is unknown with zero confidence.
func (m *Matcher) Recognize(queries []Embedding) ([]Result, error) {
	return m.store.match(queries, m.Tolerance())
}

// Matches filters results down to positive identifications.
func Matches(results []Result) []Result {
	out := make([]Result, 0, len(results))
	for _, r := range results {
		if r.IsMatch {
			out = append(out, r)
		}
	}
	return out
}
