package hll

import "math"

// Accumulator is the aggregation state used by reducers.  It starts out
// uninitialized, meaning its parameters are not yet known: the first raw
// value observed binds the configured settings, and the first serialized
// sketch observed binds that sketch's settings.  Once parameterized, every
// further observation must agree on all four parameters.
//
// Finalizing does not tear the state down; both finalizers may be invoked
// any number of times, and observations may continue between them.  An
// uninitialized accumulator finalizes to "no result", which hosts surface
// as a null.
type Accumulator struct {
	hll         Hll
	settings    *Settings
	initialized bool
}

// NewAccumulator returns an uninitialized accumulator that will adopt the
// process-wide default settings if a raw value arrives first.
func NewAccumulator() *Accumulator {
	return &Accumulator{}
}

// NewAccumulatorWithSettings returns an uninitialized accumulator that will
// adopt the provided settings if a raw value arrives first.
func NewAccumulatorWithSettings(s Settings) (*Accumulator, error) {
	if err := s.validate(); err != nil {
		return nil, err
	}
	return &Accumulator{settings: &s}, nil
}

// AddRaw folds one token into the accumulator, instantiating an empty
// sketch from the configured settings on first observation.
func (a *Accumulator) AddRaw(value uint64) error {

	if !a.initialized {
		settings := DefaultSettings()
		if a.settings != nil {
			settings = *a.settings
		}

		hll, err := NewHll(settings)
		if err != nil {
			return err
		}

		a.hll = hll
		a.initialized = true
	}

	a.hll.AddRaw(value)

	return nil
}

// Union folds one serialized sketch into the accumulator.  An uninitialized
// accumulator adopts the sketch's parameters; otherwise the parameters must
// match exactly, per the union contract.
func (a *Accumulator) Union(packed []byte) error {

	other, err := FromBytes(packed)
	if err != nil {
		return err
	}

	if !a.initialized {
		a.hll = Hll{settings: other.settings}
		a.initialized = true
	}

	return a.hll.Union(other)
}

// Packed finalizes the accumulator into its serialized form.  It returns
// nil when the accumulator never observed anything.
func (a *Accumulator) Packed() []byte {

	if !a.initialized {
		return nil
	}

	return a.hll.ToBytes()
}

// Cardinality finalizes the accumulator into an estimate.  ok is false when
// the accumulator is uninitialized or its sketch is undefined.
func (a *Accumulator) Cardinality() (card float64, ok bool, err error) {

	if !a.initialized {
		return 0, false, nil
	}

	return a.hll.Cardinality()
}

// FloorCardinality is Cardinality rounded down to an integer.
func (a *Accumulator) FloorCardinality() (card int64, ok bool, err error) {
	c, ok, err := a.Cardinality()
	if !ok || err != nil {
		return 0, ok, err
	}
	return int64(math.Floor(c)), true, nil
}

// CeilCardinality is Cardinality rounded up to an integer.
func (a *Accumulator) CeilCardinality() (card int64, ok bool, err error) {
	c, ok, err := a.Cardinality()
	if !ok || err != nil {
		return 0, ok, err
	}
	return int64(math.Ceil(c)), true, nil
}
