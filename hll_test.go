package hll

import (
	"math/rand"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newHll(t *testing.T, settings Settings) Hll {
	h, err := NewHll(settings)
	require.NoError(t, err)
	return h
}

func assertEmpty(t *testing.T, h Hll) {
	assert.Nil(t, h.storage, "expected empty hll")
}

func assertExplicit(t *testing.T, h Hll) {
	assert.Equal(t, reflect.TypeOf(explicitStorage{}), reflect.TypeOf(h.storage), "expected explicit storage")
}

func assertDense(t *testing.T, h Hll) {
	assert.Equal(t, reflect.TypeOf(denseStorage{}), reflect.TypeOf(h.storage), "expected dense storage")
}

func cardinality(t *testing.T, h Hll) float64 {
	card, ok, err := h.Cardinality()
	require.NoError(t, err)
	require.True(t, ok)
	return card
}

func Test_PromotionLadder(t *testing.T) {

	settings := Settings{
		Log2m:             11,
		Regwidth:          5,
		ExplicitThreshold: 4,
		SparseEnabled:     true,
	}

	h := newHll(t, settings)
	assertEmpty(t, h)

	// first add promotes empty -> explicit.
	h.AddRaw(100)
	assertExplicit(t, h)
	assert.Equal(t, float64(1), cardinality(t, h))

	// duplicate adds change nothing.
	h.AddRaw(100)
	assertExplicit(t, h)
	assert.Equal(t, float64(1), cardinality(t, h))

	// fill to capacity; representation holds.
	for i := uint64(101); i < 104; i++ {
		h.AddRaw(i)
	}
	assertExplicit(t, h)
	assert.Equal(t, float64(4), cardinality(t, h))

	// one more promotes explicit -> dense, and every register stays within
	// bounds.
	h.AddRaw(104)
	assertDense(t, h)

	for _, v := range h.storage.(denseStorage) {
		assert.True(t, v <= h.settings.maxRegisterValue)
	}
}

func Test_ExplicitDisabledGoesStraightToDense(t *testing.T) {

	h := newHll(t, Settings{
		Log2m:             11,
		Regwidth:          5,
		ExplicitThreshold: 0,
	})

	h.AddRaw(1)
	assertDense(t, h)
}

func Test_ZeroTokenIsStoredExplicitly(t *testing.T) {

	h := newHll(t, Settings{
		Log2m:             11,
		Regwidth:          5,
		ExplicitThreshold: 8,
	})

	h.AddRaw(0)
	assertExplicit(t, h)
	assert.Equal(t, float64(1), cardinality(t, h))

	// ...but contributes nothing once dense.
	d := newHll(t, Settings{Log2m: 11, Regwidth: 5, ExplicitThreshold: 0})
	d.AddRaw(0)
	assert.Zero(t, d.storage.(denseStorage).numFilled())
}

func Test_ExplicitStaysSorted(t *testing.T) {

	h := newHll(t, Settings{
		Log2m:             11,
		Regwidth:          5,
		ExplicitThreshold: 16,
	})

	r := rand.New(rand.NewSource(42))
	for i := 0; i < 10; i++ {
		h.AddRaw(r.Uint64())
	}

	assertExplicit(t, h)
	assert.NoError(t, h.storage.(explicitStorage).validate())
}

func Test_AddIdempotent(t *testing.T) {

	settings := Settings{Log2m: 11, Regwidth: 5, ExplicitThreshold: 0}

	h := newHll(t, settings)
	h.AddRaw(0xdeadbeef)
	once := cardinality(t, h)

	h.AddRaw(0xdeadbeef)
	assert.Equal(t, once, cardinality(t, h))
}

func Test_OrderIndependence(t *testing.T) {

	settings := Settings{
		Log2m:             8,
		Regwidth:          5,
		ExplicitThreshold: 4,
		SparseEnabled:     true,
	}

	tokens := make([]uint64, 500)
	r := rand.New(rand.NewSource(7))
	for i := range tokens {
		tokens[i] = r.Uint64()
	}

	build := func(order []uint64) Hll {
		h := newHll(t, settings)
		for _, v := range order {
			h.AddRaw(v)
		}
		return h
	}

	reference := build(tokens)

	shuffled := make([]uint64, len(tokens))
	copy(shuffled, tokens)
	r.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	permuted := build(shuffled)

	assert.Equal(t, cardinality(t, reference), cardinality(t, permuted))
	assert.Equal(t, reference.ToBytes(), permuted.ToBytes())
}

func Test_UnionStorageMatrix(t *testing.T) {

	settings := Settings{
		Log2m:             11,
		Regwidth:          5,
		ExplicitThreshold: 4,
		SparseEnabled:     true,
	}

	r := rand.New(rand.NewSource(1234567890))
	build := func(n int) Hll {
		h := newHll(t, settings)
		for i := 0; i < n; i++ {
			h.AddRaw(r.Uint64())
		}
		return h
	}

	tests := []struct {
		label      string
		hll1       Hll
		hll2       Hll
		verifyFunc func(*testing.T, Hll)
	}{
		{
			label:      "empty with empty",
			hll1:       build(0),
			hll2:       build(0),
			verifyFunc: assertEmpty,
		},
		{
			label:      "empty with explicit",
			hll1:       build(0),
			hll2:       build(2),
			verifyFunc: assertExplicit,
		},
		{
			label:      "explicit with empty",
			hll1:       build(2),
			hll2:       build(0),
			verifyFunc: assertExplicit,
		},
		{
			label:      "empty with dense",
			hll1:       build(0),
			hll2:       build(100),
			verifyFunc: assertDense,
		},
		{
			label:      "explicit with explicit",
			hll1:       build(2),
			hll2:       build(2),
			verifyFunc: assertExplicit,
		},
		{
			label:      "explicit with explicit/overflow",
			hll1:       build(3),
			hll2:       build(3),
			verifyFunc: assertDense,
		},
		{
			label:      "explicit with dense",
			hll1:       build(2),
			hll2:       build(100),
			verifyFunc: assertDense,
		},
		{
			label:      "dense with explicit",
			hll1:       build(100),
			hll2:       build(2),
			verifyFunc: assertDense,
		},
		{
			label:      "dense with dense",
			hll1:       build(100),
			hll2:       build(100),
			verifyFunc: assertDense,
		},
	}

	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {

			card1 := cardinality(t, tt.hll1)
			card2 := cardinality(t, tt.hll2)

			var storage2 storage
			if tt.hll2.storage != nil {
				storage2 = tt.hll2.storage.copy()
			}

			require.NoError(t, tt.hll1.Union(tt.hll2))
			tt.verifyFunc(t, tt.hll1)

			// the union is monotone in the estimate.
			combined := cardinality(t, tt.hll1)
			assert.True(t, combined >= card1, "combined %f < %f", combined, card1)
			assert.True(t, combined >= card2, "combined %f < %f", combined, card2)

			// mutate hll1 and ensure hll2 was neither aliased nor modified.
			tt.hll1.AddRaw(r.Uint64())
			assert.Equal(t, card2, cardinality(t, tt.hll2))
			assert.Equal(t, storage2, tt.hll2.storage)
		})
	}
}

func Test_UnionExplicitDedupes(t *testing.T) {

	settings := Settings{
		Log2m:             11,
		Regwidth:          5,
		ExplicitThreshold: 16,
	}

	h1 := newHll(t, settings)
	h2 := newHll(t, settings)

	for _, v := range []uint64{1, 2, 3} {
		h1.AddRaw(v)
	}
	for _, v := range []uint64{2, 3, 4, 5} {
		h2.AddRaw(v)
	}

	require.NoError(t, h1.Union(h2))

	assertExplicit(t, h1)
	assert.Equal(t, explicitStorage{1, 2, 3, 4, 5}, h1.storage)
}

func Test_UnionParameterMismatch(t *testing.T) {

	base := Settings{
		Log2m:             11,
		Regwidth:          5,
		ExplicitThreshold: AutoExplicitThreshold,
		SparseEnabled:     true,
	}

	tests := []struct {
		label  string
		mutate func(*Settings)
	}{
		{label: "log2m", mutate: func(s *Settings) { s.Log2m = 12 }},
		{label: "regwidth", mutate: func(s *Settings) { s.Regwidth = 4 }},
		{label: "expthresh", mutate: func(s *Settings) { s.ExplicitThreshold = 8 }},
		{label: "sparseon", mutate: func(s *Settings) { s.SparseEnabled = false }},
	}

	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			other := base
			tt.mutate(&other)

			h1 := newHll(t, base)
			h2 := newHll(t, other)
			h1.AddRaw(1)

			err := h1.Union(h2)
			require.Error(t, err)
			assert.True(t, IsDataException(err))

			// the receiver is untouched on failure.
			assertExplicit(t, h1)
			assert.Equal(t, float64(1), cardinality(t, h1))
		})
	}
}

func Test_UndefinedIsAbsorbing(t *testing.T) {

	// the undefined representation is only reachable by decoding a frame
	// with the undefined type tag.
	undefined, err := FromBytes([]byte{0x10, 0x8b, 0x7f})
	require.NoError(t, err)
	require.True(t, undefined.Undefined())

	_, ok, err := undefined.Cardinality()
	require.NoError(t, err)
	assert.False(t, ok)

	// adds are ignored.
	undefined.AddRaw(42)
	assert.True(t, undefined.Undefined())

	// union into a defined sketch absorbs it.
	h := newHll(t, DefaultSettings())
	h.AddRaw(1)
	require.NoError(t, h.Union(undefined))
	assert.True(t, h.Undefined())

	// and the absorbed state is sticky.
	other := newHll(t, DefaultSettings())
	other.AddRaw(2)
	require.NoError(t, h.Union(other))
	assert.True(t, h.Undefined())
}

func Test_SmallRegisterCountEstimateFails(t *testing.T) {

	h := newHll(t, Settings{
		Log2m:             3,
		Regwidth:          5,
		ExplicitThreshold: 0,
	})

	h.AddRaw(tokenFor(3, 1, 1))

	_, _, err := h.Cardinality()
	require.Error(t, err)
	assert.True(t, IsDataException(err))
}

func Test_Clear(t *testing.T) {

	h := newHll(t, DefaultSettings())
	h.AddRaw(1)
	assertExplicit(t, h)

	h.Clear()
	assertEmpty(t, h)
	assert.Equal(t, float64(0), cardinality(t, h))
}

func Test_String(t *testing.T) {

	h := newHll(t, DefaultSettings())
	assert.Contains(t, h.String(), "EMPTY, nregs=2048, nbits=5, expthresh=-1(160), sparseon=1")

	h.AddRaw(7)
	assert.Contains(t, h.String(), "EXPLICIT, 1 elements")

	d := newHll(t, Settings{Log2m: 5, Regwidth: 5, ExplicitThreshold: 0})
	d.AddRaw(tokenFor(5, 3, 2))
	assert.Contains(t, d.String(), "COMPRESSED, 1 filled")
}
