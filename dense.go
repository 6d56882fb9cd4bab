package hll

import "math/bits"

// denseStorage holds one unpacked register per byte.  Registers are only
// bit-packed to regwidth-wide fields on the wire; keeping them unpacked in
// memory makes add, union and estimation simple scans.
type denseStorage []uint8

func newDenseStorage(settings *settings) denseStorage {
	return make(denseStorage, settings.m)
}

// add applies the dense insertion rule: the low log2m bits of the element
// select a register and the trailing-zero run of the remaining bits, plus
// one, becomes the candidate value.  Registers only ever grow, which is what
// keeps sketches mergeable.
func (s denseStorage) add(settings *settings, element uint64) {

	ndx := element & settings.mBitsMask

	substream := element >> uint(settings.log2m)
	if substream == 0 {
		// The paper does not cover p(0x0); zero is the register
		// initialization value, so the multiset simply ignores it.
		return
	}

	pW := uint8(1 + bits.TrailingZeros64(substream))
	if pW > settings.maxRegisterValue {
		pW = settings.maxRegisterValue
	}

	if s[ndx] < pW {
		s[ndx] = pW
	}
}

func (s denseStorage) setIfGreater(regnum int, value uint8) {
	if s[regnum] < value {
		s[regnum] = value
	}
}

// unionMax folds other into the receiver register-wise.  The two banks have
// already been verified to be the same length.
func (s denseStorage) unionMax(other denseStorage) {
	for i, v := range other {
		if s[i] < v {
			s[i] = v
		}
	}
}

// indicator computes the harmonic sum Z of the HLL paper along with the
// number of zero-valued registers V.
func (s denseStorage) indicator() (float64, int) {

	sum := float64(0)
	numberOfZeros := 0

	for _, v := range s {
		sum += 1.0 / float64(uint64(1)<<v)
		if v == 0 {
			numberOfZeros++
		}
	}

	return sum, numberOfZeros
}

// numFilled counts the non-zero registers, which drives the sparse/dense
// choice at pack time.
func (s denseStorage) numFilled() int {
	filled := 0
	for _, v := range s {
		if v != 0 {
			filled++
		}
	}
	return filled
}

func (s denseStorage) sizeInBytes(settings *settings) int {
	return (settings.m*settings.regwidth + 7) / 8
}

// writeBytes packs every register, in order, as a regwidth-wide big-endian
// field.  The destination has been zeroed by the caller's allocation.
func (s denseStorage) writeBytes(settings *settings, bytes []byte) {

	cursor := bitstreamWriter{buf: bytes, nbits: settings.regwidth}
	for _, v := range s {
		cursor.pack(uint64(v))
	}
}

// denseFromBytes unpacks a full register bank.  The payload length has
// already been verified to be exactly consistent with the parameters, which
// also guarantees fewer than 8 bits of padding.
func denseFromBytes(settings *settings, bytes []byte) denseStorage {

	s := newDenseStorage(settings)

	cursor := bitstreamReader{buf: bytes, nbits: settings.regwidth}
	for i := range s {
		s[i] = uint8(cursor.unpack())
	}

	return s
}

func (s denseStorage) copy() storage {
	o := make(denseStorage, len(s))
	copy(o, s)
	return o
}
