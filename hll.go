package hll

import (
	"fmt"
	"math"
	"strings"
)

// StorageType identifies the representation carried by a serialized sketch.
// The values match the type nibble of the storage spec.
type StorageType int

const (
	TypeUndefined StorageType = iota
	TypeEmpty
	TypeExplicit
	TypeSparse
	TypeDense
)

func (t StorageType) String() string {
	switch t {
	case TypeUndefined:
		return "UNDEFINED"
	case TypeEmpty:
		return "EMPTY"
	case TypeExplicit:
		return "EXPLICIT"
	case TypeSparse:
		return "SPARSE"
	case TypeDense:
		return "COMPRESSED"
	default:
		return fmt.Sprintf("StorageType(%d)", int(t))
	}
}

const headerSize = 3

// Hll is a probabilistic multiset of 64 bit tokens supporting add, union and
// cardinality estimation.  The zero value is an empty sketch using the
// process-wide default settings; sketches with explicit settings come from
// NewHll or FromBytes.
//
// A sketch is one of four representations: empty, an explicit sorted list of
// tokens, a dense register bank, or the absorbing undefined multiset.  Adds
// promote empty -> explicit -> dense and never the reverse.
type Hll struct {
	settings *settings
	storage  storage
}

// NewHll creates an empty Hll with the provided settings.  It returns an
// error if the settings are invalid.
func NewHll(s Settings) (Hll, error) {

	internal, err := s.toInternal()
	if err != nil {
		return Hll{}, err
	}

	return Hll{settings: internal}, nil
}

// init lazily adopts the process defaults for the zero value.  Defaults are
// validated when installed, so this cannot fail.
func (h *Hll) init() {
	if h.settings == nil {
		h.settings, _ = DefaultSettings().toInternal()
	}
}

// Settings returns the four parameters of this sketch.
func (h *Hll) Settings() Settings {
	h.init()
	return h.settings.toExternal()
}

// ExplicitThreshold returns the effective explicit capacity with the auto
// setting resolved against the dense representation size.
func (h *Hll) ExplicitThreshold() int {
	h.init()
	return h.settings.explicitThreshold
}

// Undefined reports whether this sketch is the absorbing undefined multiset.
func (h *Hll) Undefined() bool {
	_, undefined := h.storage.(undefinedStorage)
	return undefined
}

// Clear resets this Hll to the empty representation, keeping its settings.
func (h *Hll) Clear() {
	h.init()
	h.storage = nil
}

// AddRaw adds the observed token into the Hll.  The token is expected to be
// the output of a hash with good entropy, such as HashBytes; feeding
// low-entropy values skews the estimate.
//
// Adding may promote the representation: an empty sketch becomes explicit
// (or dense when explicit storage is disabled), and an explicit sketch at
// capacity converts to dense before the new token lands.
func (h *Hll) AddRaw(value uint64) {

	h.init()

	switch s := h.storage.(type) {
	case nil:
		if h.settings.explicitThreshold == 0 {
			d := newDenseStorage(h.settings)
			d.add(h.settings, value)
			h.storage = d
		} else {
			h.storage = explicitStorage{value}
		}

	case explicitStorage:
		if s.contains(value) {
			return
		}
		if len(s) < h.settings.explicitThreshold {
			h.storage = s.insert(value)
		} else {
			d := h.explicitToDense(s)
			d.add(h.settings, value)
			h.storage = d
		}

	case denseStorage:
		s.add(h.settings, value)

	case undefinedStorage:
		// Result is unchanged.
	}
}

// explicitToDense converts an at-capacity explicit list into a fresh dense
// register bank.
func (h *Hll) explicitToDense(s explicitStorage) denseStorage {
	d := newDenseStorage(h.settings)
	for _, value := range s {
		d.add(h.settings, value)
	}
	return d
}

// Union folds other into the receiver.  The two sketches must agree on all
// four parameters; a data exception is returned otherwise and the receiver
// is left untouched.  If either operand is undefined the receiver becomes
// undefined.
func (h *Hll) Union(other Hll) error {

	h.init()
	other.init()

	if err := h.settings.checkCompatible(other.settings); err != nil {
		return err
	}

	if h.Undefined() {
		return nil
	}
	if other.Undefined() {
		h.storage = undefinedStorage{}
		return nil
	}

	// other is empty...there's nothing to do.
	if other.storage == nil {
		return nil
	}

	// if this one is empty, deep copy the other's storage.
	if h.storage == nil {
		h.storage = other.storage.copy()
		return nil
	}

	switch otherStorage := other.storage.(type) {
	case explicitStorage:
		switch thisStorage := h.storage.(type) {
		case explicitStorage:
			h.unionExplicit(otherStorage)
		case denseStorage:
			for _, value := range otherStorage {
				thisStorage.add(h.settings, value)
			}
		}

	case denseStorage:
		switch thisStorage := h.storage.(type) {
		case explicitStorage:
			// fold this sketch's tokens into a copy of the dense side and
			// adopt the result.
			d := otherStorage.copy().(denseStorage)
			for _, value := range thisStorage {
				d.add(h.settings, value)
			}
			h.storage = d
		case denseStorage:
			if len(thisStorage) != len(otherStorage) {
				return dataExceptionf("union of differently length compressed vectors not supported")
			}
			thisStorage.unionMax(otherStorage)
		}
	}

	return nil
}

// unionExplicit folds the elements of other into this explicit sketch in a
// batch: duplicates are checked only against the original sorted prefix and
// the list is re-sorted once at the end.  The representation converts to
// dense if capacity is exceeded mid-fold.
func (h *Hll) unionExplicit(other explicitStorage) {

	original := h.storage.(explicitStorage)
	originalLen := len(original)

	for _, element := range other {
		switch s := h.storage.(type) {
		case explicitStorage:
			if s[:originalLen].contains(element) {
				continue
			}
			if len(s) < h.settings.explicitThreshold {
				h.storage = append(s, element)
			} else {
				d := h.explicitToDense(s)
				d.add(h.settings, element)
				h.storage = d
			}
		case denseStorage:
			s.add(h.settings, element)
		}
	}

	if s, ok := h.storage.(explicitStorage); ok {
		s.sort()
	}
}

// Cardinality estimates the number of distinct tokens added to this Hll.
// ok is false when the sketch is undefined, which hosts surface as a null.
// Estimation on a dense sketch with 8 or fewer registers is a data
// exception.
func (h *Hll) Cardinality() (card float64, ok bool, err error) {

	h.init()

	switch s := h.storage.(type) {
	case nil:
		return 0, true, nil

	case explicitStorage:
		return float64(len(s)), true, nil

	case undefinedStorage:
		return 0, false, nil

	case denseStorage:
		if h.settings.m <= 8 {
			return 0, false, dataExceptionf("number of registers too small")
		}

		sum, numberOfZeros := s.indicator()

		estimator := h.settings.alphaMSquared / sum

		if numberOfZeros != 0 && estimator < h.settings.smallEstimatorCutoff {
			// small range correction: linear counting over the still-zero
			// registers.
			m := float64(h.settings.m)
			return m * math.Log(m/float64(numberOfZeros)), true, nil
		}

		if estimator <= h.settings.largeEstimatorCutoff {
			return estimator, true, nil
		}

		// large range correction, adapted for 64 bit hashes.
		return -h.settings.twoToL * math.Log(1.0-estimator/h.settings.twoToL), true, nil
	}

	return 0, false, dataExceptionf("undefined multiset type value")
}

// ----------------------------------------------------------------
// Serialization.
// ----------------------------------------------------------------

// FromBytes deserializes a version 1 frame into an Hll.  A sparse frame is
// materialized as a dense sketch.  Any shape, size or version inconsistency
// is a data exception.
func FromBytes(bytes []byte) (Hll, error) {

	settings, storageType, err := unpackHeader(bytes)
	if err != nil {
		return Hll{}, err
	}

	h := Hll{settings: settings}
	body := bytes[headerSize:]

	switch storageType {
	case TypeEmpty:
		if len(bytes) != headerSize {
			return Hll{}, dataExceptionf("inconsistently sized empty multiset")
		}

	case TypeUndefined:
		if len(bytes) != headerSize {
			return Hll{}, dataExceptionf("inconsistently sized undefined multiset")
		}
		h.storage = undefinedStorage{}

	case TypeExplicit:
		if len(body)%8 != 0 {
			return Hll{}, dataExceptionf("inconsistently sized explicit multiset")
		}
		if len(body) > msMaxData {
			return Hll{}, dataExceptionf("explicit multiset too large")
		}
		s, err := explicitFromBytes(body)
		if err != nil {
			return Hll{}, err
		}
		h.storage = s

	case TypeDense:
		if settings.m > msMaxData {
			return Hll{}, dataExceptionf("compressed multiset too large")
		}
		if len(body) != (settings.m*settings.regwidth+7)/8 {
			return Hll{}, dataExceptionf("inconsistently sized compressed multiset")
		}
		h.storage = denseFromBytes(settings, body)

	case TypeSparse:
		if settings.m > msMaxData {
			return Hll{}, dataExceptionf("sparse multiset too large")
		}
		s, err := denseFromSparseBytes(settings, body)
		if err != nil {
			return Hll{}, err
		}
		h.storage = s

	default:
		return Hll{}, dataExceptionf("undefined multiset type")
	}

	return h, nil
}

// SchemaVersion returns the schema version of a serialized sketch after
// fully validating the frame.
func SchemaVersion(bytes []byte) (int, error) {
	if _, err := FromBytes(bytes); err != nil {
		return 0, err
	}
	return int(bytes[0] >> 4), nil
}

// StorageTypeOf returns the representation tag a serialized sketch was
// written with, after fully validating the frame.  Unlike FromBytes it
// reports a sparse frame as TypeSparse.
func StorageTypeOf(bytes []byte) (StorageType, error) {
	if _, err := FromBytes(bytes); err != nil {
		return TypeUndefined, err
	}
	return StorageType(bytes[0] & 0xf), nil
}

// unpackHeader decodes and validates the three header bytes common to every
// frame.
func unpackHeader(bytes []byte) (*settings, StorageType, error) {

	if len(bytes) < headerSize {
		return nil, TypeUndefined, dataExceptionf("multiset too small")
	}

	version := int(bytes[0] >> 4)
	storageType := StorageType(bytes[0] & 0xf)

	if version != 1 {
		return nil, TypeUndefined, dataExceptionf("unknown schema version %d", version)
	}

	if storageType > TypeDense {
		return nil, TypeUndefined, dataExceptionf("undefined multiset type")
	}

	external := Settings{
		Log2m:             int(bytes[1] & 0x1f),
		Regwidth:          int(bytes[1]>>5) + 1,
		ExplicitThreshold: decodeExpthresh(int32(bytes[2] & 0x3f)),
		SparseEnabled:     bytes[2]>>6&0x1 == 1,
	}

	internal, err := external.toInternal()
	if err != nil {
		return nil, TypeUndefined, err
	}

	return internal, storageType, nil
}

// packHeader writes the three header bytes: version and type nibbles, then
// regwidth-1 and log2m, then the sparse flag and encoded expthresh.
func packHeader(bytes []byte, version int, storageType StorageType, settings *settings) {

	bytes[0] = byte(version<<4) | byte(storageType)
	bytes[1] = byte((settings.regwidth-1)<<5) | byte(settings.log2m)
	bytes[2] = byte(encodeExpthresh(settings.expthresh))
	if settings.sparseEnabled {
		bytes[2] |= 1 << 6
	}
}

// ToBytes serializes the Hll per the storage spec.  A dense sketch is
// written as a sparse frame when sparse is enabled and the sparse body is
// the more compact choice.
func (h *Hll) ToBytes() []byte {

	h.init()

	version := getOutputVersion()
	bytes := make([]byte, h.PackedSize())

	switch s := h.storage.(type) {
	case nil:
		packHeader(bytes, version, TypeEmpty, h.settings)

	case undefinedStorage:
		packHeader(bytes, version, TypeUndefined, h.settings)

	case explicitStorage:
		packHeader(bytes, version, TypeExplicit, h.settings)
		s.writeBytes(bytes[headerSize:])

	case denseStorage:
		if shouldPackSparse(h.settings, s.numFilled()) {
			packHeader(bytes, version, TypeSparse, h.settings)
			s.writeSparseBytes(h.settings, bytes[headerSize:])
		} else {
			packHeader(bytes, version, TypeDense, h.settings)
			s.writeBytes(h.settings, bytes[headerSize:])
		}
	}

	return bytes
}

// PackedSize returns the exact number of bytes ToBytes will produce,
// including the sparse/dense selection.
func (h *Hll) PackedSize() int {

	h.init()

	switch s := h.storage.(type) {
	case explicitStorage:
		return headerSize + s.sizeInBytes()
	case denseStorage:
		if numFilled := s.numFilled(); shouldPackSparse(h.settings, numFilled) {
			return headerSize + sparseSizeInBytes(h.settings, numFilled)
		}
		return headerSize + s.sizeInBytes(h.settings)
	default:
		// empty and undefined have no body.
		return headerSize
	}
}

// ----------------------------------------------------------------
// Pretty printing.
// ----------------------------------------------------------------

// String renders the sketch in the reference implementation's diagnostic
// format.
func (h *Hll) String() string {

	h.init()

	expthresh := h.settings.expthresh
	expbuf := fmt.Sprintf("%d", expthresh)
	if expthresh == AutoExplicitThreshold {
		expbuf = fmt.Sprintf("%d(%d)", expthresh, h.settings.explicitThreshold)
	}

	sparseon := 0
	if h.settings.sparseEnabled {
		sparseon = 1
	}
	params := fmt.Sprintf("nregs=%d, nbits=%d, expthresh=%s, sparseon=%d",
		h.settings.m, h.settings.regwidth, expbuf, sparseon)

	var b strings.Builder

	switch s := h.storage.(type) {
	case nil:
		fmt.Fprintf(&b, "EMPTY, %s", params)

	case undefinedStorage:
		fmt.Fprintf(&b, "UNDEFINED %s", params)

	case explicitStorage:
		fmt.Fprintf(&b, "EXPLICIT, %d elements, %s:", len(s), params)
		for i, value := range s {
			fmt.Fprintf(&b, "\n%d: %20d ", i, int64(value))
		}

	case denseStorage:
		fmt.Fprintf(&b, "COMPRESSED, %d filled %s:", s.numFilled(), params)
		const rowSize = 32
		for ndx := 0; ndx+rowSize <= len(s); ndx += rowSize {
			fmt.Fprintf(&b, "\n%4d: ", ndx)
			for _, value := range s[ndx : ndx+rowSize] {
				fmt.Fprintf(&b, "%2d ", value)
			}
		}
	}

	return b.String()
}
