package hll

import (
	"encoding/binary"
	"sort"
)

// explicitStorage is the exact set of observed raw values, held strictly
// ascending under signed 64 bit comparison.  The signed comparator matches
// the Java reference implementation; serialized explicit sketches from other
// implementations rely on it.
type explicitStorage []uint64

// search returns the smallest index whose element is >= value under the
// signed ordering.
func (s explicitStorage) search(value uint64) int {
	return sort.Search(len(s), func(i int) bool {
		return int64(s[i]) >= int64(value)
	})
}

func (s explicitStorage) contains(value uint64) bool {
	i := s.search(value)
	return i < len(s) && s[i] == value
}

// insert returns the storage with value added in order.  The caller has
// already established that value is absent and that capacity remains.
func (s explicitStorage) insert(value uint64) explicitStorage {
	i := s.search(value)
	s = append(s, 0)
	copy(s[i+1:], s[i:])
	s[i] = value
	return s
}

func (s explicitStorage) sort() {
	sort.Slice(s, func(i, j int) bool { return int64(s[i]) < int64(s[j]) })
}

func (s explicitStorage) sizeInBytes() int {
	return 8 * len(s)
}

// writeBytes serializes the elements as consecutive big-endian 8 byte
// values.  The list is already in the order the wire format requires.
func (s explicitStorage) writeBytes(bytes []byte) {
	for i, value := range s {
		binary.BigEndian.PutUint64(bytes[i*8:], value)
	}
}

// explicitFromBytes decodes big-endian 8 byte values and revalidates the
// ascending-unique invariant.
func explicitFromBytes(bytes []byte) (explicitStorage, error) {

	s := make(explicitStorage, 0, len(bytes)/8)
	for i := 0; i < len(bytes); i += 8 {
		s = append(s, binary.BigEndian.Uint64(bytes[i:i+8]))
	}

	if err := s.validate(); err != nil {
		return nil, err
	}

	return s, nil
}

// validate confirms that all elements are ascending with no duplicates.
// An explicit multiset with no elements is allowed.
func (s explicitStorage) validate() error {
	for i := 1; i < len(s); i++ {
		if int64(s[i-1]) >= int64(s[i]) {
			return dataExceptionf("duplicate or descending explicit elements")
		}
	}
	return nil
}

func (s explicitStorage) copy() storage {
	o := make(explicitStorage, len(s))
	copy(o, s)
	return o
}
