package hll

import (
	"encoding/binary"

	"github.com/sirupsen/logrus"
	"github.com/twmb/murmur3"
)

// log receives the library's only diagnostic output, the negative-seed
// warning below.  Replace it with SetLogger to route warnings into the
// host's logging pipeline.
var log logrus.FieldLogger = logrus.StandardLogger()

// SetLogger installs the logger used for non-fatal warnings and returns the
// previous one.
func SetLogger(logger logrus.FieldLogger) logrus.FieldLogger {
	previous := log
	log = logger
	return previous
}

// HashBytes computes the 64 bit token for a byte buffer: the first word of
// MurmurHash3 x64 128 seeded with the given 32 bit seed.  Negative seeds are
// accepted but warned about, because the reference implementations treat the
// seed as unsigned and would disagree on the resulting tokens.
func HashBytes(data []byte, seed int32) uint64 {
	warnOnNegativeSeed(seed)
	h1, _ := murmur3.SeedSum128(uint64(uint32(seed)), uint64(uint32(seed)), data)
	return h1
}

// Hash1 hashes a 1 byte integer.
func Hash1(key int8, seed int32) uint64 {
	return HashBytes([]byte{byte(key)}, seed)
}

// Hash2 hashes a 2 byte integer by its little-endian representation.
func Hash2(key int16, seed int32) uint64 {
	var buf [2]byte
	binary.LittleEndian.PutUint16(buf[:], uint16(key))
	return HashBytes(buf[:], seed)
}

// Hash4 hashes a 4 byte integer by its little-endian representation.
func Hash4(key int32, seed int32) uint64 {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], uint32(key))
	return HashBytes(buf[:], seed)
}

// Hash8 hashes an 8 byte integer by its little-endian representation.
func Hash8(key int64, seed int32) uint64 {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(key))
	return HashBytes(buf[:], seed)
}

func warnOnNegativeSeed(seed int32) {
	if seed < 0 {
		log.Warn("negative seed values not compatible")
	}
}
