package fingerprint

import (
	"fmt"
	"math/bits"
	"strconv"
)

// Distance calculates the number of differing bits between two fingerprints.
// It is symmetric, zero for identical inputs, and bounded by [0, HashBits].
func Distance(a, b Fingerprint) (int, error) {
	x, err := a.uint64()
	if err != nil {
		return 0, err
	}
	y, err := b.uint64()
	if err != nil {
		return 0, err
	}
	return bits.OnesCount64(x ^ y), nil
}

// Score maps a hamming distance onto a similarity score in [0, 1]. It is a
// strictly decreasing bijection of distance: Score(0) = 1, Score(HashBits) = 0.
func Score(distance int) float64 {
	return 1 - float64(distance)/float64(HashBits)
}

func (f Fingerprint) uint64() (uint64, error) {
	if len(f) != HexLength {
		return 0, fmt.Errorf("malformed fingerprint %q: want %d hex chars, got %d", string(f), HexLength, len(f))
	}
	v, err := strconv.ParseUint(string(f), 16, 64)
	if err != nil {
		return 0, fmt.Errorf("malformed fingerprint %q: %v", string(f), err)
	}
	return v, nil
}

// Valid reports whether f parses as a fingerprint.
func (f Fingerprint) Valid() bool {
	_, err := f.uint64()
	return err == nil
}
