// Package simhash fingerprints documents so near-duplicates can be
// detected by Hamming distance.
package simhash

import (
	"hash/fnv"
	"math/bits"
	"strings"
)

// Fingerprint computes a 64-bit SimHash over tokens using FNV-64a.
func Fingerprint(tokens []string) uint64 {
	if len(tokens) == 0 {
		return 0
	}

	var vector [64]int
	h := fnv.New64a()
	for _, tok := range tokens {
		h.Reset()
		h.Write([]byte(tok))
		sum := h.Sum64()
		for i := 0; i < 64; i++ {
			if sum&(1<<uint(i)) != 0 {
				vector[i]++
			} else {
				vector[i]--
			}
		}
	}

	var fp uint64
	for i := 0; i < 64; i++ {
		if vector[i] > 0 {
			fp |= 1 << uint(i)
		}
	}
	return fp
}

// FingerprintText fingerprints whitespace-separated words.
func FingerprintText(text string) uint64 {
	return Fingerprint(strings.Fields(text))
}

// Distance returns the Hamming distance between two fingerprints.
func Distance(a, b uint64) int {
	return bits.OnesCount64(a ^ b)
}

// Similar reports whether two fingerprints are within threshold bits.
func Similar(a, b uint64, threshold int) bool {
	return Distance(a, b) <= threshold
}
