// Package simhash fingerprints review text so near-identical reviews can be
// found without pairwise string comparison.
package simhash

import (
	"hash/fnv"
	"math/bits"
	"strings"
	"unicode"
)

// Fingerprint computes a 64-bit SimHash of the given text.
// Uses FNV-64a hash on lower-cased word tokens with bit vector accumulation.
// Punctuation and case do not affect the result.
func Fingerprint(text string) uint64 {
	words := Words(text)
	if len(words) == 0 {
		return 0
	}

	var vector [64]int

	for _, word := range words {
		h := fnv.New64a()
		h.Write([]byte(word))
		hash := h.Sum64()

		for i := 0; i < 64; i++ {
			if hash&(1<<uint(i)) != 0 {
				vector[i]++
			} else {
				vector[i]--
			}
		}
	}

	var fingerprint uint64
	for i := 0; i < 64; i++ {
		if vector[i] > 0 {
			fingerprint |= 1 << uint(i)
		}
	}

	return fingerprint
}

// Words splits text into lower-case tokens of letters and digits.
func Words(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// Distance returns the Hamming distance between two SimHash fingerprints.
func Distance(a, b uint64) int {
	return bits.OnesCount64(a ^ b)
}

// Similar returns true if the Hamming distance between two fingerprints
// is less than or equal to the threshold.
func Similar(a, b uint64, threshold int) bool {
	return Distance(a, b) <= threshold
}

// Doc is one text taking part in near-duplicate detection.
type Doc struct {
	// Owner identifies who wrote the text. Two docs with the same
	// non-empty owner are never paired.
	Owner string
	Text  string
}

// NearDuplicates groups docs whose fingerprints are within maxDistance of
// each other. Docs with fewer than minWords words are ignored. Each group
// holds indices into docs in ascending order; groups are ordered by their
// first index and only groups of two or more are returned.
func NearDuplicates(docs []Doc, maxDistance, minWords int) [][]int {
	fps := make([]uint64, len(docs))
	eligible := make([]bool, len(docs))
	for i, d := range docs {
		if len(Words(d.Text)) >= minWords {
			fps[i] = Fingerprint(d.Text)
			eligible[i] = true
		}
	}

	parent := make([]int, len(docs))
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(i int) int {
		if parent[i] != i {
			parent[i] = find(parent[i])
		}
		return parent[i]
	}

	for i := range docs {
		if !eligible[i] {
			continue
		}
		for j := i + 1; j < len(docs); j++ {
			if !eligible[j] || sameOwner(docs[i], docs[j]) {
				continue
			}
			if Similar(fps[i], fps[j], maxDistance) {
				ri, rj := find(i), find(j)
				if ri < rj {
					parent[rj] = ri
				} else if rj < ri {
					parent[ri] = rj
				}
			}
		}
	}

	members := make(map[int][]int)
	var roots []int
	for i := range docs {
		r := find(i)
		if _, ok := members[r]; !ok {
			roots = append(roots, r)
		}
		members[r] = append(members[r], i)
	}

	var groups [][]int
	for _, r := range roots {
		if len(members[r]) > 1 {
			groups = append(groups, members[r])
		}
	}
	return groups
}

func sameOwner(a, b Doc) bool {
	return a.Owner != "" && a.Owner == b.Owner
}
