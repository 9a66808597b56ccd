// Package accumulator merges review batches discovered across repeated
// fetch/scroll cycles into one ordered, duplicate-free set.
package accumulator

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"

	"github.com/use-agent/reviewguard/models"
	"golang.org/x/text/unicode/norm"
)

// Normalize returns the comparison form of a review text: NFKC-folded,
// lower-cased, with all whitespace runs collapsed to single spaces.
func Normalize(text string) string {
	folded := strings.ToLower(norm.NFKC.String(text))
	return strings.Join(strings.Fields(folded), " ")
}

// TextKey returns a short stable identifier for a review text, derived
// from its normalized form.
func TextKey(text string) string {
	sum := sha256.Sum256([]byte(Normalize(text)))
	return "r-" + hex.EncodeToString(sum[:8])
}

// Accumulate appends the records of batch whose normalized text is not
// already present in existing (or earlier in batch). existing is never
// reordered or mutated; the returned slice is a fresh copy.
//
// Accumulate(Accumulate(nil, b), b) has the same contents as Accumulate(nil, b).
func Accumulate(existing, batch []models.RawReview) []models.RawReview {
	s := NewSet()
	s.Add(existing)
	s.Add(batch)
	return s.Reviews()
}

// Set is the stateful form of Accumulate used by the collection loop.
// It is not safe for concurrent use; each analysis run owns its own Set.
type Set struct {
	reviews []models.RawReview
	texts   map[string]struct{}
	ids     map[string]struct{}
}

// NewSet creates an empty Set.
func NewSet() *Set {
	return &Set{
		texts: make(map[string]struct{}),
		ids:   make(map[string]struct{}),
	}
}

// Add merges batch into the set in order and returns how many records
// were new. A record whose ID is empty or already taken by a different
// text is re-keyed from its text.
func (s *Set) Add(batch []models.RawReview) int {
	added := 0
	for _, r := range batch {
		key := Normalize(r.Text)
		if key == "" {
			continue
		}
		if _, dup := s.texts[key]; dup {
			continue
		}

		if _, taken := s.ids[r.ID]; r.ID == "" || taken {
			r.ID = s.freeID(r.Text)
		}

		s.texts[key] = struct{}{}
		s.ids[r.ID] = struct{}{}
		s.reviews = append(s.reviews, r)
		added++
	}
	return added
}

// freeID derives an unused ID from text.
func (s *Set) freeID(text string) string {
	id := TextKey(text)
	base := id
	for n := 2; ; n++ {
		if _, taken := s.ids[id]; !taken {
			return id
		}
		id = base + "-" + strconv.Itoa(n)
	}
}

// Len returns the number of unique records.
func (s *Set) Len() int { return len(s.reviews) }

// Reviews returns a copy of the records in insertion order.
func (s *Set) Reviews() []models.RawReview {
	out := make([]models.RawReview, len(s.reviews))
	copy(out, s.reviews)
	return out
}
