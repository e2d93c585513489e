package hash

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"strings"

	"github.com/corona10/goimagehash"
)

// Fingerprint is a parsed perceptual fingerprint.
type Fingerprint struct {
	words []uint64
	bits  int
}

// NewFingerprint wraps raw words, most significant word first.
func NewFingerprint(words []uint64) Fingerprint {
	w := make([]uint64, len(words))
	copy(w, words)
	return Fingerprint{words: w, bits: len(w) * 64}
}

// ParseFingerprint parses the storage form "p:<hex>". The kind prefix is optional.
func ParseFingerprint(s string) (Fingerprint, error) {
	raw := strings.TrimSpace(s)
	if i := strings.IndexByte(raw, ':'); i >= 0 {
		raw = raw[i+1:]
	}
	if raw == "" || len(raw)%16 != 0 {
		return Fingerprint{}, fmt.Errorf("invalid fingerprint %q", s)
	}
	b, err := hex.DecodeString(raw)
	if err != nil {
		return Fingerprint{}, fmt.Errorf("invalid fingerprint %q: %w", s, err)
	}
	words := make([]uint64, len(b)/8)
	for i := range words {
		words[i] = binary.BigEndian.Uint64(b[i*8 : i*8+8])
	}
	return Fingerprint{words: words, bits: len(words) * 64}, nil
}

// Bits returns the fingerprint width.
func (f Fingerprint) Bits() int {
	return f.bits
}

// IsZero reports whether f holds no data.
func (f Fingerprint) IsZero() bool {
	return f.bits == 0
}

// String returns the storage form.
func (f Fingerprint) String() string {
	return goimagehash.NewExtImageHash(f.words, goimagehash.PHash, f.bits).ToString()
}

// Distance returns the number of differing bits.
func Distance(a, b Fingerprint) (int, error) {
	if a.bits != b.bits {
		return 0, fmt.Errorf("%w: %d vs %d", ErrWidthMismatch, a.bits, b.bits)
	}
	d := 0
	for i, w := range a.words {
		d += HammingDistance(w, b.words[i])
	}
	return d, nil
}

// DistanceWithin returns the distance between a and b, giving up as soon
// as it exceeds limit. Widths must match.
func DistanceWithin(a, b Fingerprint, limit int) (int, bool) {
	d := 0
	for i, w := range a.words {
		d += HammingDistance(w, b.words[i])
		if d > limit {
			return d, false
		}
	}
	return d, true
}

// Scorer turns Hamming distances into normalized similarity scores.
type Scorer struct {
	bits int
}

// NewScorer creates a Scorer for fingerprints of the given width.
func NewScorer(width int) (*Scorer, error) {
	if width <= 0 || width%64 != 0 {
		return nil, fmt.Errorf("invalid fingerprint width %d", width)
	}
	return &Scorer{bits: width}, nil
}

// Bits returns the width the scorer accepts.
func (s *Scorer) Bits() int {
	return s.bits
}

// Score returns the fraction of differing bits, in [0,1].
func (s *Scorer) Score(a, b Fingerprint) (float64, error) {
	if a.bits != s.bits || b.bits != s.bits {
		return 0, fmt.Errorf("%w: scorer expects %d bits, got %d and %d", ErrWidthMismatch, s.bits, a.bits, b.bits)
	}
	d, _ := Distance(a, b)
	return float64(d) / float64(s.bits), nil
}

// ScoreStrings parses both fingerprints and scores them.
func (s *Scorer) ScoreStrings(a, b string) (float64, error) {
	fa, err := ParseFingerprint(a)
	if err != nil {
		return 0, err
	}
	fb, err := ParseFingerprint(b)
	if err != nil {
		return 0, err
	}
	return s.Score(fa, fb)
}

// Below scores a and b and reports whether the score is strictly below
// threshold, rejecting early once the threshold cannot be met.
func (s *Scorer) Below(a, b Fingerprint, threshold float64) (float64, bool) {
	if a.bits != s.bits || b.bits != s.bits {
		return 0, false
	}
	limit := int(math.Ceil(threshold*float64(s.bits))) - 1
	if limit < 0 {
		return 0, false
	}
	d, ok := DistanceWithin(a, b, limit)
	if !ok {
		return 0, false
	}
	score := float64(d) / float64(s.bits)
	return score, score < threshold
}
