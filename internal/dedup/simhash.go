package dedup

import (
	"encoding/binary"
	"math/bits"
	"strings"
	"unicode"

	"github.com/tsawler/prose/v3"
	"github.com/zeebo/blake3"
)

// Fingerprint computes a 64-bit simhash over the content's tokens.
// Tokens are lowercased and punctuation is dropped, so whitespace, casing
// and punctuation variance collapse to small Hamming distances.
func Fingerprint(content string) uint64 {
	tokens := tokenize(content)

	var counts [64]int
	for _, tok := range tokens {
		h := tokenHash(tok)
		for i := 0; i < 64; i++ {
			if h&(1<<uint(i)) != 0 {
				counts[i]++
			} else {
				counts[i]--
			}
		}
	}

	var fp uint64
	for i := 0; i < 64; i++ {
		if counts[i] > 0 {
			fp |= 1 << uint(i)
		}
	}
	return fp
}

// HammingDistance counts differing bits between two fingerprints.
func HammingDistance(a, b uint64) int {
	return bits.OnesCount64(a ^ b)
}

// numBands is the band count for the pre-filter. With 4-bit bands, any two
// fingerprints within Hamming distance 15 share at least one identical band,
// so band bucketing never excludes a pair tier 1 would merge at the default
// threshold of 10.
const numBands = 16

// Bands splits a fingerprint into 16 4-bit bands for candidate bucketing.
func Bands(fp uint64) [numBands]uint8 {
	var bands [numBands]uint8
	for i := 0; i < numBands; i++ {
		bands[i] = uint8((fp >> (uint(i) * 4)) & 0xF)
	}
	return bands
}

// SharesBand reports whether two fingerprints agree on at least one band.
func SharesBand(a, b uint64) bool {
	diff := a ^ b
	for i := 0; i < numBands; i++ {
		if (diff>>(uint(i)*4))&0xF == 0 {
			return true
		}
	}
	return false
}

// tokenHash hashes a token to 64 bits.
func tokenHash(tok string) uint64 {
	sum := blake3.Sum256([]byte(tok))
	return binary.LittleEndian.Uint64(sum[:8])
}

// tokenize splits content into normalized word tokens. Uses the prose
// tokenizer with tagging and extraction disabled; falls back to a rune-class
// split if prose rejects the input.
func tokenize(content string) []string {
	doc, err := prose.NewDocument(content,
		prose.WithTagging(false),
		prose.WithExtraction(false),
		prose.WithSegmentation(false))
	if err != nil {
		return fieldsTokenize(content)
	}

	var tokens []string
	for _, tok := range doc.Tokens() {
		t := normalizeToken(tok.Text)
		if t != "" {
			tokens = append(tokens, t)
		}
	}
	if len(tokens) == 0 {
		return fieldsTokenize(content)
	}
	return tokens
}

// fieldsTokenize splits on any non-letter/digit rune.
func fieldsTokenize(content string) []string {
	fields := strings.FieldsFunc(content, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	var tokens []string
	for _, f := range fields {
		if t := normalizeToken(f); t != "" {
			tokens = append(tokens, t)
		}
	}
	return tokens
}

// normalizeToken lowercases and strips punctuation-only tokens.
func normalizeToken(s string) string {
	s = strings.ToLower(strings.TrimFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}))
	return s
}
