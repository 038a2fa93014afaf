package spoke

import (
	"encoding/binary"
	"iter"
	"math/big"
	"math/bits"
	"slices"
	"strings"
)

const bitsPerWord = 64

// Bitmask is an immutable set of identifier positions, stored as a growable
// slice of machine words. A Bitmask never ends in a zero word, so two masks
// with the same bits always have the same representation.
type Bitmask struct {
	words []uint64
}

// MaskKey is a comparable representation of a Bitmask, usable as a map key.
type MaskKey string

// BitmaskOf returns a mask with the given positions set.
func BitmaskOf(positions ...int) Bitmask {
	var words []uint64

	for _, pos := range positions {
		word := pos / bitsPerWord
		for len(words) <= word {
			words = append(words, 0)
		}

		words[word] |= 1 << (pos % bitsPerWord)
	}

	return Bitmask{words: trim(words)}
}

func trim(words []uint64) []uint64 {
	for len(words) > 0 && words[len(words)-1] == 0 {
		words = words[:len(words)-1]
	}

	if len(words) == 0 {
		return nil
	}

	return words
}

func (m Bitmask) Has(pos int) bool {
	word := pos / bitsPerWord
	if word >= len(m.words) {
		return false
	}

	return m.words[word]&(1<<(pos%bitsPerWord)) != 0
}

// With returns a copy of the mask with the given position set.
func (m Bitmask) With(pos int) Bitmask {
	if m.Has(pos) {
		return m
	}

	return m.Or(BitmaskOf(pos))
}

// Without returns a copy of the mask with the given position cleared.
func (m Bitmask) Without(pos int) Bitmask {
	if !m.Has(pos) {
		return m
	}

	return m.AndNot(BitmaskOf(pos))
}

func (m Bitmask) Or(other Bitmask) Bitmask {
	long, short := m.words, other.words
	if len(long) < len(short) {
		long, short = short, long
	}

	words := slices.Clone(long)
	for idx, word := range short {
		words[idx] |= word
	}

	return Bitmask{words: trim(words)}
}

// AndNot returns the bits of m that are not set in other.
func (m Bitmask) AndNot(other Bitmask) Bitmask {
	words := slices.Clone(m.words)
	for idx := range min(len(words), len(other.words)) {
		words[idx] &^= other.words[idx]
	}

	return Bitmask{words: trim(words)}
}

// ContainsAll reports whether (m & target) == target.
func (m Bitmask) ContainsAll(target Bitmask) bool {
	if len(m.words) < len(target.words) {
		return false
	}

	for idx, word := range target.words {
		if m.words[idx]&word != word {
			return false
		}
	}

	return true
}

// ContainsAny reports whether (m & target) != 0.
func (m Bitmask) ContainsAny(target Bitmask) bool {
	for idx := range min(len(m.words), len(target.words)) {
		if m.words[idx]&target.words[idx] != 0 {
			return true
		}
	}

	return false
}

func (m Bitmask) IsZero() bool {
	return len(m.words) == 0
}

func (m Bitmask) Equal(other Bitmask) bool {
	return slices.Equal(m.words, other.words)
}

// Count returns the number of bits set.
func (m Bitmask) Count() int {
	var count int
	for _, word := range m.words {
		count += bits.OnesCount64(word)
	}

	return count
}

// Positions iterates over the set positions in ascending order.
func (m Bitmask) Positions() iter.Seq[int] {
	return func(yield func(int) bool) {
		for idx, word := range m.words {
			for word != 0 {
				bit := bits.TrailingZeros64(word)
				if !yield(idx*bitsPerWord + bit) {
					return
				}

				word &^= 1 << bit
			}
		}
	}
}

func (m Bitmask) Key() MaskKey {
	if len(m.words) == 0 {
		return ""
	}

	buf := make([]byte, 8*len(m.words))
	for idx, word := range m.words {
		binary.LittleEndian.PutUint64(buf[idx*8:], word)
	}

	return MaskKey(buf)
}

// Int returns the mask as an arbitrary precision integer.
func (m Bitmask) Int() *big.Int {
	value := new(big.Int)
	for idx := len(m.words) - 1; idx >= 0; idx-- {
		value.Lsh(value, bitsPerWord)
		value.Or(value, new(big.Int).SetUint64(m.words[idx]))
	}

	return value
}

func (m Bitmask) String() string {
	var sb strings.Builder
	sb.WriteString("0x")
	sb.WriteString(m.Int().Text(16))
	return sb.String()
}
