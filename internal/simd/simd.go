// Package simd provides a fast byte-classification fast path for the
// lexer: finding the next structural byte (a delimiter, quote, CR, or LF)
// within a buffered chunk without checking every byte one at a time.
//
// There is no actual vector instruction use here — the retrieved
// reference implementation's AVX2/SSE4.2 path depends on a hand-written
// assembly file this package never had available, so this sticks to the
// SWAR (SIMD Within A Register) fallback the same reference describes:
// eight bytes classified per machine word using only integer ops.
package simd

import "golang.org/x/sys/cpu"

// HasAVX2 reports whether the host CPU advertises AVX2. The scan
// functions below always run the SWAR path regardless of its value; the
// indexer's verbose banner reads it to report what hardware acceleration
// a future vectorized path could exploit, the way the reference
// implementation's own capability probe feeds its own status line.
var HasAVX2 = cpu.X86.HasAVX2

const (
	loBits  = 0x0101010101010101
	hiBits  = 0x8080808080808080
	wordLen = 8
)

// hasByte reports whether any of the 8 bytes packed into word equals b,
// using the classic SWAR "find zero byte" trick applied to word XOR
// broadcast(b).
func hasByte(word uint64, b byte) bool {
	x := word ^ (loBits * uint64(b))
	return (x-loBits)&^x&hiBits != 0
}

// IndexStructural returns the offset of the first byte in data equal to
// delim, quote, '\r', or '\n', or len(data) if none occurs. Used by the
// lexer's IN_FIELD state to bulk-skip plain field bytes.
func IndexStructural(data []byte, delim, quote byte) int {
	n := len(data)
	i := 0
	for ; i+wordLen <= n; i += wordLen {
		word := uint64(data[i]) | uint64(data[i+1])<<8 | uint64(data[i+2])<<16 |
			uint64(data[i+3])<<24 | uint64(data[i+4])<<32 | uint64(data[i+5])<<40 |
			uint64(data[i+6])<<48 | uint64(data[i+7])<<56
		if hasByte(word, delim) || hasByte(word, quote) || hasByte(word, '\r') || hasByte(word, '\n') {
			break
		}
	}
	for ; i < n; i++ {
		b := data[i]
		if b == delim || b == quote || b == '\r' || b == '\n' {
			return i
		}
	}
	return n
}

// IndexByte returns the offset of the first occurrence of b in data, or
// len(data) if absent. Used by the lexer's IN_QUOTED state, where only
// the quote byte is structural.
func IndexByte(data []byte, b byte) int {
	n := len(data)
	i := 0
	for ; i+wordLen <= n; i += wordLen {
		word := uint64(data[i]) | uint64(data[i+1])<<8 | uint64(data[i+2])<<16 |
			uint64(data[i+3])<<24 | uint64(data[i+4])<<32 | uint64(data[i+5])<<40 |
			uint64(data[i+6])<<48 | uint64(data[i+7])<<56
		if hasByte(word, b) {
			break
		}
	}
	for ; i < n; i++ {
		if data[i] == b {
			return i
		}
	}
	return n
}
