// Copyright 2024 Katsuba-go. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package katsuba

// Djb2 computes the djb2 hash of data. The initial state is 5381; for each
// input byte b, state = state*33 ^ b, carried out in wrapping uint32
// arithmetic. Bytes are taken as-is; no case folding or normalization is
// applied, matching the bare djb2 algorithm rather than the game's
// case-insensitive string_id variant below.
func Djb2(data []byte) uint32 {
	var state uint32 = 5381
	for _, b := range data {
		state = state*33 ^ uint32(b)
	}
	return state
}

// Djb2String is a convenience wrapper around Djb2 for UTF-8 input.
func Djb2String(s string) uint32 {
	return Djb2([]byte(s))
}

// StringID computes the game's name hash, used to identify property and
// type names on the wire. The input is lower-cased (ASCII only) and then
// folded as sum = Σ (c_i - 32) * 33^(n-1-i) mod 2^32, where c_i is the byte
// value at position i and n is the input length. This exact arithmetic
// (including the '- 32' offset and the modulus applied at every step via
// wrapping uint32 multiplication) must be reproduced bit-for-bit because
// on-wire property identifiers are matched against it.
func StringID(s string) uint32 {
	var sum uint32
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 'A' && c <= 'Z' {
			c += 'a' - 'A'
		}
		sum = sum*33 + uint32(c) - 32
	}
	return sum
}
