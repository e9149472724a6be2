// Copyright 2024 Katsuba-go. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package katsuba

import "testing"

func TestBitReaderAlignedRoundTrip(t *testing.T) {
	data := []byte{0x2A, 0x00, 0x00, 0x00, 0xFF}
	r := NewBitReader(data)

	v, err := r.ReadUint32()
	if err != nil {
		t.Fatalf("ReadUint32: %v", err)
	}
	if v != 42 {
		t.Fatalf("ReadUint32 = %d, want 42", v)
	}
	b, err := r.ReadByte()
	if err != nil {
		t.Fatalf("ReadByte: %v", err)
	}
	if b != 0xFF {
		t.Fatalf("ReadByte = %#x, want 0xff", b)
	}
}

func TestBitReaderCrossByteBits(t *testing.T) {
	// 0b1011_0010 0b0000_0001 little-endian bit order within each byte.
	data := []byte{0xB2, 0x01}
	r := NewBitReader(data)

	a, err := r.ReadBits(4)
	if err != nil || a != 0x2 {
		t.Fatalf("ReadBits(4) = %d, %v, want 2", a, err)
	}
	bVal, err := r.ReadBits(6)
	if err != nil {
		t.Fatalf("ReadBits(6): %v", err)
	}
	// Remaining bits of byte 0 (top nibble 0xB = 1011) plus low 2 bits of
	// byte 1 (01), assembled little-endian: 0b01_1011 = 0x1B.
	if bVal != 0x1B {
		t.Fatalf("ReadBits(6) = %#x, want 0x1b", bVal)
	}
	if r.Pos() != 10 {
		t.Fatalf("Pos() = %d, want 10", r.Pos())
	}
}

func TestBitReaderFailureLeavesPositionUnchanged(t *testing.T) {
	r := NewBitReader([]byte{0x01})
	before := r.Pos()
	if _, err := r.ReadBits(9); err == nil {
		t.Fatal("expected error reading past end of buffer")
	}
	if r.Pos() != before {
		t.Fatalf("Pos() changed after failed read: got %d, want %d", r.Pos(), before)
	}
}

func TestBitReaderSeekAndAlign(t *testing.T) {
	r := NewBitReader([]byte{0, 0, 0})
	if err := r.SeekBit(3); err != nil {
		t.Fatalf("SeekBit: %v", err)
	}
	r.AlignByte()
	if r.Pos() != 8 {
		t.Fatalf("AlignByte from bit 3 -> %d, want 8", r.Pos())
	}
	r.AlignByte()
	if r.Pos() != 8 {
		t.Fatalf("AlignByte on already-aligned position moved cursor to %d", r.Pos())
	}
	if err := r.SeekBit(r.Len() + 1); err == nil {
		t.Fatal("expected error seeking past end of buffer")
	}
}

// A read of n <= 64 bits at any position either succeeds and advances the
// cursor by exactly n bits, or fails and leaves the cursor untouched.
func TestBitReaderReadAdvancesOrFailsCleanly(t *testing.T) {
	data := make([]byte, 9) // 72 bits
	for i := range data {
		data[i] = byte(i*37 + 11)
	}

	for _, n := range []int{1, 2, 3, 7, 8, 9, 15, 16, 17, 31, 32, 33, 63, 64} {
		r := NewBitReader(data)
		total := r.Len()
		for {
			before := r.Pos()
			_, err := r.ReadBits(n)
			if err != nil {
				if r.Pos() != before {
					t.Fatalf("n=%d: Pos changed after failed read: %d -> %d", n, before, r.Pos())
				}
				break
			}
			if r.Pos() != before+uint64(n) {
				t.Fatalf("n=%d: Pos advanced by %d, want %d", n, r.Pos()-before, n)
			}
			if r.Pos() > total {
				t.Fatalf("n=%d: Pos %d exceeded buffer length %d", n, r.Pos(), total)
			}
		}
	}
}

func TestBitReaderReadBoolSequence(t *testing.T) {
	// 0b0000_0101 -> bits LSB-first: 1,0,1,0,0,0,0,0
	r := NewBitReader([]byte{0x05})
	want := []bool{true, false, true, false, false, false, false, false}
	for i, w := range want {
		got, err := r.ReadBool()
		if err != nil {
			t.Fatalf("ReadBool() #%d: %v", i, err)
		}
		if got != w {
			t.Fatalf("ReadBool() #%d = %v, want %v", i, got, w)
		}
	}
}
