// Copyright 2024 Katsuba-go. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package katsuba

import "testing"

func TestDjb2EmptyInput(t *testing.T) {
	if got := Djb2(nil); got != 5381 {
		t.Fatalf("Djb2(nil) = %d, want 5381", got)
	}
	if got := Djb2String(""); got != 5381 {
		t.Fatalf("Djb2String(\"\") = %d, want 5381", got)
	}
}

func TestDjb2KnownValues(t *testing.T) {
	// state = 5381*33^'a' = 177573 ^ 97 = 177604
	want := uint32(5381*33) ^ uint32('a')
	if got := Djb2String("a"); got != want {
		t.Fatalf("Djb2String(\"a\") = %d, want %d", got, want)
	}
}

func TestStringIDCaseInsensitive(t *testing.T) {
	lower := StringID("class mob")
	upper := StringID("CLASS MOB")
	mixed := StringID("Class Mob")
	if lower != upper || lower != mixed {
		t.Fatalf("StringID should fold case: lower=%d upper=%d mixed=%d", lower, upper, mixed)
	}
}

func TestStringIDEmptyInput(t *testing.T) {
	if got := StringID(""); got != 0 {
		t.Fatalf("StringID(\"\") = %d, want 0", got)
	}
}

func TestStringIDKnownValue(t *testing.T) {
	// "ab": sum = 0*33 + ('a'-32) = 65; then 65*33 + ('b'-32) = 2145 + 66 = 2211
	want := uint32(65)*33 + uint32(66)
	if got := StringID("ab"); got != want {
		t.Fatalf("StringID(\"ab\") = %d, want %d", got, want)
	}
}
