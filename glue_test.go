// Copyright 2024 Katsuba-go. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package katsuba

import (
	"bytes"
	"compress/zlib"
	"testing"
)

func objectBytes(t *testing.T) []byte {
	t.Helper()
	// Same minimal-object layout as TestSerializerMinimalObject: one type
	// with one u32 property, self-inclusive object length.
	return []byte{
		0x01, 0x00, 0x00, 0x00, // type hash
		0x80, 0x00, 0x00, 0x00, // object content length, 128 bits, self-inclusive
		0x02, 0x00, 0x00, 0x00, // property hash
		0x20, 0x00, 0x00, 0x00, // property length, 32 bits
		0x2A, 0x00, 0x00, 0x00, // value 42
	}
}

func testTypes() *TypeList {
	return newTestTypeList(&TypeDef{
		Hash: 1,
		Name: "A",
		Properties: []*Property{
			{Name: "x", Hash: 2, Kind: KindU32, Default: NewU32(0)},
		},
	})
}

func TestArchiveDeserializeUncompressedEntry(t *testing.T) {
	raw := objectBytes(t)
	data := buildKIWAD([]kiwadEntryFixture{
		{name: "obj.bin", payload: raw, size: uint32(len(raw))},
	})
	path := writeTempFile(t, data)
	a, err := Heap(path)
	if err != nil {
		t.Fatalf("Heap: %v", err)
	}
	defer a.Close()

	s := New(NewSerializerOptions(), testTypes())
	obj, err := a.Deserialize("obj.bin", s)
	if err != nil {
		t.Fatalf("Deserialize: %v", err)
	}
	v, ok := obj.Get("x")
	if !ok || v.Uint() != 42 {
		t.Fatalf("x = %v (present=%v), want 42", v, ok)
	}
}

func TestArchiveDeserializeCompressedEntry(t *testing.T) {
	raw := objectBytes(t)

	var compressed bytes.Buffer
	w := zlib.NewWriter(&compressed)
	if _, err := w.Write(raw); err != nil {
		t.Fatalf("zlib write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("zlib close: %v", err)
	}

	data := buildKIWAD([]kiwadEntryFixture{
		{name: "obj.bin", payload: compressed.Bytes(), size: uint32(len(raw)), compressed: true},
	})
	path := writeTempFile(t, data)
	a, err := Heap(path)
	if err != nil {
		t.Fatalf("Heap: %v", err)
	}
	defer a.Close()

	s := New(NewSerializerOptions(), testTypes())
	obj, err := a.Deserialize("obj.bin", s)
	if err != nil {
		t.Fatalf("Deserialize: %v", err)
	}
	v, ok := obj.Get("x")
	if !ok || v.Uint() != 42 {
		t.Fatalf("x = %v (present=%v), want 42", v, ok)
	}
}

func TestStripBINdPrefix(t *testing.T) {
	raw := objectBytes(t)
	prefixed := append([]byte("BINd"), raw...)

	stripped, found := StripBINdPrefix(prefixed)
	if !found {
		t.Fatal("StripBINdPrefix: expected marker found")
	}
	if !bytes.Equal(stripped, raw) {
		t.Fatalf("StripBINdPrefix content mismatch")
	}

	s := New(NewSerializerOptions(), testTypes())
	obj, err := s.Deserialize(stripped)
	if err != nil {
		t.Fatalf("Deserialize: %v", err)
	}
	v, _ := obj.Get("x")
	if v.Uint() != 42 {
		t.Fatalf("x = %d, want 42", v.Uint())
	}

	// Feeding the unstripped bytes straight to the decoder reads "BINd"'s
	// 4 bytes as a type hash that has no entry in the registry.
	_, err = s.Deserialize(prefixed)
	if _, ok := err.(*UnknownTypeError); !ok {
		t.Fatalf("Deserialize(unstripped) error = %v (%T), want *UnknownTypeError", err, err)
	}
}
