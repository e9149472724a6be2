// Copyright 2024 Katsuba-go. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package katsuba

import (
	"os"
	"path/filepath"
	"testing"
)

func TestOpenV1DocumentDerivesHashFromName(t *testing.T) {
	doc := []byte(`{
		"Mob": {
			"properties": [
				{"name": "health", "type": "int"}
			]
		}
	}`)
	tl, err := Open(doc)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	want := StringID("class Mob")
	def, err := tl.Lookup(want)
	if err != nil {
		t.Fatalf("Lookup(derived hash): %v", err)
	}
	if def.Name != "Mob" {
		t.Fatalf("Name = %q, want Mob", def.Name)
	}
}

func TestOpenV2DocumentKeepsExplicitHash(t *testing.T) {
	// An explicit hash must be trusted as-is, not re-derived from the
	// class name, even though it doesn't match StringID("class Mob").
	doc := []byte(`{
		"Mob": {
			"hash": 123456789,
			"properties": [
				{"name": "health", "type": "int"}
			]
		}
	}`)
	tl, err := Open(doc)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	def, err := tl.Lookup(123456789)
	if err != nil {
		t.Fatalf("Lookup(explicit hash): %v", err)
	}
	if def.Name != "Mob" {
		t.Fatalf("Name = %q, want Mob", def.Name)
	}
	if _, err := tl.Lookup(StringID("class Mob")); err == nil {
		t.Fatal("expected the name-derived hash to be absent once an explicit hash is supplied")
	}
}

func TestNameForReverseLookup(t *testing.T) {
	doc := []byte(`{"Mob": {"properties": []}}`)
	tl, err := Open(doc)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	name, err := tl.NameFor(StringID("class Mob"))
	if err != nil {
		t.Fatalf("NameFor: %v", err)
	}
	if name != "Mob" {
		t.Fatalf("NameFor = %q, want Mob", name)
	}
	if _, err := tl.NameFor(0xDEADBEEF); err != ErrNotFound {
		t.Fatalf("NameFor(unknown) error = %v, want ErrNotFound", err)
	}
}

func TestFlattenWalksBaseChain(t *testing.T) {
	doc := []byte(`{
		"Base": {
			"properties": [
				{"name": "x", "type": "int"}
			]
		},
		"Derived": {
			"bases": ["Base"],
			"properties": [
				{"name": "y", "type": "int"}
			]
		}
	}`)
	tl, err := Open(doc)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	def, err := tl.Lookup(StringID("class Derived"))
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	props, err := tl.Flatten(def)
	if err != nil {
		t.Fatalf("Flatten: %v", err)
	}
	if len(props) != 2 || props[0].Name != "x" || props[1].Name != "y" {
		t.Fatalf("Flatten = %v, want [x y] (base before derived)", propNames(props))
	}
}

func TestFlattenDuplicatePropertyHashFails(t *testing.T) {
	doc := []byte(`{
		"Base": {
			"properties": [
				{"name": "x", "type": "int", "hash": 100}
			]
		},
		"Derived": {
			"bases": ["Base"],
			"properties": [
				{"name": "x2", "type": "int", "hash": 100}
			]
		}
	}`)
	tl, err := Open(doc)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	def, err := tl.Lookup(StringID("class Derived"))
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if _, err := tl.Flatten(def); err == nil {
		t.Fatal("expected a schema error for a duplicate property hash across the base chain")
	}
}

func TestEnumOptionsTable(t *testing.T) {
	doc := []byte(`{
		"Mob": {
			"properties": [
				{"name": "color", "type": "enum", "enum_options": {"RED": 0, "BLUE": 2}}
			]
		}
	}`)
	tl, err := Open(doc)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	enum, err := tl.EnumOptions(StringID("class Mob"), "color")
	if err != nil {
		t.Fatalf("EnumOptions: %v", err)
	}
	if enum.ByValue[2] != "BLUE" || enum.ByName["RED"] != 0 {
		t.Fatalf("EnumOptions table incomplete: %+v", enum)
	}

	if _, err := tl.EnumOptions(StringID("class Mob"), "missing"); err == nil {
		t.Fatal("expected an error for a non-existent property")
	}
}

func TestOpenManyMergesFiles(t *testing.T) {
	dir := t.TempDir()
	p1 := filepath.Join(dir, "a.json")
	p2 := filepath.Join(dir, "b.json")
	if err := os.WriteFile(p1, []byte(`{"A": {"properties": []}}`), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := os.WriteFile(p2, []byte(`{"B": {"properties": []}}`), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	tl, err := OpenMany([]string{p1, p2})
	if err != nil {
		t.Fatalf("OpenMany: %v", err)
	}
	if _, err := tl.Lookup(StringID("class A")); err != nil {
		t.Fatalf("Lookup(A): %v", err)
	}
	if _, err := tl.Lookup(StringID("class B")); err != nil {
		t.Fatalf("Lookup(B): %v", err)
	}
}

func propNames(props []*Property) []string {
	names := make([]string, len(props))
	for i, p := range props {
		names[i] = p.Name
	}
	return names
}
