// Copyright 2024 Katsuba-go. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package katsuba

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/bytedance/sonic"
)

// EnumTable is a bidirectional mapping between an enum's symbolic names and
// integer values, as declared in a type list's enum_options.
type EnumTable struct {
	ByName  map[string]int64
	ByValue map[int64]string
}

func newEnumTable() *EnumTable {
	return &EnumTable{ByName: make(map[string]int64), ByValue: make(map[int64]string)}
}

// Property is a single field of a TypeDef's wire layout.
type Property struct {
	Name      string
	Hash      uint32
	Kind      Kind // base element kind; for a list property this is the element kind
	IsList    bool
	ClassRef  string // non-empty when Kind == KindObject: the referenced class name
	ClassHash uint32 // StringID("class "+ClassRef), precomputed for the decoder
	BitWidth  uint8  // width in bits when Flags.Has(Bits); 0 means "natural width"
	Flags     PropertyFlag
	Enum      *EnumTable // non-nil if this property is an enum
	Default   Value
}

// TypeDef is a schema record for one class, keyed by its type hash.
type TypeDef struct {
	Hash       uint32
	Name       string
	BaseHash   uint32 // 0 if no base class
	BaseName   string
	Properties []*Property // declared locally on this type, in wire order

	mu        sync.Mutex
	flattened []*Property // memoized base-chain-flattened property table
}

// typeListDoc mirrors the JSON type-list document shape described in
// SPEC_FULL.md §6. hash is optional on a v1 document and required on v2;
// its presence per-entry is exactly the auto-detection signal.
type typeListDoc map[string]typeListEntry

type typeListEntry struct {
	Hash       *uint32             `json:"hash"`
	Bases      []string            `json:"bases"`
	Properties []typeListPropertyJ `json:"properties"`
}

type typeListPropertyJ struct {
	Name        string           `json:"name"`
	Type        string           `json:"type"`
	Container   string           `json:"container"`
	Flags       PropertyFlag     `json:"flags"`
	Hash        *uint32          `json:"hash"`
	Bits        uint8            `json:"bits"`
	EnumOptions map[string]int64 `json:"enum_options"`
	Default     interface{}      `json:"default"`
}

// TypeList is an immutable, in-memory schema built from one or more JSON
// documents. It is safe to share across concurrently-running decoders.
type TypeList struct {
	byHash map[uint32]*TypeDef
	names  map[uint32]string
}

// Open parses a single type-list JSON document. It auto-detects the v1
// (no top-level per-type hash) vs. v2 (explicit hash) dialect entry by
// entry: an entry with an explicit "hash" field keeps that hash, and an
// entry without one gets StringID("class "+name). A bare class name is never
// re-hashed when a hash was supplied, fixing a historical bug where v1
// documents were unconditionally re-hashed at load time.
func Open(jsonText []byte) (*TypeList, error) {
	var doc typeListDoc
	if err := sonic.Unmarshal(jsonText, &doc); err != nil {
		return &TypeList{}, &SchemaError{Msg: "invalid JSON", Err: err}
	}

	tl := &TypeList{
		byHash: make(map[uint32]*TypeDef, len(doc)),
		names:  make(map[uint32]string, len(doc)),
	}

	for className, entry := range doc {
		def, err := buildTypeDef(className, entry)
		if err != nil {
			return nil, err
		}
		if existing, ok := tl.byHash[def.Hash]; ok && !sameTypeDef(existing, def) {
			return nil, &SchemaError{Msg: fmt.Sprintf(
				"hash collision for 0x%08x between %q and %q", def.Hash, existing.Name, def.Name)}
		}
		tl.byHash[def.Hash] = def
		tl.names[def.Hash] = def.Name
	}

	return tl, nil
}

// OpenMany parses and merges multiple type-list files. A hash collision
// between files with differing definitions fails the whole load.
func OpenMany(paths []string) (*TypeList, error) {
	merged := &TypeList{byHash: make(map[uint32]*TypeDef), names: make(map[uint32]string)}

	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("katsuba: reading type list %s: %w", path, err)
		}
		tl, err := Open(data)
		if err != nil {
			return nil, fmt.Errorf("katsuba: parsing type list %s: %w", path, err)
		}
		for hash, def := range tl.byHash {
			if existing, ok := merged.byHash[hash]; ok && !sameTypeDef(existing, def) {
				return nil, &SchemaError{Msg: fmt.Sprintf(
					"hash collision for 0x%08x between %q (from an earlier file) and %q (from %s)",
					hash, existing.Name, def.Name, path)}
			}
			merged.byHash[hash] = def
			merged.names[hash] = def.Name
		}
	}

	return merged, nil
}

// NameFor reverse-looks-up a type hash to its canonical name.
func (tl *TypeList) NameFor(hash uint32) (string, error) {
	name, ok := tl.names[hash]
	if !ok {
		return "", ErrNotFound
	}
	return name, nil
}

// Lookup returns the TypeDef for hash.
func (tl *TypeList) Lookup(hash uint32) (*TypeDef, error) {
	def, ok := tl.byHash[hash]
	if !ok {
		return nil, &UnknownTypeError{Hash: hash}
	}
	return def, nil
}

// EnumOptions returns the enum option table declared for (typeHash,
// propertyName), if that property is an enum.
func (tl *TypeList) EnumOptions(typeHash uint32, propertyName string) (*EnumTable, error) {
	def, err := tl.Lookup(typeHash)
	if err != nil {
		return nil, err
	}
	props, err := tl.flatten(def)
	if err != nil {
		return nil, err
	}
	for _, p := range props {
		if p.Name == propertyName {
			if p.Enum == nil {
				return nil, &SchemaError{Msg: fmt.Sprintf("property %q on %q is not an enum", propertyName, def.Name)}
			}
			return p.Enum, nil
		}
	}
	return nil, &SchemaError{Msg: fmt.Sprintf("no property %q on type %q", propertyName, def.Name)}
}

// flatten returns def's effective property table: its own properties
// preceded by its base class chain's, memoized on first use. A duplicate
// property-identifier hash anywhere in the flattened chain is a schema
// error.
func (tl *TypeList) flatten(def *TypeDef) ([]*Property, error) {
	def.mu.Lock()
	defer def.mu.Unlock()
	if def.flattened != nil {
		return def.flattened, nil
	}

	var chain []*TypeDef
	seen := make(map[uint32]bool)
	cur := def
	for cur != nil {
		if seen[cur.Hash] {
			return nil, &SchemaError{Msg: fmt.Sprintf("base-class cycle detected at %q", cur.Name)}
		}
		seen[cur.Hash] = true
		chain = append(chain, cur)
		if cur.BaseHash == 0 {
			break
		}
		base, ok := tl.byHash[cur.BaseHash]
		if !ok {
			return nil, &SchemaError{Msg: fmt.Sprintf("type %q references unknown base hash 0x%08x", cur.Name, cur.BaseHash)}
		}
		cur = base
	}

	var flat []*Property
	byHash := make(map[uint32]string)
	for i := len(chain) - 1; i >= 0; i-- {
		for _, p := range chain[i].Properties {
			if owner, dup := byHash[p.Hash]; dup {
				return nil, &SchemaError{Msg: fmt.Sprintf(
					"duplicate property hash 0x%08x on %q (already declared by %q)", p.Hash, def.Name, owner)}
			}
			byHash[p.Hash] = chain[i].Name
			flat = append(flat, p)
		}
	}

	def.flattened = flat
	return flat, nil
}

// Flatten is the exported form of flatten, used by the serializer core.
func (tl *TypeList) Flatten(def *TypeDef) ([]*Property, error) { return tl.flatten(def) }

func sameTypeDef(a, b *TypeDef) bool {
	if a.Hash != b.Hash || a.Name != b.Name || a.BaseHash != b.BaseHash || len(a.Properties) != len(b.Properties) {
		return false
	}
	for i := range a.Properties {
		if a.Properties[i].Hash != b.Properties[i].Hash || a.Properties[i].Name != b.Properties[i].Name {
			return false
		}
	}
	return true
}

func buildTypeDef(className string, entry typeListEntry) (*TypeDef, error) {
	def := &TypeDef{Name: className}

	// v2 documents carry an explicit hash and must not be re-derived; v1
	// documents have none, and the hash is computed from the class name.
	if entry.Hash != nil {
		def.Hash = *entry.Hash
	} else {
		def.Hash = StringID("class " + className)
	}

	if len(entry.Bases) > 0 {
		// Single inheritance chain: only the first declared base is used,
		// matching the source schema's "bases" field being an artifact of a
		// richer C++ model the wire format never actually uses polymorphically.
		def.BaseName = entry.Bases[0]
		def.BaseHash = StringID("class " + entry.Bases[0])
	}

	def.Properties = make([]*Property, 0, len(entry.Properties))
	for _, pj := range entry.Properties {
		prop, err := buildProperty(className, pj)
		if err != nil {
			return nil, err
		}
		def.Properties = append(def.Properties, prop)
	}

	return def, nil
}

func buildProperty(typeName string, pj typeListPropertyJ) (*Property, error) {
	prop := &Property{
		Name:     pj.Name,
		Flags:    pj.Flags,
		BitWidth: pj.Bits,
	}

	if pj.Hash != nil {
		prop.Hash = *pj.Hash
	} else {
		prop.Hash = StringID(pj.Name)
	}

	kind, classRef, err := parseWireType(pj.Type)
	if err != nil {
		return nil, &SchemaError{Msg: fmt.Sprintf("type %q property %q: %v", typeName, pj.Name, err)}
	}
	prop.Kind = kind
	prop.ClassRef = classRef
	if kind == KindObject {
		prop.ClassHash = StringID("class " + classRef)
	}

	if isListContainer(pj.Container) {
		prop.IsList = true
	}

	if len(pj.EnumOptions) > 0 {
		prop.Enum = newEnumTable()
		for name, val := range pj.EnumOptions {
			prop.Enum.ByName[name] = val
			prop.Enum.ByValue[val] = name
		}
	}

	prop.Default = defaultValueFor(prop, pj.Default)

	return prop, nil
}

func isListContainer(container string) bool {
	switch strings.ToLower(strings.TrimSpace(container)) {
	case "", "none":
		return false
	default:
		return true
	}
}

// parseWireType maps a schema's "type" string to a base Kind, and for class
// references returns the referenced class name.
func parseWireType(t string) (Kind, string, error) {
	switch strings.TrimSpace(t) {
	case "char", "s8", "int8":
		return KindI8, "", nil
	case "unsigned char", "u8", "uint8", "byte":
		return KindU8, "", nil
	case "short", "s16", "int16":
		return KindI16, "", nil
	case "unsigned short", "u16", "uint16":
		return KindU16, "", nil
	case "int", "s32", "int32", "long":
		return KindI32, "", nil
	case "unsigned int", "u32", "uint32", "unsigned long", "gid", "bui":
		return KindU32, "", nil
	case "s64", "int64", "long long":
		return KindI64, "", nil
	case "u64", "uint64", "unsigned long long", "gid64":
		return KindU64, "", nil
	case "bool", "bit":
		return KindBool, "", nil
	case "float", "f32":
		return KindF32, "", nil
	case "double", "f64":
		return KindF64, "", nil
	case "std::string", "str", "string":
		return KindString, "", nil
	case "std::wstring", "wstr", "wstring":
		return KindWideString, "", nil
	case "enum", "enum int", "enum unsigned int":
		return KindEnum, "", nil
	case "Vector3D", "vec3", "Vec3":
		return KindVec3, "", nil
	case "Quaternion":
		return KindQuaternion, "", nil
	case "Matrix3x3", "Matrix":
		return KindMatrix, "", nil
	case "Euler":
		return KindEuler, "", nil
	case "Point<int>", "PointInt":
		return KindPointInt, "", nil
	case "Point<float>", "PointFloat":
		return KindPointFloat, "", nil
	case "Point<unsigned int>", "PointUint":
		return KindPointUint, "", nil
	case "Size<int>", "SizeInt":
		return KindSizeInt, "", nil
	case "Rect<int>", "RectInt":
		return KindRectInt, "", nil
	case "Rect<float>", "RectFloat":
		return KindRectFloat, "", nil
	case "Color":
		return KindColor, "", nil
	case "bitflags", "flags", "BitFlags":
		return KindBitflags, "", nil
	case "":
		return KindInvalid, "", fmt.Errorf("empty type descriptor")
	default:
		// Anything else names another class by its C++ type name.
		return KindObject, t, nil
	}
}

func defaultValueFor(p *Property, raw interface{}) Value {
	if raw == nil {
		return zeroValueFor(p.Kind)
	}
	switch p.Kind {
	case KindI8, KindI16, KindI32, KindI64:
		if f, ok := raw.(float64); ok {
			return NewI64(int64(f))
		}
	case KindU8, KindU16, KindU32, KindU64:
		if f, ok := raw.(float64); ok {
			return NewU64(uint64(f))
		}
	case KindBool:
		if b, ok := raw.(bool); ok {
			return NewBool(b)
		}
	case KindF32, KindF64:
		if f, ok := raw.(float64); ok {
			return NewF64(f)
		}
	case KindString:
		if s, ok := raw.(string); ok {
			return NewString([]byte(s))
		}
	case KindEnum:
		if f, ok := raw.(float64); ok {
			return NewEnum(int64(f), "")
		}
	}
	return zeroValueFor(p.Kind)
}

func zeroValueFor(k Kind) Value {
	switch k {
	case KindI8:
		return NewI8(0)
	case KindU8:
		return NewU8(0)
	case KindI16:
		return NewI16(0)
	case KindU16:
		return NewU16(0)
	case KindI32:
		return NewI32(0)
	case KindU32:
		return NewU32(0)
	case KindI64:
		return NewI64(0)
	case KindU64:
		return NewU64(0)
	case KindBool:
		return NewBool(false)
	case KindF32:
		return NewF32(0)
	case KindF64:
		return NewF64(0)
	case KindString:
		return NewString(nil)
	case KindWideString:
		return NewWideString(nil)
	case KindEnum:
		return NewEnum(0, "")
	case KindVec3:
		return NewVec3(Vec3{})
	case KindQuaternion:
		return NewQuaternion(Quaternion{})
	case KindMatrix:
		return NewMatrix(Matrix{})
	case KindEuler:
		return NewEuler(Euler{})
	case KindPointInt:
		return NewPointInt(PointInt{})
	case KindPointFloat:
		return NewPointFloat(PointFloat{})
	case KindPointUint:
		return NewPointUint(PointUint{})
	case KindSizeInt:
		return NewSizeInt(SizeInt{})
	case KindRectInt:
		return NewRectInt(RectInt{})
	case KindRectFloat:
		return NewRectFloat(RectFloat{})
	case KindColor:
		return NewColor(Color{})
	case KindBitflags:
		return NewBitflags(0)
	case KindObject:
		return NewObjectValue(nil)
	default:
		return Value{}
	}
}
