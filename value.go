// Copyright 2024 Katsuba-go. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package katsuba

import (
	"fmt"
	"strings"

	"golang.org/x/text/encoding/unicode"
)

// Kind identifies which variant of Value is populated.
type Kind uint8

// Value kinds.
const (
	KindInvalid Kind = iota
	KindI8
	KindU8
	KindI16
	KindU16
	KindI32
	KindU32
	KindI64
	KindU64
	KindBool
	KindF32
	KindF64
	KindString
	KindWideString
	KindEnum
	KindVec3
	KindQuaternion
	KindMatrix
	KindEuler
	KindPointInt
	KindPointFloat
	KindPointUint
	KindSizeInt
	KindRectInt
	KindRectFloat
	KindColor
	KindBitflags
	KindList
	KindObject
)

// Vec3 is a 3-component f32 vector.
type Vec3 struct{ X, Y, Z float32 }

// Quaternion is an (x,y,z,w) f32 rotation.
type Quaternion struct{ X, Y, Z, W float32 }

// Matrix is a row-major 3x3 f32 matrix.
type Matrix [3][3]float32

// Euler is a (pitch,yaw,roll) f32 rotation.
type Euler struct{ Pitch, Yaw, Roll float32 }

// PointInt is a signed 2D integer point.
type PointInt struct{ X, Y int32 }

// PointFloat is a 2D float point.
type PointFloat struct{ X, Y float32 }

// PointUint is an unsigned 2D integer point, needed for Pirate101
// compatibility.
type PointUint struct{ X, Y uint32 }

// SizeInt is an integer width/height pair.
type SizeInt struct{ W, H int32 }

// RectInt is an integer rectangle.
type RectInt struct{ Left, Top, Right, Bottom int32 }

// RectFloat is a float rectangle.
type RectFloat struct{ Left, Top, Right, Bottom float32 }

// Color is an RGBA color with 8-bit channels.
type Color struct{ R, G, B, A uint8 }

// EnumValue is the decoded form of an enum property: Int always holds the
// wire integer, and Name holds the symbolic name when HumanReadableEnums was
// requested and decoding succeeded.
type EnumValue struct {
	Int  int64
	Name string
}

// Object is a decoded ObjectProperty instance: a type hash plus an ordered
// mapping from property name to Value. A nil Object (see Value.IsNull)
// represents a null Nullable-slot object on the wire.
type Object struct {
	TypeHash uint32
	TypeName string
	Fields   map[string]Value
	// Order preserves the property iteration order used during decode, since
	// Go map iteration order is unspecified and callers may care about
	// canonical serialization order.
	Order []string
}

// Get returns a field by name and whether it was present.
func (o *Object) Get(name string) (Value, bool) {
	if o == nil {
		return Value{}, false
	}
	v, ok := o.Fields[name]
	return v, ok
}

// Set inserts or replaces a field, recording first-insertion order.
func (o *Object) Set(name string, v Value) {
	if _, exists := o.Fields[name]; !exists {
		o.Order = append(o.Order, name)
	}
	o.Fields[name] = v
}

// NewObject allocates an empty Object for the given type.
func NewObject(typeHash uint32, typeName string) *Object {
	return &Object{
		TypeHash: typeHash,
		TypeName: typeName,
		Fields:   make(map[string]Value),
	}
}

// Value is a compact tagged union over every decodable ObjectProperty wire
// type. It intentionally holds at most one machine word of inline payload
// (num) plus one interface field (ptr, two words) so that decoding a large object
// tree churns through many small, stack-friendly values rather than boxing
// every field.
type Value struct {
	kind Kind
	num  uint64      // integers, bools, floats (bit pattern), enum ints
	ptr  interface{} // strings, compound structs, lists, objects, enum name
}

// Kind reports which variant is populated.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v is a null Nullable-slot object.
func (v Value) IsNull() bool {
	if v.kind != KindObject {
		return false
	}
	// v.ptr holds an interface boxing a (*Object)(nil); comparing it
	// directly against nil would miss since the interface's type is set
	// even though its value isn't, so go through the typed assertion.
	o, _ := v.ptr.(*Object)
	return o == nil
}

func newInt(k Kind, n uint64) Value { return Value{kind: k, num: n} }

// NewI8 constructs a signed 8-bit Value.
func NewI8(n int8) Value { return newInt(KindI8, uint64(uint8(n))) }

// NewU8 constructs an unsigned 8-bit Value.
func NewU8(n uint8) Value { return newInt(KindU8, uint64(n)) }

// NewI16 constructs a signed 16-bit Value.
func NewI16(n int16) Value { return newInt(KindI16, uint64(uint16(n))) }

// NewU16 constructs an unsigned 16-bit Value.
func NewU16(n uint16) Value { return newInt(KindU16, uint64(n)) }

// NewI32 constructs a signed 32-bit Value.
func NewI32(n int32) Value { return newInt(KindI32, uint64(uint32(n))) }

// NewU32 constructs an unsigned 32-bit Value.
func NewU32(n uint32) Value { return newInt(KindU32, uint64(n)) }

// NewI64 constructs a signed 64-bit Value.
func NewI64(n int64) Value { return newInt(KindI64, uint64(n)) }

// NewU64 constructs an unsigned 64-bit Value.
func NewU64(n uint64) Value { return newInt(KindU64, n) }

// NewBool constructs a boolean Value.
func NewBool(b bool) Value {
	var n uint64
	if b {
		n = 1
	}
	return Value{kind: KindBool, num: n}
}

// NewF32 constructs a 32-bit float Value.
func NewF32(f float32) Value {
	return Value{kind: KindF32, num: uint64(f32bits(f))}
}

// NewF64 constructs a 64-bit float Value.
func NewF64(f float64) Value {
	return Value{kind: KindF64, num: f64bits(f)}
}

// NewString constructs a raw-bytes string Value. Bytes are treated as
// opaque; UTF-8 interpretation is left to String().
func NewString(b []byte) Value {
	return Value{kind: KindString, ptr: b}
}

// NewWideString constructs a wide-string Value from raw 16-bit code units.
func NewWideString(units []uint16) Value {
	return Value{kind: KindWideString, ptr: units}
}

// NewEnum constructs an enum Value. Name is empty unless
// HumanReadableEnums resolved the integer to a symbolic name.
func NewEnum(n int64, name string) Value {
	return Value{kind: KindEnum, num: uint64(n), ptr: name}
}

// NewList constructs a list Value from a homogeneous slice of elements.
func NewList(elems []Value) Value {
	return Value{kind: KindList, ptr: elems}
}

// NewObjectValue wraps an *Object (possibly nil for a null Nullable slot).
func NewObjectValue(o *Object) Value {
	return Value{kind: KindObject, ptr: o}
}

func newCompound(k Kind, v interface{}) Value {
	return Value{kind: k, ptr: v}
}

// NewVec3, NewQuaternion, ... construct the fixed-size compound leaves.
func NewVec3(v Vec3) Value             { return newCompound(KindVec3, v) }
func NewQuaternion(v Quaternion) Value { return newCompound(KindQuaternion, v) }
func NewMatrix(v Matrix) Value         { return newCompound(KindMatrix, v) }
func NewEuler(v Euler) Value           { return newCompound(KindEuler, v) }
func NewPointInt(v PointInt) Value     { return newCompound(KindPointInt, v) }
func NewPointFloat(v PointFloat) Value { return newCompound(KindPointFloat, v) }
func NewPointUint(v PointUint) Value   { return newCompound(KindPointUint, v) }
func NewSizeInt(v SizeInt) Value       { return newCompound(KindSizeInt, v) }
func NewRectInt(v RectInt) Value       { return newCompound(KindRectInt, v) }
func NewRectFloat(v RectFloat) Value   { return newCompound(KindRectFloat, v) }
func NewColor(v Color) Value           { return newCompound(KindColor, v) }

// NewBitflags constructs a bitflags Value: an integer whose bits are named
// by an enum option table, wire-encoded as a length-prefixed token string
// rather than a raw integer.
func NewBitflags(n uint32) Value { return newInt(KindBitflags, uint64(n)) }

// Int returns the value as an int64 for any integer, bool, or enum kind.
func (v Value) Int() int64 {
	switch v.kind {
	case KindI8:
		return int64(int8(v.num))
	case KindI16:
		return int64(int16(v.num))
	case KindI32:
		return int64(int32(v.num))
	case KindI64, KindEnum:
		return int64(v.num)
	case KindBool:
		if v.num != 0 {
			return 1
		}
		return 0
	default:
		return int64(v.num)
	}
}

// Uint returns the value as a uint64 for any integer or bool kind.
func (v Value) Uint() uint64 { return v.num }

// Bool returns the boolean payload.
func (v Value) Bool() bool { return v.num != 0 }

// F32 returns the float32 payload.
func (v Value) F32() float32 { return f32frombits(uint32(v.num)) }

// F64 returns the float64 payload.
func (v Value) F64() float64 { return f64frombits(v.num) }

// Bytes returns the raw string payload.
func (v Value) Bytes() []byte {
	b, _ := v.ptr.([]byte)
	return b
}

// WideUnits returns the raw wide-string code units.
func (v Value) WideUnits() []uint16 {
	u, _ := v.ptr.([]uint16)
	return u
}

// EnumName returns the symbolic enum name, empty if not resolved.
func (v Value) EnumName() string {
	s, _ := v.ptr.(string)
	return s
}

// List returns the element slice of a list Value.
func (v Value) List() []Value {
	l, _ := v.ptr.([]Value)
	return l
}

// AsObject returns the *Object payload (nil for a null Nullable slot).
func (v Value) AsObject() *Object {
	o, _ := v.ptr.(*Object)
	return o
}

// String renders a Value for diagnostics. It is a presentation concern, not
// part of the wire format: raw String bytes are rendered as UTF-8 best
// effort, and WideString code units are decoded as little-endian UTF-16.
func (v Value) String() string {
	switch v.kind {
	case KindString:
		return string(v.Bytes())
	case KindWideString:
		units := v.WideUnits()
		buf := make([]byte, len(units)*2)
		for i, u := range units {
			buf[2*i] = byte(u)
			buf[2*i+1] = byte(u >> 8)
		}
		decoder := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewDecoder()
		out, err := decoder.Bytes(buf)
		if err != nil {
			return ""
		}
		return string(out)
	case KindEnum:
		if name := v.EnumName(); name != "" {
			return name
		}
		return fmt.Sprintf("%d", v.Int())
	case KindObject:
		o := v.AsObject()
		if o == nil {
			return "null"
		}
		var b strings.Builder
		fmt.Fprintf(&b, "%s{", o.TypeName)
		for i, name := range o.Order {
			if i > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "%s: %v", name, o.Fields[name])
		}
		b.WriteByte('}')
		return b.String()
	default:
		return fmt.Sprintf("%v", v.ptr)
	}
}
