// Copyright 2024 Katsuba-go. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package katsuba

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"
)

// binDPrefix is a 4-byte marker some producers prepend to an otherwise
// ordinary serialized object. StripBINdPrefix recognizes and removes it.
var binDPrefix = []byte("BINd")

// StripBINdPrefix removes a leading "BINd" marker from data, if present,
// returning the remainder and whether the marker was found.
func StripBINdPrefix(data []byte) ([]byte, bool) {
	if bytes.HasPrefix(data, binDPrefix) {
		return data[len(binDPrefix):], true
	}
	return data, false
}

// Serializer decodes ObjectProperty-format byte streams against a TypeList,
// under a fixed SerializerOptions dialect. A Serializer is safe for
// concurrent use: Deserialize constructs fresh, call-local decode state
// every invocation, so nothing carries over between successive decodes
// (including decodes issued concurrently from the same Serializer value).
type Serializer struct {
	opts  *SerializerOptions
	types *TypeList
}

// New builds a Serializer. opts may be nil to use NewSerializerOptions's
// defaults. types may be nil only if every decode will have
// SkipUnknownTypes set and is expected to produce nothing but synthetic
// empty objects.
func New(opts *SerializerOptions, types *TypeList) *Serializer {
	if opts == nil {
		opts = NewSerializerOptions()
	}
	return &Serializer{opts: opts.normalized(), types: types}
}

// decodeState carries the mutable cursor and recursion counter for one
// top-level Deserialize call.
type decodeState struct {
	br    *BitReader
	depth uint32
}

// Deserialize decodes data as "any object": the root's type hash is read
// from the wire. It fails if the configured dialect is Shallow, since a
// shallow root has no type hash on the wire to read — use DeserializeAs.
func (s *Serializer) Deserialize(data []byte) (*Object, error) {
	if s.opts.Shallow {
		return nil, &SchemaError{Msg: "Deserialize: shallow dialect requires an explicit root type; use DeserializeAs"}
	}
	return s.deserialize(data, 0, false)
}

// DeserializeAs decodes data expecting the root object to be of type
// typeHash. Under the Shallow dialect this is the only way to decode a
// root object, since its type is never written as a wire hash; under the
// non-shallow dialect it additionally validates the wire-read hash matches.
func (s *Serializer) DeserializeAs(data []byte, typeHash uint32) (*Object, error) {
	return s.deserialize(data, typeHash, true)
}

func (s *Serializer) deserialize(data []byte, expectHash uint32, strict bool) (*Object, error) {
	buf := data
	if s.opts.Flags.Has(WithCompression) && !s.opts.ManualCompression {
		inflated, err := inflateFramed(data)
		if err != nil {
			return nil, err
		}
		buf = inflated
	}

	st := &decodeState{br: NewBitReader(buf)}
	return s.readObject(st, expectHash, strict, false, true)
}

// inflateFramed inflates the top-level compression frame: a 4-byte
// little-endian decompressed-size header followed by a raw zlib stream.
func inflateFramed(data []byte) ([]byte, error) {
	if len(data) < 4 {
		return nil, ErrUnexpectedEOF
	}
	declared := binary.LittleEndian.Uint32(data[:4])

	zr, err := zlib.NewReader(bytes.NewReader(data[4:]))
	if err != nil {
		return nil, fmt.Errorf("katsuba: %w: zlib header: %v", ErrCorrupt, err)
	}
	defer zr.Close()

	out, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("katsuba: %w: inflate: %v", ErrCorrupt, err)
	}
	if uint32(len(out)) != declared {
		return nil, fmt.Errorf("katsuba: %w: declared size %d, got %d", ErrCorrupt, declared, len(out))
	}
	return out, nil
}

// readObject reads one ObjectProperty instance. isRoot controls only
// whether its content-length prefix is measured in bits (root, and every
// object under the Shallow dialect) or bytes (a non-shallow nested
// object); whether a type hash appears on the wire at all is governed
// uniformly by s.opts.Shallow, including for the root.
func (s *Serializer) readObject(st *decodeState, typeHash uint32, strict bool, nullable bool, isRoot bool) (*Object, error) {
	shallow := s.opts.Shallow

	hash := typeHash
	if !shallow {
		h, err := st.br.ReadUint32()
		if err != nil {
			return nil, err
		}
		hash = h
		if hash == 0 && nullable {
			return nil, nil
		}
	} else if hash == 0 {
		return nil, &SchemaError{Msg: "shallow object read with no type hash supplied by context"}
	}

	if strict && hash != typeHash && typeHash != 0 {
		return nil, &SchemaError{Msg: fmt.Sprintf("root type mismatch: wanted 0x%08x, wire declared 0x%08x", typeHash, hash)}
	}

	// Object content length is self-inclusive: it is measured from the
	// bit position immediately preceding the length field itself, not
	// from after it, unlike every other length prefix in the format.
	posBeforeLen := st.br.Pos()
	n, err := s.readLength(st)
	if err != nil {
		return nil, err
	}
	var endBit uint64
	if isRoot || shallow {
		endBit = posBeforeLen + n
	} else {
		endBit = posBeforeLen + n*8
	}

	st.depth++
	if st.depth > s.opts.RecursionLimit {
		st.depth--
		return nil, &RecursionLimitError{Limit: s.opts.RecursionLimit}
	}
	defer func() { st.depth-- }()

	var def *TypeDef
	if s.types != nil {
		def, err = s.types.Lookup(hash)
	} else {
		err = &UnknownTypeError{Hash: hash}
	}
	if err != nil {
		if !s.opts.SkipUnknownTypes {
			return nil, err
		}
		s.opts.Logger.Warnf("skipping unknown type hash 0x%08x", hash)
		if serr := st.br.SeekBit(endBit); serr != nil {
			return nil, serr
		}
		return NewObject(hash, ""), nil
	}

	props, err := s.types.Flatten(def)
	if err != nil {
		return nil, err
	}

	obj := NewObject(def.Hash, def.Name)
	if shallow {
		err = s.readPropertiesShallow(st, obj, props)
	} else {
		err = s.readPropertiesFramed(st, obj, props, def.Name, endBit)
	}
	if err != nil {
		return nil, err
	}

	// Properties flagged DeltaIgnore are never present on the wire in
	// either dialect; always materialize them at their default.
	for _, p := range props {
		if p.Flags.Has(DeltaIgnore) {
			if _, ok := obj.Get(p.Name); !ok {
				obj.Set(p.Name, p.Default)
			}
		}
	}

	if err := st.br.SeekBit(endBit); err != nil {
		return nil, err
	}
	return obj, nil
}

// readPropertiesShallow decodes an object's properties positionally, in
// declared schema order, with no per-property framing. Delta bits are
// interpreted here, and nowhere else.
func (s *Serializer) readPropertiesShallow(st *decodeState, obj *Object, props []*Property) error {
	deltaActive := !s.opts.Flags.Has(ForbidDeltaEncode)
	for _, p := range props {
		if !p.Flags.Has(s.opts.PropertyMask) {
			continue
		}
		if p.Flags.Has(DeltaIgnore) {
			continue
		}
		if deltaActive && p.Flags.Has(DeltaEncode) {
			changed, err := st.br.ReadBool()
			if err != nil {
				return err
			}
			if !changed {
				obj.Set(p.Name, p.Default)
				continue
			}
		}
		v, err := s.readValue(st, p)
		if err != nil {
			return err
		}
		obj.Set(p.Name, v)
	}
	return nil
}

// readPropertiesFramed decodes an object's properties as a sequence of
// (identifier hash, bit length, value) triples, terminated by the
// object's recorded end-of-object bit offset rather than a declared
// count. Unknown property hashes and masked-out properties are skipped
// using their declared length.
func (s *Serializer) readPropertiesFramed(st *decodeState, obj *Object, props []*Property, typeName string, endBit uint64) error {
	byHash := make(map[uint32]*Property, len(props))
	for _, p := range props {
		byHash[p.Hash] = p
	}

	for st.br.Pos() < endBit {
		hash, err := st.br.ReadUint32()
		if err != nil {
			return err
		}
		n, err := s.readLength(st)
		if err != nil {
			return err
		}
		// Unlike an object's content length, a property's length field is
		// measured in bits and is not self-inclusive: it spans exactly the
		// value that follows, nothing more.
		propEnd := st.br.Pos() + n

		p, known := byHash[hash]
		if !known {
			if !s.opts.SkipUnknownTypes {
				return &UnknownPropertyError{Hash: hash, Type: typeName}
			}
			s.opts.Logger.Warnf("skipping unknown property hash 0x%08x on %q", hash, typeName)
			if err := st.br.SeekBit(propEnd); err != nil {
				return err
			}
			continue
		}
		if !p.Flags.Has(s.opts.PropertyMask) {
			if err := st.br.SeekBit(propEnd); err != nil {
				return err
			}
			continue
		}

		v, err := s.readValue(st, p)
		if err != nil {
			return err
		}
		obj.Set(p.Name, v)

		if err := st.br.SeekBit(propEnd); err != nil {
			return err
		}
	}
	return nil
}

// readLength reads a length/count prefix, honoring CompactLengthPrefixes.
func (s *Serializer) readLength(st *decodeState) (uint64, error) {
	if s.opts.Flags.Has(CompactLengthPrefixes) {
		small, err := st.br.ReadBool()
		if err != nil {
			return 0, err
		}
		if small {
			return st.br.ReadBits(7)
		}
		return st.br.ReadBits(31)
	}
	v, err := st.br.ReadUint32()
	return uint64(v), err
}

func (s *Serializer) readValue(st *decodeState, p *Property) (Value, error) {
	if p.IsList {
		return s.readList(st, p)
	}
	if p.Kind == KindObject {
		child, err := s.readObject(st, p.ClassHash, false, p.Flags.Has(Nullable), false)
		if err != nil {
			return Value{}, err
		}
		return NewObjectValue(child), nil
	}
	return s.readPrimitive(st, p)
}

func (s *Serializer) readList(st *decodeState, p *Property) (Value, error) {
	n, err := s.readLength(st)
	if err != nil {
		return Value{}, err
	}
	elemProp := *p
	elemProp.IsList = false
	elems := make([]Value, 0, n)
	for i := uint64(0); i < n; i++ {
		v, err := s.readValue(st, &elemProp)
		if err != nil {
			return Value{}, err
		}
		elems = append(elems, v)
	}
	return NewList(elems), nil
}

func naturalWidth(k Kind) int {
	switch k {
	case KindI8, KindU8:
		return 8
	case KindI16, KindU16:
		return 16
	case KindI32, KindU32:
		return 32
	case KindI64, KindU64:
		return 64
	default:
		return 32
	}
}

func signExtend(raw uint64, width int) int64 {
	if width >= 64 {
		return int64(raw)
	}
	if raw&(1<<uint(width-1)) != 0 {
		return int64(raw) - (1 << uint(width))
	}
	return int64(raw)
}

func wrapInt(k Kind, raw uint64, width int) Value {
	switch k {
	case KindI8:
		return NewI8(int8(signExtend(raw, width)))
	case KindI16:
		return NewI16(int16(signExtend(raw, width)))
	case KindI32:
		return NewI32(int32(signExtend(raw, width)))
	case KindI64:
		return NewI64(signExtend(raw, width))
	case KindU8:
		return NewU8(uint8(raw))
	case KindU16:
		return NewU16(uint16(raw))
	case KindU32:
		return NewU32(uint32(raw))
	default:
		return NewU64(raw)
	}
}

// readPrimitive dispatches on a property's base Kind. Integer kinds
// declared with the Bits flag read their declared BitWidth with no
// alignment, independent of StatefulFlags; otherwise the StatefulFlags
// option suppresses the byte-alignment that would otherwise precede every
// fixed-width field, letting adjacent boolean-like fields pack tightly.
func (s *Serializer) readPrimitive(st *decodeState, p *Property) (Value, error) {
	switch p.Kind {
	case KindBool:
		b, err := st.br.ReadBool()
		return NewBool(b), err

	case KindI8, KindU8, KindI16, KindU16, KindI32, KindU32, KindI64, KindU64:
		if p.Flags.Has(Bits) {
			width := int(p.BitWidth)
			if width <= 0 {
				width = naturalWidth(p.Kind)
			}
			raw, err := st.br.ReadBits(width)
			if err != nil {
				return Value{}, err
			}
			return wrapInt(p.Kind, raw, width), nil
		}
		if !s.opts.Flags.Has(StatefulFlags) {
			st.br.AlignByte()
		}
		width := naturalWidth(p.Kind)
		raw, err := st.br.ReadBits(width)
		if err != nil {
			return Value{}, err
		}
		return wrapInt(p.Kind, raw, width), nil

	case KindF32:
		if !s.opts.Flags.Has(StatefulFlags) {
			st.br.AlignByte()
		}
		v, err := st.br.ReadUint32()
		return NewF32(f32frombits(v)), err

	case KindF64:
		if !s.opts.Flags.Has(StatefulFlags) {
			st.br.AlignByte()
		}
		v, err := st.br.ReadUint64()
		return NewF64(f64frombits(v)), err

	case KindString:
		return s.readString(st)

	case KindWideString:
		return s.readWideString(st)

	case KindBitflags:
		return s.readBitflags(st, p)

	case KindEnum:
		return s.readEnum(st, p)

	case KindVec3, KindQuaternion, KindMatrix, KindEuler, KindPointInt, KindPointFloat,
		KindPointUint, KindSizeInt, KindRectInt, KindRectFloat, KindColor:
		return s.readCompound(st, p.Kind)

	default:
		return Value{}, fmt.Errorf("katsuba: property %q: unsupported wire kind %d", p.Name, p.Kind)
	}
}

func (s *Serializer) readString(st *decodeState) (Value, error) {
	n, err := s.readLength(st)
	if err != nil {
		return Value{}, err
	}
	b, err := st.br.ReadBytes(int(n))
	if err != nil {
		return Value{}, err
	}
	out := make([]byte, len(b))
	copy(out, b)
	return NewString(out), nil
}

func (s *Serializer) readWideString(st *decodeState) (Value, error) {
	n, err := s.readLength(st)
	if err != nil {
		return Value{}, err
	}
	units := make([]uint16, n)
	for i := range units {
		v, err := st.br.ReadUint16()
		if err != nil {
			return Value{}, err
		}
		units[i] = v
	}
	return NewWideString(units), nil
}

// readBitflags decodes the textual bitflags wire form: a length-prefixed
// ASCII string of '|'-joined flag names. A zero length decodes straight
// to integer 0, a fix for a historical bug where an empty flag string
// decoded to garbage.
func (s *Serializer) readBitflags(st *decodeState, p *Property) (Value, error) {
	n, err := s.readLength(st)
	if err != nil {
		return Value{}, err
	}
	if n == 0 {
		return NewBitflags(0), nil
	}
	b, err := st.br.ReadBytes(int(n))
	if err != nil {
		return Value{}, err
	}
	var acc uint32
	for _, tok := range splitFlagTokens(b) {
		if p.Enum != nil {
			if v, ok := p.Enum.ByName[tok]; ok {
				acc |= uint32(v)
				continue
			}
		}
		if iv, ok := parseUintToken(tok); ok {
			acc |= iv
		}
	}
	return NewBitflags(acc), nil
}

func splitFlagTokens(b []byte) []string {
	var out []string
	start := 0
	for i := 0; i <= len(b); i++ {
		if i == len(b) || b[i] == '|' {
			if i > start {
				out = append(out, string(b[start:i]))
			}
			start = i + 1
		}
	}
	return out
}

func parseUintToken(s string) (uint32, bool) {
	if s == "" {
		return 0, false
	}
	var v uint32
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, false
		}
		v = v*10 + uint32(s[i]-'0')
	}
	return v, true
}

func (s *Serializer) readEnum(st *decodeState, p *Property) (Value, error) {
	width := 32
	if p.Flags.Has(Bits) && p.BitWidth > 0 {
		width = int(p.BitWidth)
	} else if !s.opts.Flags.Has(StatefulFlags) {
		st.br.AlignByte()
	}

	raw, err := st.br.ReadBits(width)
	if err != nil {
		return Value{}, err
	}
	val := signExtend(raw, width)

	if !s.opts.Flags.Has(HumanReadableEnums) {
		return NewEnum(val, ""), nil
	}
	if p.Enum == nil {
		return Value{}, &InvalidEnumError{Value: val, Type: p.Name}
	}
	name, ok := p.Enum.ByValue[val]
	if !ok {
		if s.opts.SkipUnknownTypes {
			s.opts.Logger.Warnf("enum %q: value %d has no symbolic name", p.Name, val)
			return NewEnum(val, ""), nil
		}
		return Value{}, &InvalidEnumError{Value: val, Type: p.Name}
	}
	return NewEnum(val, name), nil
}

func (s *Serializer) readF32(st *decodeState) (float32, error) {
	st.br.AlignByte()
	v, err := st.br.ReadUint32()
	return f32frombits(v), err
}

func (s *Serializer) readI32(st *decodeState) (int32, error) {
	st.br.AlignByte()
	v, err := st.br.ReadUint32()
	return int32(v), err
}

func (s *Serializer) readU32(st *decodeState) (uint32, error) {
	st.br.AlignByte()
	v, err := st.br.ReadUint32()
	return v, err
}

func (s *Serializer) readU8(st *decodeState) (uint8, error) {
	st.br.AlignByte()
	return st.br.ReadUint8()
}

// readCompound decodes the fixed-layout geometric leaf types. These are
// always byte-aligned, regardless of StatefulFlags: the engine never packs
// them as bitfields.
func (s *Serializer) readCompound(st *decodeState, k Kind) (Value, error) {
	switch k {
	case KindVec3:
		x, err := s.readF32(st)
		if err != nil {
			return Value{}, err
		}
		y, err := s.readF32(st)
		if err != nil {
			return Value{}, err
		}
		z, err := s.readF32(st)
		if err != nil {
			return Value{}, err
		}
		return NewVec3(Vec3{X: x, Y: y, Z: z}), nil

	case KindQuaternion:
		x, err := s.readF32(st)
		if err != nil {
			return Value{}, err
		}
		y, err := s.readF32(st)
		if err != nil {
			return Value{}, err
		}
		z, err := s.readF32(st)
		if err != nil {
			return Value{}, err
		}
		w, err := s.readF32(st)
		if err != nil {
			return Value{}, err
		}
		return NewQuaternion(Quaternion{X: x, Y: y, Z: z, W: w}), nil

	case KindMatrix:
		var m Matrix
		for i := 0; i < 3; i++ {
			for j := 0; j < 3; j++ {
				v, err := s.readF32(st)
				if err != nil {
					return Value{}, err
				}
				m[i][j] = v
			}
		}
		return NewMatrix(m), nil

	case KindEuler:
		pitch, err := s.readF32(st)
		if err != nil {
			return Value{}, err
		}
		yaw, err := s.readF32(st)
		if err != nil {
			return Value{}, err
		}
		roll, err := s.readF32(st)
		if err != nil {
			return Value{}, err
		}
		return NewEuler(Euler{Pitch: pitch, Yaw: yaw, Roll: roll}), nil

	case KindPointInt:
		x, err := s.readI32(st)
		if err != nil {
			return Value{}, err
		}
		y, err := s.readI32(st)
		if err != nil {
			return Value{}, err
		}
		return NewPointInt(PointInt{X: x, Y: y}), nil

	case KindPointFloat:
		x, err := s.readF32(st)
		if err != nil {
			return Value{}, err
		}
		y, err := s.readF32(st)
		if err != nil {
			return Value{}, err
		}
		return NewPointFloat(PointFloat{X: x, Y: y}), nil

	case KindPointUint:
		x, err := s.readU32(st)
		if err != nil {
			return Value{}, err
		}
		y, err := s.readU32(st)
		if err != nil {
			return Value{}, err
		}
		return NewPointUint(PointUint{X: x, Y: y}), nil

	case KindSizeInt:
		w, err := s.readI32(st)
		if err != nil {
			return Value{}, err
		}
		h, err := s.readI32(st)
		if err != nil {
			return Value{}, err
		}
		return NewSizeInt(SizeInt{W: w, H: h}), nil

	case KindRectInt:
		left, err := s.readI32(st)
		if err != nil {
			return Value{}, err
		}
		top, err := s.readI32(st)
		if err != nil {
			return Value{}, err
		}
		right, err := s.readI32(st)
		if err != nil {
			return Value{}, err
		}
		bottom, err := s.readI32(st)
		if err != nil {
			return Value{}, err
		}
		return NewRectInt(RectInt{Left: left, Top: top, Right: right, Bottom: bottom}), nil

	case KindRectFloat:
		left, err := s.readF32(st)
		if err != nil {
			return Value{}, err
		}
		top, err := s.readF32(st)
		if err != nil {
			return Value{}, err
		}
		right, err := s.readF32(st)
		if err != nil {
			return Value{}, err
		}
		bottom, err := s.readF32(st)
		if err != nil {
			return Value{}, err
		}
		return NewRectFloat(RectFloat{Left: left, Top: top, Right: right, Bottom: bottom}), nil

	case KindColor:
		r, err := s.readU8(st)
		if err != nil {
			return Value{}, err
		}
		g, err := s.readU8(st)
		if err != nil {
			return Value{}, err
		}
		b, err := s.readU8(st)
		if err != nil {
			return Value{}, err
		}
		a, err := s.readU8(st)
		if err != nil {
			return Value{}, err
		}
		return NewColor(Color{R: r, G: g, B: b, A: a}), nil

	default:
		return Value{}, fmt.Errorf("katsuba: unreachable compound kind %d", k)
	}
}
