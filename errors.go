// Copyright 2024 Katsuba-go. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package katsuba

import (
	"errors"
	"fmt"
)

// Sentinel errors with no structured payload.
var (
	// ErrUnexpectedEOF is returned when the bit reader runs past the end of
	// its backing buffer.
	ErrUnexpectedEOF = errors.New("katsuba: unexpected end of input")

	// ErrBadMagic is returned when a KIWAD archive does not begin with the
	// "KIWAD" magic.
	ErrBadMagic = errors.New("katsuba: bad KIWAD magic")

	// ErrBadVersion is returned when a KIWAD header declares an unsupported
	// version.
	ErrBadVersion = errors.New("katsuba: unsupported KIWAD version")

	// ErrCorrupt is returned for CRC mismatches, malformed journals, inflate
	// failures, and decompressed-size mismatches.
	ErrCorrupt = errors.New("katsuba: corrupt archive data")

	// ErrBadGlob is returned when an iter_glob pattern fails to compile.
	ErrBadGlob = errors.New("katsuba: malformed glob pattern")

	// ErrNotFound is returned by TypeList.NameFor on a reverse-lookup miss.
	ErrNotFound = errors.New("katsuba: not found")

	// ErrNotInArchive is returned when a path does not exist in an Archive.
	ErrNotInArchive = errors.New("katsuba: path not present in archive")
)

// UnknownTypeError is returned when an object's on-wire type hash has no
// entry in the type registry and SkipUnknownTypes is not set.
type UnknownTypeError struct {
	Hash uint32
}

func (e *UnknownTypeError) Error() string {
	return fmt.Sprintf("katsuba: unknown type hash 0x%08x", e.Hash)
}

// UnknownPropertyError is returned when a property identifier hash has no
// entry on the enclosing type and SkipUnknownTypes is not set.
type UnknownPropertyError struct {
	Hash uint32
	Type string
}

func (e *UnknownPropertyError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("katsuba: unknown property hash 0x%08x on type %q", e.Hash, e.Type)
	}
	return fmt.Sprintf("katsuba: unknown property hash 0x%08x", e.Hash)
}

// RecursionLimitError is returned when object nesting exceeds the
// configured SerializerOptions.RecursionLimit.
type RecursionLimitError struct {
	Limit uint32
}

func (e *RecursionLimitError) Error() string {
	return fmt.Sprintf("katsuba: recursion limit of %d exceeded", e.Limit)
}

// InvalidEnumError is returned when an enum's decoded integer value is not
// present in its option table under HumanReadableEnums.
type InvalidEnumError struct {
	Value int64
	Type  string
}

func (e *InvalidEnumError) Error() string {
	return fmt.Sprintf("katsuba: value %d is not a valid member of enum %q", e.Value, e.Type)
}

// SchemaError wraps a malformed or internally contradictory type list.
type SchemaError struct {
	Msg string
	Err error
}

func (e *SchemaError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("katsuba: schema error: %s: %v", e.Msg, e.Err)
	}
	return fmt.Sprintf("katsuba: schema error: %s", e.Msg)
}

func (e *SchemaError) Unwrap() error { return e.Err }
