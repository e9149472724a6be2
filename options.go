// Copyright 2024 Katsuba-go. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package katsuba

import "github.com/katsuba-go/katsuba/log"

// SerializerFlag is a bitset of encoding-dialect switches understood by the
// serializer core.
type SerializerFlag uint32

// Serializer flag bits, by bit position.
const (
	// StatefulFlags suppresses the byte alignment that otherwise precedes
	// each fixed-width integer, enum and float field, so such fields pack
	// back to back in a running bit cursor within the current object frame.
	// Bool fields are single unaligned bits with or without this flag.
	StatefulFlags SerializerFlag = 1 << 0

	// CompactLengthPrefixes replaces 32-bit length counts with a 1-bit
	// small-flag followed by a 7-bit or 31-bit count.
	CompactLengthPrefixes SerializerFlag = 1 << 1

	// HumanReadableEnums resolves enum integers to symbolic names through
	// the type registry's enum option table.
	HumanReadableEnums SerializerFlag = 1 << 2

	// WithCompression wraps the payload in a 4-byte length header plus a
	// zlib frame.
	WithCompression SerializerFlag = 1 << 3

	// ForbidDeltaEncode disables delta-bit interpretation even for
	// properties flagged DeltaEncode.
	ForbidDeltaEncode SerializerFlag = 1 << 4
)

// Has reports whether all bits in mask are set.
func (f SerializerFlag) Has(mask SerializerFlag) bool { return f&mask == mask }

// PropertyFlag is a bitset of schema-declared per-property attributes.
type PropertyFlag uint32

// Property flag bits.
const (
	Public      PropertyFlag = 1 << 0
	Transient   PropertyFlag = 1 << 1
	DeltaEncode PropertyFlag = 1 << 2
	DeltaIgnore PropertyFlag = 1 << 3
	Nullable    PropertyFlag = 1 << 4
	Bits        PropertyFlag = 1 << 5

	// Pirate101-specific flags discovered in later schema revisions; values
	// are taken from the schema itself rather than redefined here, but the
	// well-known bit positions are named for convenience.
	Pirate101Reserved1 PropertyFlag = 1 << 6
	Pirate101Reserved2 PropertyFlag = 1 << 7
)

// Has reports whether all bits in mask are set.
func (f PropertyFlag) Has(mask PropertyFlag) bool { return f&mask == mask }

// DefaultPropertyMask is the property_mask used when SerializerOptions does
// not specify one: every property except Transient ones is considered.
const DefaultPropertyMask PropertyFlag = ^PropertyFlag(0) &^ Transient

// DefaultRecursionLimit bounds nested-object depth when SerializerOptions
// does not specify one.
const DefaultRecursionLimit uint32 = 128

// SerializerOptions configures a Serializer. The zero value is usable: New
// replaces a zero PropertyMask with DefaultPropertyMask, a zero
// RecursionLimit with DefaultRecursionLimit, and a nil Logger with the
// default logger.
type SerializerOptions struct {
	// Flags selects the encoding dialect (see the SerializerFlag bits).
	Flags SerializerFlag

	// PropertyMask restricts which properties are considered on the wire: a
	// property participates only if (property.Flags & PropertyMask) ==
	// PropertyMask.
	PropertyMask PropertyFlag

	// Shallow, if true, reads/writes nested objects as typed fields inline
	// in the current frame instead of as separately framed sub-objects.
	// Delta bits are only interpreted in this mode.
	Shallow bool

	// ManualCompression, when Flags has WithCompression set, tells the
	// serializer that the caller has already inflated the payload (e.g. an
	// archive entry decoded at a different layer), so the top-level decode
	// skips its own zlib stage.
	ManualCompression bool

	// RecursionLimit caps nested-object depth; 0 means DefaultRecursionLimit.
	RecursionLimit uint32

	// SkipUnknownTypes enables the lenient recovery policy: unknown object
	// hashes and unknown property identifiers are skipped using their
	// declared length rather than failing the whole decode.
	SkipUnknownTypes bool

	// Logger receives diagnostic messages about recoverable conditions
	// (skipped unknown types/properties, and the like). A nil Logger is
	// replaced by a logger that writes only error-level messages to
	// standard output.
	Logger *log.Helper
}

// NewSerializerOptions returns SerializerOptions with the documented
// defaults: property_mask excludes Transient, recursion_limit is
// DefaultRecursionLimit, and all flags clear.
func NewSerializerOptions() *SerializerOptions {
	return &SerializerOptions{
		PropertyMask:   DefaultPropertyMask,
		RecursionLimit: DefaultRecursionLimit,
	}
}

func (o *SerializerOptions) normalized() *SerializerOptions {
	out := *o
	if out.PropertyMask == 0 {
		out.PropertyMask = DefaultPropertyMask
	}
	if out.RecursionLimit == 0 {
		out.RecursionLimit = DefaultRecursionLimit
	}
	if out.Logger == nil {
		out.Logger = log.NewHelper(log.NewFilter(log.NewStdLogger(nil), log.FilterLevel(log.LevelError)))
	}
	return &out
}
