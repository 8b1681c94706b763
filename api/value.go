// Package api holds the value vocabulary shared by embedders and the runtime
// core: the scalar value kinds, the tagged Value cell, and function types.
package api

import "math"

// ValueKind classifies a scalar value. The constants double as the tag bytes
// used on the wire, so a kind can be written to a module stream unchanged.
type ValueKind = byte

const (
	// ValueKindI32 is a 32-bit signed integer.
	ValueKindI32 ValueKind = 0x7f
	// ValueKindI64 is a 64-bit signed integer.
	ValueKindI64 ValueKind = 0x7e
	// ValueKindF32 is a 32-bit IEEE-754 floating point number.
	ValueKindF32 ValueKind = 0x7d
	// ValueKindF64 is a 64-bit IEEE-754 floating point number.
	ValueKindF64 ValueKind = 0x7c
)

// ValueKindName returns the lowercase name of the given kind, or "unknown"
// for an undefined tag byte.
func ValueKindName(k ValueKind) string {
	switch k {
	case ValueKindI32:
		return "i32"
	case ValueKindI64:
		return "i64"
	case ValueKindF32:
		return "f32"
	case ValueKindF64:
		return "f64"
	}
	return "unknown"
}

// ValidValueKind reports whether b is one of the four defined kind tags.
func ValidValueKind(b byte) bool {
	return b == ValueKindI32 || b == ValueKindI64 || b == ValueKindF32 || b == ValueKindF64
}

// Value is one scalar: a kind tag plus the raw bits of the corresponding
// type. Values are copied by value everywhere; the operand stack and locals
// hold them directly. The zero Value is invalid and stands for "no value"
// (e.g. the result of a void function).
type Value struct {
	kind ValueKind
	bits uint64
}

// I32 returns an i32 value.
func I32(v int32) Value { return Value{kind: ValueKindI32, bits: uint64(uint32(v))} }

// I64 returns an i64 value.
func I64(v int64) Value { return Value{kind: ValueKindI64, bits: uint64(v)} }

// F32 returns an f32 value. The bit pattern is preserved, NaN payloads
// included.
func F32(v float32) Value { return Value{kind: ValueKindF32, bits: uint64(math.Float32bits(v))} }

// F64 returns an f64 value. The bit pattern is preserved, NaN payloads
// included.
func F64(v float64) Value { return Value{kind: ValueKindF64, bits: math.Float64bits(v)} }

// ZeroValue returns the zero of the given kind, used to initialize extra
// locals.
func ZeroValue(k ValueKind) Value { return Value{kind: k} }

// Kind returns the value's kind tag, or zero for the invalid Value.
func (v Value) Kind() ValueKind { return v.kind }

// Valid reports whether the value holds a scalar at all. The interpreter
// returns an invalid Value from void functions.
func (v Value) Valid() bool { return v.kind != 0 }

// AsI32 returns the i32 scalar. The result is unspecified if Kind is not
// ValueKindI32.
func (v Value) AsI32() int32 { return int32(uint32(v.bits)) }

// AsI64 returns the i64 scalar. The result is unspecified if Kind is not
// ValueKindI64.
func (v Value) AsI64() int64 { return int64(v.bits) }

// AsF32 returns the f32 scalar. The result is unspecified if Kind is not
// ValueKindF32.
func (v Value) AsF32() float32 { return math.Float32frombits(uint32(v.bits)) }

// AsF64 returns the f64 scalar. The result is unspecified if Kind is not
// ValueKindF64.
func (v Value) AsF64() float64 { return math.Float64frombits(v.bits) }

// Bits returns the raw 64-bit payload. i32 and f32 occupy the low 32 bits.
func (v Value) Bits() uint64 { return v.bits }

// FunctionType is an ordered parameter list and at most one result kind.
type FunctionType struct {
	Params []ValueKind
	// Results holds zero or one kind. Multi-value results are not supported.
	Results []ValueKind
}

// ResultKind returns the single result kind and true, or zero and false for
// a void function.
func (t *FunctionType) ResultKind() (ValueKind, bool) {
	if len(t.Results) == 0 {
		return 0, false
	}
	return t.Results[0], true
}
