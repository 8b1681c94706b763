// Package ir defines the portable instruction set executed by the
// interpreter and the compiled-function representation that carries it.
//
// Opcode constants double as the wire encoding: the payload-free opcodes
// occupy a contiguous range from OpNop upward, and the payload-carrying
// opcodes start at 0x80. The const blocks below are the codec's normative
// table; encoder and decoder share it byte-for-byte.
package ir

import (
	"math"

	"github.com/venkatezh-13/rune/api"
)

// Opcode is one instruction tag. The byte value is the wire encoding.
type Opcode byte

// Payload-free opcodes. Each occupies exactly one byte on the wire.
const (
	OpNop Opcode = iota
	OpDrop
	OpSelect
	OpReturn
	OpElse
	OpEnd
	OpUnreachable
	OpMemorySize
	OpMemoryGrow

	OpI32Add
	OpI32Sub
	OpI32Mul
	OpI32DivS
	OpI32DivU
	OpI32RemS
	OpI32RemU
	OpI32And
	OpI32Or
	OpI32Xor
	OpI32Shl
	OpI32ShrS
	OpI32ShrU
	OpI32Clz
	OpI32Ctz
	OpI32Popcnt
	OpI32Eqz

	OpI64Add
	OpI64Sub
	OpI64Mul
	OpI64DivS
	OpI64DivU
	OpI64RemS
	OpI64RemU
	OpI64And
	OpI64Or
	OpI64Xor
	OpI64Shl
	OpI64ShrS
	OpI64ShrU
	OpI64Eqz

	OpF32Add
	OpF32Sub
	OpF32Mul
	OpF32Div
	OpF32Sqrt
	OpF32Min
	OpF32Max
	OpF32Abs
	OpF32Neg
	OpF32Ceil
	OpF32Floor

	OpF64Add
	OpF64Sub
	OpF64Mul
	OpF64Div
	OpF64Sqrt
	OpF64Min
	OpF64Max
	OpF64Abs
	OpF64Neg
	OpF64Ceil
	OpF64Floor

	OpI32Eq
	OpI32Ne
	OpI32LtS
	OpI32LtU
	OpI32GtS
	OpI32GtU
	OpI32LeS
	OpI32LeU
	OpI32GeS
	OpI32GeU

	OpI64Eq
	OpI64Ne
	OpI64LtS
	OpI64LtU
	OpI64GtS
	OpI64GtU
	OpI64LeS
	OpI64LeU
	OpI64GeS
	OpI64GeU

	OpF32Eq
	OpF32Ne
	OpF32Lt
	OpF32Gt
	OpF32Le
	OpF32Ge

	OpF64Eq
	OpF64Ne
	OpF64Lt
	OpF64Gt
	OpF64Le
	OpF64Ge

	OpI32WrapI64
	OpI64ExtendI32S
	OpI64ExtendI32U
	OpF32ConvertI32S
	OpF32ConvertI32U
	OpF64ConvertI32S
	OpF64ConvertI32U
	OpF64ConvertI64S
	OpF64ConvertI64U
	OpI32TruncF32S
	OpI32TruncF32U
	OpI32TruncF64S
	OpI32TruncF64U
	OpF32DemoteF64
	OpF64PromoteF32
	OpI32ReinterpretF32
	OpF32ReinterpretI32
	OpI64ReinterpretF64
	OpF64ReinterpretI64

	// opSimpleEnd is one past the last payload-free opcode.
	opSimpleEnd
)

// Payload-carrying opcodes. The payload layout is fixed per opcode: constants
// carry 4 or 8 little-endian bytes, index/depth opcodes one u32, block
// openers one block-kind byte, and memory accesses two u32 fields
// (alignment hint, then static offset).
const (
	OpI32Const Opcode = 0x80 + iota
	OpI64Const
	OpF32Const
	OpF64Const
	OpLocalGet
	OpLocalSet
	OpLocalTee
	OpCall
	OpCallHost
	OpBr
	OpBrIf
	OpBlock
	OpLoop
	OpIf
	OpI32Load
	OpI32Store
	OpI64Load
	OpI64Store
	OpF32Load
	OpF32Store
	OpF64Load
	OpF64Store

	opPayloadEnd
)

// IsSimple reports whether op is payload-free on the wire.
func (op Opcode) IsSimple() bool { return op < opSimpleEnd }

// Valid reports whether op is a defined opcode byte.
func (op Opcode) Valid() bool {
	return op < opSimpleEnd || (op >= OpI32Const && op < opPayloadEnd)
}

// BlockEmpty is the block-kind byte for a block producing no value. Any
// other valid block kind is one of the api value kind tags.
const BlockEmpty byte = 0x40

// ValidBlockKind reports whether b encodes a block-result kind.
func ValidBlockKind(b byte) bool { return b == BlockEmpty || api.ValidValueKind(b) }

// Instruction is one decoded instruction. Every variant is this fixed size;
// unused payload fields are zero.
type Instruction struct {
	Op Opcode
	// U64 holds the immediate constant bits for the const opcodes, and the
	// index or depth for local, call, and branch opcodes.
	U64 uint64
	// Align and Offset are the memory-access descriptor. Align is a hint
	// only; Offset is added to the popped address.
	Align  uint32
	Offset uint32
	// Block is the block-result kind byte for Block, Loop, and If.
	Block byte
}

// Constructors below keep instruction streams readable at build sites. Each
// corresponds to one opcode.

func Nop() Instruction         { return Instruction{Op: OpNop} }
func Drop() Instruction        { return Instruction{Op: OpDrop} }
func Select() Instruction      { return Instruction{Op: OpSelect} }
func Return() Instruction      { return Instruction{Op: OpReturn} }
func Else() Instruction        { return Instruction{Op: OpElse} }
func End() Instruction         { return Instruction{Op: OpEnd} }
func Unreachable() Instruction { return Instruction{Op: OpUnreachable} }
func MemorySize() Instruction  { return Instruction{Op: OpMemorySize} }
func MemoryGrow() Instruction  { return Instruction{Op: OpMemoryGrow} }

// Simple returns the payload-free instruction for op.
func Simple(op Opcode) Instruction { return Instruction{Op: op} }

func I32Const(v int32) Instruction {
	return Instruction{Op: OpI32Const, U64: uint64(uint32(v))}
}

func I64Const(v int64) Instruction {
	return Instruction{Op: OpI64Const, U64: uint64(v)}
}

func F32Const(v float32) Instruction {
	return Instruction{Op: OpF32Const, U64: uint64(math.Float32bits(v))}
}

func F64Const(v float64) Instruction {
	return Instruction{Op: OpF64Const, U64: math.Float64bits(v)}
}

func LocalGet(i uint32) Instruction { return Instruction{Op: OpLocalGet, U64: uint64(i)} }
func LocalSet(i uint32) Instruction { return Instruction{Op: OpLocalSet, U64: uint64(i)} }
func LocalTee(i uint32) Instruction { return Instruction{Op: OpLocalTee, U64: uint64(i)} }
func Call(i uint32) Instruction     { return Instruction{Op: OpCall, U64: uint64(i)} }
func CallHost(i uint32) Instruction { return Instruction{Op: OpCallHost, U64: uint64(i)} }
func Br(depth uint32) Instruction   { return Instruction{Op: OpBr, U64: uint64(depth)} }
func BrIf(depth uint32) Instruction { return Instruction{Op: OpBrIf, U64: uint64(depth)} }

func Block(kind byte) Instruction { return Instruction{Op: OpBlock, Block: kind} }
func Loop(kind byte) Instruction  { return Instruction{Op: OpLoop, Block: kind} }
func If(kind byte) Instruction    { return Instruction{Op: OpIf, Block: kind} }

// Load returns a typed load. op must be one of the load opcodes.
func Load(op Opcode, align, offset uint32) Instruction {
	return Instruction{Op: op, Align: align, Offset: offset}
}

// Store returns a typed store. op must be one of the store opcodes.
func Store(op Opcode, align, offset uint32) Instruction {
	return Instruction{Op: op, Align: align, Offset: offset}
}

// Function is one compiled function: a display name, a signature, the kinds
// of its extra locals beyond parameters, and its instruction stream. Body is
// immutable once built; holders share the backing array rather than copying
// it.
type Function struct {
	Name   string
	Type   api.FunctionType
	Locals []api.ValueKind
	Body   []Instruction
}

// NewFunction builds a Function. The body slice is retained, not copied.
func NewFunction(name string, typ api.FunctionType, locals []api.ValueKind, body []Instruction) *Function {
	return &Function{Name: name, Type: typ, Locals: locals, Body: body}
}
