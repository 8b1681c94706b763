package runevm

import (
	"encoding/binary"

	"github.com/venkatezh-13/rune/api"
	"github.com/venkatezh-13/rune/ir"
)

// Magic is the first four bytes of every encoded module.
var Magic = [4]byte{'R', 'U', 'N', 'E'}

// Version is the format version this implementation reads and writes.
const Version uint32 = 0x0001

// EncodeModule serializes m into the binary module format. Host-function
// registrations are not encoded; see DecodeModule.
func EncodeModule(m *Module) []byte {
	// Header plus a rough guess per function keeps append from thrashing.
	out := make([]byte, 0, 64+len(m.Functions)*64)
	out = append(out, Magic[:]...)
	out = appendUint32(out, Version)
	out = appendUint32(out, m.InitialMemoryPages)
	out = appendUint32(out, m.MaxMemoryPages)

	out = appendUint32(out, uint32(len(m.Functions)))
	for _, fn := range m.Functions {
		out = appendString(out, fn.Name)
		out = appendKinds(out, fn.Type.Params)
		out = appendKinds(out, fn.Type.Results)
		out = appendKinds(out, fn.Locals)

		body := make([]byte, 0, len(fn.Body)*2)
		for i := range fn.Body {
			body = appendInstruction(body, &fn.Body[i])
		}
		out = appendUint32(out, uint32(len(body)))
		out = append(out, body...)
	}

	out = appendUint32(out, uint32(len(m.Exports)))
	for _, e := range m.Exports {
		out = appendString(out, e.Name)
		out = appendUint32(out, e.Index)
	}

	out = appendUint32(out, uint32(len(m.DataSegments)))
	for _, seg := range m.DataSegments {
		out = appendUint32(out, seg.Offset)
		out = appendUint32(out, uint32(len(seg.Data)))
		out = append(out, seg.Data...)
	}
	return out
}

func appendUint32(out []byte, v uint32) []byte {
	return binary.LittleEndian.AppendUint32(out, v)
}

func appendUint64(out []byte, v uint64) []byte {
	return binary.LittleEndian.AppendUint64(out, v)
}

func appendString(out []byte, s string) []byte {
	out = appendUint32(out, uint32(len(s)))
	return append(out, s...)
}

func appendKinds(out []byte, kinds []api.ValueKind) []byte {
	out = appendUint32(out, uint32(len(kinds)))
	return append(out, kinds...)
}

// appendInstruction emits one opcode byte followed by the payload the opcode
// defines. The opcode constants are the wire bytes, so no translation table
// is needed.
func appendInstruction(out []byte, i *ir.Instruction) []byte {
	out = append(out, byte(i.Op))
	switch i.Op {
	case ir.OpI32Const, ir.OpF32Const:
		out = appendUint32(out, uint32(i.U64))
	case ir.OpI64Const, ir.OpF64Const:
		out = appendUint64(out, i.U64)
	case ir.OpLocalGet, ir.OpLocalSet, ir.OpLocalTee,
		ir.OpCall, ir.OpCallHost, ir.OpBr, ir.OpBrIf:
		out = appendUint32(out, uint32(i.U64))
	case ir.OpBlock, ir.OpLoop, ir.OpIf:
		out = append(out, i.Block)
	case ir.OpI32Load, ir.OpI32Store, ir.OpI64Load, ir.OpI64Store,
		ir.OpF32Load, ir.OpF32Store, ir.OpF64Load, ir.OpF64Store:
		out = appendUint32(out, i.Align)
		out = appendUint32(out, i.Offset)
	}
	return out
}
