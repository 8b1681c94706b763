package runevm

import (
	"bytes"
	"encoding/binary"
	"unicode/utf8"

	"github.com/venkatezh-13/rune/api"
	"github.com/venkatezh-13/rune/ir"
	"github.com/venkatezh-13/rune/trap"
)

// DecodeModule parses the binary module format. The returned module has no
// host functions: registrations are native closures and are never encoded,
// so the embedder must re-register them, in the original order, before any
// call that reaches a CallHost.
func DecodeModule(data []byte) (*Module, error) {
	r := &moduleReader{data: data}

	magic, err := r.bytes(4, "magic")
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(magic, Magic[:]) {
		return nil, trap.NewInvalidModule("bad magic bytes")
	}

	version, err := r.uint32("version")
	if err != nil {
		return nil, err
	}
	if version != Version {
		return nil, trap.NewInvalidModule("unsupported version %#x", version)
	}

	m := &Module{}
	if m.InitialMemoryPages, err = r.uint32("memory info"); err != nil {
		return nil, err
	}
	if m.MaxMemoryPages, err = r.uint32("memory info"); err != nil {
		return nil, err
	}

	funcCount, err := r.uint32("function count")
	if err != nil {
		return nil, err
	}
	for i := uint32(0); i < funcCount; i++ {
		fn, err := r.function()
		if err != nil {
			return nil, err
		}
		m.Functions = append(m.Functions, fn)
	}

	exportCount, err := r.uint32("export count")
	if err != nil {
		return nil, err
	}
	for i := uint32(0); i < exportCount; i++ {
		name, err := r.name("export name")
		if err != nil {
			return nil, err
		}
		index, err := r.uint32("export index")
		if err != nil {
			return nil, err
		}
		m.Exports = append(m.Exports, Export{Name: name, Index: index})
	}

	dataCount, err := r.uint32("data-segment count")
	if err != nil {
		return nil, err
	}
	for i := uint32(0); i < dataCount; i++ {
		offset, err := r.uint32("data-segment offset")
		if err != nil {
			return nil, err
		}
		blob, err := r.lengthPrefixed("data-segment bytes")
		if err != nil {
			return nil, err
		}
		// Copy so the segment does not alias the caller's input buffer.
		m.DataSegments = append(m.DataSegments, DataSegment{
			Offset: offset,
			Data:   append([]byte(nil), blob...),
		})
	}
	return m, nil
}

// moduleReader is a cursor over the input. Every read fails with
// InvalidModule naming the field that was truncated.
type moduleReader struct {
	data []byte
	pos  int
}

func (r *moduleReader) bytes(n int, field string) ([]byte, error) {
	if r.pos+n > len(r.data) || r.pos+n < r.pos {
		return nil, trap.NewInvalidModule("truncated %s", field)
	}
	b := r.data[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

func (r *moduleReader) byte(field string) (byte, error) {
	b, err := r.bytes(1, field)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *moduleReader) uint32(field string) (uint32, error) {
	b, err := r.bytes(4, field)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (r *moduleReader) uint64(field string) (uint64, error) {
	b, err := r.bytes(8, field)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func (r *moduleReader) lengthPrefixed(field string) ([]byte, error) {
	n, err := r.uint32(field)
	if err != nil {
		return nil, err
	}
	return r.bytes(int(n), field)
}

func (r *moduleReader) name(field string) (string, error) {
	b, err := r.lengthPrefixed(field)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(b) {
		return "", trap.NewInvalidModule("%s is not UTF-8", field)
	}
	return string(b), nil
}

func (r *moduleReader) kinds(field string) ([]api.ValueKind, error) {
	n, err := r.uint32(field)
	if err != nil {
		return nil, err
	}
	kinds := make([]api.ValueKind, 0, n)
	for i := uint32(0); i < n; i++ {
		b, err := r.byte(field)
		if err != nil {
			return nil, err
		}
		if !api.ValidValueKind(b) {
			return nil, trap.NewInvalidModule("invalid value kind %#x in %s", b, field)
		}
		kinds = append(kinds, b)
	}
	return kinds, nil
}

func (r *moduleReader) function() (*ir.Function, error) {
	name, err := r.name("function name")
	if err != nil {
		return nil, err
	}
	params, err := r.kinds("params")
	if err != nil {
		return nil, err
	}
	results, err := r.kinds("results")
	if err != nil {
		return nil, err
	}
	if len(results) > 1 {
		return nil, trap.NewInvalidModule("function %q has %d results", name, len(results))
	}
	locals, err := r.kinds("locals")
	if err != nil {
		return nil, err
	}
	blob, err := r.lengthPrefixed("instructions")
	if err != nil {
		return nil, err
	}
	body, err := decodeInstructions(blob)
	if err != nil {
		return nil, err
	}
	return &ir.Function{
		Name:   name,
		Type:   api.FunctionType{Params: params, Results: results},
		Locals: locals,
		Body:   body,
	}, nil
}

// decodeInstructions parses one function's encoded instruction stream.
func decodeInstructions(blob []byte) ([]ir.Instruction, error) {
	r := &moduleReader{data: blob}
	var body []ir.Instruction
	for r.pos < len(r.data) {
		op := ir.Opcode(r.data[r.pos])
		r.pos++
		if !op.Valid() {
			return nil, trap.NewInvalidModule("unknown opcode %#x", byte(op))
		}

		insn := ir.Instruction{Op: op}
		switch op {
		case ir.OpI32Const, ir.OpF32Const:
			v, err := r.uint32("constant")
			if err != nil {
				return nil, err
			}
			insn.U64 = uint64(v)
		case ir.OpI64Const, ir.OpF64Const:
			v, err := r.uint64("constant")
			if err != nil {
				return nil, err
			}
			insn.U64 = v
		case ir.OpLocalGet, ir.OpLocalSet, ir.OpLocalTee,
			ir.OpCall, ir.OpCallHost, ir.OpBr, ir.OpBrIf:
			v, err := r.uint32("index")
			if err != nil {
				return nil, err
			}
			insn.U64 = uint64(v)
		case ir.OpBlock, ir.OpLoop, ir.OpIf:
			b, err := r.byte("block kind")
			if err != nil {
				return nil, err
			}
			if !ir.ValidBlockKind(b) {
				return nil, trap.NewInvalidModule("invalid block kind %#x", b)
			}
			insn.Block = b
		case ir.OpI32Load, ir.OpI32Store, ir.OpI64Load, ir.OpI64Store,
			ir.OpF32Load, ir.OpF32Store, ir.OpF64Load, ir.OpF64Store:
			var err error
			if insn.Align, err = r.uint32("memory access"); err != nil {
				return nil, err
			}
			if insn.Offset, err = r.uint32("memory access"); err != nil {
				return nil, err
			}
		}
		body = append(body, insn)
	}
	return body, nil
}
