package runevm

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/venkatezh-13/rune/api"
	"github.com/venkatezh-13/rune/ir"
	"github.com/venkatezh-13/rune/trap"
)

// codecModule exercises every payload shape the instruction encoding has.
func codecModule() *Module {
	m := NewModule()
	m.InitialMemoryPages = 2
	m.MaxMemoryPages = 8

	index := m.AddFunction(ir.NewFunction("kitchen",
		api.FunctionType{
			Params:  []api.ValueKind{api.ValueKindI32, api.ValueKindF64},
			Results: []api.ValueKind{api.ValueKindI64},
		},
		[]api.ValueKind{api.ValueKindI64, api.ValueKindF32},
		[]ir.Instruction{
			ir.I32Const(-7),
			ir.I64Const(1 << 40),
			ir.F32Const(1.5),
			ir.F64Const(-2.25),
			ir.LocalGet(1),
			ir.LocalSet(2),
			ir.LocalTee(3),
			ir.Block(ir.BlockEmpty),
			ir.Loop(api.ValueKindI32),
			ir.If(api.ValueKindF64),
			ir.Else(),
			ir.End(),
			ir.End(),
			ir.End(),
			ir.Br(0),
			ir.BrIf(1),
			ir.Call(0),
			ir.CallHost(0),
			ir.Load(ir.OpI32Load, 2, 16),
			ir.Store(ir.OpF64Store, 3, 32),
			ir.Simple(ir.OpI32Add),
			ir.Simple(ir.OpF64PromoteF32),
			ir.MemorySize(),
			ir.MemoryGrow(),
			ir.Return(),
		}))
	m.AddExport("kitchen", index)
	m.AddExport("alias", index)
	m.AddDataSegment(64, []byte{1, 2, 3})
	m.AddDataSegment(128, nil)
	return m
}

func TestCodecRoundTrip(t *testing.T) {
	m := codecModule()
	encoded := EncodeModule(m)

	decoded, err := DecodeModule(encoded)
	require.NoError(t, err)

	require.Equal(t, m.InitialMemoryPages, decoded.InitialMemoryPages)
	require.Equal(t, m.MaxMemoryPages, decoded.MaxMemoryPages)
	require.Equal(t, m.Exports, decoded.Exports)
	require.Len(t, decoded.DataSegments, 2)
	require.Equal(t, m.DataSegments[0].Offset, decoded.DataSegments[0].Offset)
	require.Equal(t, m.DataSegments[0].Data, decoded.DataSegments[0].Data)
	require.Len(t, decoded.Functions, 1)
	require.Equal(t, m.Functions[0].Name, decoded.Functions[0].Name)
	require.Equal(t, m.Functions[0].Type, decoded.Functions[0].Type)
	require.Equal(t, m.Functions[0].Locals, decoded.Functions[0].Locals)
	require.Equal(t, m.Functions[0].Body, decoded.Functions[0].Body)

	// Host registrations never serialize.
	require.Empty(t, decoded.HostFuncs)
}

func TestCodecByteStability(t *testing.T) {
	encoded := EncodeModule(codecModule())
	decoded, err := DecodeModule(encoded)
	require.NoError(t, err)
	require.Equal(t, encoded, EncodeModule(decoded))
}

func TestEncodeHeader(t *testing.T) {
	m := NewModule()
	encoded := EncodeModule(m)
	require.Equal(t, []byte{'R', 'U', 'N', 'E'}, encoded[:4])
	require.Equal(t, []byte{0x01, 0x00, 0x00, 0x00}, encoded[4:8])
	// Default memory: one initial page, unbounded max encoded as zero.
	require.Equal(t, []byte{0x01, 0x00, 0x00, 0x00}, encoded[8:12])
	require.Equal(t, []byte{0x00, 0x00, 0x00, 0x00}, encoded[12:16])
}

func TestDecodeErrors(t *testing.T) {
	valid := EncodeModule(codecModule())

	invalid := func(t *testing.T, data []byte) {
		_, err := DecodeModule(data)
		require.Error(t, err)
		te := &trap.Error{}
		require.ErrorAs(t, err, &te)
		require.Equal(t, trap.InvalidModule, te.Code)
	}

	t.Run("bad magic", func(t *testing.T) {
		data := append([]byte(nil), valid...)
		data[0] = 'X'
		invalid(t, data)
	})
	t.Run("unsupported version", func(t *testing.T) {
		data := append([]byte(nil), valid...)
		data[4] = 0x99
		invalid(t, data)
	})
	t.Run("empty input", func(t *testing.T) {
		invalid(t, nil)
	})
	t.Run("truncated header", func(t *testing.T) {
		invalid(t, valid[:10])
	})
	t.Run("truncated mid-function", func(t *testing.T) {
		invalid(t, valid[:len(valid)/2])
	})
	t.Run("truncated last byte", func(t *testing.T) {
		invalid(t, valid[:len(valid)-1])
	})
}

func TestDecodeInstructionErrors(t *testing.T) {
	encode := func(body []byte) []byte {
		m := NewModule()
		m.AddFunction(ir.NewFunction("f", api.FunctionType{}, nil, nil))
		data := EncodeModule(m)
		// The empty function body is the trailing four-byte blob before the
		// export and data counts; splice the raw body in its place.
		insert := len(data) - 8 - 4
		out := append([]byte(nil), data[:insert]...)
		out = appendUint32(out, uint32(len(body)))
		out = append(out, body...)
		out = appendUint32(out, 0) // exports
		out = appendUint32(out, 0) // data segments
		return out
	}

	t.Run("unknown opcode", func(t *testing.T) {
		_, err := DecodeModule(encode([]byte{0xFF}))
		require.ErrorContains(t, err, "unknown opcode")
	})
	t.Run("opcode past simple range", func(t *testing.T) {
		_, err := DecodeModule(encode([]byte{0x71}))
		require.ErrorContains(t, err, "unknown opcode")
	})
	t.Run("bad block kind", func(t *testing.T) {
		_, err := DecodeModule(encode([]byte{byte(ir.OpBlock), 0x13}))
		require.ErrorContains(t, err, "invalid block kind")
	})
	t.Run("truncated immediate", func(t *testing.T) {
		_, err := DecodeModule(encode([]byte{byte(ir.OpI32Const), 0x01}))
		require.Error(t, err)
	})
	t.Run("truncated memory access", func(t *testing.T) {
		_, err := DecodeModule(encode([]byte{byte(ir.OpI64Load), 0, 0, 0, 0}))
		require.Error(t, err)
	})
}

func TestDecodeRejectsMultipleResults(t *testing.T) {
	m := NewModule()
	m.AddFunction(&ir.Function{
		Name: "two",
		Type: api.FunctionType{
			Results: []api.ValueKind{api.ValueKindI32, api.ValueKindI32},
		},
	})
	_, err := DecodeModule(EncodeModule(m))
	require.ErrorContains(t, err, "results")
}

func TestDecodeRejectsBadName(t *testing.T) {
	m := NewModule()
	m.AddFunction(ir.NewFunction("f", api.FunctionType{}, nil, nil))
	data := EncodeModule(m)
	// Function name length 1 starts right after the function count; stomp
	// the name byte with an invalid UTF-8 sequence.
	data[24] = 0xFF
	_, err := DecodeModule(data)
	require.ErrorContains(t, err, "UTF-8")
}
