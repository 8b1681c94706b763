package runevm

import (
	"github.com/venkatezh-13/rune/api"
	"github.com/venkatezh-13/rune/ir"
)

// HostFunc is an embedder-provided callable. params is a read-only view of
// the arguments, matching the registered parameter kinds in order. A
// signature with a result returns that one value; a void signature returns
// the invalid Value. Any non-nil error aborts the guest call as a HostError
// (or as the returned trap, if the error already is one).
//
// Host functions run synchronously on the calling goroutine and must not
// call back into the same Instance.
type HostFunc func(params []api.Value) (api.Value, error)

// HostFuncDef is one registered host function: a name for diagnostics, the
// signature the interpreter checks arguments against, and the callable.
type HostFuncDef struct {
	Name string
	Type api.FunctionType
	Func HostFunc
}

// Export binds a name to a function index.
type Export struct {
	Name  string
	Index uint32
}

// DataSegment is a byte blob written into linear memory at instantiation.
type DataSegment struct {
	Offset uint32
	Data   []byte
}

// Module is a loaded program, built by mutation and immutable once
// instantiated. Functions and host functions live in separate index spaces:
// Call addresses Functions, CallHost addresses HostFuncs.
type Module struct {
	Functions    []*ir.Function
	Exports      []Export
	DataSegments []DataSegment
	// InitialMemoryPages sizes the instance memory at creation.
	InitialMemoryPages uint32
	// MaxMemoryPages caps growth; 0 means unbounded.
	MaxMemoryPages uint32
	// HostFuncs are registered by the embedder before instantiation. They
	// are never serialized; a decoded module starts with none.
	HostFuncs []*HostFuncDef
}

// NewModule returns an empty module with the default memory of one initial
// page and no maximum.
func NewModule() *Module {
	return &Module{InitialMemoryPages: 1}
}

// AddFunction appends fn and returns its index in the function index space.
func (m *Module) AddFunction(fn *ir.Function) uint32 {
	m.Functions = append(m.Functions, fn)
	return uint32(len(m.Functions) - 1)
}

// AddExport makes the function at index callable by name.
func (m *Module) AddExport(name string, index uint32) {
	m.Exports = append(m.Exports, Export{Name: name, Index: index})
}

// AddDataSegment appends an initial-memory write applied at instantiation.
func (m *Module) AddDataSegment(offset uint32, data []byte) {
	m.DataSegments = append(m.DataSegments, DataSegment{Offset: offset, Data: data})
}

// RegisterHost appends a host function and returns its index in the
// host-function index space. Registrations are ordered; CallHost i resolves
// to the i-th registration. Must happen before instantiation.
func (m *Module) RegisterHost(name string, typ api.FunctionType, fn HostFunc) uint32 {
	m.HostFuncs = append(m.HostFuncs, &HostFuncDef{Name: name, Type: typ, Func: fn})
	return uint32(len(m.HostFuncs) - 1)
}

// FindExport returns the index bound to the first export with the given
// name, or false when the name is not exported.
func (m *Module) FindExport(name string) (uint32, bool) {
	for i := range m.Exports {
		if m.Exports[i].Name == name {
			return m.Exports[i].Index, true
		}
	}
	return 0, false
}
