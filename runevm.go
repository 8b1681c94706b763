// Package runevm is an embeddable runtime for plugins compiled to a small
// stack-based bytecode. A Module is built in memory or decoded from the
// binary format, instantiated against a fresh linear memory, and driven by
// calling exported functions with typed scalar arguments. Host-provided
// functions registered on the module are callable from guest code.
//
// Quick start:
//
//	m := runevm.NewModule()
//	idx := m.AddFunction(ir.NewFunction("add",
//		api.FunctionType{
//			Params:  []api.ValueKind{api.ValueKindI32, api.ValueKindI32},
//			Results: []api.ValueKind{api.ValueKindI32},
//		},
//		nil,
//		[]ir.Instruction{ir.LocalGet(0), ir.LocalGet(1), ir.Simple(ir.OpI32Add), ir.Return()},
//	))
//	m.AddExport("add", idx)
//
//	inst, _ := runevm.NewRuntime().Instantiate(m)
//	sum, _ := inst.Call("add", api.I32(3), api.I32(4)) // api.I32(7)
package runevm

// Runtime is the top-level context modules are instantiated through.
// Currently stateless; it reserves a place for shared resources such as
// compilation caches.
type Runtime struct{}

// NewRuntime returns a Runtime.
func NewRuntime() *Runtime { return &Runtime{} }

// Instantiate creates a live Instance of m: fresh linear memory with the
// module's data segments applied, and branch metadata precomputed for every
// function. The module must not be mutated while the instance is in use;
// several instances may share one module.
func (r *Runtime) Instantiate(m *Module) (*Instance, error) {
	return NewInstance(m)
}
