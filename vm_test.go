package runevm

import (
	"github.com/venkatezh-13/rune/api"
	"github.com/venkatezh-13/rune/ir"
)

// singleFunc builds a module exporting one function under its own name.
// result of 0 means void.
func singleFunc(name string, params []api.ValueKind, result api.ValueKind, body []ir.Instruction) *Module {
	var results []api.ValueKind
	if result != 0 {
		results = []api.ValueKind{result}
	}
	m := NewModule()
	index := m.AddFunction(ir.NewFunction(name,
		api.FunctionType{Params: params, Results: results}, nil, body))
	m.AddExport(name, index)
	return m
}

// instantiate is a test shorthand that panics on instantiation failure.
func instantiate(m *Module) *Instance {
	inst, err := NewRuntime().Instantiate(m)
	if err != nil {
		panic(err)
	}
	return inst
}
