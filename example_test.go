package runevm_test

import (
	"fmt"

	runevm "github.com/venkatezh-13/rune"
	"github.com/venkatezh-13/rune/api"
	"github.com/venkatezh-13/rune/ir"
)

// Example builds a module in memory and calls its exported add function.
func Example() {
	m := runevm.NewModule()
	add := m.AddFunction(ir.NewFunction("add",
		api.FunctionType{
			Params:  []api.ValueKind{api.ValueKindI32, api.ValueKindI32},
			Results: []api.ValueKind{api.ValueKindI32},
		},
		nil,
		[]ir.Instruction{
			ir.LocalGet(0),
			ir.LocalGet(1),
			ir.Simple(ir.OpI32Add),
			ir.Return(),
		}))
	m.AddExport("add", add)

	inst, err := runevm.NewRuntime().Instantiate(m)
	if err != nil {
		panic(err)
	}
	result, err := inst.Call("add", api.I32(3), api.I32(4))
	if err != nil {
		panic(err)
	}
	fmt.Println(result.AsI32())
	// Output: 7
}

// ExampleModule_RegisterHost wires a host function into a plugin: the guest
// calls back into the embedder twice, and the module survives a
// serialization round-trip with the host function re-registered.
func ExampleModule_RegisterHost() {
	logType := api.FunctionType{Params: []api.ValueKind{api.ValueKindI32}}

	m := runevm.NewModule()
	m.RegisterHost("log", logType, func([]api.Value) (api.Value, error) {
		return api.Value{}, nil
	})
	run := m.AddFunction(ir.NewFunction("run",
		api.FunctionType{}, nil,
		[]ir.Instruction{
			ir.I32Const(42),
			ir.CallHost(0),
			ir.I32Const(7),
			ir.CallHost(0),
			ir.Return(),
		}))
	m.AddExport("run", run)

	// Host functions are native closures, so they never serialize; the
	// embedder re-registers them after decoding.
	decoded, err := runevm.DecodeModule(runevm.EncodeModule(m))
	if err != nil {
		panic(err)
	}
	decoded.RegisterHost("log", logType, func(params []api.Value) (api.Value, error) {
		fmt.Println("guest logged:", params[0].AsI32())
		return api.Value{}, nil
	})

	inst, err := runevm.NewRuntime().Instantiate(decoded)
	if err != nil {
		panic(err)
	}
	if _, err := inst.Call("run"); err != nil {
		panic(err)
	}
	// Output:
	// guest logged: 42
	// guest logged: 7
}
