package runevm

import (
	"fmt"

	"github.com/venkatezh-13/rune/api"
	"github.com/venkatezh-13/rune/ir"
	"github.com/venkatezh-13/rune/trap"
)

// noElse marks an If with no Else arm in preparedFunction.elseAt.
const noElse = -1

// preparedFunction is a module function augmented with branch metadata
// computed once at instantiation. body is shared with the module function —
// holding a preparedFunction never copies instruction streams.
//
// For every Block/Loop/If at index i, end[i] is the index of its matching
// End (0 elsewhere). For every If at index i, elseAt[i] is the index of its
// matching Else, or noElse.
type preparedFunction struct {
	name       string
	body       []ir.Instruction
	end        []int
	elseAt     []int
	paramCount int
	// extraLocals are the kinds of locals beyond parameters, zeroed at call
	// entry.
	extraLocals []api.ValueKind
	// result is the single result kind, or 0 for void.
	result api.ValueKind
}

// prepare walks fn's instruction stream once, pairing every block opener
// with its End and every If with its Else.
func prepare(fn *ir.Function) preparedFunction {
	n := len(fn.Body)
	end := make([]int, n)
	elseAt := make([]int, n)
	for i := range elseAt {
		elseAt[i] = noElse
	}

	var openers []int
	for i := range fn.Body {
		switch fn.Body[i].Op {
		case ir.OpBlock, ir.OpLoop, ir.OpIf:
			openers = append(openers, i)
		case ir.OpElse:
			if len(openers) > 0 {
				elseAt[openers[len(openers)-1]] = i
			}
		case ir.OpEnd:
			if len(openers) > 0 {
				end[openers[len(openers)-1]] = i
				openers = openers[:len(openers)-1]
			}
		}
	}

	pf := preparedFunction{
		name:        fn.Name,
		body:        fn.Body,
		end:         end,
		elseAt:      elseAt,
		paramCount:  len(fn.Type.Params),
		extraLocals: fn.Locals,
	}
	if k, ok := fn.Type.ResultKind(); ok {
		pf.result = k
	}
	return pf
}

// Instance is a live execution context: one linear memory plus the module's
// prepared functions. It borrows the module for host-function dispatch and
// export lookup; the module must not be mutated while the instance is live.
//
// An Instance is single-threaded: one call at a time, and host functions
// must not reenter it during a guest call.
type Instance struct {
	// Memory is the instance's linear memory, exposed so embedders can
	// exchange bulk data with the guest.
	Memory *Memory

	module    *Module
	prepared  []preparedFunction
	callDepth int
}

// NewInstance creates an instance of m: allocates its memory, applies data
// segments, and precomputes branch metadata for every function.
func NewInstance(m *Module) (*Instance, error) {
	mem := NewMemory(m.InitialMemoryPages, m.MaxMemoryPages)
	for _, seg := range m.DataSegments {
		if err := mem.WriteBytes(uint64(seg.Offset), seg.Data); err != nil {
			return nil, err
		}
	}
	prepared := make([]preparedFunction, len(m.Functions))
	for i, fn := range m.Functions {
		prepared[i] = prepare(fn)
	}
	return &Instance{Memory: mem, module: m, prepared: prepared}, nil
}

// Call invokes the export with the given arguments and returns its result,
// or the invalid Value for a void function. Any trap aborts the call and is
// returned; the instance's memory retains whatever the guest wrote before
// the trap.
func (inst *Instance) Call(name string, args ...api.Value) (api.Value, error) {
	index, ok := inst.module.FindExport(name)
	if !ok {
		return api.Value{}, trap.NewUndefinedExport(name)
	}
	if int(index) >= len(inst.prepared) {
		return api.Value{}, trap.NewUndefinedExport(fmt.Sprintf("func#%d", index))
	}
	pf := &inst.prepared[index]

	locals := make([]api.Value, 0, len(args)+len(pf.extraLocals))
	locals = append(locals, args...)
	for _, k := range pf.extraLocals {
		locals = append(locals, api.ZeroValue(k))
	}
	return inst.exec(pf, locals)
}
