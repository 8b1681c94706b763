package runevm

import (
	"fmt"
	"math"
	"math/bits"

	"github.com/venkatezh-13/rune/api"
	"github.com/venkatezh-13/rune/ir"
	"github.com/venkatezh-13/rune/trap"
)

// callStackCeiling bounds guest call depth. Guest-to-guest calls recurse on
// the native stack, so the ceiling keeps deep recursion a StackOverflow trap
// instead of a native stack exhaustion.
const callStackCeiling = 2000

// valueStack is the typed operand stack. Pops fail with TypeMismatch on an
// empty stack or a wrong kind.
type valueStack []api.Value

func (s *valueStack) push(v api.Value) { *s = append(*s, v) }

func (s *valueStack) pushBool(b bool) {
	if b {
		s.push(api.I32(1))
	} else {
		s.push(api.I32(0))
	}
}

func (s *valueStack) pop() (api.Value, error) {
	st := *s
	if len(st) == 0 {
		return api.Value{}, trap.ErrTypeMismatch
	}
	v := st[len(st)-1]
	*s = st[:len(st)-1]
	return v, nil
}

func (s *valueStack) popKind(k api.ValueKind) (api.Value, error) {
	v, err := s.pop()
	if err != nil {
		return api.Value{}, err
	}
	if v.Kind() != k {
		return api.Value{}, trap.ErrTypeMismatch
	}
	return v, nil
}

func (s *valueStack) popI32() (int32, error) {
	v, err := s.popKind(api.ValueKindI32)
	return v.AsI32(), err
}

func (s *valueStack) popI64() (int64, error) {
	v, err := s.popKind(api.ValueKindI64)
	return v.AsI64(), err
}

func (s *valueStack) popF32() (float32, error) {
	v, err := s.popKind(api.ValueKindF32)
	return v.AsF32(), err
}

func (s *valueStack) popF64() (float64, error) {
	v, err := s.popKind(api.ValueKindF64)
	return v.AsF64(), err
}

// pop2I32 pops the right then the left operand of a binary i32 op.
func (s *valueStack) pop2I32() (a, b int32, err error) {
	if b, err = s.popI32(); err != nil {
		return
	}
	a, err = s.popI32()
	return
}

func (s *valueStack) pop2I64() (a, b int64, err error) {
	if b, err = s.popI64(); err != nil {
		return
	}
	a, err = s.popI64()
	return
}

func (s *valueStack) pop2F32() (a, b float32, err error) {
	if b, err = s.popF32(); err != nil {
		return
	}
	a, err = s.popF32()
	return
}

func (s *valueStack) pop2F64() (a, b float64, err error) {
	if b, err = s.popF64(); err != nil {
		return
	}
	a, err = s.popF64()
	return
}

type frameKind byte

const (
	frameBlock frameKind = iota
	frameLoop
	frameIf
)

// controlFrame tracks one open Block/Loop/If during dispatch.
type controlFrame struct {
	kind frameKind
	// stackBase is the value-stack length at frame entry.
	stackBase int
	// targetPC is the matching End index for Block and If, and the Loop
	// instruction's own index for Loop.
	targetPC int
	// result is the block-result kind, or 0 for an empty block type.
	result api.ValueKind
}

func blockResult(b byte) api.ValueKind {
	if b == ir.BlockEmpty {
		return 0
	}
	return b
}

// branch resolves a branch of the given depth: verifies and saves the target
// frame's result value (except for loops), discards the depth frames above
// the target and, unless it is a loop, the target frame too, truncates the
// operand stack to the frame's base, and returns the new pc: the first
// instruction of a loop body, or the instruction after a block's End.
func branch(stack *valueStack, ctrl *[]controlFrame, depth int) (int, error) {
	frames := *ctrl
	if depth >= len(frames) {
		return 0, trap.ErrTypeMismatch
	}
	frame := frames[len(frames)-1-depth]

	var saved api.Value
	if frame.kind != frameLoop && frame.result != 0 {
		v, err := stack.popKind(frame.result)
		if err != nil {
			return 0, err
		}
		saved = v
	}

	keep := len(frames) - 1 - depth
	if frame.kind == frameLoop {
		// The loop stays open while its body runs again.
		keep++
	}
	*ctrl = frames[:keep]
	if frame.stackBase < len(*stack) {
		*stack = (*stack)[:frame.stackBase]
	}
	if saved.Valid() {
		stack.push(saved)
	}

	// For a loop targetPC is the Loop instruction, for a block its End; the
	// frame is already settled either way, so execution resumes one past it.
	return frame.targetPC + 1, nil
}

// exec runs one function activation to completion. Guest-to-guest calls
// re-enter exec recursively; every trap returns immediately through all
// nested activations.
func (inst *Instance) exec(pf *preparedFunction, locals []api.Value) (api.Value, error) {
	if inst.callDepth >= callStackCeiling {
		return api.Value{}, trap.ErrStackOverflow
	}
	inst.callDepth++
	defer func() { inst.callDepth-- }()

	body := pf.body
	end := pf.end
	elseAt := pf.elseAt

	stack := make(valueStack, 0, 16)
	ctrl := make([]controlFrame, 0, 8)
	pc := 0

dispatch:
	for pc < len(body) {
		insn := &body[pc]
		pc++

		switch insn.Op {
		// Constants.
		case ir.OpI32Const:
			stack.push(api.I32(int32(uint32(insn.U64))))
		case ir.OpI64Const:
			stack.push(api.I64(int64(insn.U64)))
		case ir.OpF32Const:
			stack.push(api.F32(math.Float32frombits(uint32(insn.U64))))
		case ir.OpF64Const:
			stack.push(api.F64(math.Float64frombits(insn.U64)))

		// Locals.
		case ir.OpLocalGet:
			i := int(insn.U64)
			if i >= len(locals) {
				return api.Value{}, trap.ErrTypeMismatch
			}
			stack.push(locals[i])
		case ir.OpLocalSet:
			v, err := stack.pop()
			if err != nil {
				return api.Value{}, err
			}
			i := int(insn.U64)
			if i >= len(locals) {
				return api.Value{}, trap.ErrTypeMismatch
			}
			locals[i] = v
		case ir.OpLocalTee:
			if len(stack) == 0 {
				return api.Value{}, trap.ErrTypeMismatch
			}
			i := int(insn.U64)
			if i >= len(locals) {
				return api.Value{}, trap.ErrTypeMismatch
			}
			locals[i] = stack[len(stack)-1]

		// Stack ops.
		case ir.OpDrop:
			if _, err := stack.pop(); err != nil {
				return api.Value{}, err
			}
		case ir.OpSelect:
			cond, err := stack.popI32()
			if err != nil {
				return api.Value{}, err
			}
			b, err := stack.pop()
			if err != nil {
				return api.Value{}, err
			}
			a, err := stack.pop()
			if err != nil {
				return api.Value{}, err
			}
			if cond != 0 {
				stack.push(a)
			} else {
				stack.push(b)
			}
		case ir.OpNop:
		case ir.OpUnreachable:
			return api.Value{}, trap.ErrUnreachable

		// i32 arithmetic.
		case ir.OpI32Add:
			a, b, err := stack.pop2I32()
			if err != nil {
				return api.Value{}, err
			}
			stack.push(api.I32(a + b))
		case ir.OpI32Sub:
			a, b, err := stack.pop2I32()
			if err != nil {
				return api.Value{}, err
			}
			stack.push(api.I32(a - b))
		case ir.OpI32Mul:
			a, b, err := stack.pop2I32()
			if err != nil {
				return api.Value{}, err
			}
			stack.push(api.I32(a * b))
		case ir.OpI32DivS:
			a, b, err := stack.pop2I32()
			if err != nil {
				return api.Value{}, err
			}
			if b == 0 {
				return api.Value{}, trap.ErrDivisionByZero
			}
			if a == math.MinInt32 && b == -1 {
				return api.Value{}, trap.ErrIntegerOverflow
			}
			stack.push(api.I32(a / b))
		case ir.OpI32DivU:
			a, b, err := stack.pop2I32()
			if err != nil {
				return api.Value{}, err
			}
			if b == 0 {
				return api.Value{}, trap.ErrDivisionByZero
			}
			stack.push(api.I32(int32(uint32(a) / uint32(b))))
		case ir.OpI32RemS:
			a, b, err := stack.pop2I32()
			if err != nil {
				return api.Value{}, err
			}
			if b == 0 {
				return api.Value{}, trap.ErrDivisionByZero
			}
			if a == math.MinInt32 && b == -1 {
				// MIN % -1 wraps to 0; Go would fault on the division.
				stack.push(api.I32(0))
			} else {
				stack.push(api.I32(a % b))
			}
		case ir.OpI32RemU:
			a, b, err := stack.pop2I32()
			if err != nil {
				return api.Value{}, err
			}
			if b == 0 {
				return api.Value{}, trap.ErrDivisionByZero
			}
			stack.push(api.I32(int32(uint32(a) % uint32(b))))
		case ir.OpI32And:
			a, b, err := stack.pop2I32()
			if err != nil {
				return api.Value{}, err
			}
			stack.push(api.I32(a & b))
		case ir.OpI32Or:
			a, b, err := stack.pop2I32()
			if err != nil {
				return api.Value{}, err
			}
			stack.push(api.I32(a | b))
		case ir.OpI32Xor:
			a, b, err := stack.pop2I32()
			if err != nil {
				return api.Value{}, err
			}
			stack.push(api.I32(a ^ b))
		case ir.OpI32Shl:
			a, b, err := stack.pop2I32()
			if err != nil {
				return api.Value{}, err
			}
			stack.push(api.I32(a << (uint32(b) & 31)))
		case ir.OpI32ShrS:
			a, b, err := stack.pop2I32()
			if err != nil {
				return api.Value{}, err
			}
			stack.push(api.I32(a >> (uint32(b) & 31)))
		case ir.OpI32ShrU:
			a, b, err := stack.pop2I32()
			if err != nil {
				return api.Value{}, err
			}
			stack.push(api.I32(int32(uint32(a) >> (uint32(b) & 31))))
		case ir.OpI32Clz:
			a, err := stack.popI32()
			if err != nil {
				return api.Value{}, err
			}
			stack.push(api.I32(int32(bits.LeadingZeros32(uint32(a)))))
		case ir.OpI32Ctz:
			a, err := stack.popI32()
			if err != nil {
				return api.Value{}, err
			}
			stack.push(api.I32(int32(bits.TrailingZeros32(uint32(a)))))
		case ir.OpI32Popcnt:
			a, err := stack.popI32()
			if err != nil {
				return api.Value{}, err
			}
			stack.push(api.I32(int32(bits.OnesCount32(uint32(a)))))
		case ir.OpI32Eqz:
			a, err := stack.popI32()
			if err != nil {
				return api.Value{}, err
			}
			stack.pushBool(a == 0)

		// i32 comparisons.
		case ir.OpI32Eq:
			a, b, err := stack.pop2I32()
			if err != nil {
				return api.Value{}, err
			}
			stack.pushBool(a == b)
		case ir.OpI32Ne:
			a, b, err := stack.pop2I32()
			if err != nil {
				return api.Value{}, err
			}
			stack.pushBool(a != b)
		case ir.OpI32LtS:
			a, b, err := stack.pop2I32()
			if err != nil {
				return api.Value{}, err
			}
			stack.pushBool(a < b)
		case ir.OpI32LtU:
			a, b, err := stack.pop2I32()
			if err != nil {
				return api.Value{}, err
			}
			stack.pushBool(uint32(a) < uint32(b))
		case ir.OpI32GtS:
			a, b, err := stack.pop2I32()
			if err != nil {
				return api.Value{}, err
			}
			stack.pushBool(a > b)
		case ir.OpI32GtU:
			a, b, err := stack.pop2I32()
			if err != nil {
				return api.Value{}, err
			}
			stack.pushBool(uint32(a) > uint32(b))
		case ir.OpI32LeS:
			a, b, err := stack.pop2I32()
			if err != nil {
				return api.Value{}, err
			}
			stack.pushBool(a <= b)
		case ir.OpI32LeU:
			a, b, err := stack.pop2I32()
			if err != nil {
				return api.Value{}, err
			}
			stack.pushBool(uint32(a) <= uint32(b))
		case ir.OpI32GeS:
			a, b, err := stack.pop2I32()
			if err != nil {
				return api.Value{}, err
			}
			stack.pushBool(a >= b)
		case ir.OpI32GeU:
			a, b, err := stack.pop2I32()
			if err != nil {
				return api.Value{}, err
			}
			stack.pushBool(uint32(a) >= uint32(b))

		// i64 arithmetic.
		case ir.OpI64Add:
			a, b, err := stack.pop2I64()
			if err != nil {
				return api.Value{}, err
			}
			stack.push(api.I64(a + b))
		case ir.OpI64Sub:
			a, b, err := stack.pop2I64()
			if err != nil {
				return api.Value{}, err
			}
			stack.push(api.I64(a - b))
		case ir.OpI64Mul:
			a, b, err := stack.pop2I64()
			if err != nil {
				return api.Value{}, err
			}
			stack.push(api.I64(a * b))
		case ir.OpI64DivS:
			a, b, err := stack.pop2I64()
			if err != nil {
				return api.Value{}, err
			}
			if b == 0 {
				return api.Value{}, trap.ErrDivisionByZero
			}
			if a == math.MinInt64 && b == -1 {
				// Signed i64 division wraps on MIN/-1 instead of trapping,
				// unlike its i32 counterpart.
				stack.push(api.I64(math.MinInt64))
			} else {
				stack.push(api.I64(a / b))
			}
		case ir.OpI64DivU:
			a, b, err := stack.pop2I64()
			if err != nil {
				return api.Value{}, err
			}
			if b == 0 {
				return api.Value{}, trap.ErrDivisionByZero
			}
			stack.push(api.I64(int64(uint64(a) / uint64(b))))
		case ir.OpI64RemS:
			a, b, err := stack.pop2I64()
			if err != nil {
				return api.Value{}, err
			}
			if b == 0 {
				return api.Value{}, trap.ErrDivisionByZero
			}
			if a == math.MinInt64 && b == -1 {
				stack.push(api.I64(0))
			} else {
				stack.push(api.I64(a % b))
			}
		case ir.OpI64RemU:
			a, b, err := stack.pop2I64()
			if err != nil {
				return api.Value{}, err
			}
			if b == 0 {
				return api.Value{}, trap.ErrDivisionByZero
			}
			stack.push(api.I64(int64(uint64(a) % uint64(b))))
		case ir.OpI64And:
			a, b, err := stack.pop2I64()
			if err != nil {
				return api.Value{}, err
			}
			stack.push(api.I64(a & b))
		case ir.OpI64Or:
			a, b, err := stack.pop2I64()
			if err != nil {
				return api.Value{}, err
			}
			stack.push(api.I64(a | b))
		case ir.OpI64Xor:
			a, b, err := stack.pop2I64()
			if err != nil {
				return api.Value{}, err
			}
			stack.push(api.I64(a ^ b))
		case ir.OpI64Shl:
			a, b, err := stack.pop2I64()
			if err != nil {
				return api.Value{}, err
			}
			stack.push(api.I64(a << (uint64(b) & 63)))
		case ir.OpI64ShrS:
			a, b, err := stack.pop2I64()
			if err != nil {
				return api.Value{}, err
			}
			stack.push(api.I64(a >> (uint64(b) & 63)))
		case ir.OpI64ShrU:
			a, b, err := stack.pop2I64()
			if err != nil {
				return api.Value{}, err
			}
			stack.push(api.I64(int64(uint64(a) >> (uint64(b) & 63))))
		case ir.OpI64Eqz:
			a, err := stack.popI64()
			if err != nil {
				return api.Value{}, err
			}
			stack.pushBool(a == 0)

		// i64 comparisons.
		case ir.OpI64Eq:
			a, b, err := stack.pop2I64()
			if err != nil {
				return api.Value{}, err
			}
			stack.pushBool(a == b)
		case ir.OpI64Ne:
			a, b, err := stack.pop2I64()
			if err != nil {
				return api.Value{}, err
			}
			stack.pushBool(a != b)
		case ir.OpI64LtS:
			a, b, err := stack.pop2I64()
			if err != nil {
				return api.Value{}, err
			}
			stack.pushBool(a < b)
		case ir.OpI64LtU:
			a, b, err := stack.pop2I64()
			if err != nil {
				return api.Value{}, err
			}
			stack.pushBool(uint64(a) < uint64(b))
		case ir.OpI64GtS:
			a, b, err := stack.pop2I64()
			if err != nil {
				return api.Value{}, err
			}
			stack.pushBool(a > b)
		case ir.OpI64GtU:
			a, b, err := stack.pop2I64()
			if err != nil {
				return api.Value{}, err
			}
			stack.pushBool(uint64(a) > uint64(b))
		case ir.OpI64LeS:
			a, b, err := stack.pop2I64()
			if err != nil {
				return api.Value{}, err
			}
			stack.pushBool(a <= b)
		case ir.OpI64LeU:
			a, b, err := stack.pop2I64()
			if err != nil {
				return api.Value{}, err
			}
			stack.pushBool(uint64(a) <= uint64(b))
		case ir.OpI64GeS:
			a, b, err := stack.pop2I64()
			if err != nil {
				return api.Value{}, err
			}
			stack.pushBool(a >= b)
		case ir.OpI64GeU:
			a, b, err := stack.pop2I64()
			if err != nil {
				return api.Value{}, err
			}
			stack.pushBool(uint64(a) >= uint64(b))

		// f32 arithmetic.
		case ir.OpF32Add:
			a, b, err := stack.pop2F32()
			if err != nil {
				return api.Value{}, err
			}
			stack.push(api.F32(a + b))
		case ir.OpF32Sub:
			a, b, err := stack.pop2F32()
			if err != nil {
				return api.Value{}, err
			}
			stack.push(api.F32(a - b))
		case ir.OpF32Mul:
			a, b, err := stack.pop2F32()
			if err != nil {
				return api.Value{}, err
			}
			stack.push(api.F32(a * b))
		case ir.OpF32Div:
			a, b, err := stack.pop2F32()
			if err != nil {
				return api.Value{}, err
			}
			stack.push(api.F32(a / b))
		case ir.OpF32Sqrt:
			a, err := stack.popF32()
			if err != nil {
				return api.Value{}, err
			}
			stack.push(api.F32(float32(math.Sqrt(float64(a)))))
		case ir.OpF32Min:
			a, b, err := stack.pop2F32()
			if err != nil {
				return api.Value{}, err
			}
			stack.push(api.F32(fmin32(a, b)))
		case ir.OpF32Max:
			a, b, err := stack.pop2F32()
			if err != nil {
				return api.Value{}, err
			}
			stack.push(api.F32(fmax32(a, b)))
		case ir.OpF32Abs:
			a, err := stack.popF32()
			if err != nil {
				return api.Value{}, err
			}
			stack.push(api.F32(float32(math.Abs(float64(a)))))
		case ir.OpF32Neg:
			a, err := stack.popF32()
			if err != nil {
				return api.Value{}, err
			}
			stack.push(api.F32(-a))
		case ir.OpF32Ceil:
			a, err := stack.popF32()
			if err != nil {
				return api.Value{}, err
			}
			stack.push(api.F32(float32(math.Ceil(float64(a)))))
		case ir.OpF32Floor:
			a, err := stack.popF32()
			if err != nil {
				return api.Value{}, err
			}
			stack.push(api.F32(float32(math.Floor(float64(a)))))

		// f64 arithmetic.
		case ir.OpF64Add:
			a, b, err := stack.pop2F64()
			if err != nil {
				return api.Value{}, err
			}
			stack.push(api.F64(a + b))
		case ir.OpF64Sub:
			a, b, err := stack.pop2F64()
			if err != nil {
				return api.Value{}, err
			}
			stack.push(api.F64(a - b))
		case ir.OpF64Mul:
			a, b, err := stack.pop2F64()
			if err != nil {
				return api.Value{}, err
			}
			stack.push(api.F64(a * b))
		case ir.OpF64Div:
			a, b, err := stack.pop2F64()
			if err != nil {
				return api.Value{}, err
			}
			stack.push(api.F64(a / b))
		case ir.OpF64Sqrt:
			a, err := stack.popF64()
			if err != nil {
				return api.Value{}, err
			}
			stack.push(api.F64(math.Sqrt(a)))
		case ir.OpF64Min:
			a, b, err := stack.pop2F64()
			if err != nil {
				return api.Value{}, err
			}
			stack.push(api.F64(fmin64(a, b)))
		case ir.OpF64Max:
			a, b, err := stack.pop2F64()
			if err != nil {
				return api.Value{}, err
			}
			stack.push(api.F64(fmax64(a, b)))
		case ir.OpF64Abs:
			a, err := stack.popF64()
			if err != nil {
				return api.Value{}, err
			}
			stack.push(api.F64(math.Abs(a)))
		case ir.OpF64Neg:
			a, err := stack.popF64()
			if err != nil {
				return api.Value{}, err
			}
			stack.push(api.F64(-a))
		case ir.OpF64Ceil:
			a, err := stack.popF64()
			if err != nil {
				return api.Value{}, err
			}
			stack.push(api.F64(math.Ceil(a)))
		case ir.OpF64Floor:
			a, err := stack.popF64()
			if err != nil {
				return api.Value{}, err
			}
			stack.push(api.F64(math.Floor(a)))

		// Float comparisons. NaN makes every ordered comparison false.
		case ir.OpF32Eq:
			a, b, err := stack.pop2F32()
			if err != nil {
				return api.Value{}, err
			}
			stack.pushBool(a == b)
		case ir.OpF32Ne:
			a, b, err := stack.pop2F32()
			if err != nil {
				return api.Value{}, err
			}
			stack.pushBool(a != b)
		case ir.OpF32Lt:
			a, b, err := stack.pop2F32()
			if err != nil {
				return api.Value{}, err
			}
			stack.pushBool(a < b)
		case ir.OpF32Gt:
			a, b, err := stack.pop2F32()
			if err != nil {
				return api.Value{}, err
			}
			stack.pushBool(a > b)
		case ir.OpF32Le:
			a, b, err := stack.pop2F32()
			if err != nil {
				return api.Value{}, err
			}
			stack.pushBool(a <= b)
		case ir.OpF32Ge:
			a, b, err := stack.pop2F32()
			if err != nil {
				return api.Value{}, err
			}
			stack.pushBool(a >= b)
		case ir.OpF64Eq:
			a, b, err := stack.pop2F64()
			if err != nil {
				return api.Value{}, err
			}
			stack.pushBool(a == b)
		case ir.OpF64Ne:
			a, b, err := stack.pop2F64()
			if err != nil {
				return api.Value{}, err
			}
			stack.pushBool(a != b)
		case ir.OpF64Lt:
			a, b, err := stack.pop2F64()
			if err != nil {
				return api.Value{}, err
			}
			stack.pushBool(a < b)
		case ir.OpF64Gt:
			a, b, err := stack.pop2F64()
			if err != nil {
				return api.Value{}, err
			}
			stack.pushBool(a > b)
		case ir.OpF64Le:
			a, b, err := stack.pop2F64()
			if err != nil {
				return api.Value{}, err
			}
			stack.pushBool(a <= b)
		case ir.OpF64Ge:
			a, b, err := stack.pop2F64()
			if err != nil {
				return api.Value{}, err
			}
			stack.pushBool(a >= b)

		// Conversions.
		case ir.OpI32WrapI64:
			a, err := stack.popI64()
			if err != nil {
				return api.Value{}, err
			}
			stack.push(api.I32(int32(a)))
		case ir.OpI64ExtendI32S:
			a, err := stack.popI32()
			if err != nil {
				return api.Value{}, err
			}
			stack.push(api.I64(int64(a)))
		case ir.OpI64ExtendI32U:
			a, err := stack.popI32()
			if err != nil {
				return api.Value{}, err
			}
			stack.push(api.I64(int64(uint32(a))))
		case ir.OpF32ConvertI32S:
			a, err := stack.popI32()
			if err != nil {
				return api.Value{}, err
			}
			stack.push(api.F32(float32(a)))
		case ir.OpF32ConvertI32U:
			a, err := stack.popI32()
			if err != nil {
				return api.Value{}, err
			}
			stack.push(api.F32(float32(uint32(a))))
		case ir.OpF64ConvertI32S:
			a, err := stack.popI32()
			if err != nil {
				return api.Value{}, err
			}
			stack.push(api.F64(float64(a)))
		case ir.OpF64ConvertI32U:
			a, err := stack.popI32()
			if err != nil {
				return api.Value{}, err
			}
			stack.push(api.F64(float64(uint32(a))))
		case ir.OpF64ConvertI64S:
			a, err := stack.popI64()
			if err != nil {
				return api.Value{}, err
			}
			stack.push(api.F64(float64(a)))
		case ir.OpF64ConvertI64U:
			a, err := stack.popI64()
			if err != nil {
				return api.Value{}, err
			}
			stack.push(api.F64(float64(uint64(a))))
		case ir.OpI32TruncF32S:
			a, err := stack.popF32()
			if err != nil {
				return api.Value{}, err
			}
			stack.push(api.I32(int32(a)))
		case ir.OpI32TruncF32U:
			a, err := stack.popF32()
			if err != nil {
				return api.Value{}, err
			}
			stack.push(api.I32(int32(uint32(a))))
		case ir.OpI32TruncF64S:
			a, err := stack.popF64()
			if err != nil {
				return api.Value{}, err
			}
			stack.push(api.I32(int32(a)))
		case ir.OpI32TruncF64U:
			a, err := stack.popF64()
			if err != nil {
				return api.Value{}, err
			}
			stack.push(api.I32(int32(uint32(a))))
		case ir.OpF32DemoteF64:
			a, err := stack.popF64()
			if err != nil {
				return api.Value{}, err
			}
			stack.push(api.F32(float32(a)))
		case ir.OpF64PromoteF32:
			a, err := stack.popF32()
			if err != nil {
				return api.Value{}, err
			}
			stack.push(api.F64(float64(a)))
		case ir.OpI32ReinterpretF32:
			a, err := stack.popF32()
			if err != nil {
				return api.Value{}, err
			}
			stack.push(api.I32(int32(math.Float32bits(a))))
		case ir.OpF32ReinterpretI32:
			a, err := stack.popI32()
			if err != nil {
				return api.Value{}, err
			}
			stack.push(api.F32(math.Float32frombits(uint32(a))))
		case ir.OpI64ReinterpretF64:
			a, err := stack.popF64()
			if err != nil {
				return api.Value{}, err
			}
			stack.push(api.I64(int64(math.Float64bits(a))))
		case ir.OpF64ReinterpretI64:
			a, err := stack.popI64()
			if err != nil {
				return api.Value{}, err
			}
			stack.push(api.F64(math.Float64frombits(uint64(a))))

		// Memory.
		case ir.OpMemorySize:
			stack.push(api.I32(int32(inst.Memory.Pages())))
		case ir.OpMemoryGrow:
			delta, err := stack.popI32()
			if err != nil {
				return api.Value{}, err
			}
			// Growth failure is not a trap: -1 signals it to the guest.
			if old, err := inst.Memory.Grow(uint32(delta)); err == nil {
				stack.push(api.I32(int32(old)))
			} else {
				stack.push(api.I32(-1))
			}
		case ir.OpI32Load:
			addr, err := stack.popI32()
			if err != nil {
				return api.Value{}, err
			}
			v, err := inst.Memory.ReadInt32Le(effectiveAddress(addr, insn.Offset))
			if err != nil {
				return api.Value{}, err
			}
			stack.push(api.I32(v))
		case ir.OpI32Store:
			v, err := stack.popI32()
			if err != nil {
				return api.Value{}, err
			}
			addr, err := stack.popI32()
			if err != nil {
				return api.Value{}, err
			}
			if err := inst.Memory.WriteInt32Le(effectiveAddress(addr, insn.Offset), v); err != nil {
				return api.Value{}, err
			}
		case ir.OpI64Load:
			addr, err := stack.popI32()
			if err != nil {
				return api.Value{}, err
			}
			v, err := inst.Memory.ReadInt64Le(effectiveAddress(addr, insn.Offset))
			if err != nil {
				return api.Value{}, err
			}
			stack.push(api.I64(v))
		case ir.OpI64Store:
			v, err := stack.popI64()
			if err != nil {
				return api.Value{}, err
			}
			addr, err := stack.popI32()
			if err != nil {
				return api.Value{}, err
			}
			if err := inst.Memory.WriteInt64Le(effectiveAddress(addr, insn.Offset), v); err != nil {
				return api.Value{}, err
			}
		case ir.OpF32Load:
			addr, err := stack.popI32()
			if err != nil {
				return api.Value{}, err
			}
			v, err := inst.Memory.ReadFloat32Le(effectiveAddress(addr, insn.Offset))
			if err != nil {
				return api.Value{}, err
			}
			stack.push(api.F32(v))
		case ir.OpF32Store:
			v, err := stack.popF32()
			if err != nil {
				return api.Value{}, err
			}
			addr, err := stack.popI32()
			if err != nil {
				return api.Value{}, err
			}
			if err := inst.Memory.WriteFloat32Le(effectiveAddress(addr, insn.Offset), v); err != nil {
				return api.Value{}, err
			}
		case ir.OpF64Load:
			addr, err := stack.popI32()
			if err != nil {
				return api.Value{}, err
			}
			v, err := inst.Memory.ReadFloat64Le(effectiveAddress(addr, insn.Offset))
			if err != nil {
				return api.Value{}, err
			}
			stack.push(api.F64(v))
		case ir.OpF64Store:
			v, err := stack.popF64()
			if err != nil {
				return api.Value{}, err
			}
			addr, err := stack.popI32()
			if err != nil {
				return api.Value{}, err
			}
			if err := inst.Memory.WriteFloat64Le(effectiveAddress(addr, insn.Offset), v); err != nil {
				return api.Value{}, err
			}

		// Control flow.
		case ir.OpBlock:
			ctrl = append(ctrl, controlFrame{
				kind:      frameBlock,
				stackBase: len(stack),
				targetPC:  end[pc-1],
				result:    blockResult(insn.Block),
			})
		case ir.OpLoop:
			ctrl = append(ctrl, controlFrame{
				kind:      frameLoop,
				stackBase: len(stack),
				targetPC:  pc - 1,
				result:    blockResult(insn.Block),
			})
		case ir.OpIf:
			cond, err := stack.popI32()
			if err != nil {
				return api.Value{}, err
			}
			ctrl = append(ctrl, controlFrame{
				kind:      frameIf,
				stackBase: len(stack),
				targetPC:  end[pc-1],
				result:    blockResult(insn.Block),
			})
			if cond == 0 {
				if elsePC := elseAt[pc-1]; elsePC != noElse {
					pc = elsePC + 1
				} else {
					// No else arm: nothing to execute, so the frame goes too
					// and execution resumes after the End.
					pc = end[pc-1] + 1
					ctrl = ctrl[:len(ctrl)-1]
				}
			}
		case ir.OpElse:
			// Reached by falling out of the then arm: close the frame and
			// skip past the End.
			if len(ctrl) == 0 {
				return api.Value{}, trap.ErrTypeMismatch
			}
			pc = ctrl[len(ctrl)-1].targetPC + 1
			ctrl = ctrl[:len(ctrl)-1]
		case ir.OpEnd:
			// Branches, Else and a skipped If resume after the End of the
			// frame they close, so an End is reached only by falling through
			// its own frame. An End with nothing open closes nothing and
			// execution continues.
			if len(ctrl) > 0 {
				ctrl = ctrl[:len(ctrl)-1]
			}
		case ir.OpReturn:
			break dispatch
		case ir.OpBr:
			newPC, err := branch(&stack, &ctrl, int(insn.U64))
			if err != nil {
				return api.Value{}, err
			}
			pc = newPC
		case ir.OpBrIf:
			cond, err := stack.popI32()
			if err != nil {
				return api.Value{}, err
			}
			if cond != 0 {
				newPC, err := branch(&stack, &ctrl, int(insn.U64))
				if err != nil {
					return api.Value{}, err
				}
				pc = newPC
			}

		// Calls.
		case ir.OpCall:
			index := int(insn.U64)
			if index >= len(inst.prepared) {
				return api.Value{}, trap.NewUndefinedExport(fmt.Sprintf("func#%d", index))
			}
			callee := &inst.prepared[index]
			n := callee.paramCount
			if len(stack) < n {
				return api.Value{}, trap.ErrTypeMismatch
			}
			argBase := len(stack) - n

			// Arguments move straight off the operand stack into the
			// callee's locals; truncation afterwards is O(1).
			callLocals := make([]api.Value, 0, n+len(callee.extraLocals))
			callLocals = append(callLocals, stack[argBase:]...)
			for _, k := range callee.extraLocals {
				callLocals = append(callLocals, api.ZeroValue(k))
			}
			stack = stack[:argBase]

			result, err := inst.exec(callee, callLocals)
			if err != nil {
				return api.Value{}, err
			}
			if result.Valid() {
				stack.push(result)
			}
		case ir.OpCallHost:
			index := int(insn.U64)
			if index >= len(inst.module.HostFuncs) {
				return api.Value{}, trap.NewUndefinedImport(fmt.Sprintf("host#%d", index))
			}
			host := inst.module.HostFuncs[index]
			n := len(host.Type.Params)
			if len(stack) < n {
				return api.Value{}, trap.ErrTypeMismatch
			}
			argBase := len(stack) - n

			result, err := host.Func(stack[argBase:])
			if err != nil {
				return api.Value{}, trap.NewHostError(err)
			}
			stack = stack[:argBase]
			if result.Valid() {
				stack.push(result)
			}

		default:
			return api.Value{}, trap.ErrTypeMismatch
		}
	}

	// Call exit: a declared result must be on top with the right kind; a
	// void function must leave the operand stack empty.
	if pf.result != 0 {
		return stack.popKind(pf.result)
	}
	if len(stack) != 0 {
		return api.Value{}, trap.ErrTypeMismatch
	}
	return api.Value{}, nil
}

// effectiveAddress combines the popped address with the instruction's static
// offset. The address is unsigned; the u64 sum cannot wrap, so the bounds
// check in Memory sees the true range.
func effectiveAddress(addr int32, offset uint32) uint64 {
	return uint64(uint32(addr)) + uint64(offset)
}

// Float min/max follow the original runtime: a single NaN operand yields the
// other operand (minNum/maxNum), not NaN as later WebAssembly requires.

func fmin32(a, b float32) float32 {
	if a < b || math.IsNaN(float64(b)) {
		return a
	}
	return b
}

func fmax32(a, b float32) float32 {
	if a > b || math.IsNaN(float64(b)) {
		return a
	}
	return b
}

func fmin64(a, b float64) float64 {
	if a < b || math.IsNaN(b) {
		return a
	}
	return b
}

func fmax64(a, b float64) float64 {
	if a > b || math.IsNaN(b) {
		return a
	}
	return b
}
