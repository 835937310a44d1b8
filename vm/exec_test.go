// This file is part of cubescript.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package vm

import "testing"

// program is a small hand-assembled Instr sequence builder, in the
// spirit of a test-only mini assembler (cf. ngaro's `type C []vm.Cell`
// literal-program test helper) — exec_test builds Blocks directly
// rather than going through the compiler package, to exercise the
// dispatch loop in isolation.
type program struct {
	code   []Instr
	consts []Value
}

func (p *program) emit(op Op, tag RetTag, operand int32) *program {
	p.code = append(p.code, MakeInstr(op, tag, operand))
	return p
}

func (p *program) k(v Value) int32 {
	p.consts = append(p.consts, v)
	return int32(len(p.consts) - 1)
}

func (p *program) block() *Block { return NewBlock(p.code, p.consts) }

func pack(identIndex, n int) int32 { return int32(identIndex)<<argCountBits | int32(n) }

func TestExecCommandCall(t *testing.T) {
	it := New()
	var got []Value
	if err := it.RegisterCommand("sum", "ii", false, func(in *Interpreter, args []Value, result *Value) {
		got = append([]Value{}, args...)
		*result = Int(args[0].ToInt() + args[1].ToInt())
	}); err != nil {
		t.Fatal(err)
	}
	sum := it.Idents.Lookup("sum")

	p := &program{}
	p.emit(OpVal, RetNull, p.k(Int(2)))
	p.emit(OpVal, RetNull, p.k(Int(3)))
	p.emit(OpCom, RetNull, pack(sum.Index, 2))

	result := it.Run(p.block())
	if result.ToInt() != 5 {
		t.Fatalf("result = %v, want 5", result.ToInt())
	}
	if len(got) != 2 || got[0].ToInt() != 2 || got[1].ToInt() != 3 {
		t.Fatalf("command saw args %+v", got)
	}
}

func TestExecAliasCallBindsArguments(t *testing.T) {
	it := New()
	if err := it.RegisterCommand("mul", "ii", false, func(in *Interpreter, args []Value, result *Value) {
		*result = Int(args[0].ToInt() * args[1].ToInt())
	}); err != nil {
		t.Fatal(err)
	}
	mul := it.Idents.Lookup("mul")

	sq := it.Idents.DeclareAlias("sq", 0)
	arg1 := it.Idents.ByIndex(0)

	body := &program{}
	body.emit(OpLookupArg, RetNull, int32(arg1.Index))
	body.emit(OpLookupArg, RetNull, int32(arg1.Index))
	body.emit(OpCom, RetNull, pack(mul.Index, 2))
	sq.Compiled = body.block()

	call := &program{}
	call.emit(OpVal, RetNull, call.k(Int(7)))
	call.emit(OpCall, RetNull, pack(sq.Index, 1))

	result := it.Run(call.block())
	if result.ToInt() != 49 {
		t.Fatalf("sq(7) = %v, want 49", result.ToInt())
	}
	// arg1 must be restored (unbound) after the call returns.
	if arg1.Value.Kind != KindNull || len(arg1.Stack.saved) != 0 {
		t.Fatal("arg1 kept a binding from the call")
	}
}

func TestExecRecursionLimit(t *testing.T) {
	it := New()
	var diagnostics []string
	it.Reporter = ReporterFunc(func(msg string) { diagnostics = append(diagnostics, msg) })

	r := it.Idents.DeclareAlias("r", 0)
	body := &program{}
	body.emit(OpCall, RetNull, pack(r.Index, 0))
	r.Compiled = body.block()

	call := &program{}
	call.emit(OpCall, RetNull, pack(r.Index, 0))

	result := it.Run(call.block())
	if result.Kind != KindNull {
		t.Fatalf("result = %+v, want null", result)
	}
	if len(diagnostics) == 0 {
		t.Fatal("expected a recursion diagnostic")
	}
}

func TestExecIntVarOverrideRoundTrip(t *testing.T) {
	it := New()
	storage := int64(10)
	if err := it.RegisterIntVar("health", &storage, 0, 100, 0, nil); err != nil {
		t.Fatal(err)
	}
	health := it.Idents.Lookup("health")

	it.SetOverrideMode(true)
	p := &program{}
	p.emit(OpValI, RetInt, 50)
	p.emit(OpIvar1, RetNull, int32(health.Index))
	it.Run(p.block())

	if storage != 50 {
		t.Fatalf("storage = %d, want 50", storage)
	}
	if health.Flags&Overridden == 0 {
		t.Fatal("expected Overridden flag to be set")
	}
	if health.IntVar.SavedValue != 10 {
		t.Fatalf("SavedValue = %d, want 10", health.IntVar.SavedValue)
	}
}

func TestExecIntVarClamped(t *testing.T) {
	it := New()
	storage := int64(0)
	if err := it.RegisterIntVar("pct", &storage, 0, 100, 0, nil); err != nil {
		t.Fatal(err)
	}
	pct := it.Idents.Lookup("pct")

	p := &program{}
	p.emit(OpValI, RetInt, 9999)
	p.emit(OpIvar1, RetNull, int32(pct.Index))
	it.Run(p.block())

	if storage != 100 {
		t.Fatalf("storage = %d, want clamped to 100", storage)
	}
}

func TestExecShortCircuitAnd(t *testing.T) {
	it := New()
	p := &program{}
	p.emit(OpValI, RetInt, 0)
	p.emit(OpDup, RetNull, 0)
	jf := len(p.code)
	p.emit(OpJumpFalse, RetNull, 0)
	p.emit(OpPop, RetNull, 0)
	p.emit(OpValI, RetInt, 1)
	target := int32(len(p.code))
	p.code[jf] = MakeInstr(OpJumpFalse, RetNull, target)

	result := it.Run(p.block())
	if result.ToInt() != 0 {
		t.Fatalf("short-circuit && = %v, want 0 (the deciding operand)", result.ToInt())
	}
}
