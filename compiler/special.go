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

package compiler

import (
	"github.com/pkg/errors"

	"github.com/cubescript-lang/cubescript/vm"
)

// compileSpecial compiles one of the builtin syntactic operators to a
// fused opcode sequence instead of a generic call.
func (c *Compiler) compileSpecial(f *fn, form vm.SpecialForm, st statement) error {
	args := st.words[1:]
	switch form {
	case vm.SpecialIf:
		return c.compileIf(f, args)
	case vm.SpecialDo:
		return c.compileDo(f, args, vm.OpDo)
	case vm.SpecialDoArgs:
		return c.compileDo(f, args, vm.OpDoArgs)
	case vm.SpecialLocal:
		return c.compileLocal(f, args)
	case vm.SpecialResult:
		if len(args) == 0 {
			f.emit(vm.OpNull, vm.RetNull, 0)
			return nil
		}
		if err := c.compileArgAny(f, args[0]); err != nil {
			return err
		}
		f.emit(vm.OpResult, vm.RetNull, 0)
		return nil
	case vm.SpecialNot:
		if len(args) == 0 {
			f.emit(vm.OpTrue, vm.RetNull, 0)
			return nil
		}
		if err := c.compileArgAny(f, args[0]); err != nil {
			return err
		}
		f.emit(vm.OpNot, vm.RetNull, 0)
		return nil
	case vm.SpecialAnd:
		return c.compileShortCircuit(f, args, vm.OpJumpFalse)
	case vm.SpecialOr:
		return c.compileShortCircuit(f, args, vm.OpJumpTrue)
	case vm.SpecialAlias:
		return c.compileAliasDecl(f, args)
	default:
		return errors.New("unhandled special form")
	}
}

// compileIf implements the peephole of §4.4: the then/else branches,
// when written as literal [blocks], are spliced directly into the
// surrounding instruction stream behind JUMP_FALSE/JUMP rather than
// compiled as separate Block constants invoked through OpDo.
func (c *Compiler) compileIf(f *fn, args []token) error {
	if len(args) == 0 {
		f.emit(vm.OpNull, vm.RetNull, 0)
		return nil
	}
	if err := c.compileArgAny(f, args[0]); err != nil {
		return err
	}
	jfalse := f.emit(vm.OpJumpFalse, vm.RetNull, 0)

	if len(args) > 1 {
		if err := c.compileBranch(f, args[1]); err != nil {
			return err
		}
	} else {
		f.emit(vm.OpNull, vm.RetNull, 0)
	}
	jend := f.emit(vm.OpJump, vm.RetNull, 0)

	f.patchJump(jfalse)
	if len(args) > 2 {
		if err := c.compileBranch(f, args[2]); err != nil {
			return err
		}
	} else {
		f.emit(vm.OpNull, vm.RetNull, 0)
	}
	f.patchJump(jend)
	return nil
}

// compileBranch compiles an if-branch argument: a [block] is inlined
// as a nested statement sequence (the peephole), anything else is a
// single expression.
func (c *Compiler) compileBranch(f *fn, w token) error {
	if w.kind == tokBlock {
		stmts, err := newLexer(w.text).statements()
		if err != nil {
			return err
		}
		return c.compileStatements(f, stmts)
	}
	return c.compileArgAny(f, w)
}

// compileAliasDecl compiles `alias NAME VALUE` (§4.5): NAME is taken
// literally (not evaluated) and declared if unknown, VALUE is compiled
// like any other string-shaped argument — a [block] becomes a macro
// string with its Block pinned for the eventual call to reuse,
// anything else the usual string/number/lookup encoding — and written
// through OpAlias, whose identIndex is resolved at compile time since
// NAME is always a bare word in practice.
func (c *Compiler) compileAliasDecl(f *fn, args []token) error {
	if len(args) == 0 {
		f.emit(vm.OpNull, vm.RetNull, 0)
		return nil
	}
	if len(args) == 1 {
		id := c.idents.DeclareAlias(args[0].text, 0)
		f.emit(vm.OpNull, vm.RetNull, 0)
		f.emit(vm.OpAlias, vm.RetNull, int32(id.Index))
		return nil
	}
	// Declare NAME before compiling VALUE so that a body naming its own
	// alias compiles to a call of it rather than a runtime lookup.
	id := c.idents.DeclareAlias(args[0].text, 0)
	if err := c.compileArgAny(f, args[1]); err != nil {
		return err
	}
	f.emit(vm.OpAlias, vm.RetNull, int32(id.Index))
	return nil
}

// compileDo compiles `do`/`doargs`: the argument wants a genuine Code
// value (VAL_CODE), not the macro string every other bracket position
// compiles to, so a literal [block] is kept as Code here rather than
// routed through the generic compileArg.
func (c *Compiler) compileDo(f *fn, args []token, op vm.Op) error {
	if len(args) == 0 {
		f.emit(vm.OpNull, vm.RetNull, 0)
		return nil
	}
	if err := c.compileCodeArg(f, args[0]); err != nil {
		return err
	}
	f.emit(op, vm.RetNull, 0)
	return nil
}

// compileLocal declares each named alias and emits OpLocal to save and
// schedule restoration of their values for the remainder of the
// enclosing block (§4.2).
func (c *Compiler) compileLocal(f *fn, args []token) error {
	for _, w := range args {
		name := w.text
		id := c.idents.DeclareAlias(name, 0)
		f.emit(vm.OpIdent, vm.RetNull, int32(id.Index))
	}
	f.emit(vm.OpLocal, vm.RetNull, int32(len(args)))
	f.emit(vm.OpNull, vm.RetNull, 0)
	return nil
}

// compileShortCircuit implements && and ||: each operand is VAL_COND in
// the original, a genuine Code value, so a literal [block] operand runs
// rather than being passed through as a macro string. Each operand but
// the last is duplicated and tested; landing on the shared exit with
// the un-popped duplicate's twin still on the stack makes the
// short-circuit result the deciding operand's own value rather than a
// bare boolean.
func (c *Compiler) compileShortCircuit(f *fn, args []token, jumpOp vm.Op) error {
	if len(args) == 0 {
		if jumpOp == vm.OpJumpFalse {
			f.emit(vm.OpTrue, vm.RetNull, 0)
		} else {
			f.emit(vm.OpFalse, vm.RetNull, 0)
		}
		return nil
	}
	var jumps []int
	for i, w := range args {
		if err := c.compileCodeArg(f, w); err != nil {
			return err
		}
		// A literal [block] compiled to Code above; run it down to its
		// result before testing or returning it (OpCond is a no-op on
		// anything that isn't Code).
		f.emit(vm.OpCond, vm.RetNull, 0)
		if i == len(args)-1 {
			break
		}
		f.emit(vm.OpDup, vm.RetNull, 0)
		jumps = append(jumps, f.emit(jumpOp, vm.RetNull, 0))
		f.emit(vm.OpPop, vm.RetNull, 0)
	}
	for _, j := range jumps {
		f.patchJump(j)
	}
	return nil
}
