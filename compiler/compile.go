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

// Package compiler turns cubescript source text into vm.Block
// bytecode: a lexer splits it into statements of words (lexer.go), and
// this file walks each statement deciding, from the callee identifier
// kind and (for commands) its argument format string, what opcode
// sequence to emit.
package compiler

import (
	"strings"

	"github.com/pkg/errors"

	"github.com/cubescript-lang/cubescript/vm"
)

// Compiler compiles source text against a fixed identifier table. It
// holds no per-compilation state itself; Compile is safe to call
// repeatedly and concurrently with VM execution, but not concurrently
// with itself or with table mutation (§5: one interpreter, one thread).
type Compiler struct {
	idents *vm.Table
}

// New returns a Compiler resolving names against idents.
func New(idents *vm.Table) *Compiler {
	return &Compiler{idents: idents}
}

// CompileString implements vm.Compiler, the seam the VM uses for lazy
// on-demand compilation of alias bodies and string-valued code
// arguments.
func (c *Compiler) CompileString(sourceName, src string) (*vm.Block, error) {
	return c.Compile(src)
}

// fn is the compiler's accumulating state for one Block: the
// instruction stream, its constant pool, and a parallel line-number
// slice used to build Block.Lines for diagnostics (§6).
type fn struct {
	code   []vm.Instr
	consts []vm.Value
	lines  []int32

	line int32 // current statement's source line, set by compileStatement
}

func (f *fn) emit(op vm.Op, tag vm.RetTag, operand int32) int {
	f.code = append(f.code, vm.MakeInstr(op, tag, operand))
	f.lines = append(f.lines, f.line)
	return len(f.code) - 1
}

func (f *fn) addConst(v vm.Value) int32 {
	f.consts = append(f.consts, v)
	return int32(len(f.consts) - 1)
}

// patchJump overwrites the operand of the jump instruction at idx with
// the current end of the instruction stream.
func (f *fn) patchJump(idx int) {
	instr := f.code[idx]
	f.code[idx] = vm.MakeInstr(instr.Op(), instr.Tag(), int32(len(f.code)))
}

// Compile compiles a full program (a sequence of statements) into a
// Block whose result is its last statement's value.
func (c *Compiler) Compile(src string) (*vm.Block, error) {
	stmts, err := newLexer(src).statements()
	if err != nil {
		return nil, err
	}
	f := &fn{}
	if err := c.compileStatements(f, stmts); err != nil {
		return nil, err
	}
	blk := vm.NewBlock(f.code, f.consts)
	blk.Lines = f.lines
	return blk, nil
}

// compileStatements compiles stmts into f, discarding every statement
// result but the last (§4.3: a block's value is its last statement's
// value).
func (c *Compiler) compileStatements(f *fn, stmts []statement) error {
	for i, st := range stmts {
		if err := c.compileStatement(f, st); err != nil {
			return err
		}
		if i != len(stmts)-1 {
			f.emit(vm.OpPop, vm.RetNull, 0)
		}
	}
	if len(stmts) == 0 {
		f.emit(vm.OpNull, vm.RetNull, 0)
	}
	return nil
}

// compileStatement compiles one statement: if its first word names a
// Special form it is handled by dedicated codegen; otherwise the first
// word names a Command or Alias (or is unresolved, deferred to
// runtime) and is compiled as a call.
func (c *Compiler) compileStatement(f *fn, st statement) error {
	if len(st.words) == 0 {
		f.emit(vm.OpNull, vm.RetNull, 0)
		return nil
	}
	f.line = int32(st.line)
	head := st.words[0]
	if head.kind == tokWord {
		if len(st.words) >= 2 && st.words[1].kind == tokWord && st.words[1].text == "=" {
			return c.compileAssignment(f, head, st.words[2:])
		}
		if _, _, _, consumed := vm.ParseNumberPrefix(head.text); consumed == len(head.text) && consumed > 0 {
			return c.compileArgAny(f, head)
		}
		if id := c.idents.Lookup(head.text); id != nil && id.Kind == vm.Special {
			return c.compileSpecial(f, id.Special, st)
		}
		return c.compileCall(f, head.text, st.words[1:])
	}
	// A statement whose first token isn't a bare word (e.g. a lone
	// $lookup or "string") has no call semantics: it is just an
	// expression statement.
	return c.compileArgAny(f, head)
}

// compileCall compiles a call to name with the given argument word
// list, dispatching on the identifier's kind.
func (c *Compiler) compileCall(f *fn, name string, argWords []token) error {
	id := c.idents.Lookup(name)
	if id == nil {
		return c.compileUnknownCall(f, name, argWords)
	}
	switch id.Kind {
	case vm.Command:
		return c.compileCommandCall(f, id, argWords)
	case vm.Alias, vm.IntVar, vm.FloatVar, vm.StrVar:
		return c.compileIdentCall(f, id, argWords)
	default:
		return errors.Errorf("line %d: %s cannot be called", f0(argWords), name)
	}
}

func f0(toks []token) int {
	if len(toks) == 0 {
		return 0
	}
	return toks[0].line
}

// compileUnknownCall handles a bare name with no prior registration:
// if it carries arguments it is compiled as a CALLU against the
// runtime name (the alias may be declared by the time it runs); with
// no arguments it is simply a variable/alias print-or-lookup performed
// at runtime.
func (c *Compiler) compileUnknownCall(f *fn, name string, argWords []token) error {
	if len(argWords) == 0 {
		f.emit(vm.OpVal, vm.RetNull, f.addConst(vm.String(name)))
		f.emit(vm.OpLookupU, vm.RetNull, 0)
		return nil
	}
	f.emit(vm.OpVal, vm.RetNull, f.addConst(vm.String(name)))
	n, err := c.compileArgList(f, argWords)
	if err != nil {
		return err
	}
	f.emit(vm.OpCallU, vm.RetNull, int32(n))
	return nil
}

// compileIdentCall compiles invocation of an Alias or builtin
// variable. A variable named bare (no arguments) reads its value; an
// alias called with arguments binds them as arg1..argN.
func (c *Compiler) compileIdentCall(f *fn, id *vm.Ident, argWords []token) error {
	switch id.Kind {
	case vm.IntVar:
		if len(argWords) == 0 {
			f.emit(vm.OpIvar, vm.RetNull, int32(id.Index))
			return nil
		}
		if err := c.compileArg(f, argWords[0], vm.RetInt); err != nil {
			return err
		}
		f.emit(vm.OpIvar1, vm.RetNull, int32(id.Index))
		return nil
	case vm.FloatVar:
		if len(argWords) == 0 {
			f.emit(vm.OpFvar, vm.RetNull, int32(id.Index))
			return nil
		}
		if err := c.compileArg(f, argWords[0], vm.RetFloat); err != nil {
			return err
		}
		f.emit(vm.OpFvar1, vm.RetNull, int32(id.Index))
		return nil
	case vm.StrVar:
		if len(argWords) == 0 {
			f.emit(vm.OpSvar, vm.RetNull, int32(id.Index))
			return nil
		}
		if err := c.compileArg(f, argWords[0], vm.RetStr); err != nil {
			return err
		}
		f.emit(vm.OpSvar1, vm.RetNull, int32(id.Index))
		return nil
	default: // Alias
		n, err := c.compileArgList(f, argWords)
		if err != nil {
			return err
		}
		if id.Flags&vm.Arg != 0 {
			f.emit(vm.OpCallArg, vm.RetNull, packCall(id.Index, n))
			return nil
		}
		f.emit(vm.OpCall, vm.RetNull, packCall(id.Index, n))
		return nil
	}
}

func packCall(identIndex, n int) int32 {
	const bits = 5
	return int32(identIndex)<<bits | int32(n)
}

// compileAssignment compiles the `name = value` form (§8): a plain
// variable/alias write that reads more naturally than the equivalent
// call syntax (`alias name [value]` or `name value`). nameTok is always
// a bare word here (compileStatement only recognizes this form behind
// a leading tokWord). The left-hand side resolves against the
// identifier table exactly as a call's head word would, dispatching to
// the matching variable or alias write opcode; an unresolved name falls
// back to an ALIASU write-by-name, same as an unknown call does for
// reads.
func (c *Compiler) compileAssignment(f *fn, nameTok token, valueWords []token) error {
	if id := c.idents.Lookup(nameTok.text); id != nil {
		switch id.Kind {
		case vm.IntVar:
			if err := c.compileAssignValue(f, valueWords, vm.RetInt); err != nil {
				return err
			}
			f.emit(vm.OpIvar1, vm.RetNull, int32(id.Index))
			return nil
		case vm.FloatVar:
			if err := c.compileAssignValue(f, valueWords, vm.RetFloat); err != nil {
				return err
			}
			f.emit(vm.OpFvar1, vm.RetNull, int32(id.Index))
			return nil
		case vm.StrVar:
			if err := c.compileAssignValue(f, valueWords, vm.RetStr); err != nil {
				return err
			}
			f.emit(vm.OpSvar1, vm.RetNull, int32(id.Index))
			return nil
		case vm.Alias:
			if err := c.compileAssignValue(f, valueWords, vm.RetStr); err != nil {
				return err
			}
			if id.Flags&vm.Arg != 0 {
				f.emit(vm.OpAliasArg, vm.RetNull, int32(id.Index))
			} else {
				f.emit(vm.OpAlias, vm.RetNull, int32(id.Index))
			}
			return nil
		}
	}
	// Command, Special, or a name not yet declared: write it by name at
	// runtime, same as compileUnknownCall does for a bare read.
	if err := c.compileAssignValue(f, valueWords, vm.RetStr); err != nil {
		return err
	}
	f.emit(vm.OpVal, vm.RetNull, f.addConst(vm.String(nameTok.text)))
	f.emit(vm.OpAliasU, vm.RetNull, 0)
	return nil
}

// compileAssignValue compiles the right-hand side of an assignment:
// exactly one value word, or an empty string when the assignment has
// none (`x =`).
func (c *Compiler) compileAssignValue(f *fn, words []token, tag vm.RetTag) error {
	if len(words) == 0 {
		f.emit(vm.OpEmpty, vm.RetNull, 0)
		return nil
	}
	return c.compileArg(f, words[0], tag)
}

// compileArgList compiles each word as a generic, uncoerced argument
// (compileArgAny), used for alias calls which pass raw values rather
// than format-coerced ones.
func (c *Compiler) compileArgList(f *fn, words []token) (int, error) {
	for _, w := range words {
		if err := c.compileArgAny(f, w); err != nil {
			return 0, err
		}
	}
	return len(words), nil
}

// compileArgAny compiles a word with no format-driven coercion: the
// natural type of the token shape.
func (c *Compiler) compileArgAny(f *fn, w token) error {
	return c.compileArg(f, w, vm.RetNull)
}

// compileArg compiles one argument word, coercing to tag when the
// token is not already naturally of that type (used by command
// argument-format codegen).
func (c *Compiler) compileArg(f *fn, w token, tag vm.RetTag) error {
	switch w.kind {
	case tokQuoted:
		f.emit(vm.OpVal, tag, f.addConst(vm.String(unescape(w.text))))
		return nil
	case tokLookup:
		// A lookup used in a non-numeric context (string, any, or a
		// position that will itself go on to run/inspect the value,
		// e.g. an alias or do argument) forces the macro-lookup opcode
		// variant instead of the plain one, matching compilelookup's
		// ID_ALIAS dispatch in the original: VAL_INT/VAL_FLOAT use the
		// plain opcode, everything else uses the M-suffixed one.
		macro := tag != vm.RetInt && tag != vm.RetFloat
		if id := c.idents.Lookup(w.text); id != nil {
			switch id.Kind {
			case vm.IntVar:
				f.emit(vm.OpIvar, tag, int32(id.Index))
			case vm.FloatVar:
				f.emit(vm.OpFvar, tag, int32(id.Index))
			case vm.StrVar:
				f.emit(vm.OpSvar, tag, int32(id.Index))
			case vm.Alias:
				switch {
				case id.Flags&vm.Arg != 0 && macro:
					f.emit(vm.OpLookupMArg, tag, int32(id.Index))
				case id.Flags&vm.Arg != 0:
					f.emit(vm.OpLookupArg, tag, int32(id.Index))
				case macro:
					f.emit(vm.OpLookupM, tag, int32(id.Index))
				default:
					f.emit(vm.OpLookup, tag, int32(id.Index))
				}
			default:
				f.emit(vm.OpVal, tag, f.addConst(vm.String("")))
			}
			return nil
		}
		f.emit(vm.OpVal, vm.RetNull, f.addConst(vm.String(w.text)))
		if macro {
			f.emit(vm.OpLookupMU, tag, 0)
		} else {
			f.emit(vm.OpLookupU, tag, 0)
		}
		return nil
	case tokBlock:
		if tag == vm.RetInt || tag == vm.RetFloat {
			// A block used where a number is wanted is run immediately
			// and coerced, matching the 'e'-as-condition duality of §4.4.
			blk, err := c.Compile(w.text)
			if err != nil {
				return err
			}
			idx := f.addConst(vm.CodeValue(blk))
			f.emit(vm.OpEnter, tag, idx)
			return nil
		}
		// A bracket used anywhere else (a string/any-shaped argument,
		// an alias body, a result/not/if-condition operand) is a
		// literal macro: its source text, with a precompiled Block
		// pinned alongside. A call against the alias that stores it
		// runs that Block; do/doargs given a macro value compile its
		// text afresh.
		blk, err := c.Compile(w.text)
		if err != nil {
			return err
		}
		f.emit(vm.OpMacro, tag, f.addConst(vm.Macro(w.text, blk)))
		return nil
	case tokGroup:
		blk, err := c.Compile(w.text)
		if err != nil {
			return err
		}
		idx := f.addConst(vm.CodeValue(blk))
		f.emit(vm.OpEnter, tag, idx)
		return nil
	default: // tokWord
		return c.compileBareWord(f, w, tag)
	}
}

// compileBareWord compiles a plain word, folding a number literal
// directly into the instruction stream and splicing any embedded
// $name substitutions into a concatenation (§4.1's @-substitution,
// simplified to the common single-level case).
func (c *Compiler) compileBareWord(f *fn, w token, tag vm.RetTag) error {
	if !strings.Contains(w.text, "$") {
		if _, _, isFloat, consumed := vm.ParseNumberPrefix(w.text); consumed == len(w.text) && consumed > 0 {
			if isFloat {
				f.emit(vm.OpVal, tag, f.addConst(vm.Float(parseFloatLiteral(w.text))))
			} else {
				f.emit(vm.OpVal, tag, f.addConst(vm.Int(parseIntLiteral(w.text))))
			}
			return nil
		}
		f.emit(vm.OpVal, tag, f.addConst(vm.String(w.text)))
		return nil
	}
	return c.compileSplice(f, w.text, tag)
}

// compileSplice handles a bare word containing one or more embedded
// $name references by concatenating literal spans with alias/var
// lookups.
func (c *Compiler) compileSplice(f *fn, text string, tag vm.RetTag) error {
	n := 0
	i := 0
	for i < len(text) {
		if text[i] != '$' {
			start := i
			for i < len(text) && text[i] != '$' {
				i++
			}
			f.emit(vm.OpVal, vm.RetNull, f.addConst(vm.String(text[start:i])))
			n++
			continue
		}
		i++
		start := i
		for i < len(text) && isNameByte(text[i]) {
			i++
		}
		name := text[start:i]
		if id := c.idents.Lookup(name); id != nil && id.Kind == vm.Alias {
			if id.Flags&vm.Arg != 0 {
				f.emit(vm.OpLookupMArg, vm.RetNull, int32(id.Index))
			} else {
				f.emit(vm.OpLookupM, vm.RetNull, int32(id.Index))
			}
		} else {
			f.emit(vm.OpVal, vm.RetNull, f.addConst(vm.String(name)))
			f.emit(vm.OpLookupMU, vm.RetNull, 0)
		}
		n++
	}
	f.emit(vm.OpConcW, tag, int32(n))
	return nil
}

func isNameByte(b byte) bool {
	return b == '_' || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9')
}

func parseIntLiteral(s string) int64 {
	n, _, _, _ := vm.ParseNumberPrefix(s)
	return int64(n)
}

func parseFloatLiteral(s string) float64 {
	_, f, _, _ := vm.ParseNumberPrefix(s)
	return f
}
