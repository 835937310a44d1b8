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
	"github.com/cubescript-lang/cubescript/vm"
)

// compileCommandCall walks id's argument format string against the
// supplied words, coercing each to the type the format char demands
// (§4.3) and padding any trailing, textually-absent arguments with
// their format's default. This is the main opcode family the compiler
// picks from:
//
//	s, S  string (S keeps it a cstring-shaped borrow; treated alike here)
//	i, b  integer
//	f, F  float
//	t, T  value passed through unconverted ("any")
//	e, E  code: a literal [block] stays deferred as a Code value,
//	      anything else compiles to a string, and the command
//	      receives either one as it is
//	r     an identifier reference (declared if unknown)
//	$     alias name (declared if unknown), same encoding as r
//	N     pushes the number of remaining words as an integer constant
//	C     concatenates all remaining words into one string argument
//	V     gathers all remaining words, each format-free, as-is
func (c *Compiler) compileCommandCall(f *fn, id *vm.Ident, words []token) error {
	format := id.Command.ArgFormat
	wi := 0
	n := 0
	for fi := 0; fi < len(format); fi++ {
		ch := format[fi]
		switch ch {
		case 's', 'S':
			if wi < len(words) {
				if err := c.compileArg(f, words[wi], vm.RetStr); err != nil {
					return err
				}
				wi++
			} else {
				f.emit(vm.OpEmpty, vm.RetNull, 0)
			}
			n++
		case 'i', 'b':
			if wi < len(words) {
				if err := c.compileArg(f, words[wi], vm.RetInt); err != nil {
					return err
				}
				wi++
			} else {
				f.emit(vm.OpValI, vm.RetInt, 0)
			}
			n++
		case 'f', 'F':
			if wi < len(words) {
				if err := c.compileArg(f, words[wi], vm.RetFloat); err != nil {
					return err
				}
				wi++
			} else {
				f.emit(vm.OpValI, vm.RetFloat, 0)
			}
			n++
		case 't', 'T':
			if wi < len(words) {
				if err := c.compileArg(f, words[wi], vm.RetNull); err != nil {
					return err
				}
				wi++
			} else {
				f.emit(vm.OpNull, vm.RetNull, 0)
			}
			n++
		case 'e', 'E':
			if wi < len(words) {
				if err := c.compileCodeArg(f, words[wi]); err != nil {
					return err
				}
				wi++
			} else {
				f.emit(vm.OpNull, vm.RetNull, 0)
			}
			n++
		case 'r', '$':
			if wi < len(words) {
				if err := c.compileIdentArg(f, words[wi]); err != nil {
					return err
				}
				wi++
			} else {
				f.emit(vm.OpIdent, vm.RetNull, int32(id.Index))
			}
			n++
		case 'N':
			f.emit(vm.OpVal, vm.RetNull, f.addConst(vm.Int(int64(len(words)-wi))))
			n++
		case 'C':
			rest := words[wi:]
			wi = len(words)
			for _, w := range rest {
				if err := c.compileArg(f, w, vm.RetStr); err != nil {
					return err
				}
			}
			f.emit(vm.OpConc, vm.RetStr, int32(len(rest)))
			n++
		case 'V':
			rest := words[wi:]
			wi = len(words)
			for _, w := range rest {
				if err := c.compileArgAny(f, w); err != nil {
					return err
				}
			}
			f.emit(vm.OpCom, vm.RetNull, packCall(id.Index, n+len(rest)))
			return nil
		default:
			// digits 1-4 repeat-count prefixes are not supported by this
			// compiler; treat as a plain string slot.
			if wi < len(words) {
				if err := c.compileArg(f, words[wi], vm.RetStr); err != nil {
					return err
				}
				wi++
			} else {
				f.emit(vm.OpEmpty, vm.RetNull, 0)
			}
			n++
		}
	}
	f.emit(vm.OpCom, vm.RetNull, packCall(id.Index, n))
	return nil
}

// compileCodeArg compiles a code-shaped ('e'/'E') argument: a [block]
// word stays a deferred Code value; anything else compiles as a plain
// string, left for the command (or runCodeValue) to compile lazily.
func (c *Compiler) compileCodeArg(f *fn, w token) error {
	if w.kind == tokBlock {
		blk, err := c.Compile(w.text)
		if err != nil {
			return err
		}
		f.emit(vm.OpBlock, vm.RetNull, f.addConst(vm.CodeValue(blk)))
		return nil
	}
	return c.compileArg(f, w, vm.RetStr)
}

// compileIdentArg compiles an 'r'/'$' argument: a bare word names an
// identifier directly (declared as an alias if unknown); anything else
// is resolved by its runtime string value.
func (c *Compiler) compileIdentArg(f *fn, w token) error {
	if w.kind == tokWord {
		id := c.idents.DeclareAlias(w.text, 0)
		f.emit(vm.OpIdent, vm.RetNull, int32(id.Index))
		return nil
	}
	if err := c.compileArg(f, w, vm.RetStr); err != nil {
		return err
	}
	f.emit(vm.OpIdentU, vm.RetNull, 0)
	return nil
}
