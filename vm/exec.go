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

// This file is the dispatch loop: one function, runBlock, drives a
// program counter over a Block's packed Instr words against a local
// value stack. A nested (...) group or [...] code block is itself a
// Block object (addressed through the constant pool, or held by a Code
// value or an alias), so entering one is an ordinary recursive call to
// runBlock rather than an in-stream skip; if branches are instead
// inlined by the compiler behind jumps —
// the original engine's args-vs-result register split collapses into
// "the value stack's top entry once the block runs out of
// instructions", which is what every caller (Run, OpEnter, OpCall,
// OpDo, ...) reads back.

// argPack and argUnpack encode an identifier table index together with
// a small argument count into one Instr operand, used by OpCall,
// OpCom, OpComV and OpComC. MaxArguments bounds the count to 5 bits.
const argCountBits = 5

func argPack(identIndex, count int) int32 {
	return int32(identIndex)<<argCountBits | int32(count)
}

func argUnpack(operand int32) (identIndex, count int) {
	return int(operand >> argCountBits), int(operand & (1<<argCountBits - 1))
}

// Run executes block as a top-level program and returns its result:
// the value the last statement left on the stack, or Null if block is
// empty. It is also what OpEnter, OpDo, OpCallArg, alias calls and
// nested local/doargs all reduce to.
func (it *Interpreter) Run(block *Block) Value {
	return it.runBlock(block)
}

func (it *Interpreter) runBlock(block *Block) Value {
	var stack []Value
	var locals []*Ident
	defer func() {
		for i := len(locals) - 1; i >= 0; i-- {
			locals[i].Value = locals[i].Stack.pop()
		}
		for _, v := range stack {
			v.Release()
		}
	}()

	push := func(v Value) { stack = append(stack, v) }
	pop := func() Value {
		n := len(stack)
		v := stack[n-1]
		stack = stack[:n-1]
		return v
	}
	popN := func(n int) []Value {
		start := len(stack) - n
		vs := make([]Value, n)
		copy(vs, stack[start:])
		stack = stack[:start]
		return vs
	}

	code := block.Code
	pc := 0
	for pc < len(code) {
		instr := code[pc]
		if pc < len(block.Lines) && block.Lines[pc] != 0 {
			it.SourceLine = int(block.Lines[pc])
		}
		pc++
		it.instrCount++

		op := instr.Op()
		tag := instr.Tag()
		operand := instr.Operand()

		switch op {
		case OpStart, OpOffset:
			// stream framing markers; carry no runtime effect.

		case OpNull:
			push(it.coerce(Null(), tag))
		case OpTrue:
			push(it.coerce(Int(1), tag))
		case OpFalse:
			push(it.coerce(Int(0), tag))
		case OpNot:
			v := pop()
			b := !v.ToBool()
			v.Release()
			push(it.coerce(Int(boolToInt(b)), tag))

		case OpPop:
			pop().Release()
		case OpDup:
			v := stack[len(stack)-1]
			push(v.Retain())
		case OpForce:
			push(it.coerce(pop(), tag))
		case OpResult, OpResultArg:
			// result folds into "top of stack at block end" in this
			// design; both opcodes are no-ops over the unified stack.

		case OpEnter, OpEnterResult:
			sub := block.Consts[operand]
			push(it.coerce(it.runBlock(sub.Code), tag))
		case OpExit:
			v := pop()
			return it.coerce(v, tag)
		case OpBlock:
			push(it.coerce(block.Consts[operand].Retain(), tag))

		case OpVal:
			push(it.coerce(block.Consts[operand].Retain(), tag))
		case OpValI:
			push(it.coerce(Int(int64(operand)), tag))
		case OpEmpty:
			push(CString(""))
		case OpMacro:
			push(it.coerce(block.Consts[operand].Retain(), tag))

		case OpLookup:
			push(it.coerce(it.lookupAlias(int(operand)), tag))
		case OpLookupM:
			push(it.coerce(it.lookupAlias(int(operand)), tag))
		case OpLookupArg:
			push(it.coerce(it.lookupArg(int(operand)), tag))
		case OpLookupMArg:
			push(it.coerce(it.lookupArg(int(operand)), tag))
		case OpLookupU:
			name := pop()
			push(it.coerce(it.lookupByName(name.ToString(it.Formats)), tag))
			name.Release()
		case OpLookupMU:
			name := pop()
			push(it.coerce(it.lookupByName(name.ToString(it.Formats)), tag))
			name.Release()

		case OpIvar:
			id := it.Idents.ByIndex(int(operand))
			push(it.coerce(Int(*id.IntVar.Value), tag))
		case OpFvar:
			id := it.Idents.ByIndex(int(operand))
			push(it.coerce(Float(*id.FloatVar.Value), tag))
		case OpSvar:
			id := it.Idents.ByIndex(int(operand))
			push(it.coerce(CString(*id.StrVar.Value), tag))

		case OpIvar1:
			v := pop()
			push(it.coerce(Int(it.writeIntVar(it.Idents.ByIndex(int(operand)), v.ToInt())), tag))
			v.Release()
		case OpIvar2:
			b := pop().ToInt()
			a := pop().ToInt()
			packed := a<<8 | (b & 0xff)
			push(it.coerce(Int(it.writeIntVar(it.Idents.ByIndex(int(operand)), packed)), tag))
		case OpIvar3:
			c := pop().ToInt()
			b := pop().ToInt()
			a := pop().ToInt()
			packed := a<<16 | (b&0xff)<<8 | (c & 0xff)
			push(it.coerce(Int(it.writeIntVar(it.Idents.ByIndex(int(operand)), packed)), tag))
		case OpFvar1:
			v := pop()
			push(it.coerce(Float(it.writeFloatVar(it.Idents.ByIndex(int(operand)), v.ToFloat())), tag))
			v.Release()
		case OpSvar1:
			v := pop()
			s := v.ToString(it.Formats)
			it.writeStrVar(it.Idents.ByIndex(int(operand)), s)
			v.Release()
			push(it.coerce(CString(s), tag))

		case OpIdent:
			push(IdentValue(int(operand)))
		case OpIdentArg:
			push(IdentValue(int(operand)))
		case OpIdentU:
			name := pop()
			id := it.Idents.DeclareAlias(name.ToString(it.Formats), it.declareFlags())
			name.Release()
			push(IdentValue(id.Index))

		case OpAlias:
			v := pop()
			it.writeAlias(it.Idents.ByIndex(int(operand)), v)
			push(v.Retain())
		case OpAliasArg:
			v := pop()
			slot := int(operand)
			argIdent := it.Idents.ByIndex(slot)
			if it.frame.UsedArgs&(1<<uint(slot)) == 0 {
				// Writing a slot the caller never bound: bind it fresh
				// (Alias::set_arg in the original) so callAlias's unwind
				// restores it on return instead of leaking the write
				// into the caller's scope.
				if argIdent.Compiled != nil {
					argIdent.Compiled.Unref()
					argIdent.Compiled = nil
				}
				bindArg(argIdent, v, it.frame, slot)
			} else {
				it.writeAlias(argIdent, v)
			}
			push(v.Retain())
		case OpAliasU:
			name := pop()
			v := pop()
			id := it.Idents.DeclareAlias(name.ToString(it.Formats), it.declareFlags())
			name.Release()
			it.writeAlias(id, v)
			push(v.Retain())

		case OpConc, OpConcW, OpConcM:
			vs := popN(int(operand))
			sep := " "
			if op == OpConcW {
				sep = ""
			}
			push(it.coerce(concatValues(vs, sep, it.Formats), tag))

		case OpCom, OpComV:
			identIndex, n := argUnpack(operand)
			id := it.Idents.ByIndex(identIndex)
			args := popN(n)
			var result Value
			id.Command.Func(it, args, &result)
			for _, a := range args {
				a.Release()
			}
			push(it.coerce(result, tag))
		case OpComC:
			identIndex, n := argUnpack(operand)
			id := it.Idents.ByIndex(identIndex)
			args := popN(n)
			joined := concatValues(args, " ", it.Formats)
			for _, a := range args {
				a.Release()
			}
			var result Value
			id.Command.Func(it, []Value{joined}, &result)
			joined.Release()
			push(it.coerce(result, tag))

		case OpCall:
			identIndex, n := argUnpack(operand)
			id := it.Idents.ByIndex(identIndex)
			args := popN(n)
			push(it.coerce(it.callAlias(id, args), tag))
		case OpCallArg:
			identIndex, n := argUnpack(operand)
			id := it.Idents.ByIndex(identIndex)
			args := popN(n)
			if it.frame.UsedArgs&(1<<uint(identIndex)) == 0 {
				for _, a := range args {
					a.Release()
				}
				push(it.coerce(Null(), tag))
				break
			}
			push(it.coerce(it.callAlias(id, args), tag))
		case OpCallU:
			n := int(operand)
			args := popN(n)
			name := pop()
			push(it.coerce(it.callByName(name.ToString(it.Formats), args), tag))
			name.Release()

		case OpJump:
			pc = int(operand)
		case OpJumpTrue:
			v := pop()
			b := v.ToBool()
			v.Release()
			if b {
				pc = int(operand)
			}
		case OpJumpFalse:
			v := pop()
			b := v.ToBool()
			v.Release()
			if !b {
				pc = int(operand)
			}
		case OpJumpResultTrue:
			v := pop()
			b := v.ToBool()
			v.Release()
			if b {
				pc = int(operand)
			}
		case OpJumpResultFalse:
			v := pop()
			b := v.ToBool()
			v.Release()
			if !b {
				pc = int(operand)
			}

		case OpLocal:
			n := int(operand)
			idvs := popN(n)
			for _, idv := range idvs {
				id := it.Idents.ByIndex(idv.Ident)
				id.Stack.push(id.Value)
				locals = append(locals, id)
			}

		case OpDo:
			v := pop()
			result := it.runCodeValue(v)
			v.Release()
			push(it.coerce(result, tag))
		case OpDoArgs:
			v := pop()
			saved := it.frame
			if saved.Parent != nil {
				it.frame = saved.Parent
			}
			result := it.runCodeValue(v)
			it.frame = saved
			v.Release()
			push(it.coerce(result, tag))

		case OpPrint:
			id := it.Idents.ByIndex(int(operand))
			if id.Kind == Command {
				var result Value
				id.Command.Func(it, nil, &result)
				push(it.coerce(result, tag))
				break
			}
			push(it.coerce(it.lookupAlias(int(operand)), tag))

		case OpCompile:
			v := pop()
			blk := it.compileString(v.ToString(it.Formats))
			v.Release()
			push(CodeValue(blk))
		case OpCond:
			v := pop()
			if v.Kind == KindCode {
				push(it.coerce(it.runBlock(v.Code), tag))
				v.Release()
				break
			}
			push(it.coerce(v, tag))

		default:
			it.report("unimplemented opcode")
		}
	}

	if len(stack) == 0 {
		return Null()
	}
	result := stack[len(stack)-1]
	stack = stack[:len(stack)-1]
	return result
}

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

// coerce applies a RetTag to v, releasing v first if the coercion
// produces a value of a different kind (Force/the original's
// force_arg).
func (it *Interpreter) coerce(v Value, tag RetTag) Value {
	switch tag {
	case RetNull:
		return v
	case RetInt:
		r := Int(v.ToInt())
		v.Release()
		return r
	case RetFloat:
		r := Float(v.ToFloat())
		v.Release()
		return r
	case RetStr:
		r := String(v.ToString(it.Formats))
		v.Release()
		return r
	}
	return v
}

func concatValues(vs []Value, sep string, fmts NumberFormats) Value {
	if len(vs) == 0 {
		return String("")
	}
	total := 0
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = v.ToString(fmts)
		total += len(parts[i])
	}
	total += len(sep) * (len(vs) - 1)
	buf := make([]byte, 0, total)
	for i, p := range parts {
		if i > 0 {
			buf = append(buf, sep...)
		}
		buf = append(buf, p...)
	}
	return String(string(buf))
}

// lookupAlias reads an Alias identifier's current value. While the
// alias still carries the Unknown flag (never written since it was
// auto-declared), every read reports an "unknown alias lookup"
// diagnostic and yields null (§4.5).
func (it *Interpreter) lookupAlias(index int) Value {
	id := it.Idents.ByIndex(index)
	if id.Flags&Unknown != 0 {
		it.report("unknown alias lookup: " + id.Name)
		return Null()
	}
	return id.Value.Retain()
}

// lookupArg reads an arg1..argN slot, yielding null silently (no
// diagnostic) when the caller's frame never bound that slot.
func (it *Interpreter) lookupArg(index int) Value {
	if it.frame.UsedArgs&(1<<uint(index)) == 0 {
		return Null()
	}
	id := it.Idents.ByIndex(index)
	return id.Value.Retain()
}

// lookupByName resolves a runtime string to whatever it names: an
// Alias's value, a builtin variable's value, or (for a bare name with
// no arguments) a Command's result. An unresolved name reports and
// yields null.
func (it *Interpreter) lookupByName(name string) Value {
	id := it.Idents.Lookup(name)
	if id == nil {
		it.report("unknown alias lookup: " + name)
		return Null()
	}
	switch id.Kind {
	case Alias:
		if id.Flags&Unknown != 0 {
			it.report("unknown alias lookup: " + name)
			return Null()
		}
		return id.Value.Retain()
	case IntVar:
		return Int(*id.IntVar.Value)
	case FloatVar:
		return Float(*id.FloatVar.Value)
	case StrVar:
		return CString(*id.StrVar.Value)
	case Command:
		var result Value
		id.Command.Func(it, nil, &result)
		return result
	default:
		return Null()
	}
}

// callByName resolves name at runtime and dispatches to a command or
// alias call, used by OpCallU for `$(name) args...`-style indirection.
func (it *Interpreter) callByName(name string, args []Value) Value {
	id := it.Idents.Lookup(name)
	if id == nil {
		id = it.Idents.DeclareAlias(name, it.declareFlags())
		id.Flags |= Unknown
	}
	switch id.Kind {
	case Command:
		var result Value
		id.Command.Func(it, args, &result)
		for _, a := range args {
			a.Release()
		}
		return result
	case Alias:
		return it.callAlias(id, args)
	default:
		for _, a := range args {
			a.Release()
		}
		it.report("cannot call " + name)
		return Null()
	}
}

// runCodeValue executes v as a code block, compiling it on demand when
// it was supplied as a string (OpDo and OpDoArgs funnel through here;
// 'e'/'E' command arguments are handed to the command as they are).
func (it *Interpreter) runCodeValue(v Value) Value {
	if v.Kind == KindCode {
		return it.runBlock(v.Code)
	}
	if v.IsString() {
		blk := it.compileString(v.Str)
		defer blk.Unref()
		return it.runBlock(blk)
	}
	return v.Retain()
}

// writeIntVar applies range clamping, override bookkeeping (see
// applyOverride) and the change callback, returning the value actually
// stored. The Persist flag is not consulted: a persistent variable is
// written in override mode like any other.
func (it *Interpreter) writeIntVar(id *Ident, v int64) int64 {
	if id.Flags&ReadOnly != 0 {
		it.report(id.Name + " is read-only")
		return *id.IntVar.Value
	}
	if v < id.IntVar.Min {
		v = id.IntVar.Min
	} else if v > id.IntVar.Max {
		v = id.IntVar.Max
	}
	it.applyOverride(id, func() { id.IntVar.SavedValue = *id.IntVar.Value })
	*id.IntVar.Value = v
	if id.IntVar.OnChange != nil {
		id.IntVar.OnChange(it)
	}
	return v
}

func (it *Interpreter) writeFloatVar(id *Ident, v float64) float64 {
	if id.Flags&ReadOnly != 0 {
		it.report(id.Name + " is read-only")
		return *id.FloatVar.Value
	}
	if v < id.FloatVar.Min {
		v = id.FloatVar.Min
	} else if v > id.FloatVar.Max {
		v = id.FloatVar.Max
	}
	it.applyOverride(id, func() { id.FloatVar.SavedValue = *id.FloatVar.Value })
	*id.FloatVar.Value = v
	if id.FloatVar.OnChange != nil {
		id.FloatVar.OnChange(it)
	}
	return v
}

func (it *Interpreter) writeStrVar(id *Ident, v string) {
	if id.Flags&ReadOnly != 0 {
		it.report(id.Name + " is read-only")
		return
	}
	it.applyOverride(id, func() { id.StrVar.SavedValue = *id.StrVar.Value })
	*id.StrVar.Value = v
	if id.StrVar.OnChange != nil {
		id.StrVar.OnChange(it)
	}
}

// applyOverride marks id Overridden and snapshots its current value via
// snapshot the first time an override-mode write touches it, so a
// later "reset to default" host command can restore it (§4.3).
func (it *Interpreter) applyOverride(id *Ident, snapshot func()) {
	if !it.flags.override && id.Flags&Override == 0 {
		return
	}
	if id.Flags&Overridden == 0 {
		snapshot()
		id.Flags |= Overridden
	}
}

// writeAlias assigns v to id, clearing any cached compiled bytecode
// (the value changed) and, while the ambient persist mode is on,
// marking every alias it writes Persist (§4.5).
func (it *Interpreter) writeAlias(id *Ident, v Value) {
	id.Value.Release()
	id.Value = v.Retain()
	id.Flags &^= Unknown
	if id.Compiled != nil {
		id.Compiled.Unref()
		id.Compiled = nil
	}
	if it.flags.persist {
		id.Flags |= Persist
	}
}

func (it *Interpreter) declareFlags() IdentFlags {
	if it.flags.persist {
		return Persist
	}
	return 0
}

// callAlias implements the alias call protocol: bind args into
// arg1..argN under a fresh AliasFrame, lazily compile the alias body,
// run it, then unwind every binding this call made (§4.2, §5).
func (it *Interpreter) callAlias(id *Ident, args []Value) Value {
	if id.Flags&Unknown != 0 {
		it.report("unknown command: " + id.Name)
		for _, a := range args {
			a.Release()
		}
		return Null()
	}
	if it.runDepth >= MaxRunDepth {
		it.report("alias recursion too deep: " + id.Name)
		for _, a := range args {
			a.Release()
		}
		return Null()
	}

	frame := &AliasFrame{Alias: id, Parent: it.frame}
	for i, v := range args {
		argIdent := it.Idents.ByIndex(i)
		if argIdent.Compiled != nil {
			argIdent.Compiled.Unref()
			argIdent.Compiled = nil
		}
		bindArg(argIdent, v, frame, i)
	}

	savedFrame := it.frame
	it.frame = frame
	it.runDepth++

	if id.Compiled == nil {
		switch id.Value.Kind {
		case KindCode, KindMacro:
			id.Compiled = id.Value.Code.Ref()
		default:
			id.Compiled = it.compileString(id.Value.ToString(it.Formats))
		}
	}
	id.Compiled.Ref()
	result := it.runBlock(id.Compiled)
	id.Compiled.Unref()

	it.runDepth--
	it.frame = savedFrame

	// Unbind every slot left set in UsedArgs, not just the ones this
	// call explicitly bound: an ALIASARG write inside the call body may
	// have bound an additional slot beyond what the caller passed (§4.3
	// step 4), and that slot's save stack needs popping too.
	for i := 0; i < MaxArguments; i++ {
		if frame.UsedArgs&(1<<uint(i)) != 0 {
			unbindArg(it.Idents.ByIndex(i))
		}
	}

	return result
}
