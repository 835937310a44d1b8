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

import (
	"github.com/google/uuid"

	"github.com/cubescript-lang/cubescript/internal/csi"
)

// MaxRunDepth bounds alias-call recursion; breaching it reports a
// diagnostic and unwinds to the enclosing block instead of reaching
// the host stack limit (§5).
const MaxRunDepth = 255

// Interpreter is a single cubescript engine instance: its identifier
// table, current call frame, flag state and source context. It is not
// safe for concurrent use — §5 specifies a single interpreter, one
// instruction pointer, and one value stack per instance.
type Interpreter struct {
	id uuid.UUID

	Idents    *Table
	frame     *AliasFrame
	rootFrame *AliasFrame

	numArgs int
	flags   identFlagState

	runDepth int
	noDebug  int

	SourceName string
	SourceLine int

	Reporter Reporter

	Formats NumberFormats

	numargsVar int64

	instrCount int64

	compiler Compiler
}

// identFlagState tracks the ambient persist/override mode that newly
// written variables pick up, mirroring the original engine's
// identflags thread-local.
type identFlagState struct {
	persist  bool
	override bool
}

// New creates an Interpreter with a freshly seeded identifier table
// (arg1..argN and the builtin Special forms) and no host commands or
// variables registered.
func New() *Interpreter {
	root := newRootFrame()
	it := &Interpreter{
		id:        uuid.New(),
		Idents:    NewTable(),
		frame:     root,
		rootFrame: root,
		Reporter:  discardReporter{},
		Formats:   DefaultNumberFormats(),
	}
	it.registerSpecials()
	it.RegisterIntVar("numargs", &it.numargsVar, 0, MaxArguments, ReadOnly, nil)
	return it
}

func (it *Interpreter) registerSpecials() {
	t := it.Idents
	t.registerSpecial("local", SpecialLocal)
	t.registerSpecial("do", SpecialDo)
	t.registerSpecial("doargs", SpecialDoArgs)
	t.registerSpecial("if", SpecialIf)
	t.registerSpecial("result", SpecialResult)
	t.registerSpecial("!", SpecialNot)
	t.registerSpecial("&&", SpecialAnd)
	t.registerSpecial("||", SpecialOr)
	t.registerSpecial("alias", SpecialAlias)
}

// ID returns a stable handle for this interpreter instance, useful for
// a host embedding several instances to correlate diagnostics and
// instruction-count telemetry back to a specific one.
func (it *Interpreter) ID() uuid.UUID { return it.id }

// InstructionCount returns the number of VM opcodes executed so far by
// this interpreter.
func (it *Interpreter) InstructionCount() int64 { return it.instrCount }

// RegisterCommand registers a native command; see Table.RegisterCommand.
func (it *Interpreter) RegisterCommand(name, argFormat string, variadic bool, fn CommandFunc) error {
	return it.Idents.RegisterCommand(name, argFormat, variadic, fn)
}

// RegisterIntVar registers a host-owned integer variable.
func (it *Interpreter) RegisterIntVar(name string, storage *int64, min, max int64, flags IdentFlags, onChange ChangeFunc) error {
	return it.Idents.RegisterIntVar(name, storage, min, max, flags, onChange)
}

// RegisterFloatVar registers a host-owned float variable.
func (it *Interpreter) RegisterFloatVar(name string, storage *float64, min, max float64, flags IdentFlags, onChange ChangeFunc) error {
	return it.Idents.RegisterFloatVar(name, storage, min, max, flags, onChange)
}

// RegisterStrVar registers a host-owned string variable.
func (it *Interpreter) RegisterStrVar(name string, storage *string, flags IdentFlags, onChange ChangeFunc) error {
	return it.Idents.RegisterStrVar(name, storage, flags, onChange)
}

// PushNoDebug suppresses diagnostic reporting until a matching
// PopNoDebug, for hosts that want to probe whether a name exists
// without the "unknown alias" diagnostic firing.
func (it *Interpreter) PushNoDebug() { it.noDebug++ }

// PopNoDebug reverses one PushNoDebug.
func (it *Interpreter) PopNoDebug() {
	if it.noDebug > 0 {
		it.noDebug--
	}
}

// report forwards msg to the Reporter, prefixed with the source name
// and line the currently executing instruction came from (§6/§7's
// "<file>:<line>: <message>" / "<line>: <message>" / bare-message
// fallback chain), unless diagnostics are currently suppressed by
// PushNoDebug.
func (it *Interpreter) report(msg string) {
	if it.noDebug > 0 {
		return
	}
	it.Reporter.Report(csi.FormatDiagnostic(it.SourceName, it.SourceLine, msg))
}

// SetOverrideMode toggles the ambient override flag: while set, writes
// to overridable variables save their prior value and set Overridden
// (§4.3).
func (it *Interpreter) SetOverrideMode(on bool) { it.flags.override = on }

// SetPersistMode toggles the ambient persist flag used when declaring
// new aliases via assignment.
func (it *Interpreter) SetPersistMode(on bool) { it.flags.persist = on }

// CurrentFrame returns the currently executing AliasFrame (the root
// sentinel frame at top level).
func (it *Interpreter) CurrentFrame() *AliasFrame { return it.frame }
