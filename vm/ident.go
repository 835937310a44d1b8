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

import "errors"

// MaxArguments is the number of reserved positional argument slots
// (arg1..argN) every alias invocation may bind.
const MaxArguments = 25

// MaxResults bounds the number of intermediate results a single
// statement may accumulate on the value stack.
const MaxResults = 7

// IdentKind identifies what an Ident names.
type IdentKind uint8

const (
	// IntVar, FloatVar and StrVar are host-owned builtin variables.
	IntVar IdentKind = iota
	FloatVar
	StrVar
	// Alias is a user-assignable name with dynamic-scope semantics
	// when used as a call argument.
	Alias
	// Command is a host-registered native callback.
	Command
	// Special is a builtin syntactic operator compiled to a fused
	// opcode rather than a generic call.
	Special
)

// IdentFlags is a bitmask of per-identifier modifiers.
type IdentFlags uint32

const (
	Persist IdentFlags = 1 << iota
	Override
	Hex
	ReadOnly
	Overridden
	Unknown
	Arg
)

// SpecialForm enumerates the builtin syntactic operators the compiler
// recognises by ident kind Special and compiles into fused opcodes.
type SpecialForm uint8

const (
	SpecialLocal SpecialForm = iota
	SpecialDo
	SpecialDoArgs
	SpecialIf
	SpecialResult
	SpecialNot
	SpecialAnd
	SpecialOr
	SpecialAlias
)

// CommandFunc is the native callback signature for a registered
// Command identifier: it receives the interpreter, the evaluated
// argument slice (already coerced per the command's format string),
// and a result slot to fill in.
type CommandFunc func(interp *Interpreter, args []Value, result *Value)

// ChangeFunc is invoked after a builtin variable's storage has been
// written.
type ChangeFunc func(interp *Interpreter)

// IntVarStorage holds the backing storage and range for an IntVar
// ident; Value points into host-owned memory, Min and Max are the
// clamp range.
type IntVarStorage struct {
	Value       *int64
	Min, Max    int64
	SavedValue  int64
	OnChange    ChangeFunc
}

// FloatVarStorage is the float analogue of IntVarStorage.
type FloatVarStorage struct {
	Value      *float64
	Min, Max   float64
	SavedValue float64
	OnChange   ChangeFunc
}

// StrVarStorage is the string analogue of IntVarStorage (no range).
type StrVarStorage struct {
	Value      *string
	SavedValue string
	OnChange   ChangeFunc
}

// AliasStack is a LIFO save/restore stack for an alias's successive
// bound values, used both for call-argument dynamic scoping and for
// CODE_LOCAL saves.
type AliasStack struct {
	saved []Value
}

func (s *AliasStack) push(v Value) { s.saved = append(s.saved, v) }

func (s *AliasStack) pop() Value {
	n := len(s.saved)
	v := s.saved[n-1]
	s.saved = s.saved[:n-1]
	return v
}

// AliasState holds the mutable state of an Alias identifier: its
// current value, an optional compiled-bytecode cache (cleared on every
// write), and the push/pop stack backing dynamic scoping.
type AliasState struct {
	Value    Value
	Compiled *Block
	Stack    AliasStack
}

// CommandSpec describes a registered Command identifier.
type CommandSpec struct {
	ArgFormat string // §4.3 format string
	Variadic  bool
	Func      CommandFunc
}

// Ident is an entry in the shared identifier table: an immutable
// interned name, a stable index assigned at insertion, a kind, and
// kind-specific state.
type Ident struct {
	Name  string
	Index int
	Kind  IdentKind
	Flags IdentFlags

	IntVar   IntVarStorage
	FloatVar FloatVarStorage
	StrVar   StrVarStorage
	AliasState
	Command CommandSpec
	Special SpecialForm
}

// Table is the interpreter's registry of named entities, with stable
// integer indices that are never reused. The first MaxArguments
// entries are always the reserved arg1..argN aliases.
type Table struct {
	byName  map[string]*Ident
	byIndex []*Ident
}

// NewTable creates a Table with arg1..argN pre-registered as Alias
// identifiers flagged Arg.
func NewTable() *Table {
	t := &Table{byName: make(map[string]*Ident, 64)}
	for i := 0; i < MaxArguments; i++ {
		t.insert(&Ident{
			Name:  argName(i),
			Kind:  Alias,
			Flags: Arg,
		})
	}
	return t
}

func argName(i int) string {
	// arg1..argN are 1-indexed in source text but 0-indexed in the
	// table, matching the reserved-slot layout of §3.
	const digits = "0123456789"
	n := i + 1
	if n < 10 {
		return "arg" + string(digits[n])
	}
	return "arg" + string(digits[n/10]) + string(digits[n%10])
}

// insert assigns id the next dense index and registers it by name.
func (t *Table) insert(id *Ident) *Ident {
	id.Index = len(t.byIndex)
	t.byIndex = append(t.byIndex, id)
	t.byName[id.Name] = id
	return id
}

// Lookup returns the Ident named name, or nil if it is not registered.
func (t *Table) Lookup(name string) *Ident {
	return t.byName[name]
}

// ByIndex returns the Ident at index idx. idx must be a previously
// returned, still-valid index; indices are dense and never reused.
func (t *Table) ByIndex(idx int) *Ident {
	return t.byIndex[idx]
}

// Len returns the number of registered identifiers.
func (t *Table) Len() int { return len(t.byIndex) }

// DeclareAlias registers name as an Alias with an initial value if it
// does not already exist, implementing the "unknown alias at write is
// silently created" rule of §4.5. Returns the (possibly pre-existing)
// Ident.
func (t *Table) DeclareAlias(name string, persistFlags IdentFlags) *Ident {
	if id := t.Lookup(name); id != nil {
		return id
	}
	return t.insert(&Ident{
		Name:  name,
		Kind:  Alias,
		Flags: persistFlags,
	})
}

// RegisterCommand inserts the Command identifier named name. A name
// that is already registered is rejected: a previous command of the
// same name is not replaced (§6), and neither is an identifier of any
// other kind, an existing alias included.
func (t *Table) RegisterCommand(name, argFormat string, variadic bool, fn CommandFunc) error {
	if existing := t.Lookup(name); existing != nil {
		if existing.Kind == Command {
			return errors.New("command already registered: " + name)
		}
		return errIdentKindConflict(name)
	}
	t.insert(&Ident{
		Name:    name,
		Kind:    Command,
		Command: CommandSpec{ArgFormat: argFormat, Variadic: variadic, Func: fn},
	})
	return nil
}

// RegisterIntVar inserts or replaces the IntVar identifier named name.
func (t *Table) RegisterIntVar(name string, storage *int64, min, max int64, flags IdentFlags, onChange ChangeFunc) error {
	if existing := t.Lookup(name); existing != nil {
		if existing.Kind != IntVar {
			return errIdentKindConflict(name)
		}
		existing.IntVar = IntVarStorage{Value: storage, Min: min, Max: max, OnChange: onChange}
		existing.Flags = flags
		return nil
	}
	t.insert(&Ident{
		Name:    name,
		Kind:    IntVar,
		Flags:   flags,
		IntVar:  IntVarStorage{Value: storage, Min: min, Max: max, OnChange: onChange},
	})
	return nil
}

// RegisterFloatVar inserts or replaces the FloatVar identifier named name.
func (t *Table) RegisterFloatVar(name string, storage *float64, min, max float64, flags IdentFlags, onChange ChangeFunc) error {
	if existing := t.Lookup(name); existing != nil {
		if existing.Kind != FloatVar {
			return errIdentKindConflict(name)
		}
		existing.FloatVar = FloatVarStorage{Value: storage, Min: min, Max: max, OnChange: onChange}
		existing.Flags = flags
		return nil
	}
	t.insert(&Ident{
		Name:     name,
		Kind:     FloatVar,
		Flags:    flags,
		FloatVar: FloatVarStorage{Value: storage, Min: min, Max: max, OnChange: onChange},
	})
	return nil
}

// RegisterStrVar inserts or replaces the StrVar identifier named name.
func (t *Table) RegisterStrVar(name string, storage *string, flags IdentFlags, onChange ChangeFunc) error {
	if existing := t.Lookup(name); existing != nil {
		if existing.Kind != StrVar {
			return errIdentKindConflict(name)
		}
		existing.StrVar = StrVarStorage{Value: storage, OnChange: onChange}
		existing.Flags = flags
		return nil
	}
	t.insert(&Ident{
		Name:   name,
		Kind:   StrVar,
		Flags:  flags,
		StrVar: StrVarStorage{Value: storage, OnChange: onChange},
	})
	return nil
}

// registerSpecial is used at Interpreter construction time to seed the
// builtin syntactic operators recognised by the compiler.
func (t *Table) registerSpecial(name string, form SpecialForm) {
	t.insert(&Ident{Name: name, Kind: Special, Special: form})
}

type identKindConflictError struct{ name string }

func (e identKindConflictError) Error() string {
	return "cannot replace identifier of a different kind: " + e.name
}

func errIdentKindConflict(name string) error { return identKindConflictError{name: name} }

// IsValidIdentName reports whether name is a legal identifier per
// §4.1: it must not start with a digit, a sign followed by a digit or
// dot, or a dot followed by a digit (those are number syntax).
func IsValidIdentName(name string) bool {
	if name == "" {
		return false
	}
	b0 := name[0]
	if isDigit(b0) {
		return false
	}
	if (b0 == '+' || b0 == '-') && len(name) > 1 && (isDigit(name[1]) || name[1] == '.') {
		return false
	}
	if b0 == '.' && len(name) > 1 && isDigit(name[1]) {
		return false
	}
	return true
}
