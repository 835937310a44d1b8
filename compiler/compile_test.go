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
	"testing"

	"github.com/cubescript-lang/cubescript/vm"
)

func newTestInterpreter(t *testing.T) (*vm.Interpreter, *Compiler) {
	t.Helper()
	it := vm.New()
	c := New(it.Idents)
	it.SetCompiler(c)
	return it, c
}

func run(t *testing.T, it *vm.Interpreter, c *Compiler, src string) string {
	t.Helper()
	blk, err := c.Compile(src)
	if err != nil {
		t.Fatalf("compile(%q): %v", src, err)
	}
	defer blk.Unref()
	v := it.Run(blk)
	defer v.Release()
	return v.ToString(it.Formats)
}

func TestCompileArithmeticCommand(t *testing.T) {
	it, c := newTestInterpreter(t)
	if err := it.RegisterCommand("+", "V", true, func(in *vm.Interpreter, args []vm.Value, result *vm.Value) {
		var sum int64
		for _, a := range args {
			sum += a.ToInt()
		}
		*result = vm.Int(sum)
	}); err != nil {
		t.Fatal(err)
	}
	if got := run(t, it, c, "+ 1 2 3"); got != "6" {
		t.Fatalf("+ 1 2 3 = %q, want 6", got)
	}
}

func TestCompileAliasCall(t *testing.T) {
	it, c := newTestInterpreter(t)
	if err := it.RegisterCommand("*", "ii", false, func(in *vm.Interpreter, args []vm.Value, result *vm.Value) {
		*result = vm.Int(args[0].ToInt() * args[1].ToInt())
	}); err != nil {
		t.Fatal(err)
	}
	if got := run(t, it, c, "alias sq [* $arg1 $arg1]; sq 7"); got != "49" {
		t.Fatalf("sq 7 = %q, want 49", got)
	}
}

func TestCompileIf(t *testing.T) {
	it, c := newTestInterpreter(t)
	if got := run(t, it, c, "if 1 [result yes] [result no]"); got != "yes" {
		t.Fatalf("if true = %q, want yes", got)
	}
	if got := run(t, it, c, "if 0 [result yes] [result no]"); got != "no" {
		t.Fatalf("if false = %q, want no", got)
	}
}

func TestCompileLastStatementWins(t *testing.T) {
	it, c := newTestInterpreter(t)
	if got := run(t, it, c, "1; 2; 3"); got != "3" {
		t.Fatalf("sequence result = %q, want 3", got)
	}
}

func TestCompileShortCircuitOr(t *testing.T) {
	it, c := newTestInterpreter(t)
	if got := run(t, it, c, "|| 0 5"); got != "5" {
		t.Fatalf("0 || 5 = %q, want 5", got)
	}
	if got := run(t, it, c, "&& 0 5"); got != "0" {
		t.Fatalf("0 && 5 = %q, want 0", got)
	}
}

func TestCompileBracketAsStringArgumentStaysLiteral(t *testing.T) {
	it, c := newTestInterpreter(t)
	if err := it.RegisterCommand("echo", "C", false, func(in *vm.Interpreter, args []vm.Value, result *vm.Value) {
		*result = args[0].Retain()
	}); err != nil {
		t.Fatal(err)
	}
	// a bracket passed to a string-format command argument is a literal
	// macro string, not a Code value that coerces to "".
	if got := run(t, it, c, "echo [hello world]"); got != "hello world" {
		t.Fatalf("echo [hello world] = %q, want %q", got, "hello world")
	}
}

func TestCompileShortCircuitRunsBracketOperand(t *testing.T) {
	it, c := newTestInterpreter(t)
	if err := it.RegisterCommand("+", "V", true, func(in *vm.Interpreter, args []vm.Value, result *vm.Value) {
		var sum int64
		for _, a := range args {
			sum += a.ToInt()
		}
		*result = vm.Int(sum)
	}); err != nil {
		t.Fatal(err)
	}
	// && and || operands are VAL_COND: a literal [block] runs to its
	// result rather than being left as an unexecuted Code value.
	if got := run(t, it, c, "|| 0 [+ 2 3]"); got != "5" {
		t.Fatalf("0 || [+ 2 3] = %q, want 5", got)
	}
}

func TestCompileAssignment(t *testing.T) {
	it, c := newTestInterpreter(t)
	if err := it.RegisterCommand("+", "V", true, func(in *vm.Interpreter, args []vm.Value, result *vm.Value) {
		var sum int64
		for _, a := range args {
			sum += a.ToInt()
		}
		*result = vm.Int(sum)
	}); err != nil {
		t.Fatal(err)
	}
	if got := run(t, it, c, "x = 10; x = (+ $x 5); result $x"); got != "15" {
		t.Fatalf("assignment round trip = %q, want 15", got)
	}
	// no surrounding space: "x=3" is one bare word, not an assignment.
	if got := run(t, it, c, "x=3; result $x"); got != "15" {
		t.Fatalf("x=3 should not assign, $x = %q, want unchanged 15", got)
	}
}

func TestCompileAliasDeclAndCall(t *testing.T) {
	it, c := newTestInterpreter(t)
	out := run(t, it, c, "alias x 5; x")
	// Calling an alias with no arguments runs its body: a bare literal
	// alias body evaluates to itself.
	if out != "5" {
		t.Fatalf("x after alias decl = %q, want 5", out)
	}
}
