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

package cubescript

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cubescript-lang/cubescript/vm"
)

// newArith builds an Interpreter with a small set of test-fixture
// commands standing in for what a host embedding cubescript would
// register itself: arithmetic and concatenation. None of these are
// part of the engine proper.
func newArith(t *testing.T) *Interpreter {
	t.Helper()
	it, err := New(
		WithCommand("+", "V", true, func(_ *vm.Interpreter, args []vm.Value, result *vm.Value) {
			var sum int64
			for _, a := range args {
				sum += a.ToInt()
			}
			*result = vm.Int(sum)
		}),
		WithCommand("*", "ii", false, func(_ *vm.Interpreter, args []vm.Value, result *vm.Value) {
			*result = vm.Int(args[0].ToInt() * args[1].ToInt())
		}),
		WithCommand("concat", "V", true, func(_ *vm.Interpreter, args []vm.Value, result *vm.Value) {
			var sb strings.Builder
			for i, a := range args {
				if i > 0 {
					sb.WriteByte(' ')
				}
				sb.WriteString(a.ToString(vm.DefaultNumberFormats()))
			}
			*result = vm.String(sb.String())
		}),
	)
	require.NoError(t, err)
	return it
}

func TestRunStringArithmetic(t *testing.T) {
	it := newArith(t)
	out, err := it.RunString("+ 1 2 3")
	require.NoError(t, err)
	assert.Equal(t, "6", out)
}

func TestRunStringAliasCall(t *testing.T) {
	it := newArith(t)
	out, err := it.RunString("alias sq [* $arg1 $arg1]; sq 7")
	require.NoError(t, err)
	assert.Equal(t, "49", out)
}

func TestRunStringIfAndShortCircuit(t *testing.T) {
	it := newArith(t)

	out, err := it.RunString("if (+ 1 0) [result yes] [result no]")
	require.NoError(t, err)
	assert.Equal(t, "yes", out)

	out, err = it.RunString("if 0 [result yes] [result no]")
	require.NoError(t, err)
	assert.Equal(t, "no", out)

	out, err = it.RunString("|| 0 5")
	require.NoError(t, err)
	assert.Equal(t, "5", out)

	out, err = it.RunString("&& 0 5")
	require.NoError(t, err)
	assert.Equal(t, "0", out)
}

func TestRunStringAssignment(t *testing.T) {
	it := newArith(t)
	out, err := it.RunString("x = 10; x = (+ $x 5); result $x")
	require.NoError(t, err)
	assert.Equal(t, "15", out)
}

func TestRunStringAssignmentRequiresSurroundingSpace(t *testing.T) {
	it := newArith(t)
	out, err := it.RunString("x=3; result $x")
	require.NoError(t, err)
	// with no space around '=', "x=3" stays one bare word and never
	// assigns: $x is still unset, so the lookup resolves to empty.
	assert.Equal(t, "", out)
}

func TestRunStringAssignmentToIntVar(t *testing.T) {
	var storage int64
	it, err := New(WithIntVar("health", &storage, 0, 1000, 0))
	require.NoError(t, err)

	_, err = it.RunString("health = 75")
	require.NoError(t, err)
	assert.EqualValues(t, 75, storage)
}

func TestRunStringAssignmentToArgSlot(t *testing.T) {
	it := newArith(t)
	out, err := it.RunString("alias bump [arg1 = (+ $arg1 1); result $arg1]; bump 9")
	require.NoError(t, err)
	assert.Equal(t, "10", out)
}

func TestRunStringConcat(t *testing.T) {
	it := newArith(t)
	out, err := it.RunString(`concat a b c`)
	require.NoError(t, err)
	assert.Equal(t, "a b c", out)
}

func TestIntVarOverrideRoundTrip(t *testing.T) {
	var storage int64 = 10
	it, err := New(WithIntVar("x", &storage, 0, 100, 0))
	require.NoError(t, err)

	it.VM.SetOverrideMode(true)
	_, err = it.RunString("x 20")
	require.NoError(t, err)
	assert.EqualValues(t, 20, storage)

	_, err = it.RunString("x")
	require.NoError(t, err)
	it.VM.SetOverrideMode(false)
}

func TestRunStringReportsDiagnosticOnUnknownCommand(t *testing.T) {
	var msgs []string
	it, err := New(WithReporter(func(msg string) {
		msgs = append(msgs, msg)
	}))
	require.NoError(t, err)

	out, err := it.RunString("totallyUnknownCommand 1 2 3")
	require.NoError(t, err)
	assert.Equal(t, "", out)
	assert.NotEmpty(t, msgs)
}

func TestRunStringRecursionLimitReportsAndRecovers(t *testing.T) {
	var msgs []string
	it, err := New(
		WithReporter(func(msg string) {
			msgs = append(msgs, msg)
		}),
		WithCommand("+", "V", true, func(_ *vm.Interpreter, args []vm.Value, result *vm.Value) {
			var sum int64
			for _, a := range args {
				sum += a.ToInt()
			}
			*result = vm.Int(sum)
		}),
	)
	require.NoError(t, err)

	_, err = it.RunString("alias r [r]")
	require.NoError(t, err)

	out, err := it.RunString("r")
	require.NoError(t, err)
	assert.Equal(t, "", out)
	assert.NotEmpty(t, msgs, "expected a recursion-depth diagnostic")

	// the interpreter must remain usable after unwinding past the limit.
	out, err = it.RunString("+ 1 2")
	require.NoError(t, err)
	assert.Equal(t, "3", out)
}

func TestRunFileMissing(t *testing.T) {
	it := newArith(t)
	_, err := it.RunFile("/nonexistent/path/to/script.cs")
	assert.Error(t, err)
}

func TestCompileReturnsReusableBlock(t *testing.T) {
	it := newArith(t)
	blk, err := it.Compile("+ 2 2")
	require.NoError(t, err)
	defer blk.Unref()

	v1 := it.VM.Run(blk)
	defer v1.Release()
	v2 := it.VM.Run(blk)
	defer v2.Release()

	assert.Equal(t, int64(4), v1.ToInt())
	assert.Equal(t, int64(4), v2.ToInt())
}
