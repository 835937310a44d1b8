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

// Package cubescript is the embedding façade: it wires a vm.Interpreter
// to a compiler.Compiler and exposes the handful of calls a host
// program actually needs — registration, compiling, and running
// source — without requiring callers to touch the vm or compiler
// packages directly.
package cubescript

import (
	"os"

	"github.com/pkg/errors"

	"github.com/cubescript-lang/cubescript/compiler"
	"github.com/cubescript-lang/cubescript/vm"
)

// Option configures an Interpreter at construction time.
type Option func(*Interpreter) error

// Interpreter holds a cubescript vm.Interpreter and its paired compiler.
type Interpreter struct {
	VM       *vm.Interpreter
	compiler *compiler.Compiler
}

// New creates an Interpreter with a freshly seeded identifier table and
// applies opts in order, returning the first error encountered.
func New(opts ...Option) (*Interpreter, error) {
	it := &Interpreter{VM: vm.New()}
	it.compiler = compiler.New(it.VM.Idents)
	it.VM.SetCompiler(it.compiler)
	for _, opt := range opts {
		if err := opt(it); err != nil {
			return nil, err
		}
	}
	return it, nil
}

// WithReporter routes engine diagnostics (§7) to fn instead of
// discarding them.
func WithReporter(fn func(msg string)) Option {
	return func(it *Interpreter) error {
		it.VM.Reporter = vm.ReporterFunc(fn)
		return nil
	}
}

// WithNumberFormats overrides the default printf-style numeric
// formatting used when converting values to strings.
func WithNumberFormats(fmts vm.NumberFormats) Option {
	return func(it *Interpreter) error {
		it.VM.Formats = fmts
		return nil
	}
}

// WithCommand registers a native command under name at construction
// time; RegisterCommand does the same on a constructed Interpreter.
func WithCommand(name, argFormat string, variadic bool, fn vm.CommandFunc) Option {
	return func(it *Interpreter) error {
		return it.VM.RegisterCommand(name, argFormat, variadic, fn)
	}
}

// WithIntVar registers a host-owned integer variable.
func WithIntVar(name string, storage *int64, min, max int64, flags vm.IdentFlags) Option {
	return func(it *Interpreter) error {
		return it.VM.RegisterIntVar(name, storage, min, max, flags, nil)
	}
}

// WithFloatVar registers a host-owned float variable.
func WithFloatVar(name string, storage *float64, min, max float64, flags vm.IdentFlags) Option {
	return func(it *Interpreter) error {
		return it.VM.RegisterFloatVar(name, storage, min, max, flags, nil)
	}
}

// WithStrVar registers a host-owned string variable.
func WithStrVar(name string, storage *string, flags vm.IdentFlags) Option {
	return func(it *Interpreter) error {
		return it.VM.RegisterStrVar(name, storage, flags, nil)
	}
}

// RegisterCommand registers a native command after construction.
func (it *Interpreter) RegisterCommand(name, argFormat string, variadic bool, fn vm.CommandFunc) error {
	return it.VM.RegisterCommand(name, argFormat, variadic, fn)
}

// Compile compiles src into a reusable, refcounted Block.
func (it *Interpreter) Compile(src string) (*vm.Block, error) {
	return it.compiler.Compile(src)
}

// RunString compiles and immediately runs src, returning its result as
// a string using the interpreter's configured number formats.
func (it *Interpreter) RunString(src string) (string, error) {
	v, err := it.Eval(src)
	if err != nil {
		return "", err
	}
	defer v.Release()
	return v.ToString(it.VM.Formats), nil
}

// Eval compiles and runs src, returning the raw result Value. Callers
// that hold onto a Code or Macro result must Release it.
func (it *Interpreter) Eval(src string) (vm.Value, error) {
	blk, err := it.compiler.Compile(src)
	if err != nil {
		return vm.Null(), errors.Wrap(err, "compile")
	}
	defer blk.Unref()
	return it.VM.Run(blk), nil
}

// RunFile reads path and runs it as a cubescript program, using path as
// the diagnostic source name for the duration of the run.
func (it *Interpreter) RunFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", errors.Wrapf(err, "reading %s", path)
	}
	prev := it.VM.SourceName
	it.VM.SourceName = path
	defer func() { it.VM.SourceName = prev }()
	return it.RunString(string(data))
}
