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

// Compiler is the seam the VM uses to lazily compile a string into a
// Block: an alias's body is compiled on first call (§4.2's "compile
// the alias body lazily if its bytecode cache is empty"), and an `E`
// (condition, §4.4) or `e` (code) command argument that was supplied
// as a plain string is compiled on first use. Kept as an interface
// rather than a direct import of the compiler package, which itself
// imports vm, to avoid a package cycle — the façade package wires a
// concrete *compiler.Compiler in.
type Compiler interface {
	CompileString(sourceName, src string) (*Block, error)
}

// SetCompiler installs the Compiler used for lazy on-demand
// compilation. Must be called before running any source that declares
// aliases or uses string-valued condition/code arguments.
func (it *Interpreter) SetCompiler(c Compiler) { it.compiler = c }

// compileString compiles src via the installed Compiler, reporting and
// returning a Block wrapping no instructions if none is installed or
// compilation fails.
func (it *Interpreter) compileString(src string) *Block {
	if it.compiler == nil {
		it.report("no compiler installed: cannot compile `" + src + "`")
		return NewBlock(nil, nil)
	}
	b, err := it.compiler.CompileString(it.SourceName, src)
	if err != nil {
		it.report(err.Error())
		return NewBlock(nil, nil)
	}
	return b
}
