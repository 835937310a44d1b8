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

// Reporter receives engine-level diagnostics (§7): none of them are
// fatal, none unwind the VM, and the caller is free to ignore them
// entirely (see PushNoDebug). msg already carries the
// "<file>:<line>: <message>" / "<line>: <message>" / bare-message
// prefix of §6 — the Interpreter's report method applies it using
// SourceName/SourceLine before a Reporter ever sees the string.
type Reporter interface {
	Report(msg string)
}

// ReporterFunc adapts a plain function to the Reporter interface.
type ReporterFunc func(msg string)

// Report implements Reporter.
func (f ReporterFunc) Report(msg string) { f(msg) }

// discardReporter drops every diagnostic; it is the default so that an
// Interpreter is usable without any host wiring.
type discardReporter struct{}

func (discardReporter) Report(string) {}
