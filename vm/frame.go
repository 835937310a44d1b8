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

// AliasFrame is a per-call activation record: the alias being run (nil
// for the sentinel root frame), which of arg1..argN are currently
// bound, and the caller's frame. The saved values used to restore the
// caller's arguments on return live on each arg ident's AliasStack.
type AliasFrame struct {
	Alias    *Ident
	UsedArgs uint32
	Parent   *AliasFrame
}

// newRootFrame returns the sentinel "no-alias" frame: its UsedArgs mask
// is all-ones so that doargs at the top level exposes nothing further
// up and LOOKUPARG against it always finds its bit set.
func newRootFrame() *AliasFrame {
	return &AliasFrame{UsedArgs: ^uint32(0)}
}

// bindArg pushes the caller's slot k value onto argIdent's save stack
// and installs v as its new current value, recording that the slot is
// bound in the frame being entered.
func bindArg(argIdent *Ident, v Value, frame *AliasFrame, slot int) {
	argIdent.Stack.push(argIdent.Value)
	argIdent.Value = v
	frame.UsedArgs |= 1 << uint(slot)
}

// unbindArg restores the previous value of argIdent's slot, popping
// its save stack. Paired 1:1 with bindArg on every exit path.
func unbindArg(argIdent *Ident) {
	argIdent.Value = argIdent.Stack.pop()
}
