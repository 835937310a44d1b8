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
	"fmt"
	"strconv"
	"strings"
)

// Kind identifies the active variant of a Value.
type Kind uint8

// Value kinds, ordered to match the low two bits of a return-type tag
// (Null, Int, Float, Str); the remaining kinds have no tag encoding of
// their own and only ever appear as live stack/alias contents.
const (
	KindNull Kind = iota
	KindInt
	KindFloat
	KindString
	KindCString
	KindMacro
	KindCode
	KindIdent
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindCString:
		return "cstring"
	case KindMacro:
		return "macro"
	case KindCode:
		return "code"
	case KindIdent:
		return "ident"
	}
	return "unknown"
}

// Value is a tagged union of the eight cubescript value variants.
// Str holds the text payload for KindString, KindCString and KindMacro.
// Code holds the bytecode handle for KindCode, and is also where a
// KindMacro value pins the block its bytes are borrowed from.
type Value struct {
	Kind  Kind
	I     int64
	F     float64
	Str   string
	Code  *Block
	Ident int
}

// Null returns the null Value.
func Null() Value { return Value{Kind: KindNull} }

// Int returns an integer Value.
func Int(i int64) Value { return Value{Kind: KindInt, I: i} }

// Float returns a float Value.
func Float(f float64) Value { return Value{Kind: KindFloat, F: f} }

// String returns an owned string Value.
func String(s string) Value { return Value{Kind: KindString, Str: s} }

// CString returns a borrowed string Value; borrowed strings are never
// copied on assignment and never require a matching release.
func CString(s string) Value { return Value{Kind: KindCString, Str: s} }

// Macro returns a Value whose bytes are borrowed from inside block,
// which is retained for the lifetime of the Value.
func Macro(s string, block *Block) Value {
	if block != nil {
		block.Ref()
	}
	return Value{Kind: KindMacro, Str: s, Code: block}
}

// CodeValue returns a Value wrapping a retained reference to block.
func CodeValue(block *Block) Value {
	if block != nil {
		block.Ref()
	}
	return Value{Kind: KindCode, Code: block}
}

// IdentValue returns a Value naming an identifier by table index.
func IdentValue(index int) Value { return Value{Kind: KindIdent, Ident: index} }

// Retain returns an independent copy of v; for KindCode and KindMacro
// this bumps the backing block's refcount so both copies can be
// released independently.
func (v Value) Retain() Value {
	if v.Code != nil && (v.Kind == KindCode || v.Kind == KindMacro) {
		v.Code.Ref()
	}
	return v
}

// Release drops the reference a Code or Macro value holds on its
// backing block. It is a no-op for every other kind. Every Value of
// kind Code or Macro that is constructed through CodeValue, Macro, or
// Retain must have exactly one matching Release.
func (v Value) Release() {
	if v.Code != nil && (v.Kind == KindCode || v.Kind == KindMacro) {
		v.Code.Unref()
	}
}

// IsString reports whether v's payload is textual without needing a
// conversion (KindString, KindCString or KindMacro).
func (v Value) IsString() bool {
	switch v.Kind {
	case KindString, KindCString, KindMacro:
		return true
	}
	return false
}

// NumberFormats configures how numeric-to-string conversions render,
// mirroring the configurable printf-style formats of the original
// engine (cs_util.cc) rather than hard-coded literals.
type NumberFormats struct {
	Int        string // e.g. "%d"
	Float      string // e.g. "%.7g", used when the value has a fractional part
	RoundFloat string // e.g. "%.1f", used when the float has no fractional part
}

// DefaultNumberFormats returns the formats used when an Interpreter
// does not override them.
func DefaultNumberFormats() NumberFormats {
	return NumberFormats{Int: "%d", Float: "%.7g", RoundFloat: "%.1f"}
}

// ToString converts v to its textual representation using fmts for
// numeric kinds. KindNull becomes the empty string; KindIdent and
// KindCode (not decompiled) become the empty string as they have no
// useful textual form outside diagnostics.
func (v Value) ToString(fmts NumberFormats) string {
	switch v.Kind {
	case KindNull:
		return ""
	case KindInt:
		if fmts.Int != "" && fmts.Int != "%d" {
			return fmt.Sprintf(fmts.Int, v.I)
		}
		return strconv.FormatInt(v.I, 10)
	case KindFloat:
		return formatFloat(v.F, fmts)
	case KindString, KindCString, KindMacro:
		return v.Str
	default:
		return ""
	}
}

func formatFloat(f float64, fmts NumberFormats) string {
	if f == float64(int64(f)) {
		return sprintfFloat(fmts.RoundFloat, f)
	}
	return sprintfFloat(fmts.Float, f)
}

// sprintfFloat implements the small subset of printf verbs the number
// formats are expected to use (%f and %g with an optional precision),
// avoiding a fmt.Sprintf round-trip through reflection on the hot path.
func sprintfFloat(format string, f float64) string {
	verb := byte('g')
	prec := -1
	if n := len(format); n > 0 {
		verb = format[n-1]
		if n > 2 && format[0] == '%' {
			if p, err := strconv.Atoi(format[1 : n-1]); err == nil {
				prec = p
			} else if format[1] == '.' {
				if p, err := strconv.Atoi(format[2 : n-1]); err == nil {
					prec = p
				}
			}
		}
	}
	switch verb {
	case 'f', 'F':
		return strconv.FormatFloat(f, 'f', prec, 64)
	default:
		return strconv.FormatFloat(f, 'g', prec, 64)
	}
}

// ToInt converts v to an integer per the pairwise rules of §3: numeric
// kinds convert numerically, strings are parsed (see ParseNumberPrefix),
// everything else yields 0.
func (v Value) ToInt() int64 {
	switch v.Kind {
	case KindInt:
		return v.I
	case KindFloat:
		return int64(v.F)
	case KindString, KindCString, KindMacro:
		n, _, isFloat, consumed := ParseNumberPrefix(v.Str)
		if consumed == 0 {
			return 0
		}
		if isFloat {
			return int64(n)
		}
		return int64(n)
	default:
		return 0
	}
}

// ToFloat converts v to a float per the pairwise rules of §3.
func (v Value) ToFloat() float64 {
	switch v.Kind {
	case KindInt:
		return float64(v.I)
	case KindFloat:
		return v.F
	case KindString, KindCString, KindMacro:
		_, f, _, consumed := ParseNumberPrefix(v.Str)
		if consumed == 0 {
			return 0
		}
		return f
	default:
		return 0
	}
}

// ToBool applies the boolean coercion of §3: numeric nonzero is true; a
// string is true unless it parses cleanly to a zero integer or zero
// float; every other kind is false.
func (v Value) ToBool() bool {
	switch v.Kind {
	case KindInt:
		return v.I != 0
	case KindFloat:
		return v.F != 0
	case KindString, KindCString, KindMacro:
		s := strings.TrimSpace(v.Str)
		if s == "" {
			return false
		}
		_, f, _, consumed := ParseNumberPrefix(v.Str)
		if consumed == len([]byte(v.Str)) || consumedCleanly(v.Str, consumed) {
			return f != 0
		}
		return true
	default:
		return false
	}
}

// consumedCleanly reports whether the bytes left after consuming a
// number prefix are only trailing whitespace, i.e. the string "parses
// cleanly" as a number per §3's boolean-coercion rule.
func consumedCleanly(s string, consumed int) bool {
	if consumed == 0 {
		return false
	}
	return strings.TrimSpace(s[consumed:]) == ""
}
