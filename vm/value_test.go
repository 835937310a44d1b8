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

import "testing"

func TestValueToString(t *testing.T) {
	fmts := DefaultNumberFormats()
	cases := []struct {
		v    Value
		want string
	}{
		{Null(), ""},
		{Int(42), "42"},
		{Int(-7), "-7"},
		{Float(2), "2.0"},
		{Float(2.5), "2.5"},
		{String("hi"), "hi"},
		{CString("hi"), "hi"},
	}
	for _, c := range cases {
		if got := c.v.ToString(fmts); got != c.want {
			t.Errorf("ToString(%+v) = %q, want %q", c.v, got, c.want)
		}
	}
}

func TestValueToBool(t *testing.T) {
	cases := []struct {
		v    Value
		want bool
	}{
		{Int(0), false},
		{Int(1), true},
		{Float(0), false},
		{String(""), false},
		{String("0"), false},
		{String("0.0"), false},
		{String("abc"), true},
		{String("1"), true},
		{Null(), false},
	}
	for _, c := range cases {
		if got := c.v.ToBool(); got != c.want {
			t.Errorf("ToBool(%+v) = %v, want %v", c.v, got, c.want)
		}
	}
}

func TestParseNumberPrefix(t *testing.T) {
	cases := []struct {
		in        string
		wantInt   int64
		wantFloat bool
		consumed  int
	}{
		{"123", 123, false, 3},
		{"-123", -123, false, 4},
		{"0x1F", 31, false, 4},
		{"0b101", 5, false, 5},
		{"3.14abc", 0, true, 4},
		{"nope", 0, false, 0},
	}
	for _, c := range cases {
		i, _, isFloat, consumed := ParseNumberPrefix(c.in)
		if consumed != c.consumed {
			t.Errorf("ParseNumberPrefix(%q) consumed = %d, want %d", c.in, consumed, c.consumed)
		}
		if !c.wantFloat && i != c.wantInt {
			t.Errorf("ParseNumberPrefix(%q) int = %d, want %d", c.in, i, c.wantInt)
		}
		if isFloat != c.wantFloat {
			t.Errorf("ParseNumberPrefix(%q) isFloat = %v, want %v", c.in, isFloat, c.wantFloat)
		}
	}
}

func TestBlockRefcounting(t *testing.T) {
	freed := false
	b := NewBlock(nil, nil)
	b.onFree = func() { freed = true }
	b.Ref()
	if b.RefCount() != 2 {
		t.Fatalf("RefCount = %d, want 2", b.RefCount())
	}
	b.Unref()
	if freed {
		t.Fatal("block freed before last reference dropped")
	}
	b.Unref()
	if !freed {
		t.Fatal("block not freed after last reference dropped")
	}
}
