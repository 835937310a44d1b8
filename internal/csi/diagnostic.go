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

package csi

import "strconv"

// FormatDiagnostic renders an engine diagnostic per §6: "<file>:<line>:
// <message>" when both a source name and a line are known, "<line>:
// <message>" when only the line is, and the bare message otherwise.
func FormatDiagnostic(sourceName string, line int, msg string) string {
	switch {
	case sourceName != "" && line > 0:
		return sourceName + ":" + strconv.Itoa(line) + ": " + msg
	case line > 0:
		return strconv.Itoa(line) + ": " + msg
	default:
		return msg
	}
}
