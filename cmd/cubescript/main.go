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

package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/pkg/errors"

	"github.com/cubescript-lang/cubescript/internal/csi"
	"github.com/cubescript-lang/cubescript/lang/cubescript"
	"github.com/cubescript-lang/cubescript/vm"
)

var (
	noRawIO bool
	evalExp string
)

// registerDemoCommands wires a couple of trivial host commands purely
// to exercise the registration contract end to end from the CLI.
func registerDemoCommands(it *cubescript.Interpreter) error {
	if err := it.RegisterCommand("echo", "C", false, func(in *vm.Interpreter, args []vm.Value, result *vm.Value) {
		fmt.Println(args[0].ToString(in.Formats))
		*result = args[0].Retain()
	}); err != nil {
		return err
	}
	return it.RegisterCommand("add", "ii", false, func(in *vm.Interpreter, args []vm.Value, result *vm.Value) {
		*result = vm.Int(args[0].ToInt() + args[1].ToInt())
	})
}

func atExit(err error) {
	if err == nil {
		return
	}
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}

func main() {
	var err error
	defer func() { atExit(err) }()

	flag.BoolVar(&noRawIO, "noraw", false, "disable raw terminal IO for the interactive REPL")
	flag.StringVar(&evalExp, "e", "", "evaluate `expr` and print its result instead of starting a REPL")
	debug := flag.Bool("debug", false, "print engine diagnostics to stderr")
	flag.Parse()

	out := csi.NewErrWriter(os.Stdout)

	it, ierr := cubescript.New(cubescript.WithReporter(func(msg string) {
		if *debug {
			fmt.Fprintln(os.Stderr, msg)
		}
	}))
	if ierr != nil {
		err = errors.Wrap(ierr, "creating interpreter")
		return
	}
	if err = registerDemoCommands(it); err != nil {
		err = errors.Wrap(err, "registering demo commands")
		return
	}

	if evalExp != "" {
		var s string
		s, err = it.RunString(evalExp)
		if err != nil {
			return
		}
		fmt.Fprintln(out, s)
		return
	}

	args := flag.Args()
	if len(args) > 0 {
		for _, path := range args {
			var s string
			s, err = it.RunFile(path)
			if err != nil {
				return
			}
			if s != "" {
				fmt.Fprintln(out, s)
			}
		}
		return
	}

	err = repl(it, out)
}

// repl drives an interactive read-eval-print loop. When stdin is a
// terminal and raw IO is available, it reads one byte at a time so it
// can handle backspace and Ctrl-D itself; otherwise it falls back to
// ordinary line-buffered reads.
func repl(it *cubescript.Interpreter, out *csi.ErrWriter) error {
	var tearDown func()
	if !noRawIO {
		if fn, rerr := setRawIO(); rerr == nil {
			tearDown = fn
		}
	}
	if tearDown != nil {
		defer tearDown()
	}

	fmt.Fprint(out, "> ")
	var line string
	var err error
	if tearDown != nil {
		line, err = readRawLine(os.Stdin, out)
	} else {
		line, err = readBufferedLine(os.Stdin)
	}
	for err == nil {
		if line != "" {
			s, rerr := it.RunString(line)
			if rerr != nil {
				fmt.Fprintln(os.Stderr, rerr)
			} else if s != "" {
				fmt.Fprintln(out, s)
			}
		}
		fmt.Fprint(out, "> ")
		if tearDown != nil {
			line, err = readRawLine(os.Stdin, out)
		} else {
			line, err = readBufferedLine(os.Stdin)
		}
	}
	fmt.Fprintln(out)
	if err == io.EOF {
		return nil
	}
	return err
}

func readBufferedLine(r io.Reader) (string, error) {
	sc := bufio.NewScanner(r)
	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return sc.Text(), nil
}

// readRawLine reads a line from a raw-mode terminal, echoing input and
// handling backspace (0x7f/0x08) and Ctrl-D (0x04) manually since the
// terminal's own line discipline is disabled.
func readRawLine(r io.Reader, out *csi.ErrWriter) (string, error) {
	var buf []byte
	b := make([]byte, 1)
	for {
		n, err := r.Read(b)
		if n == 0 && err != nil {
			return "", err
		}
		switch b[0] {
		case '\r', '\n':
			fmt.Fprintln(out)
			return string(buf), nil
		case 0x7f, 0x08:
			if len(buf) > 0 {
				buf = buf[:len(buf)-1]
				out.Write([]byte{'\b', ' ', '\b'})
			}
		case 0x04:
			if len(buf) == 0 {
				return "", io.EOF
			}
		default:
			buf = append(buf, b[0])
			out.Write(b)
		}
	}
}
