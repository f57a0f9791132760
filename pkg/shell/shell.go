// Package shell parses and executes command lines: pipelines built with
// os/exec, logical `&&`/`||` chaining with short-circuit evaluation,
// trailing output redirection, foreground/background execution, and the
// `cd`/`exit` built-ins, with reaping of background children.
package shell

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/olegmenkov/sysprog/internal/logger"
	"github.com/olegmenkov/sysprog/pkg/shell/parser"
)

// Shell is an interactive command executor. The zero value is not
// usable; construct one with New.
type Shell struct {
	prompt     string
	stdin      io.Reader
	stdout     io.Writer
	stderr     io.Writer
	background *processRegistry
}

// New constructs a Shell. backgroundFloor sets the initial/minimum
// capacity of the background process registry.
func New(prompt string, backgroundFloor int, stdin io.Reader, stdout, stderr io.Writer) *Shell {
	return &Shell{
		prompt:     prompt,
		stdin:      stdin,
		stdout:     stdout,
		stderr:     stderr,
		background: newProcessRegistry(backgroundFloor),
	}
}

// result is the outcome of running one pipeline segment.
type result struct {
	needExit   bool
	returnCode int
	bgPIDs     []int
	err        error
}

// Run drives the REPL: reads lines from stdin, executes each, and
// reaps completed background children between lines. It returns the
// last command's exit code.
func (s *Shell) Run() int {
	scanner := bufio.NewScanner(s.stdin)
	lastCode := 0

	fmt.Fprint(s.stdout, s.prompt)
	for scanner.Scan() {
		line := scanner.Text()

		exit, code, err := s.ExecuteLine(line)
		if err != nil {
			logger.Warn("shell: %v", err)
		}
		lastCode = code

		s.reapBackgroundNonBlocking()

		if exit {
			s.Close()
			return code
		}

		fmt.Fprint(s.stdout, s.prompt)
	}

	s.Close()
	return lastCode
}

// ExecuteLine parses and runs one line, evaluating any `&&`/`||` chain
// with short-circuit semantics.
func (s *Shell) ExecuteLine(line string) (exit bool, code int, err error) {
	cmdLine, perr := parser.Parse(line)
	if perr != nil {
		return false, 1, perr
	}
	if cmdLine == nil {
		return false, 0, nil
	}

	runSegment := func(segmentHead *parser.Expression, end *parser.Expression) result {
		atEnd := end == nil
		outFile, outType := "", parser.Stdout
		if atEnd {
			outFile, outType = cmdLine.OutFile, cmdLine.OutType
		}
		shouldWait := !atEnd || !cmdLine.IsBackground
		res := s.executePipeline(segmentHead, outFile, outType, shouldWait)
		s.trackBackground(res.bgPIDs)
		return res
	}

	expr := cmdLine.Head
	for expr != nil && !parser.IsOperator(expr) {
		expr = expr.Next
	}
	res := runSegment(cmdLine.Head, expr)
	if res.needExit {
		return true, res.returnCode, res.err
	}

	for expr != nil {
		opType := expr.Type
		expr = expr.Next

		if (opType == parser.And && res.returnCode == 0) || (opType == parser.Or && res.returnCode != 0) {
			segmentHead := expr
			for expr != nil && !parser.IsOperator(expr) {
				expr = expr.Next
			}
			res = runSegment(segmentHead, expr)
			if res.needExit {
				return true, res.returnCode, res.err
			}
		}
	}

	return false, res.returnCode, res.err
}

func (s *Shell) trackBackground(pids []int) {
	for _, pid := range pids {
		s.background.Register(pid)
	}
}

// executePipeline runs one maximal run of piped commands, wiring each
// command's stdout to the next's stdin. When shouldWait is false, the
// pipeline's PIDs are returned for the caller to track instead of being
// waited on here.
func (s *Shell) executePipeline(head *parser.Expression, outFile string, outType parser.OutputType, shouldWait bool) result {
	if head == nil {
		return result{returnCode: 1}
	}

	registry := newProcessRegistry(10)

	var prevReader *os.File // read end of the previous stage's pipe, owned by us until handed off

	expr := head

	for expr != nil && !parser.IsOperator(expr) {
		if expr.Type != parser.Command {
			expr = expr.Next
			continue
		}

		terminal := parser.IsTerminal(expr)

		if expr.Exe == "cd" && registry.Len() == 0 && terminal {
			if err := s.changeDirectory(expr); err != nil {
				serr := wrapf("cd", "failed to change directory", err)
				fmt.Fprintln(s.stderr, serr)
				return result{returnCode: 1, err: serr}
			}
			expr = expr.Next
			continue
		}

		if expr.Exe == "exit" && (expr.Next == nil || parser.IsOperator(expr.Next)) {
			isSingle := registry.Len() == 0
			registry.WaitAndFree(s.waitPID)

			code := 0
			if len(expr.Args) != 0 {
				if v, err := strconv.Atoi(expr.Args[0]); err == nil {
					code = v
				}
			}
			// needExit only propagates when exit was the pipeline's
			// first command: "cmd | exit" reaps cmd's children but
			// keeps the shell running, matching a pipeline's terminal
			// stage never controlling the parent process's lifetime.
			return result{needExit: isSingle, returnCode: code}
		}

		cmd := exec.Command(expr.Exe, expr.Args...)
		cmd.SysProcAttr = &unix.SysProcAttr{Setpgid: true}
		cmd.Stderr = s.stderr

		var devNull *os.File
		switch {
		case prevReader != nil:
			cmd.Stdin = prevReader
		case !shouldWait:
			// The first stage of a background pipeline must not inherit
			// the shell's own stdin: it would race the REPL's
			// bufio.Scanner for terminal input.
			f, err := os.Open(os.DevNull)
			if err != nil {
				serr := wrapf("stdin", "failed to open "+os.DevNull, err)
				fmt.Fprintln(s.stderr, serr)
				return result{returnCode: 1, err: serr}
			}
			cmd.Stdin = f
			devNull = f
		default:
			cmd.Stdin = s.stdin
		}

		var nextReader, pipeWriter *os.File
		var closeOut func()

		if !terminal {
			r, w, err := os.Pipe()
			if err != nil {
				serr := wrapf("pipe", "failed to create pipe", err)
				fmt.Fprintln(s.stderr, serr)
				return result{returnCode: 1, err: serr}
			}
			cmd.Stdout = w
			nextReader, pipeWriter = r, w
		} else {
			out, closer, err := s.resolveOutput(outFile, outType)
			if err != nil {
				serr := wrapf("redirect", "failed to open "+outFile, err)
				fmt.Fprintln(s.stderr, serr)
				return result{returnCode: 1, err: serr}
			}
			cmd.Stdout = out
			closeOut = closer
		}

		startErr := cmd.Start()

		// The child now holds its own copy of every fd it needs; close
		// the parent's copies of the previous stage's read end and this
		// stage's write end.
		if prevReader != nil {
			prevReader.Close()
		}
		if pipeWriter != nil {
			pipeWriter.Close()
		}
		if closeOut != nil {
			closeOut()
		}
		if devNull != nil {
			devNull.Close()
		}

		if startErr != nil {
			serr := wrapf("exec", "failed to start "+expr.Exe, startErr)
			fmt.Fprintln(s.stderr, serr)
			return result{returnCode: 1, err: serr}
		}

		registry.Register(cmd.Process.Pid)
		prevReader = nextReader
		expr = expr.Next
	}

	if !shouldWait {
		pids := make([]int, registry.Len())
		copy(pids, registry.pids)
		registry.Close()
		return result{bgPIDs: pids}
	}

	return result{returnCode: registry.WaitAndFree(s.waitPID)}
}

func (s *Shell) resolveOutput(outFile string, outType parser.OutputType) (io.Writer, func(), error) {
	if outFile == "" {
		return s.stdout, nil, nil
	}

	flags := os.O_CREATE | os.O_WRONLY
	if outType == parser.FileAppend {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}

	f, err := os.OpenFile(outFile, flags, 0644)
	if err != nil {
		return nil, nil, err
	}
	return f, func() { f.Close() }, nil
}

func (s *Shell) changeDirectory(expr *parser.Expression) error {
	if len(expr.Args) != 1 {
		return fmt.Errorf("expected exactly one argument")
	}
	return os.Chdir(expr.Args[0])
}

func (s *Shell) waitPID(pid int) (int, bool) {
	var ws syscall.WaitStatus
	_, err := syscall.Wait4(pid, &ws, 0, nil)
	if err != nil {
		return 0, false
	}
	if ws.Exited() {
		return ws.ExitStatus(), true
	}
	return 0, false
}

// reapBackgroundNonBlocking sweeps tracked background PIDs without
// blocking, matching the mid-session reap policy: every completed line
// triggers one WNOHANG pass.
func (s *Shell) reapBackgroundNonBlocking() {
	s.background.CheckCompleted(func(pid int) bool {
		var ws syscall.WaitStatus
		wpid, err := syscall.Wait4(pid, &ws, syscall.WNOHANG, nil)
		reaped := err == nil && wpid == pid
		if reaped {
			logger.DebugFields(logger.Fields{"pid": pid}, "shell: background job reaped")
		}
		return reaped
	})
}

// Close performs one final blocking reap of every still-tracked
// background child, then releases the registry. Call this once, after
// the REPL's input loop ends.
func (s *Shell) Close() {
	s.background.WaitAndFree(s.waitPID)
}
