// Package executor launches external tools by argument vector.
//
// Every external call in the pipeline (msbuild.bat, symstore.exe, git) goes
// through the Executor interface so the sequencing logic can be exercised
// with a recording fake instead of real tools.
package executor

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/fatih/color"
)

// Command describes one external process invocation.
type Command struct {
	// Path is the program to run.
	Path string

	// Args are passed verbatim; no shell is involved.
	Args []string

	// Dir is the working directory. Empty means the current directory.
	Dir string

	// Env holds extra KEY=VALUE pairs layered over the parent environment
	// for this process only.
	Env []string
}

// String renders the command line for display. Arguments containing
// whitespace are quoted.
func (c Command) String() string {
	parts := make([]string, 0, len(c.Args)+1)
	parts = append(parts, quote(c.Path))
	for _, a := range c.Args {
		parts = append(parts, quote(a))
	}
	return strings.Join(parts, " ")
}

func quote(s string) string {
	if s == "" || strings.ContainsAny(s, " \t") {
		return strconv.Quote(s)
	}
	return s
}

// ExitError reports a process that ran to completion with a non-zero status.
type ExitError struct {
	Command Command
	Status  int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("%s: exit status %d", e.Command.Path, e.Status)
}

// Executor runs external commands synchronously.
type Executor interface {
	// Run blocks until the command exits, streaming its combined output
	// line by line. A non-zero status is returned as *ExitError.
	Run(ctx context.Context, cmd Command) error

	// Output blocks until the command exits and returns its stdout.
	// A non-zero status is returned as *ExitError.
	Output(ctx context.Context, cmd Command) ([]byte, error)
}

// Exec is the Executor backed by os/exec.
type Exec struct {
	out    io.Writer
	banner *color.Color
}

// New returns an Exec that streams process output to out.
func New(out io.Writer) *Exec {
	return &Exec{
		out:    out,
		banner: color.New(color.FgCyan),
	}
}

// Run implements Executor.
func (e *Exec) Run(ctx context.Context, c Command) error {
	dir := c.Dir
	if dir == "" {
		dir = "."
	}
	e.banner.Fprintln(e.out, dir)
	e.banner.Fprintln(e.out, c.String())

	cmd := e.command(ctx, c)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("pipe %s: %w", c.Path, err)
	}
	cmd.Stderr = cmd.Stdout

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", c.Path, err)
	}

	readErr := e.stream(stdout)

	if err := wait(cmd, c); err != nil {
		return err
	}
	if readErr != nil {
		return fmt.Errorf("read output of %s: %w", c.Path, readErr)
	}
	return nil
}

// stream copies r to e.out line by line, trimming trailing whitespace.
// Lines have no length cap. On a read error the pipe is drained so the
// child can never block on a full pipe.
func (e *Exec) stream(r io.Reader) error {
	br := bufio.NewReader(r)
	for {
		line, err := br.ReadString('\n')
		if line != "" {
			fmt.Fprintln(e.out, strings.TrimRight(line, " \t\r\n"))
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			_, _ = io.Copy(io.Discard, r)
			return err
		}
	}
}

// Output implements Executor.
func (e *Exec) Output(ctx context.Context, c Command) ([]byte, error) {
	var stdout, stderr bytes.Buffer
	cmd := e.command(ctx, c)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", c.Path, err)
	}
	if err := wait(cmd, c); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return stdout.Bytes(), fmt.Errorf("%w (stderr: %s)", err, msg)
		}
		return stdout.Bytes(), err
	}
	return stdout.Bytes(), nil
}

func (e *Exec) command(ctx context.Context, c Command) *exec.Cmd {
	cmd := exec.CommandContext(ctx, c.Path, c.Args...)
	cmd.Dir = c.Dir
	if len(c.Env) > 0 {
		cmd.Env = append(os.Environ(), c.Env...)
	}
	return cmd
}

func wait(cmd *exec.Cmd, c Command) error {
	err := cmd.Wait()
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return &ExitError{Command: c, Status: exitErr.ExitCode()}
	}
	return fmt.Errorf("wait %s: %w", c.Path, err)
}

// Status extracts the exit status from err. It returns 0 for nil and -1
// for errors that did not come from a completed process.
func Status(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Status
	}
	return -1
}
