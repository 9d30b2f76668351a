// Package conformance runs finished packages through an external 3MF
// engine and reports its verdict. The engine is opaque: this package only
// hands it bytes and translates success or failure into a Result.
package conformance

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// Diagnostic codes.
const (
	CodeReadFailure    = 100
	CodeRuntimeFailure = 999
)

// Diagnostic contexts.
const (
	ContextReadFailure    = "Failed to read/parse 3MF file"
	ContextRuntimeFailure = "oracle initialization or runtime error"
)

// PassedWarning is recorded when the engine accepts a package.
const PassedWarning = "File passed structural validation"

// ErrUnavailable is wrapped by oracle errors that concern the engine
// itself rather than the package.
var ErrUnavailable = errors.New("oracle unavailable")

// Oracle reads a package with a 3MF engine. Read returns nil when the
// engine accepted the package.
type Oracle interface {
	Read(ctx context.Context, pkg []byte) error
}

// OracleFunc adapts a function to Oracle.
type OracleFunc func(ctx context.Context, pkg []byte) error

// Read calls f.
func (f OracleFunc) Read(ctx context.Context, pkg []byte) error {
	return f(ctx, pkg)
}

// Diagnostic is one oracle error.
type Diagnostic struct {
	Code    int    `yaml:"code"`
	Message string `yaml:"message"`
	Context string `yaml:"context,omitempty"`
}

// Result is the oracle verdict for one package.
type Result struct {
	OK       bool         `yaml:"ok"`
	Errors   []Diagnostic `yaml:"errors"`
	Warnings []string     `yaml:"warnings"`
}

// Run feeds pkg to the oracle. A rejected package yields code 100; an
// oracle that fails on its own, panics or is cancelled yields code 999.
func Run(ctx context.Context, o Oracle, pkg []byte) (result Result) {
	defer func() {
		if r := recover(); r != nil {
			result = failed(CodeRuntimeFailure, fmt.Sprint(r), ContextRuntimeFailure)
		}
	}()

	err := o.Read(ctx, pkg)
	switch {
	case err == nil:
		return Result{OK: true, Warnings: []string{PassedWarning}}
	case errors.Is(err, ErrUnavailable), errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return failed(CodeRuntimeFailure, err.Error(), ContextRuntimeFailure)
	default:
		return failed(CodeReadFailure, err.Error(), ContextReadFailure)
	}
}

func failed(code int, message, where string) Result {
	return Result{Errors: []Diagnostic{{Code: code, Message: message, Context: where}}}
}

// Format renders a result as human-readable text.
func Format(r Result) string {
	var lines []string
	if r.OK {
		lines = append(lines, "✓ 3MF file is valid")
	} else {
		lines = append(lines, "✗ 3MF validation failed")
	}
	if len(r.Errors) > 0 {
		lines = append(lines, "", "Errors:")
		for _, e := range r.Errors {
			lines = append(lines, fmt.Sprintf("  [%d] %s", e.Code, e.Message))
			if e.Context != "" {
				lines = append(lines, "       "+e.Context)
			}
		}
	}
	if len(r.Warnings) > 0 {
		lines = append(lines, "", "Warnings:")
		for _, w := range r.Warnings {
			lines = append(lines, "  - "+w)
		}
	}
	return strings.Join(lines, "\n")
}

// Command is an oracle backed by an external program. The package is
// written to a temporary file whose path is appended to Args. A non-zero
// exit rejects the package with the program's stderr as message; failing
// to start the program is reported as ErrUnavailable.
type Command struct {
	Path string
	Args []string
}

// Read implements Oracle.
func (c Command) Read(ctx context.Context, pkg []byte) error {
	f, err := os.CreateTemp("", "oracle-*.3mf")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer os.Remove(f.Name())
	if _, err := f.Write(pkg); err != nil {
		f.Close()
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	args := append(append([]string(nil), c.Args...), f.Name())
	cmd := exec.CommandContext(ctx, c.Path, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	err = cmd.Run()
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	msg := strings.TrimSpace(stderr.String())
	if msg == "" {
		msg = exitErr.Error()
	}
	return errors.New(msg)
}
