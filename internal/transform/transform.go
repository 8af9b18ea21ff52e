// Package transform invokes external optimiser binaries over a temp-file
// round trip. Tools like jpegoptim and optipng rewrite a file in place, so
// the input bytes are written to a temp file, the tool runs against it, and
// the file is read back as the candidate output.
//
// A failed invocation is an ordinary error return, never a panic; callers
// treat it as "no improvement found".
package transform

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/rs/zerolog"

	opterrors "github.com/lebinh/s3opt/errors"
)

// Tool describes one external optimiser invocation.
type Tool struct {
	// Path is the binary name, resolved via PATH
	Path string

	// Args are the fixed arguments; the temp file path is appended last
	Args []string

	// Suffix is the temp file suffix, kept because some tools dispatch on
	// the file extension
	Suffix string
}

// Runner produces candidate optimised bytes for an input buffer.
type Runner interface {
	// Optimise runs tool over input and returns the tool's output bytes.
	// Any failure (missing binary, nonzero exit, IO error) is returned as
	// an error wrapping errors.ErrTransformFailed.
	Optimise(ctx context.Context, input []byte, tool Tool) ([]byte, error)
}

// Exec is the subprocess-backed Runner.
type Exec struct {
	log zerolog.Logger
}

// NewExec creates a Runner that shells out to the named binaries.
func NewExec(log zerolog.Logger) *Exec {
	return &Exec{log: log}
}

// Optimise implements Runner via a temp-file round trip.
func (e *Exec) Optimise(ctx context.Context, input []byte, tool Tool) ([]byte, error) {
	f, err := os.CreateTemp("", "s3opt-*"+tool.Suffix)
	if err != nil {
		return nil, opterrors.NewError("transform", opterrors.ErrTransformFailed).
			WithMessage("creating temp file: " + err.Error())
	}
	path := f.Name()
	defer os.Remove(path)

	if _, err := f.Write(input); err != nil {
		f.Close()
		return nil, opterrors.NewError("transform", opterrors.ErrTransformFailed).
			WithMessage("writing temp file: " + err.Error())
	}
	if err := f.Close(); err != nil {
		return nil, opterrors.NewError("transform", opterrors.ErrTransformFailed).
			WithMessage("closing temp file: " + err.Error())
	}

	args := make([]string, 0, len(tool.Args)+1)
	args = append(args, tool.Args...)
	args = append(args, path)

	cmd := exec.CommandContext(ctx, tool.Path, args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		exitCode := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		}
		e.log.Debug().
			Str("tool", tool.Path).
			Int("exit", exitCode).
			Str("stderr", strings.TrimSpace(stderr.String())).
			Msg("optimiser invocation failed")
		return nil, opterrors.NewError("transform", opterrors.ErrTransformFailed).
			WithMessage(fmt.Sprintf("%s: %v", tool.Path, err))
	}

	out, err := os.ReadFile(path)
	if err != nil {
		return nil, opterrors.NewError("transform", opterrors.ErrTransformFailed).
			WithMessage("reading tool output: " + err.Error())
	}

	e.log.Debug().
		Str("tool", tool.Path).
		Int("in", len(input)).
		Int("out", len(out)).
		Msg("optimiser finished")

	return out, nil
}
