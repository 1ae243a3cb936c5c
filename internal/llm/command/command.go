// Package command implements triage.Provider by running an external model
// runtime, such as `ollama run llama3.2`, with the prompt on stdin.
package command

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// maxStderr caps how much stderr is quoted back in errors.
const maxStderr = 512

// Runner executes one command line per prompt.
type Runner struct {
	name string
	args []string
}

// New parses a whitespace separated command line. Quoting is not supported.
func New(cmdline string) (*Runner, error) {
	fields := strings.Fields(cmdline)
	if len(fields) == 0 {
		return nil, errors.New("command backend: empty command line")
	}
	return &Runner{name: fields[0], args: fields[1:]}, nil
}

// String returns the command line.
func (r *Runner) String() string {
	return strings.Join(append([]string{r.name}, r.args...), " ")
}

// Generate runs the command, writes prompt to its stdin and returns stdout
// with surrounding whitespace removed. The process is killed when ctx ends.
func (r *Runner) Generate(ctx context.Context, prompt string) (string, error) {
	cmd := exec.CommandContext(ctx, r.name, r.args...) // #nosec G204 - command line comes from operator config
	cmd.Stdin = strings.NewReader(prompt)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", fmt.Errorf("%s: %w", r.name, ctxErr)
		}
		msg := strings.TrimSpace(stderr.String())
		if len(msg) > maxStderr {
			msg = msg[:maxStderr]
		}
		if msg != "" {
			return "", fmt.Errorf("%s: %w: %s", r.name, err, msg)
		}
		return "", fmt.Errorf("%s: %w", r.name, err)
	}
	return strings.TrimSpace(stdout.String()), nil
}
