package shell

import (
	"bytes"
	"os"
	"strings"
)

type Shell struct {
	Exec Exec
}

// Wait runs the command and wait until it returns
func (s *Shell) Wait(cmd *Command) Result {
	return s.Exec(cmd)
}

// Interact runs the command interactively, inheriting os.(Stdin|Stdout|Stderr) to the command
func (s *Shell) Interact(cmd *Command) Result {
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return s.Exec(cmd)
}

// Combined runs the command and returns stdout and stderr joined, the way a tool that
// reports errors on stdout is best read.
func (s *Shell) Combined(cmd *Command) (string, Result) {
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	res := s.Exec(cmd)

	var parts []string
	for _, p := range []string{stdout.String(), stderr.String()} {
		if strings.TrimSpace(p) != "" {
			parts = append(parts, strings.TrimRight(p, "\n"))
		}
	}

	return strings.Join(parts, "\n"), res
}
