package shell

import (
	"fmt"
	"io"
	"sort"
	"strings"
)

type FakeInput struct {
	Name string
	Args string
	Env  string
}

type FakeOutput struct {
	Stdout string
	Stderr string

	// ExitStatus other than zero makes the faked command fail
	ExitStatus int
}

func NewFakeInput(name string, args []string, env map[string]string) FakeInput {
	envs := []string{}
	for k, v := range env {
		envs = append(envs, fmt.Sprintf("%s=%s", k, v))
	}
	sort.Strings(envs)
	input := FakeInput{
		Name: name,
		Args: strings.Join(args, ","),
		Env:  strings.Join(envs, ","),
	}
	return input
}

func NewFake(expectations map[FakeInput]FakeOutput) Exec {
	return NewSequenceFake(func(in FakeInput, _ int) (FakeOutput, bool) {
		out, ok := expectations[in]
		return out, ok
	})
}

// NewSequenceFake answers each call through f, which also receives how many times the same
// input has been seen before. It is handy for faking retries.
func NewSequenceFake(f func(in FakeInput, seen int) (FakeOutput, bool)) Exec {
	seen := map[FakeInput]int{}

	return func(cmd *Command) Result {
		input := NewFakeInput(cmd.Name, cmd.Args, cmd.Env)
		output, ok := f(input, seen[input])
		seen[input]++
		if !ok {
			err := fmt.Errorf("unexpected input: %v", input)
			return Result{ExitStatus: 1, Error: err}
		}

		stdout, stderr := cmd.Stdout, cmd.Stderr
		if stdout == nil {
			stdout = io.Discard
		}
		if stderr == nil {
			stderr = io.Discard
		}

		n, err := io.WriteString(stdout, output.Stdout)
		if err != nil {
			return Result{ExitStatus: 1, Error: err}
		}

		if n != len(output.Stdout) {
			err := fmt.Errorf("insufficient write stdout: wrote only %d of %d", n, len(output.Stdout))
			return Result{ExitStatus: 1, Error: err}
		}

		n2, err := io.WriteString(stderr, output.Stderr)
		if err != nil {
			return Result{ExitStatus: 1, Error: err}
		}

		if n2 != len(output.Stderr) {
			err := fmt.Errorf("insufficient write to stderr: wrote only %d of %d", n2, len(output.Stderr))
			return Result{ExitStatus: 1, Error: err}
		}

		if output.ExitStatus != 0 {
			return Result{ExitStatus: output.ExitStatus, Error: fmt.Errorf("exit status %d", output.ExitStatus)}
		}

		return Result{ExitStatus: 0, Error: nil}
	}
}
