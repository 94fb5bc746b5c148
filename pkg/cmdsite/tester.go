package cmdsite

import (
	"fmt"
	"io"
	"sort"
	"strings"
)

type CommandInput struct {
	Name string
	Args string
	Env  string
}

type CommandOutput struct {
	Stdout string
	Stderr string

	// Err makes the faked command fail after writing its output
	Err error
}

func NewInput(name string, args []string, env map[string]string) CommandInput {
	envs := []string{}
	for k, v := range env {
		envs = append(envs, fmt.Sprintf("%s=%s", k, v))
	}
	sort.Strings(envs)
	input := CommandInput{
		Name: name,
		Args: strings.Join(args, ","),
		Env:  strings.Join(envs, ","),
	}
	return input
}

// Recorder keeps every input a tester has seen, in order.
type Recorder struct {
	Inputs []CommandInput
}

func NewTester(expectations map[CommandInput]CommandOutput) RunCommand {
	return NewRecordingTester(expectations, nil)
}

func NewRecordingTester(expectations map[CommandInput]CommandOutput, rec *Recorder) RunCommand {
	return func(name string, args []string, stdout, stderr io.Writer, env map[string]string) error {
		input := NewInput(name, args, env)
		if rec != nil {
			rec.Inputs = append(rec.Inputs, input)
		}
		output, ok := expectations[input]
		if !ok {
			return fmt.Errorf("unexpected input: %v", input)
		}

		n, err := io.WriteString(stdout, output.Stdout)
		if err != nil {
			return err
		}

		if n != len(output.Stdout) {
			return fmt.Errorf("insufficient write stdout: wrote only %d of %d", n, len(output.Stdout))
		}

		n2, err := io.WriteString(stderr, output.Stderr)
		if err != nil {
			return err
		}

		if n2 != len(output.Stderr) {
			return fmt.Errorf("insufficient write to stderr: wrote only %d of %d", n2, len(output.Stderr))
		}

		return output.Err
	}
}
