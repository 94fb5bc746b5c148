package cmdsite

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"k8s.io/klog/v2"
)

type RunCommand func(name string, args []string, stdout, stderr io.Writer, env map[string]string) error

type CommandSite struct {
	RunCmd RunCommand

	Env map[string]string
}

type Option func(*CommandSite)

func RunCmd(cmdr RunCommand) Option {
	return func(s *CommandSite) {
		if cmdr != nil {
			s.RunCmd = cmdr
		}
	}
}

func New(opts ...Option) *CommandSite {
	s := &CommandSite{
		RunCmd: DefaultRunCommand,
		Env:    map[string]string{},
	}

	for _, o := range opts {
		o(s)
	}

	return s
}

// DefaultRunCommand runs the binary on the host, appending env to the current environment.
func DefaultRunCommand(name string, args []string, stdout, stderr io.Writer, env map[string]string) error {
	if _, err := exec.LookPath(name); err != nil {
		return err
	}

	cmd := exec.Command(name, args...)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	if len(env) > 0 {
		cmd.Env = os.Environ()
		for k, v := range env {
			cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, v))
		}
	}

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s %s: %w", name, strings.Join(args, " "), err)
	}

	return nil
}

func (s *CommandSite) RunCommand(cmd string, args []string, stdout, stderr io.Writer) error {
	return s.RunCmd(cmd, args, stdout, stderr, s.Env)
}

func (r *CommandSite) CaptureStrings(binary string, args []string) (string, string, error) {
	stdout, stderr, err := r.CaptureBytes(binary, args)

	var so, se string

	if stdout != nil {
		so = string(stdout)
	}

	if stderr != nil {
		se = string(stderr)
	}

	return so, se, err
}

func (r *CommandSite) CaptureBytes(binary string, args []string) ([]byte, []byte, error) {
	klog.V(1).Infof("running %s %s", binary, strings.Join(args, " "))

	var stdout, stderr bytes.Buffer
	err := r.RunCommand(binary, args, &stdout, &stderr)
	if err != nil {
		klog.V(1).Info(stderr.String())
	}
	return stdout.Bytes(), stderr.Bytes(), err
}
