package shell

import (
	"testing"
)

func TestCombined(t *testing.T) {
	sh := Shell{
		Exec: DefaultExec,
	}

	hello := &Command{
		Name: "sh",
		Args: []string{"-c", "echo hello; echo err1 1>&2"},
	}

	out, res := sh.Combined(hello)

	if res.Error != nil {
		t.Fatalf("unexpected error: %v", res.Error)
	}

	if res.ExitStatus != 0 {
		t.Errorf("unexpected exit status: expected=0, got=%d", res.ExitStatus)
	}

	expected := "hello\nerr1"
	if out != expected {
		t.Errorf("unexpected output: expected=%q, got=%q", expected, out)
	}
}

func TestDefaultExec_ExitStatus(t *testing.T) {
	res := DefaultExec(&Command{Name: "sh", Args: []string{"-c", "exit 3"}})

	if res.ExitStatus != 3 {
		t.Errorf("unexpected exit status: expected=3, got=%d", res.ExitStatus)
	}

	if res.Error == nil {
		t.Error("expected an error")
	}
}

func TestDefaultExec_Dir(t *testing.T) {
	dir := t.TempDir()

	sh := Shell{Exec: DefaultExec}
	out, res := sh.Combined(&Command{Name: "sh", Args: []string{"-c", "pwd -P"}, Dir: dir})
	if res.Error != nil {
		t.Fatal(res.Error)
	}

	if out == "" {
		t.Error("expected pwd to print the working directory")
	}
}

func TestSequenceFake(t *testing.T) {
	exec := NewSequenceFake(func(in FakeInput, seen int) (FakeOutput, bool) {
		if in.Name != "tool" {
			return FakeOutput{}, false
		}
		if seen == 0 {
			return FakeOutput{Stdout: "429 Too Many Requests", ExitStatus: 1}, true
		}
		return FakeOutput{Stdout: "ok"}, true
	})

	sh := Shell{Exec: exec}

	out, res := sh.Combined(&Command{Name: "tool"})
	if res.ExitStatus != 1 || out != "429 Too Many Requests" {
		t.Errorf("unexpected first result: %q %+v", out, res)
	}

	out, res = sh.Combined(&Command{Name: "tool"})
	if res.ExitStatus != 0 || out != "ok" {
		t.Errorf("unexpected second result: %q %+v", out, res)
	}

	_, res = sh.Combined(&Command{Name: "other"})
	if res.Error == nil {
		t.Error("expected unexpected input error")
	}
}
