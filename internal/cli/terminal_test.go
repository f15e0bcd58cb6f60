package cli

import (
	"os"
	"testing"

	"golang.org/x/term"
)

type mockTerminalDetector struct {
	interactive bool
	checked     []int
}

func (m *mockTerminalDetector) IsTerminal(fd int) bool {
	m.checked = append(m.checked, fd)
	return m.interactive
}

func TestIsInteractiveTerminal(t *testing.T) {
	cli := NewCLI()

	for _, fd := range []int{int(os.Stdin.Fd()), int(os.Stdout.Fd()), int(os.Stderr.Fd())} {
		result := cli.isInteractiveTerminal(fd)
		expected := term.IsTerminal(fd)
		if result != expected {
			t.Errorf("Expected isInteractiveTerminal(%d) to return %v, got %v", fd, expected, result)
		}
	}
}

func TestIsInteractiveTerminalInvalidFd(t *testing.T) {
	cli := NewCLI()

	if cli.isInteractiveTerminal(-1) {
		t.Error("Expected invalid fd to return false")
	}
}

func TestIsInteractiveTerminalUsesDetector(t *testing.T) {
	cli := NewCLI()
	detector := &mockTerminalDetector{interactive: true}
	cli.terminalDetector = detector

	if !cli.isInteractiveTerminal(2) {
		t.Error("Expected the injected detector to be consulted")
	}
	if len(detector.checked) != 1 || detector.checked[0] != 2 {
		t.Errorf("Expected one check of fd 2, got %v", detector.checked)
	}
}
