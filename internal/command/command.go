// Package command runs external programs (the measurement engine and the KPI
// validation scripts) behind an interface that tests can replace.
package command

import (
	"context"
	"os/exec"
	"strings"
	"sync"
	"time"
)

// waitDelay bounds how long Run waits for output pipes after the process is
// killed, in case a grandchild keeps them open.
const waitDelay = 5 * time.Second

// CommandExecutor runs one prepared command.
type CommandExecutor interface {
	// Run executes the command and returns the combined output (stdout+stderr).
	Run() ([]byte, error)

	// String returns the command line for logging.
	String() string
}

// CommandBuilder prepares commands bound to a context. Cancelling the context
// kills the running process.
type CommandBuilder interface {
	BuildCommand(ctx context.Context, name string, args ...string) CommandExecutor
}

// RealCommandExecutor wraps exec.Cmd to implement CommandExecutor.
type RealCommandExecutor struct {
	cmd *exec.Cmd
}

// Run executes the command and returns combined output.
func (r *RealCommandExecutor) Run() ([]byte, error) {
	return r.cmd.CombinedOutput()
}

func (r *RealCommandExecutor) String() string {
	return r.cmd.String()
}

// RealCommandBuilder implements CommandBuilder using exec.CommandContext.
type RealCommandBuilder struct {
	// Dir, when set, is the working directory of every built command.
	Dir string
}

// NewRealCommandBuilder creates a new RealCommandBuilder.
func NewRealCommandBuilder() *RealCommandBuilder {
	return &RealCommandBuilder{}
}

// BuildCommand creates a CommandExecutor for the given command and arguments.
func (b *RealCommandBuilder) BuildCommand(ctx context.Context, name string, args ...string) CommandExecutor {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = b.Dir
	cmd.WaitDelay = waitDelay
	return &RealCommandExecutor{cmd: cmd}
}

// MockCommandExecutor implements CommandExecutor for testing.
type MockCommandExecutor struct {
	// Output is the output to return from Run.
	Output []byte
	// Err is the error to return from Run.
	Err error
	// RunCalled indicates whether Run was called.
	RunCalled bool

	line string
}

// Run returns the configured output and error.
func (m *MockCommandExecutor) Run() ([]byte, error) {
	m.RunCalled = true
	return m.Output, m.Err
}

func (m *MockCommandExecutor) String() string { return m.line }

// MockBuiltCommand records details of a built command.
type MockBuiltCommand struct {
	Name string
	Args []string
}

// MockCommandBuilder implements CommandBuilder for testing. It is safe for
// concurrent use so it can stand in for the engine under a worker pool.
type MockCommandBuilder struct {
	mu       sync.Mutex
	commands []MockBuiltCommand

	// ExecutorFactory creates the executor for each built command. When nil
	// every command succeeds with no output.
	ExecutorFactory func(name string, args []string) *MockCommandExecutor
}

// NewMockCommandBuilder creates a new MockCommandBuilder.
func NewMockCommandBuilder(factory func(name string, args []string) *MockCommandExecutor) *MockCommandBuilder {
	return &MockCommandBuilder{ExecutorFactory: factory}
}

// BuildCommand records the command and returns the factory's executor.
func (b *MockCommandBuilder) BuildCommand(_ context.Context, name string, args ...string) CommandExecutor {
	b.mu.Lock()
	b.commands = append(b.commands, MockBuiltCommand{Name: name, Args: append([]string(nil), args...)})
	b.mu.Unlock()

	var e *MockCommandExecutor
	if b.ExecutorFactory != nil {
		e = b.ExecutorFactory(name, args)
	}
	if e == nil {
		e = &MockCommandExecutor{}
	}
	e.line = strings.Join(append([]string{name}, args...), " ")
	return e
}

// Commands returns a copy of every command built so far.
func (b *MockCommandBuilder) Commands() []MockBuiltCommand {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]MockBuiltCommand(nil), b.commands...)
}

// LastCommand returns the most recently built command, or nil if none.
func (b *MockCommandBuilder) LastCommand() *MockBuiltCommand {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.commands) == 0 {
		return nil
	}
	c := b.commands[len(b.commands)-1]
	return &c
}
