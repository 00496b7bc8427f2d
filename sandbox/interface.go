package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
)

// Handle identifies a container known to the runtime.
type Handle struct {
	ID     string
	Name   string
	Status string
}

// Container status values reported by the runtime.
const (
	StatusRunning = "running"
	StatusExited  = "exited"
)

// Mount describes a bind mount into a container.
type Mount struct {
	Type        string
	Source      string
	Destination string
	ReadOnly    bool
}

// RunSpec is the fully resolved set of parameters for starting a detached container.
type RunSpec struct {
	Name    string
	Image   string
	Command []string
	Env     map[string]string
	Mounts  []Mount
	Network string
}

// ContainerDetails is the subset of an inspected container the manager needs.
type ContainerDetails struct {
	ID          string
	Name        string
	Status      string
	Mounts      []Mount
	NetworkMode string
}

// ContainerSpec is what a kernel creator asks the manager for.
type ContainerSpec struct {
	Name    string
	Image   string
	Tag     string
	Command []string
	Env     map[string]string
	Mounts  []Mount
}

// ImageRef returns image:tag, defaulting the tag to latest.
func (s ContainerSpec) ImageRef() string {
	tag := s.Tag
	if tag == "" {
		tag = "latest"
	}
	return s.Image + ":" + tag
}

// ContainerRuntime is the container engine capability used by the manager.
type ContainerRuntime interface {
	// List returns containers (running or not) whose name matches the filter.
	// Engines match names by substring, so callers filter for equality.
	List(ctx context.Context, name string) ([]Handle, error)
	Run(ctx context.Context, spec RunSpec) (*Handle, error)
	Start(ctx context.Context, id string) error
	// Inspect returns ErrContainerNotFound for unknown containers.
	Inspect(ctx context.Context, id string) (*ContainerDetails, error)
	ImageExists(ctx context.Context, ref string) (bool, error)
	Pull(ctx context.Context, ref string) error
	Logs(ctx context.Context, id string) (Logs, error)
}

// Logs is a snapshot of what a container has written to each stream.
type Logs struct {
	Stdout string
	Stderr string
}

// CommandRunner defines an interface for executing system commands
type CommandRunner interface {
	RunCommand(ctx context.Context, args []string) (stdout, stderr string, exitCode int, err error)
}

// RealCommandRunner implements CommandRunner using actual exec commands
type RealCommandRunner struct{}

// RunCommand executes the given command with arguments
func (RealCommandRunner) RunCommand(ctx context.Context, args []string) (stdout, stderr string, exitCode int, err error) {
	if len(args) < 1 {
		return "", "", 0, fmt.Errorf("no command provided")
	}

	cmd := exec.CommandContext(ctx, args[0], args[1:]...) //nolint:gosec // Safe as this is controlled input

	var stdoutBuf, stderrBuf bytes.Buffer
	cmd.Stdout = &stdoutBuf
	cmd.Stderr = &stderrBuf

	err = cmd.Run()

	exitCode = 0
	if err != nil {
		var exitError *exec.ExitError
		if errors.As(err, &exitError) {
			exitCode = exitError.ExitCode()
		} else {
			return "", "", 0, err
		}
	}

	return stdoutBuf.String(), stderrBuf.String(), exitCode, nil
}

// FileSystem defines an interface for the file system reads needed by host introspection
type FileSystem interface {
	ReadFile(filename string) ([]byte, error)
	FileExists(path string) (bool, error)
}

// RealFileSystem implements FileSystem using actual file system operations
type RealFileSystem struct{}

func (RealFileSystem) ReadFile(filename string) ([]byte, error) {
	return os.ReadFile(filename)
}

func (RealFileSystem) FileExists(path string) (bool, error) {
	_, err := os.Stat(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	return err == nil, err
}
