package sandbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// CLIRuntime implements ContainerRuntime on top of a container engine CLI.
// The docker and podman CLIs agree on everything except the listing format.
type CLIRuntime struct {
	logger     *zap.Logger
	binary     string
	listArgs   func(name string) []string
	decodeList func(out string) ([]Handle, error)
	cmdRunner  CommandRunner
}

// CLIRuntimeOption defines a functional option for CLIRuntime
type CLIRuntimeOption func(*CLIRuntime)

// WithCommandRunner sets the CommandRunner for CLIRuntime
func WithCommandRunner(cmdRunner CommandRunner) CLIRuntimeOption {
	return func(r *CLIRuntime) {
		r.cmdRunner = cmdRunner
	}
}

// Binary returns the CLI executable this runtime drives.
func (r *CLIRuntime) Binary() string {
	return r.binary
}

func (r *CLIRuntime) exec(ctx context.Context, args ...string) (stdout, stderr string, err error) {
	full := append([]string{r.binary}, args...)
	r.logger.Debug("running container command", zap.Strings("args", full))

	stdout, stderr, exitCode, err := r.cmdRunner.RunCommand(ctx, full)
	if err != nil {
		return "", "", fmt.Errorf("failed to run %s %s: %w", r.binary, args[0], err)
	}
	if exitCode != 0 {
		return stdout, stderr, &CommandError{Args: full, ExitCode: exitCode, Stderr: stderr}
	}
	return stdout, stderr, nil
}

// List returns containers matching the name filter.
func (r *CLIRuntime) List(ctx context.Context, name string) ([]Handle, error) {
	out, _, err := r.exec(ctx, r.listArgs(name)...)
	if err != nil {
		return nil, err
	}
	handles, err := r.decodeList(out)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s ps output: %w", r.binary, err)
	}
	return handles, nil
}

// Run starts a detached container.
func (r *CLIRuntime) Run(ctx context.Context, spec RunSpec) (*Handle, error) {
	out, _, err := r.exec(ctx, runArgs(spec)...)
	if err != nil {
		return nil, err
	}

	lines := strings.Split(strings.TrimSpace(out), "\n")
	id := strings.TrimSpace(lines[len(lines)-1])

	r.logger.Info("container started", zap.String("name", spec.Name), zap.String("id", id))
	return &Handle{ID: id, Name: spec.Name, Status: StatusRunning}, nil
}

// Start starts a stopped container.
func (r *CLIRuntime) Start(ctx context.Context, id string) error {
	_, _, err := r.exec(ctx, "start", id)
	return err
}

type inspectOutput struct {
	ID    string `json:"Id"`
	Name  string `json:"Name"`
	State struct {
		Status string `json:"Status"`
	} `json:"State"`
	Mounts []struct {
		Type        string `json:"Type"`
		Source      string `json:"Source"`
		Destination string `json:"Destination"`
		RW          bool   `json:"RW"`
	} `json:"Mounts"`
	HostConfig struct {
		NetworkMode string `json:"NetworkMode"`
	} `json:"HostConfig"`
}

// Inspect returns the details of a single container.
func (r *CLIRuntime) Inspect(ctx context.Context, id string) (*ContainerDetails, error) {
	out, _, err := r.exec(ctx, "inspect", "--type", "container", "--format", "{{json .}}", id)
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: %s", ErrContainerNotFound, id)
		}
		return nil, err
	}

	var raw inspectOutput
	if err := json.Unmarshal([]byte(strings.TrimSpace(out)), &raw); err != nil {
		return nil, fmt.Errorf("failed to decode %s inspect output: %w", r.binary, err)
	}

	details := &ContainerDetails{
		ID:          raw.ID,
		Name:        strings.TrimPrefix(raw.Name, "/"),
		Status:      normalizeState(raw.State.Status),
		NetworkMode: raw.HostConfig.NetworkMode,
	}
	for _, m := range raw.Mounts {
		details.Mounts = append(details.Mounts, Mount{
			Type:        m.Type,
			Source:      m.Source,
			Destination: m.Destination,
			ReadOnly:    !m.RW,
		})
	}
	return details, nil
}

// ImageExists reports whether ref is present locally.
func (r *CLIRuntime) ImageExists(ctx context.Context, ref string) (bool, error) {
	_, _, err := r.exec(ctx, "image", "inspect", ref)
	if err == nil {
		return true, nil
	}
	var cmdErr *CommandError
	if errors.As(err, &cmdErr) {
		return false, nil
	}
	return false, err
}

// Pull fetches ref from its registry.
func (r *CLIRuntime) Pull(ctx context.Context, ref string) error {
	r.logger.Info("pulling image", zap.String("image", ref))
	_, _, err := r.exec(ctx, "pull", ref)
	return err
}

// Logs returns everything the container has written so far, one string per
// stream. The engine replays the container's stdout and stderr on its own.
func (r *CLIRuntime) Logs(ctx context.Context, id string) (Logs, error) {
	stdout, stderr, err := r.exec(ctx, "logs", id)
	if err != nil {
		return Logs{}, err
	}
	return Logs{Stdout: stdout, Stderr: stderr}, nil
}

func runArgs(spec RunSpec) []string {
	args := []string{"run", "-d", "--name", spec.Name}
	if spec.Network != "" {
		args = append(args, "--network", spec.Network)
	}

	keys := make([]string, 0, len(spec.Env))
	for k := range spec.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		args = append(args, "-e", k+"="+spec.Env[k])
	}

	for _, m := range spec.Mounts {
		args = append(args, "--mount", mountArg(m))
	}

	args = append(args, spec.Image)
	return append(args, spec.Command...)
}

func mountArg(m Mount) string {
	typ := m.Type
	if typ == "" {
		typ = "bind"
	}
	arg := fmt.Sprintf("type=%s,source=%s,target=%s", typ, m.Source, m.Destination)
	if m.ReadOnly {
		arg += ",readonly"
	}
	return arg
}

// normalizeState maps engine state strings such as "Exited (0) 2 hours ago"
// or "Up 3 minutes" onto the lowercase status vocabulary.
func normalizeState(state string) string {
	fields := strings.Fields(strings.ToLower(state))
	if len(fields) == 0 {
		return ""
	}
	switch fields[0] {
	case "up":
		return StatusRunning
	default:
		return fields[0]
	}
}
