package sandbox

import (
	"encoding/json"
	"strings"

	"go.uber.org/zap"
)

// NewDockerRuntime creates a CLIRuntime driving the docker CLI.
func NewDockerRuntime(logger *zap.Logger, opts ...CLIRuntimeOption) *CLIRuntime {
	runtime := &CLIRuntime{
		logger:     logger.Named("docker"),
		binary:     "docker",
		listArgs:   dockerListArgs,
		decodeList: decodeDockerList,
		cmdRunner:  &RealCommandRunner{},
	}

	for _, opt := range opts {
		opt(runtime)
	}

	return runtime
}

func dockerListArgs(name string) []string {
	return []string{"ps", "-a", "--no-trunc", "--filter", "name=" + name, "--format", "{{json .}}"}
}

// docker prints one JSON object per line; Names is a comma separated string.
type dockerPsLine struct {
	ID     string `json:"ID"`
	Names  string `json:"Names"`
	State  string `json:"State"`
	Status string `json:"Status"`
}

func decodeDockerList(out string) ([]Handle, error) {
	var handles []Handle
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		var ps dockerPsLine
		if err := json.Unmarshal([]byte(line), &ps); err != nil {
			return nil, err
		}

		state := ps.State
		if state == "" {
			state = ps.Status
		}
		name, _, _ := strings.Cut(ps.Names, ",")

		handles = append(handles, Handle{
			ID:     ps.ID,
			Name:   name,
			Status: normalizeState(state),
		})
	}
	return handles, nil
}
