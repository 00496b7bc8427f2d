package sandbox

import (
	"encoding/json"
	"strings"

	"go.uber.org/zap"
)

// NewPodmanRuntime creates a CLIRuntime driving the podman CLI.
func NewPodmanRuntime(logger *zap.Logger, opts ...CLIRuntimeOption) *CLIRuntime {
	runtime := &CLIRuntime{
		logger:     logger.Named("podman"),
		binary:     "podman",
		listArgs:   podmanListArgs,
		decodeList: decodePodmanList,
		cmdRunner:  &RealCommandRunner{},
	}

	for _, opt := range opts {
		opt(runtime)
	}

	return runtime
}

func podmanListArgs(name string) []string {
	return []string{"ps", "-a", "--filter", "name=" + name, "--format", "json"}
}

// podman prints a single JSON array; Names is a list.
type podmanPsEntry struct {
	ID    string   `json:"Id"`
	Names []string `json:"Names"`
	State string   `json:"State"`
}

func decodePodmanList(out string) ([]Handle, error) {
	out = strings.TrimSpace(out)
	if out == "" {
		return nil, nil
	}

	var entries []podmanPsEntry
	if err := json.Unmarshal([]byte(out), &entries); err != nil {
		return nil, err
	}

	handles := make([]Handle, 0, len(entries))
	for _, e := range entries {
		var name string
		if len(e.Names) > 0 {
			name = e.Names[0]
		}
		handles = append(handles, Handle{
			ID:     e.ID,
			Name:   name,
			Status: normalizeState(e.State),
		})
	}
	return handles, nil
}
