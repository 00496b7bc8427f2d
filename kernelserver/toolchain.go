package kernelserver

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
)

// Language names.
const (
	LanguagePython = "python"
	LanguageShell  = "shell"
	LanguageGo     = "go"
	LanguageRedis  = "redis"
	LanguageNodeJS = "nodejs"
)

// Toolchain runs source files of one language.
type Toolchain struct {
	Language string
	// Command returns the argv executing file.
	Command func(file string) []string
	// PathEnv names the module search path variable pointed at the root.
	PathEnv string
}

var toolchains = map[string]Toolchain{
	".py": {
		Language: LanguagePython,
		Command:  func(file string) []string { return []string{"python3", file} },
		PathEnv:  "PYTHONPATH",
	},
	".sh": {
		Language: LanguageShell,
		Command:  func(file string) []string { return []string{"bash", file} },
	},
	".go": {
		Language: LanguageGo,
		Command:  func(file string) []string { return []string{"go", "run", file} },
	},
	".js": {
		Language: LanguageNodeJS,
		Command:  func(file string) []string { return []string{"node", file} },
		PathEnv:  "NODE_PATH",
	},
}

// ToolchainFor returns the toolchain running file, chosen by extension.
func ToolchainFor(file string) (Toolchain, error) {
	tc, ok := toolchains[filepath.Ext(file)]
	if !ok {
		return Toolchain{}, fmt.Errorf("%w: %s", ErrUnknownToolchain, file)
	}
	return tc, nil
}

// FileCommand builds the command executing file (relative to root) with root
// as working directory and module search path.
func FileCommand(ctx context.Context, root, file string) (*exec.Cmd, error) {
	tc, err := ToolchainFor(file)
	if err != nil {
		return nil, err
	}

	argv := tc.Command(filepath.Join(root, file))
	//nolint:gosec // running user files is the purpose of the kernel
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = root
	cmd.Env = os.Environ()
	if tc.PathEnv != "" {
		cmd.Env = append(cmd.Env, tc.PathEnv+"="+root)
	}
	return cmd, nil
}
