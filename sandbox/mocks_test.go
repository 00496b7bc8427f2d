package sandbox

import (
	"context"
	"strings"
	"sync"
)

type commandResult struct {
	stdout   string
	stderr   string
	exitCode int
	err      error
}

// MockCommandRunner implements CommandRunner for testing
type MockCommandRunner struct {
	mu             sync.Mutex
	commandResults map[string]commandResult
	defaultResult  commandResult
	calls          [][]string
}

func (m *MockCommandRunner) RunCommand(_ context.Context, args []string) (stdout, stderr string, exitCode int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, args)

	if result, exists := m.commandResults[strings.Join(args, " ")]; exists {
		return result.stdout, result.stderr, result.exitCode, result.err
	}

	return m.defaultResult.stdout, m.defaultResult.stderr, m.defaultResult.exitCode, m.defaultResult.err
}

// MockFileSystem implements FileSystem for testing
type MockFileSystem struct {
	files map[string]string
}

func (m *MockFileSystem) ReadFile(filename string) ([]byte, error) {
	if content, exists := m.files[filename]; exists {
		return []byte(content), nil
	}
	return nil, errNoFile
}

func (m *MockFileSystem) FileExists(path string) (bool, error) {
	_, exists := m.files[path]
	return exists, nil
}

type fakeRuntime struct {
	containers  []Handle
	images      map[string]bool
	pullable    map[string]bool
	details     map[string]*ContainerDetails
	logs        map[string]Logs
	started     []string
	pulled      []string
	runs        []RunSpec
	listErr     error
	runErr      error
	pullErr     error
	imageChecks int
}

func (f *fakeRuntime) List(_ context.Context, name string) ([]Handle, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []Handle
	for _, c := range f.containers {
		if strings.Contains(c.Name, name) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeRuntime) Run(_ context.Context, spec RunSpec) (*Handle, error) {
	if f.runErr != nil {
		return nil, f.runErr
	}
	f.runs = append(f.runs, spec)
	h := Handle{ID: "id-" + spec.Name, Name: spec.Name, Status: StatusRunning}
	f.containers = append(f.containers, h)
	return &h, nil
}

func (f *fakeRuntime) Start(_ context.Context, id string) error {
	f.started = append(f.started, id)
	return nil
}

func (f *fakeRuntime) Inspect(_ context.Context, id string) (*ContainerDetails, error) {
	if d, ok := f.details[id]; ok {
		return d, nil
	}
	return nil, ErrContainerNotFound
}

func (f *fakeRuntime) ImageExists(_ context.Context, ref string) (bool, error) {
	f.imageChecks++
	return f.images[ref], nil
}

func (f *fakeRuntime) Pull(_ context.Context, ref string) error {
	f.pulled = append(f.pulled, ref)
	if f.pullErr != nil {
		return f.pullErr
	}
	if f.pullable[ref] {
		if f.images == nil {
			f.images = map[string]bool{}
		}
		f.images[ref] = true
	}
	return nil
}

func (f *fakeRuntime) Logs(_ context.Context, id string) (Logs, error) {
	return f.logs[id], nil
}

type staticHost struct {
	self *ContainerDetails
}

func (s staticHost) Self(context.Context) (*ContainerDetails, error) {
	return s.self, nil
}
