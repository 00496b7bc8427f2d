package kernel

import (
	"context"
	"errors"
	"sync"

	"github.com/isdmx/kernelbox/sandbox"
)

type fakeProvisioner struct {
	mu    sync.Mutex
	specs []sandbox.ContainerSpec
	err   error
}

func (f *fakeProvisioner) Create(_ context.Context, spec sandbox.ContainerSpec) (*sandbox.Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.specs = append(f.specs, spec)
	return &sandbox.Handle{ID: "id-" + spec.Name, Name: spec.Name, Status: sandbox.StatusRunning}, nil
}

// fakeLogs returns successive stdout and stderr snapshots, repeating the
// last one of each.
type fakeLogs struct {
	mu        sync.Mutex
	snapshots []string
	stderr    []string
	calls     int
}

func (f *fakeLogs) Logs(context.Context, string) (sandbox.Logs, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	at := func(snapshots []string) string {
		if len(snapshots) == 0 {
			return ""
		}
		return snapshots[min(f.calls, len(snapshots)-1)]
	}
	logs := sandbox.Logs{Stdout: at(f.snapshots), Stderr: at(f.stderr)}
	f.calls++
	return logs, nil
}

// fakeProber fails until it has been called readyAfter times.
type fakeProber struct {
	mu         sync.Mutex
	readyAfter int
	calls      int
	never      bool
}

func (f *fakeProber) Probe(context.Context, string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.never || f.calls <= f.readyAfter {
		return ErrKernelUnreachable
	}
	return nil
}

type fakeClient struct {
	mu          sync.Mutex
	repls       []ReplRequest
	languages   []string
	writes      []FileWrite
	runs        []string
	endpoints   []EndpointCreate
	fileResult  FileResult
	unreachable bool
}

var errConnRefused = errors.New("connection refused")

func (f *fakeClient) check(kernelID string) error {
	if f.unreachable {
		return errors.Join(ErrKernelUnreachable, errConnRefused)
	}
	return nil
}

func (f *fakeClient) Repl(_ context.Context, kernelID, language string, req ReplRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check(kernelID); err != nil {
		return err
	}
	f.repls = append(f.repls, req)
	f.languages = append(f.languages, language)
	return nil
}

func (f *fakeClient) WriteFile(_ context.Context, kernelID string, req FileWrite) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check(kernelID); err != nil {
		return "", err
	}
	f.writes = append(f.writes, req)
	return "stored/" + req.FilePath, nil
}

func (f *fakeClient) RunFile(_ context.Context, kernelID, path string) (FileResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check(kernelID); err != nil {
		return FileResult{}, err
	}
	f.runs = append(f.runs, path)
	return f.fileResult, nil
}

func (f *fakeClient) CreateEndpoint(_ context.Context, kernelID string, req EndpointCreate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check(kernelID); err != nil {
		return err
	}
	f.endpoints = append(f.endpoints, req)
	return nil
}
