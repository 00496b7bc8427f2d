// Package sandbox manages the containers that kernels run in.
//
// A ContainerRuntime abstracts the container engine; CLIRuntime implements it
// by driving the docker or podman CLI through a CommandRunner. The Manager
// builds the lifecycle on top: reuse an existing container by exact name,
// start it when it has exited, otherwise pull the image and run a new
// detached container.
//
// When the orchestrator itself runs inside a container, HostIntrospector
// finds that container so that bind-mount sources can be translated into
// host paths and new kernels can join the orchestrator's network.
//
// Usage:
//
//	runtime, err := sandbox.NewRuntime(logger, "docker")
//	manager := sandbox.NewManager(logger, runtime)
//	handle, err := manager.Create(ctx, sandbox.ContainerSpec{
//	    Name:    "nb1_py",
//	    Image:   "python",
//	    Tag:     "3.6",
//	    Command: []string{"/bin/sh", "/opt/current/start.sh"},
//	})
package sandbox
