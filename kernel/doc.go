// Package kernel provisions notebook kernels and routes work into them.
//
// A Registry maps an image name to a Creator. SingleProcessCreator runs one
// container per kernel; MultiProcessCreator runs an auxiliary store container
// next to the kernel container. Both name containers deterministically from
// the notebook id and kernel name, so repeated requests reuse what exists.
//
// The Poller watches a freshly created kernel, relaying new log lines and
// reporting ready once the kernel answers its health probe, or error on
// timeout. The Orchestrator ties the pieces together and publishes every
// outcome as an event to the requester's channel.
//
// Usage:
//
//	registry := kernel.NewDefaultRegistry(manager, kernel.CreatorOptions{
//	    BootstrapRoot: "/opt/kernelbox/bootstrap",
//	    ServerURI:     "http://internal-api:8763",
//	})
//	orch := kernel.NewOrchestrator(logger, registry, poller, client, sink)
//	created, err := orch.CreateKernel(ctx, channel, kernel.Definition{
//	    NotebookID: "nb1", Name: "py", Image: "python", Version: "3.6",
//	})
package kernel
