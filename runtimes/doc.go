// Package runtimes loads the runtime descriptors installed on the host and
// matches kernel requests against them.
//
// Every non-hidden directory under the installation folder may carry a
// .unklearn.config JSON descriptor naming an image, a tag pattern and the
// modes and languages the runtime supports.
//
// Usage:
//
//	loader := runtimes.NewLoader(logger)
//	if err := loader.Load("/opt/runtimes"); err != nil {
//	    return err
//	}
//	matched, err := loader.GetMatchingRuntime(runtimes.Request{Image: "python", Tag: "3.9"})
package runtimes
