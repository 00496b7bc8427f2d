package kernel

import (
	"strconv"
	"strings"
)

// Definition is a client request for a kernel.
type Definition struct {
	NotebookID         string   `json:"notebookId" validate:"required"`
	Name               string   `json:"name" validate:"required"`
	Image              string   `json:"image" validate:"required"`
	Version            string   `json:"version"`
	SupportedLanguages []string `json:"supportedLanguages,omitempty"`
}

// Tag returns the image tag, defaulting to latest.
func (d Definition) Tag() string {
	if d.Version == "" {
		return "latest"
	}
	return d.Version
}

// ContainerName returns the deterministic container name for a kernel.
// It doubles as the kernel id and its network hostname.
func ContainerName(notebookID, kernelName string) string {
	return notebookID + "_" + kernelName
}

// AuxSuffix is appended to a kernel's name for its auxiliary store container.
const AuxSuffix = "_dbi"

// AuxContainerName returns the name of a kernel's auxiliary container.
func AuxContainerName(name string) string {
	return name + AuxSuffix
}

// Status is the lifecycle state of a kernel.
type Status string

const (
	StatusProvisioning Status = "provisioning"
	StatusWaitingReady Status = "waiting-ready"
	StatusReady        Status = "ready"
	StatusError        Status = "error"
)

// Terminal reports whether no further transitions follow s.
func (s Status) Terminal() bool {
	return s == StatusReady || s == StatusError
}

// bootstrapFolder picks the bootstrap directory mounted into a kernel.
// Python 3 and latest share one folder, other majors another; every other
// image has a folder named after itself.
func bootstrapFolder(image, version string) string {
	if image != "python" {
		return image
	}
	if version == "" || version == "latest" {
		return "python3"
	}
	major, _, _ := strings.Cut(version, ".")
	n, err := strconv.Atoi(major)
	if err != nil || n == 3 {
		return "python3"
	}
	return "python2"
}
