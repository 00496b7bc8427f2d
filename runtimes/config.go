package runtimes

import (
	"regexp"
)

// ConfigFileName is the descriptor file looked up in each runtime directory.
const ConfigFileName = ".unklearn.config"

// Execution modes a runtime may support.
const (
	ModeInteractive = "interactive"
	ModeFiles       = "files"
	ModeEndpoints   = "endpoints"
)

// Config is an installed runtime descriptor. It is immutable once loaded.
type Config struct {
	Name               string   `json:"name" validate:"required"`
	Image              string   `json:"image" validate:"required"`
	Tag                string   `json:"tag"`
	Modes              []string `json:"modes" validate:"dive,oneof=interactive files endpoints"`
	Languages          []string `json:"languages"`
	DockerfileTemplate string   `json:"dockerfile_template,omitempty"`

	tagPattern *regexp.Regexp
}

// MatchesTag reports whether tag matches the descriptor's tag pattern,
// anchored at the start of the tag.
func (c *Config) MatchesTag(tag string) bool {
	if c.tagPattern == nil {
		return c.Tag == "" || c.Tag == tag
	}
	return c.tagPattern.MatchString(tag)
}

func (c *Config) compile() error {
	re, err := regexp.Compile("^(?:" + c.Tag + ")")
	if err != nil {
		return err
	}
	c.tagPattern = re
	return nil
}

// Request is a client supplied runtime request.
type Request struct {
	Name      string   `json:"name"`
	Image     string   `json:"image"`
	Tag       string   `json:"tag"`
	Modes     []string `json:"modes"`
	Languages []string `json:"languages"`
}

// Subset returns the elements of available that were requested, in the
// order of available. When nothing overlaps the full available set is
// returned, so narrowing never produces an empty set.
func Subset(available, requested []string) []string {
	wanted := make(map[string]struct{}, len(requested))
	for _, r := range requested {
		wanted[r] = struct{}{}
	}

	out := []string{}
	for _, a := range available {
		if _, ok := wanted[a]; ok {
			out = append(out, a)
		}
	}
	if len(out) == 0 {
		return append([]string{}, available...)
	}
	return out
}
