package endpoint

import (
	"fmt"
	"net/url"
	"strings"
)

// Config is a persisted endpoint definition.
type Config struct {
	Name      string `json:"name"`
	Path      string `json:"path"`
	Query     string `json:"query"`
	FilePath  string `json:"filePath"`
	Signature string `json:"signature"`
}

// Arguments are the resolved values of a request, keyed by argument name.
type Arguments struct {
	Path  map[string]any `json:"path"`
	Query map[string]any `json:"query"`
}

// ParseRequest resolves the path and query arguments of requestURI against
// cfg. The "/endpoints/{name}" prefix is removed before the path template is
// applied.
func ParseRequest(cfg Config, requestURI string) (*Arguments, error) {
	u, err := url.Parse(requestURI)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrPathMismatch, requestURI)
	}
	requestPath := strings.Replace(u.Path, "/endpoints/"+cfg.Name, "", 1)

	pathParams, err := Compile(cfg.Path)
	if err != nil {
		return nil, err
	}
	pathParams, err = HydratePath(cfg.Path, pathParams, requestPath)
	if err != nil {
		return nil, err
	}

	queryParams, err := Compile(cfg.Query)
	if err != nil {
		return nil, err
	}
	queryParams, err = HydrateQuery(queryParams, u.Query())
	if err != nil {
		return nil, err
	}

	return &Arguments{
		Path:  values(pathParams),
		Query: values(queryParams),
	}, nil
}

func values(params []Param) map[string]any {
	out := make(map[string]any, len(params))
	for _, p := range params {
		out[p.Arg] = p.Value
	}
	return out
}
