package endpoint

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/gosimple/slug"
)

// DataType is the declared type of a template parameter.
type DataType string

const (
	TypeString DataType = "string"
	TypeInt    DataType = "int"
	TypeNumber DataType = "number"
	TypeBool   DataType = "bool"
)

var dataTypes = map[string]DataType{
	string(TypeString): TypeString,
	string(TypeInt):    TypeInt,
	string(TypeNumber): TypeNumber,
	string(TypeBool):   TypeBool,
}

var tokenPattern = regexp.MustCompile(`<([^<>]*)>`)

// Param describes one template token. Value is only set after hydration.
type Param struct {
	Arg          string
	DataType     DataType
	Raw          string
	DefaultValue any
	HasDefault   bool
	Value        any
}

// Compile extracts every token of template and parses it into a Param.
func Compile(template string) ([]Param, error) {
	matches := tokenPattern.FindAllString(template, -1)
	params := make([]Param, 0, len(matches))
	seen := make(map[string]bool, len(matches))

	for _, raw := range matches {
		p, err := parseToken(raw)
		if err != nil {
			return nil, err
		}
		if seen[p.Arg] {
			return nil, fmt.Errorf("%w: %s in %s", ErrDuplicateArgument, p.Arg, raw)
		}
		seen[p.Arg] = true
		params = append(params, p)
	}

	return params, nil
}

func parseToken(raw string) (Param, error) {
	body := strings.Trim(raw, "<>")
	if body == "" {
		return Param{}, fmt.Errorf("%w: %s", ErrEmptyToken, raw)
	}

	dataType := TypeString
	colon := strings.Index(body, ":")
	equals := strings.Index(body, "=")
	if colon >= 0 && (equals < 0 || colon < equals) {
		prefix := strings.TrimSpace(body[:colon])
		t, ok := dataTypes[prefix]
		if !ok {
			return Param{}, fmt.Errorf("%w: %q in %s", ErrInvalidType, prefix, raw)
		}
		dataType = t
		body = strings.TrimSpace(body[colon+1:])
	}

	name, def, hasDefault := strings.Cut(body, "=")
	arg := Slugify(name)
	if arg == "" {
		return Param{}, fmt.Errorf("%w: %s", ErrInvalidName, raw)
	}

	p := Param{
		Arg:        arg,
		DataType:   dataType,
		Raw:        raw,
		HasDefault: hasDefault,
	}
	if hasDefault {
		v, err := Cast(def, dataType)
		if err != nil {
			return Param{}, fmt.Errorf("default for %s: %w", raw, forArg(err, arg))
		}
		p.DefaultValue = v
	}
	return p, nil
}

// Slugify turns a token name into a safe identifier: lower case, with runs
// of separators collapsed to a single underscore.
func Slugify(name string) string {
	return strings.ReplaceAll(slug.Make(name), "-", "_")
}

// Cast converts a raw string to the Go value of dataType.
func Cast(value string, dataType DataType) (any, error) {
	switch dataType {
	case TypeBool:
		return !(value == "" || strings.EqualFold(value, "false")), nil
	case TypeInt:
		n, err := strconv.Atoi(value)
		if err != nil {
			return nil, &CastError{Value: value, Type: dataType}
		}
		return n, nil
	case TypeNumber:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return nil, &CastError{Value: value, Type: dataType}
		}
		return f, nil
	default:
		return value, nil
	}
}

// CastList casts every element of values.
func CastList(values []string, dataType DataType) ([]any, error) {
	out := make([]any, 0, len(values))
	for _, v := range values {
		c, err := Cast(v, dataType)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// BuildMatcher replaces each token of a path template with a named capture
// group and anchors the result as a full path match. Groups are optional so
// that an empty segment can fall back to the parameter default.
func BuildMatcher(template string, params []Param) (*regexp.Regexp, error) {
	byRaw := make(map[string]string, len(params))
	for _, p := range params {
		byRaw[p.Raw] = p.Arg
	}

	var b strings.Builder
	b.WriteString("^/?")
	last := 0
	for _, loc := range tokenPattern.FindAllStringIndex(template, -1) {
		b.WriteString(regexp.QuoteMeta(template[last:loc[0]]))
		raw := template[loc[0]:loc[1]]
		arg, ok := byRaw[raw]
		if !ok {
			return nil, fmt.Errorf("%w: no descriptor for %s", ErrInvalidName, raw)
		}
		fmt.Fprintf(&b, "(?P<%s>[^/]+)?", arg)
		last = loc[1]
	}
	b.WriteString(regexp.QuoteMeta(template[last:]))
	b.WriteString("/?$")

	re, err := regexp.Compile(b.String())
	if err != nil {
		return nil, fmt.Errorf("compile path template %s: %w", template, err)
	}
	return re, nil
}

// HydratePath resolves the values of params from requestPath. The returned
// slice is a copy; params is not modified.
func HydratePath(template string, params []Param, requestPath string) ([]Param, error) {
	re, err := BuildMatcher(template, params)
	if err != nil {
		return nil, err
	}

	match := re.FindStringSubmatch(requestPath)
	if match == nil {
		return nil, fmt.Errorf("%w. Path must match format %s", ErrPathMismatch, template)
	}

	out := make([]Param, len(params))
	copy(out, params)
	for i := range out {
		idx := re.SubexpIndex(out[i].Arg)
		captured := ""
		if idx >= 0 {
			captured = match[idx]
		}
		if captured == "" {
			if !out[i].HasDefault {
				return nil, &ArgumentError{Kind: "path", Arg: out[i].Arg}
			}
			out[i].Value = out[i].DefaultValue
			continue
		}
		v, err := Cast(captured, out[i].DataType)
		if err != nil {
			return nil, forArg(err, out[i].Arg)
		}
		out[i].Value = v
	}
	return out, nil
}

// HydrateQuery resolves the values of params from a parsed query string.
// Singleton lists are unwrapped; blank values count as absent.
func HydrateQuery(params []Param, query map[string][]string) ([]Param, error) {
	out := make([]Param, len(params))
	copy(out, params)

	for i := range out {
		values := nonBlank(query[out[i].Arg])
		switch {
		case len(values) == 1:
			v, err := Cast(values[0], out[i].DataType)
			if err != nil {
				return nil, forArg(err, out[i].Arg)
			}
			out[i].Value = v
		case len(values) > 1:
			v, err := CastList(values, out[i].DataType)
			if err != nil {
				return nil, forArg(err, out[i].Arg)
			}
			out[i].Value = v
		case out[i].HasDefault:
			out[i].Value = out[i].DefaultValue
		default:
			return nil, &ArgumentError{Kind: "query", Arg: out[i].Arg}
		}
	}
	return out, nil
}

// forArg names arg in a CastError.
func forArg(err error, arg string) error {
	var castErr *CastError
	if errors.As(err, &castErr) {
		castErr.Arg = arg
	}
	return err
}

func nonBlank(values []string) []string {
	out := values[:0:0]
	for _, v := range values {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}
