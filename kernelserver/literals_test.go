package kernelserver

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAssignments(t *testing.T) {
	got := Assignments(map[string]any{
		"name":    "widget",
		"id":      json.Number("10"),
		"ratio":   json.Number("0.5"),
		"verbose": true,
		"quiet":   false,
		"tags":    []any{"a", json.Number("2")},
		"missing": nil,
	})

	want := `id = 10
missing = None
name = "widget"
quiet = False
ratio = 0.5
tags = ['a', 2]
verbose = True`
	assert.Equal(t, want, got)
}

func TestAssignmentsEmpty(t *testing.T) {
	assert.Empty(t, Assignments(nil))
}

func TestLiteralQuotes(t *testing.T) {
	assert.Equal(t, `'it\'s'`, literal("it's"))
	assert.Equal(t, `['a\\b']`, literal([]any{`a\b`}))
}
