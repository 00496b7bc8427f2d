package kernelserver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/isdmx/kernelbox/endpoint"
)

func TestParseClient(t *testing.T) {
	var got ParseRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != ParsePath || json.NewDecoder(r.Body).Decode(&got) != nil {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"path":{"id":10},"query":{"ratio":0.5,"verbose":true,"name":"x"}}`))
	}))
	defer srv.Close()

	cfg := endpoint.Config{Name: "price", Path: "/items/<int:id>"}
	path, query, err := NewParseClient(srv.URL+"/", nil).Parse(context.Background(), cfg, "/endpoints/price/items/10")
	require.NoError(t, err)

	assert.Equal(t, ParseRequest{Config: cfg, RequestURI: "/endpoints/price/items/10"}, got)
	assert.Equal(t, map[string]any{"id": json.Number("10")}, path)
	assert.Equal(t, map[string]any{"ratio": json.Number("0.5"), "verbose": true, "name": "x"}, query)
}

func TestParseClientErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		message string
	}{
		{name: "bad request", status: http.StatusBadRequest, body: `{"message":"missing argument: id"}`, message: "missing argument: id"},
		{name: "bad request text", status: http.StatusBadRequest, body: `nope`, message: "nope"},
		{name: "server error", status: http.StatusInternalServerError, body: "boom\r\n", message: "boom"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, _, err := NewParseClient(srv.URL, nil).Parse(context.Background(), endpoint.Config{}, "/endpoints/x")
			var parseErr *ParseError
			require.ErrorAs(t, err, &parseErr)
			assert.Equal(t, tt.status, parseErr.Status)
			assert.Equal(t, tt.message, parseErr.Message)
		})
	}
}

func TestParseClientUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, _, err := NewParseClient(url, nil).Parse(context.Background(), endpoint.Config{}, "/endpoints/x")
	require.Error(t, err)
	var parseErr *ParseError
	assert.NotErrorAs(t, err, &parseErr)
}
