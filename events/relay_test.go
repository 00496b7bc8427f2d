package events

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRelaySink(t *testing.T) {
	var (
		mu   sync.Mutex
		got  []CellOutput
		path string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body CellOutput
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		mu.Lock()
		got = append(got, body)
		path = r.URL.Path
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sink := NewRelaySink(srv.URL+"/", nil)
	ctx := context.Background()

	require.NoError(t, sink.Publish(ctx, NewCodeResult("sid", CodeResult{ID: "c1", Output: "out", Error: "err"})))
	require.NoError(t, sink.Publish(ctx, NewCodeResult("sid", CodeResult{ID: "c2"})))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, RelayPath, path)
	assert.Equal(t, []CellOutput{
		{CellID: "c1", Lines: []string{"out"}, StreamType: "stdout", Channel: "sid"},
		{CellID: "c1", Lines: []string{"err"}, StreamType: "stderr", Channel: "sid"},
		{CellID: "c2", Lines: []string{""}, StreamType: "stdout", Channel: "sid"},
	}, got)
}

func TestRelaySinkRejects(t *testing.T) {
	sink := NewRelaySink("http://127.0.0.1:1", nil)
	err := sink.Publish(context.Background(), NewRuntimeStatus("sid", "k", "ready"))
	require.ErrorIs(t, err, ErrNotRelayable)
}

func TestRelaySinkServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	err := NewRelaySink(srv.URL, srv.Client()).Publish(context.Background(), NewCodeResult("sid", CodeResult{ID: "c", Output: "x"}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}

func TestOutputText(t *testing.T) {
	assert.Equal(t, "", OutputText(nil))
	assert.Equal(t, "a", OutputText("a"))
	assert.Equal(t, "a\nb", OutputText([]string{"a", "b"}))
	assert.Equal(t, "42", OutputText(int64(42)))
}
