package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DoyleJ11/wavesync/internal/resource"
	"github.com/DoyleJ11/wavesync/pkg/types"
)

type fakeDirectory struct {
	clients []types.Client
	locks   []types.Lock
}

func (f fakeDirectory) Clients() []types.Client { return f.clients }
func (f fakeDirectory) Locks() []types.Lock     { return f.locks }

func (f fakeDirectory) TerminalClients(terminal string) []types.Client {
	var out []types.Client
	for _, c := range f.clients {
		if c.ActiveTerminal == terminal {
			out = append(out, c)
		}
	}
	return out
}

func newDirectory() fakeDirectory {
	return fakeDirectory{
		clients: []types.Client{
			{ID: "c1", Username: "Alice", ActiveTerminal: "t1"},
			{ID: "c2", Username: "Bob"},
		},
		locks: []types.Lock{{
			ResourceID: "notes:t1",
			Kind:       "notes",
			TerminalID: "t1",
			LockInfo:   types.LockInfo{ClientID: "c1", Username: "Alice", AcquiredAt: 1700000000000},
		}},
	}
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealthz(t *testing.T) {
	h := SetupRoutes(Deps{Directory: newDirectory()})
	assert.Equal(t, http.StatusOK, get(t, h, "/healthz").Code)
}

func TestListClients(t *testing.T) {
	h := SetupRoutes(Deps{Directory: newDirectory()})
	rec := get(t, h, "/api/sync/clients")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body struct {
		Success bool           `json:"success"`
		Clients []types.Client `json:"clients"`
		Count   int            `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Success)
	assert.Equal(t, 2, body.Count)
	assert.Equal(t, "Alice", body.Clients[0].Username)
}

func TestListTerminalClients(t *testing.T) {
	h := SetupRoutes(Deps{Directory: newDirectory()})

	var body struct {
		TerminalID string         `json:"terminal_id"`
		Clients    []types.Client `json:"clients"`
		Count      int            `json:"count"`
	}
	rec := get(t, h, "/api/sync/terminals/t1/clients")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "t1", body.TerminalID)
	assert.Equal(t, 1, body.Count)
	assert.Equal(t, "c1", body.Clients[0].ID)

	rec = get(t, h, "/api/sync/terminals/t9/clients")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Zero(t, body.Count)
}

func TestListLocks(t *testing.T) {
	h := SetupRoutes(Deps{Directory: newDirectory()})
	rec := get(t, h, "/api/sync/locks")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"resource_id":"notes:t1"`)
	assert.Contains(t, rec.Body.String(), `"client_id":"c1"`)
	assert.Contains(t, rec.Body.String(), `"count":1`)
}

func TestMetricsRoute(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "wavesync_test_total", Help: "test"})
	reg.MustRegister(c)
	c.Inc()

	h := SetupRoutes(Deps{Directory: newDirectory(), Gatherer: reg})
	rec := get(t, h, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "wavesync_test_total 1"))

	bare := SetupRoutes(Deps{Directory: newDirectory()})
	assert.Equal(t, http.StatusNotFound, get(t, bare, "/metrics").Code)
}

type fakeUnlocker struct {
	held map[resource.Key]bool
	err  error
}

func (f *fakeUnlocker) ForceUnlock(_ context.Context, key resource.Key) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	was := f.held[key]
	delete(f.held, key)
	return was, nil
}

func TestForceUnlock(t *testing.T) {
	u := &fakeUnlocker{held: map[resource.Key]bool{resource.NotesKey("t1"): true}}
	h := SetupRoutes(Deps{Directory: newDirectory(), Unlocker: u})

	del := func(path string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, path, nil))
		return rec
	}

	var body struct {
		ResourceID string `json:"resource_id"`
		Released   bool   `json:"released"`
	}
	rec := del("/api/sync/locks/notes:t1")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "notes:t1", body.ResourceID)
	assert.True(t, body.Released)

	rec = del("/api/sync/locks/notes:t1")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.False(t, body.Released)

	assert.Equal(t, http.StatusBadRequest, del("/api/sync/locks/notes").Code)

	u.err = context.Canceled
	assert.Equal(t, http.StatusServiceUnavailable, del("/api/sync/locks/notes:t1").Code)
}
