package directory

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rickgao/gamelink/internal/api"
)

// fakeDirectoryAPI serves the REST directory endpoints from a map.
type fakeDirectoryAPI struct {
	mu      sync.Mutex
	servers map[string]api.Server
}

func (f *fakeDirectoryAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	id := strings.TrimPrefix(r.URL.Path, "/servers/")
	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/servers":
		region := r.URL.Query().Get("region")
		resp := api.ServersResponse{Servers: []api.Server{}}
		for _, s := range f.servers {
			if region == "" || s.Region == region {
				resp.Servers = append(resp.Servers, s)
			}
		}
		json.NewEncoder(w).Encode(resp)
	case r.Method == http.MethodPost && r.URL.Path == "/servers":
		var s api.Server
		json.NewDecoder(r.Body).Decode(&s)
		if s.ID == "" {
			s.ID = "generated"
		}
		s.CreatedAt = time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
		f.servers[s.ID] = s
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(api.SingleServerResponse{Server: s})
	case r.Method == http.MethodGet:
		s, ok := f.servers[id]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"error": "no such server"}`))
			return
		}
		json.NewEncoder(w).Encode(api.SingleServerResponse{Server: s})
	case r.Method == http.MethodDelete:
		if _, ok := f.servers[id]; !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		delete(f.servers, id)
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func TestRemoteStore(t *testing.T) {
	fake := &fakeDirectoryAPI{servers: map[string]api.Server{
		"eu-1": {ID: "eu-1", Name: "Europe", URL: "wss://eu-1/ws", Region: "eu", Priority: 1},
		"us-1": {ID: "us-1", Name: "America", URL: "wss://us-1/ws", Region: "us", Priority: 2},
	}}
	server := httptest.NewServer(fake)
	defer server.Close()

	store := NewRemoteStore(api.NewClient(server.URL, "", api.WithRetries(0, 0)))
	ctx := context.Background()

	all, err := store.List(ctx, Filter{})
	require.NoError(t, err)
	assert.Equal(t, []string{"us-1", "eu-1"}, ids(all), "sorted by priority")

	eu, err := store.List(ctx, Filter{Region: "eu"})
	require.NoError(t, err)
	assert.Equal(t, []string{"eu-1"}, ids(eu))

	got, err := store.Get(ctx, "eu-1")
	require.NoError(t, err)
	assert.Equal(t, "Europe", got.Name)

	_, err = store.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	created, err := store.Put(ctx, Endpoint{Name: "new", URL: "ws://new/ws"})
	require.NoError(t, err)
	assert.Equal(t, "generated", created.ID)
	assert.False(t, created.CreatedAt.IsZero())

	_, err = store.Put(ctx, Endpoint{Name: "bad"})
	assert.ErrorIs(t, err, ErrInvalidEndpoint)

	require.NoError(t, store.Delete(ctx, "generated"))
	assert.ErrorIs(t, store.Delete(ctx, "generated"), ErrNotFound)
}
