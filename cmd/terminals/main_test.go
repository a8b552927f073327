package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/agentuity/go-terminals/config"
	"github.com/agentuity/go-terminals/tui"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type terminalServer struct {
	mu    sync.Mutex
	names []string
	next  int
}

func (s *terminalServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/api/terminals":
		models := make([]map[string]string, len(s.names))
		for i, name := range s.names {
			models[i] = map[string]string{"name": name}
		}
		json.NewEncoder(w).Encode(models)
	case r.Method == http.MethodPost && r.URL.Path == "/api/terminals":
		var opts struct {
			Name string `json:"name"`
		}
		json.NewDecoder(r.Body).Decode(&opts)
		if opts.Name == "" {
			s.next++
			opts.Name = "t" + string(rune('0'+s.next))
		}
		s.names = append(s.names, opts.Name)
		json.NewEncoder(w).Encode(map[string]string{"name": opts.Name})
	case r.Method == http.MethodDelete && strings.HasPrefix(r.URL.Path, "/api/terminals/"):
		name := strings.TrimPrefix(r.URL.Path, "/api/terminals/")
		s.names = slices.DeleteFunc(s.names, func(n string) bool { return n == name })
		w.WriteHeader(http.StatusNoContent)
	default:
		http.NotFound(w, r)
	}
}

func (s *terminalServer) running() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.names)
}

func runCommand(t *testing.T, srv *httptest.Server, args ...string) (string, error) {
	t.Helper()
	originalHasTTY := tui.HasTTY
	tui.HasTTY = false
	t.Cleanup(func() { tui.HasTTY = originalHasTTY })
	t.Setenv(config.EnvAvailable, "true")

	var out bytes.Buffer
	cmd := newRootCommand()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--url", srv.URL, "--log-level", "none"}, args...))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := cmd.ExecuteContext(ctx)
	return out.String(), err
}

func newServer(t *testing.T, names ...string) (*terminalServer, *httptest.Server) {
	t.Helper()
	ts := &terminalServer{names: names}
	srv := httptest.NewServer(ts)
	t.Cleanup(srv.Close)
	return ts, srv
}

func TestListCommand(t *testing.T) {
	_, srv := newServer(t, "2", "1")
	out, err := runCommand(t, srv, "list")
	require.NoError(t, err)
	assert.Equal(t, "1\n2\n", out)
}

func TestNewCommand(t *testing.T) {
	ts, srv := newServer(t)
	out, err := runCommand(t, srv, "new", "--name", "build")
	require.NoError(t, err)
	assert.Equal(t, "build\n", out)
	assert.Equal(t, []string{"build"}, ts.running())
}

func TestShutdownCommand(t *testing.T) {
	ts, srv := newServer(t, "1", "2", "3")
	out, err := runCommand(t, srv, "shutdown", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "Shut down terminal 2")
	assert.Equal(t, []string{"1", "3"}, ts.running())

	_, err = runCommand(t, srv, "shutdown", "--all", "--yes")
	require.NoError(t, err)
	assert.Empty(t, ts.running())
}

func TestShutdownAllRejectsNames(t *testing.T) {
	_, srv := newServer(t, "1")
	_, err := runCommand(t, srv, "shutdown", "--all", "1")
	assert.Error(t, err)
}

func TestWatchCommand(t *testing.T) {
	_, srv := newServer(t, "1")
	originalHasTTY := tui.HasTTY
	tui.HasTTY = false
	t.Cleanup(func() { tui.HasTTY = originalHasTTY })

	var out bytes.Buffer
	cmd := newRootCommand()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--url", srv.URL, "--log-level", "none", "watch"})
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	require.NoError(t, cmd.ExecuteContext(ctx))
	assert.Contains(t, out.String(), "running: [1]")
}

func TestConfigCommand(t *testing.T) {
	_, srv := newServer(t)
	out, err := runCommand(t, srv, "config", "--token", "secret")
	require.NoError(t, err)
	assert.Contains(t, out, "base_url: "+srv.URL)
	assert.Contains(t, out, "token: sec***")
	assert.Contains(t, out, "poll_interval: 10s")
}
