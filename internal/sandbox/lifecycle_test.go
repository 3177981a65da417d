package sandbox

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sandboxrun/epicbox/internal/profile"
)

func fakeEngine(t *testing.T, route func(w http.ResponseWriter, r *http.Request) bool) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/_ping" {
			w.Header().Set("Api-Version", "1.43")
			w.WriteHeader(http.StatusOK)
			return
		}
		if route(w, r) {
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
}

func testRegistry() *profile.Registry {
	return profile.NewRegistry([]profile.Profile{profile.New("python", "python:3.10-slim")})
}

func TestRuntimeCreateSuccess(t *testing.T) {
	var requestedName string
	srv := fakeEngine(t, func(w http.ResponseWriter, r *http.Request) bool {
		switch {
		case r.Method == http.MethodPost && strings.Contains(r.URL.Path, "/containers/create"):
			requestedName = r.URL.Query().Get("name")
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]any{"Id": "abc123", "Warnings": []string{}})
			return true
		}
		return false
	})
	defer srv.Close()

	rt := NewRuntime(testRegistry(), srv.URL)
	sb, err := rt.Create(context.Background(), CreateOptions{ProfileName: "python"})
	require.NoError(t, err)
	assert.Equal(t, "abc123", sb.ContainerHandle)
	assert.Equal(t, 5, sb.RealtimeLimitS)
	assert.NotEmpty(t, sb.ID)
	assert.True(t, strings.HasPrefix(requestedName, "epicbox-"))
	assert.False(t, strings.HasPrefix(requestedName, "epicbox-test-"))
}

func TestRuntimeCreateUsesTestPrefixUnderTestRuntime(t *testing.T) {
	var requestedName string
	srv := fakeEngine(t, func(w http.ResponseWriter, r *http.Request) bool {
		switch {
		case r.Method == http.MethodPost && strings.Contains(r.URL.Path, "/containers/create"):
			requestedName = r.URL.Query().Get("name")
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]any{"Id": "abc123", "Warnings": []string{}})
			return true
		}
		return false
	})
	defer srv.Close()

	rt := NewTestRuntime(testRegistry(), srv.URL)
	_, err := rt.Create(context.Background(), CreateOptions{ProfileName: "python"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(requestedName, "epicbox-test-"))
}

func TestRuntimeCreateUnknownProfileIsConfigurationError(t *testing.T) {
	rt := NewRuntime(testRegistry(), "")
	_, err := rt.Create(context.Background(), CreateOptions{ProfileName: "nope"})
	require.Error(t, err)
	var notFound *profile.ErrNotFound
	assert.ErrorAs(t, err, &notFound)
}

func TestRuntimeCreateFallsBackToInspectOnNameConflict(t *testing.T) {
	srv := fakeEngine(t, func(w http.ResponseWriter, r *http.Request) bool {
		switch {
		case r.Method == http.MethodPost && strings.Contains(r.URL.Path, "/containers/create"):
			w.WriteHeader(http.StatusConflict)
			json.NewEncoder(w).Encode(map[string]any{"message": "Conflict. The container name is already in use"})
			return true
		case r.Method == http.MethodGet && strings.HasSuffix(r.URL.Path, "/json") && strings.Contains(r.URL.Path, "/containers/"):
			json.NewEncoder(w).Encode(map[string]any{
				"Id":    "existing123",
				"State": map[string]any{"Running": false, "ExitCode": 0, "OOMKilled": false},
			})
			return true
		}
		return false
	})
	defer srv.Close()

	rt := NewRuntime(testRegistry(), srv.URL)
	sb, err := rt.Create(context.Background(), CreateOptions{ProfileName: "python"})
	require.NoError(t, err)
	assert.Equal(t, "existing123", sb.ContainerHandle)
}

func TestWaitForExitReturnsStatusCode(t *testing.T) {
	srv := fakeEngine(t, func(w http.ResponseWriter, r *http.Request) bool {
		if strings.Contains(r.URL.Path, "/wait") {
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]any{"StatusCode": 137})
			return true
		}
		return false
	})
	defer srv.Close()

	exitCode, err := waitForExit(context.Background(), srv.URL, "abc123")
	require.NoError(t, err)
	assert.Equal(t, 137, exitCode)
}

func TestTruncateForLogPassesThroughShortOutput(t *testing.T) {
	assert.Equal(t, "hello", truncateForLog([]byte("hello")))
}

func TestTruncateForLogCapsLongOutput(t *testing.T) {
	long := strings.Repeat("a", 150)
	got := truncateForLog([]byte(long))
	assert.Equal(t, strings.Repeat("a", 100)+" *** truncated ***", got)
}

func TestRuntimeDestroySwallowsNotFound(t *testing.T) {
	srv := fakeEngine(t, func(w http.ResponseWriter, r *http.Request) bool {
		if r.Method == http.MethodDelete && strings.Contains(r.URL.Path, "/containers/") {
			w.WriteHeader(http.StatusNotFound)
			json.NewEncoder(w).Encode(map[string]any{"message": "no such container"})
			return true
		}
		return false
	})
	defer srv.Close()

	rt := NewRuntime(testRegistry(), srv.URL)
	rt.Destroy(context.Background(), &Sandbox{ContainerHandle: "gone"})
}
