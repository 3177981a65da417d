package epicbox

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigureAndCreateRoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/_ping" {
			w.Header().Set("Api-Version", "1.43")
			return
		}
		if r.Method == http.MethodPost && strings.Contains(r.URL.Path, "/containers/create") {
			json.NewEncoder(w).Encode(map[string]any{"Id": "c1"})
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	Configure([]Profile{NewProfile("python", "python:3.10-slim")}, srv.URL)

	sb, err := Create(context.Background(), CreateOptions{ProfileName: "python"})
	require.NoError(t, err)
	assert.Equal(t, "c1", sb.ContainerHandle)
}

func TestCreateUnknownProfileFails(t *testing.T) {
	Configure([]Profile{NewProfile("python", "python:3.10-slim")}, "")
	_, err := Create(context.Background(), CreateOptions{ProfileName: "does-not-exist"})
	assert.Error(t, err)
}
