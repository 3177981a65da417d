package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseManifestAppliesDefaultUser(t *testing.T) {
	raw := []byte(`
profiles:
  - name: python
    image: python:3.10-slim
    network_disabled: true
  - name: node
    image: node:20
    user: runner
`)
	profiles, err := ParseManifest(raw)
	require.NoError(t, err)
	require.Len(t, profiles, 2)
	assert.Equal(t, "sandbox", profiles[0].User)
	assert.Equal(t, "runner", profiles[1].User)
	assert.True(t, profiles[0].NetworkDisabled)
}

func TestParseManifestEmptyYieldsNoProfiles(t *testing.T) {
	profiles, err := ParseManifest([]byte(``))
	require.NoError(t, err)
	assert.Empty(t, profiles)
}

func TestParseManifestRejectsMalformedYAML(t *testing.T) {
	_, err := ParseManifest([]byte("profiles: [this is not valid"))
	assert.Error(t, err)
}
