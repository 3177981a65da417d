package profile

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookupUnknownProfile(t *testing.T) {
	r := NewRegistry(nil)
	_, err := r.Lookup("nope")
	require.Error(t, err)

	var notFound *ErrNotFound
	require.True(t, errors.As(err, &notFound))
	assert.Equal(t, "nope", notFound.Name)
	assert.Equal(t, "Profile not found: nope", err.Error())
}

func TestConfigureAppliesDefaultUser(t *testing.T) {
	r := NewRegistry([]Profile{{Name: "python", Image: "python:3.11-slim"}})
	p, err := r.Lookup("python")
	require.NoError(t, err)
	assert.Equal(t, DefaultUser, p.User)
}

func TestConfigureReplacesAtomically(t *testing.T) {
	r := NewRegistry([]Profile{{Name: "a", Image: "a:1"}})
	r.Configure([]Profile{{Name: "b", Image: "b:1"}})

	_, err := r.Lookup("a")
	assert.Error(t, err)

	p, err := r.Lookup("b")
	require.NoError(t, err)
	assert.Equal(t, "b:1", p.Image)
}
