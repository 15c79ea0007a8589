package relay_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gregoryjjb/pinrelay/gpio/gpiotest"
	"gregoryjjb/pinrelay/relay"
)

func TestRegistry(t *testing.T) {
	facility := gpiotest.New()
	registry := relay.NewRegistry()

	p12, err := facility.Open(12)
	require.NoError(t, err)
	p7, err := facility.Open(7)
	require.NoError(t, err)

	require.NoError(t, registry.Add(p12))
	require.NoError(t, registry.Add(p7))
	assert.Error(t, registry.Add(p12), "a registered pin is never replaced")
	assert.Equal(t, 2, registry.Len())
	assert.Equal(t, []int{7, 12}, registry.Pins())

	assert.False(t, registry.OpenedAt(12).IsZero())
	assert.True(t, registry.OpenedAt(3).IsZero())

	got, ok := registry.Lookup(12)
	assert.True(t, ok)
	assert.Same(t, p12, got)
	_, ok = registry.Lookup(3)
	assert.False(t, ok)

	facility.FailRelease[7] = errors.New("stuck")
	released, err := registry.ReleaseAll()
	assert.Equal(t, 1, released, "a failed release is not counted")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "release pin 7")
	assert.Equal(t, 0, registry.Len())
	assert.True(t, registry.OpenedAt(12).IsZero())
	assert.Equal(t, 1, facility.Releases(7))
	assert.Equal(t, 1, facility.Releases(12))
}
