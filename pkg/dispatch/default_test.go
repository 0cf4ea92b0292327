package dispatch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	d := Default()
	require.NotNil(t, d)
	assert.Same(t, d, Default())
	assert.NotNil(t, d.Platform())
	assert.True(t, d.Settings().Enabled)
}
