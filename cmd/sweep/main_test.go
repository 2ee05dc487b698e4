package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAxis(t *testing.T) {
	axis, err := parseAxis("ki=0, 0.01,0.02")
	require.NoError(t, err)
	assert.Equal(t, "ki", axis.Name)
	assert.Equal(t, []float64{0, 0.01, 0.02}, axis.Values)

	for _, bad := range []string{"ki", "=1,2", "ki=", "ki=a,b"} {
		_, err := parseAxis(bad)
		assert.Error(t, err, bad)
	}
}

func TestAxisFlags_Repeated(t *testing.T) {
	var axes axisFlags
	require.NoError(t, axes.Set("ki=0,0.01"))
	require.NoError(t, axes.Set("kd=0.1,0.2,0.3"))
	assert.Len(t, axes, 2)
	assert.Equal(t, "ki,kd", axes.String())
}
