package cmd

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LENAX/async-actions/pkg/api/dto"
)

func TestParseTargets(t *testing.T) {
	targets, err := parseTargets([]string{"shop.Order:1", "shop.Order:a:b"})
	require.NoError(t, err)
	assert.Equal(t, []dto.TargetRequest{
		{Type: "shop.Order", ID: "1"},
		{Type: "shop.Order", ID: "a:b"},
	}, targets)

	for _, bad := range []string{"shop.Order", ":1", "shop.Order:"} {
		_, err := parseTargets([]string{bad})
		assert.Error(t, err, bad)
	}
}

func TestParseParams(t *testing.T) {
	params, err := parseParams([]string{"carrier=ups", "count=3", "express=true", "tags=[\"a\"]", "empty="})
	require.NoError(t, err)
	assert.Equal(t, "ups", params["carrier"])
	assert.Equal(t, float64(3), params["count"])
	assert.Equal(t, true, params["express"])
	assert.Equal(t, []interface{}{"a"}, params["tags"])
	assert.Equal(t, "", params["empty"])

	_, err = parseParams([]string{"noequals"})
	assert.Error(t, err)
}

func TestVersionCommand(t *testing.T) {
	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetArgs([]string{"version"})
	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, buf.String(), Version)
}
