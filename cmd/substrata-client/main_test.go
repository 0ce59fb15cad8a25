package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSubstrataURL(t *testing.T) {
	cases := []struct {
		raw      string
		host     string
		world    string
		parcelID string
	}{
		{"sub://example.com", "example.com:7600", "", ""},
		{"sub://example.com:7601", "example.com:7601", "", ""},
		{"sub://example.com/cyberia", "example.com:7600", "cyberia", ""},
		{"sub://example.com/parcel/12", "example.com:7600", "", "12"},
		{"sub://example.com/cyberia/parcel/12", "example.com:7600", "cyberia", "12"},
	}
	for _, c := range cases {
		host, world, parcelID, err := parseSubstrataURL(c.raw)
		require.NoError(t, err, c.raw)
		assert.Equal(t, c.host, host, c.raw)
		assert.Equal(t, c.world, world, c.raw)
		assert.Equal(t, c.parcelID, parcelID, c.raw)
	}
}

func TestParseSubstrataURLErrors(t *testing.T) {
	for _, raw := range []string{
		"http://example.com",
		"sub://",
		"sub://example.com/world/garden/12",
		"sub://example.com/a/b/c/d",
	} {
		_, _, _, err := parseSubstrataURL(raw)
		assert.Error(t, err, raw)
	}
}
