//go:build linux || darwin || freebsd || netbsd || openbsd

package wal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSecondOpenIsRejected(t *testing.T) {
	cfg := testConfig(t)
	w := openTestWAL(t, cfg)

	_, err := Open(cfg)
	assert.Error(t, err)

	other := cfg
	other.Name = "other"
	w2, err := Open(other)
	require.NoError(t, err)
	require.NoError(t, w2.Close())

	require.NoError(t, w.Close())
	w3, err := Open(cfg)
	require.NoError(t, err)
	require.NoError(t, w3.Close())
}
