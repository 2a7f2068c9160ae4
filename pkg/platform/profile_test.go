// Copyright (C) 2026  RepRap Go Firmware Authors
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package platform

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeProfile(t *testing.T, yaml string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "board.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))
	return path
}

func TestLoadProfileOverridesDefaults(t *testing.T) {
	p, err := LoadProfile(writeProfile(t, "name: bench\nzprobe_channel: 7\n"))
	require.NoError(t, err)
	assert.Equal(t, "bench", p.Name)
	assert.Equal(t, 7, p.ZProbeChannel)
	assert.Len(t, p.HeaterChannels, Heaters)
}

func TestLoadProfileRejectsShortHeaterChannels(t *testing.T) {
	// A channel list shorter than the heater count would index out of
	// range during ADC sequencing.
	_, err := LoadProfile(writeProfile(t, "heater_channels: [5, 4]\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "heater channels")
}

func TestLoadProfileRejectsInvertedAxisLimits(t *testing.T) {
	_, err := LoadProfile(writeProfile(t, "axes:\n  minima: [0, 0, 200]\n  maxima: [210, 210, 140]\n  home_feedrates: [3000, 3000, 60]\n"))
	require.Error(t, err)
}

func TestDefaultProfileIsValid(t *testing.T) {
	assert.NoError(t, DefaultProfile().validate())
}
