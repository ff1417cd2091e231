package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
passenger_file: passengers.csv
map_file: map.csv
shortest_path_time_file: times.csv
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 1.0, cfg.DemandFraction)
	require.Equal(t, int64(42), cfg.Seed)
	require.Equal(t, 12, cfg.MPCHorizonSteps)
	require.Equal(t, 4, cfg.MPCControlSteps)
	require.Equal(t, "out", cfg.OutputDir)
}

func TestLoadRejectsMissingRequiredFields(t *testing.T) {
	path := writeConfig(t, `map_file: map.csv`)
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadRejectsInvalidMPCControlSteps(t *testing.T) {
	path := writeConfig(t, `
passenger_file: passengers.csv
map_file: map.csv
shortest_path_time_file: times.csv
mpc_horizon_steps: 4
mpc_control_steps: 8
`)
	_, err := Load(path)
	require.Error(t, err)
}

func TestMPCStepDurationConvertsSecondsToDuration(t *testing.T) {
	cfg := &Config{MPCStepSec: 300}
	require.Equal(t, 300*1e9, float64(cfg.MPCStepDuration()))
}
