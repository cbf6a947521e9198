package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/midoshouse/racebot"
)

func TestGetEnv(t *testing.T) {
	t.Setenv("RACEBOT_TEST_STR", "value")
	assert.Equal(t, "value", GetEnv("RACEBOT_TEST_STR", "fallback"))
	assert.Equal(t, "fallback", GetEnv("RACEBOT_TEST_UNSET", "fallback"))

	t.Setenv("RACEBOT_TEST_EMPTY", "")
	assert.Equal(t, "fallback", GetEnv("RACEBOT_TEST_EMPTY", "fallback"))
}

func TestGetEnvInt(t *testing.T) {
	t.Setenv("RACEBOT_TEST_INT", "42")
	assert.Equal(t, 42, GetEnvInt("RACEBOT_TEST_INT", 7))
	assert.Equal(t, 7, GetEnvInt("RACEBOT_TEST_UNSET", 7))

	t.Setenv("RACEBOT_TEST_BAD_INT", "forty-two")
	assert.Equal(t, 7, GetEnvInt("RACEBOT_TEST_BAD_INT", 7))
}

func TestGetEnvBool(t *testing.T) {
	t.Setenv("RACEBOT_TEST_BOOL", "true")
	assert.True(t, GetEnvBool("RACEBOT_TEST_BOOL", false))
	assert.False(t, GetEnvBool("RACEBOT_TEST_UNSET", false))

	t.Setenv("RACEBOT_TEST_BAD_BOOL", "yep")
	assert.True(t, GetEnvBool("RACEBOT_TEST_BAD_BOOL", true))
}

func TestGetEnvDuration(t *testing.T) {
	t.Setenv("RACEBOT_TEST_DUR", "45s")
	assert.Equal(t, 45*time.Second, GetEnvDuration("RACEBOT_TEST_DUR", time.Minute))
	assert.Equal(t, time.Minute, GetEnvDuration("RACEBOT_TEST_UNSET", time.Minute))

	t.Setenv("RACEBOT_TEST_BAD_DUR", "soon")
	assert.Equal(t, time.Minute, GetEnvDuration("RACEBOT_TEST_BAD_DUR", time.Minute))
}

func TestLoad_ReadsEnvFile(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envPath, []byte("RACEBOT_TEST_FROM_FILE=loaded\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("RACEBOT_TEST_FROM_FILE") })

	require.NoError(t, Load(envPath))
	assert.Equal(t, "loaded", os.Getenv("RACEBOT_TEST_FROM_FILE"))
}

func TestLoad_MissingFileErrors(t *testing.T) {
	assert.Error(t, Load(filepath.Join(t.TempDir(), "nope.env")))
}

func TestKnownGoodVersions(t *testing.T) {
	t.Setenv("RACEBOT_TEST_VERSIONS", "Dev:6.2.181,DevFenhl:8.1.32-105")

	versions, err := KnownGoodVersions("RACEBOT_TEST_VERSIONS")
	require.NoError(t, err)
	require.Len(t, versions, 2)
	assert.Equal(t, racebot.Version{Branch: racebot.BranchDev, Major: 6, Minor: 2, Patch: 181}, versions[0])
	assert.Equal(t, racebot.Version{Branch: racebot.BranchDevFenhl, Major: 8, Minor: 1, Patch: 32, Supplementary: 105}, versions[1])
}

func TestKnownGoodVersions_Unset(t *testing.T) {
	versions, err := KnownGoodVersions("RACEBOT_TEST_VERSIONS_UNSET")
	require.NoError(t, err)
	assert.Nil(t, versions)
}

func TestKnownGoodVersions_Invalid(t *testing.T) {
	t.Setenv("RACEBOT_TEST_VERSIONS", "6.2.181")
	_, err := KnownGoodVersions("RACEBOT_TEST_VERSIONS")
	assert.ErrorContains(t, err, "branch:version")

	t.Setenv("RACEBOT_TEST_VERSIONS", "Dev:latest")
	_, err = KnownGoodVersions("RACEBOT_TEST_VERSIONS")
	assert.Error(t, err)
}
