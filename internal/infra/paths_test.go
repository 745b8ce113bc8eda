package infra

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectPaths_MatchesEUID(t *testing.T) {
	paths := DetectPaths()

	if os.Geteuid() == 0 {
		assert.Equal(t, ExecModeSystem, paths.Mode)
		assert.Equal(t, "/var/lib/detoxd", paths.DataDir)
		return
	}
	assert.Equal(t, ExecModeUser, paths.Mode)
	assert.Equal(t, filepath.Join(GetRealUserHome(), ".detoxd"), paths.DataDir)
}

func TestPathsFor_AllFilesInsideDataDir(t *testing.T) {
	paths := PathsFor(ExecModeUser, "/tmp/detox-test")

	for _, p := range []string{paths.StateFile, paths.StateDB, paths.RegistryFile, paths.LogFile, paths.ConfigFile} {
		assert.Equal(t, "/tmp/detox-test", filepath.Dir(p))
	}
	assert.Equal(t, "user", paths.Mode.String())
	assert.Equal(t, "system (root)", ExecModeSystem.String())
	assert.Equal(t, "unknown", ExecMode("other").String())
}

func TestGetRealUserHome_FallsBackWithoutSudo(t *testing.T) {
	t.Setenv("SUDO_USER", "")
	home, _ := os.UserHomeDir()
	assert.Equal(t, home, GetRealUserHome())
}
