package infra

import (
	"os"
	"os/user"
	"path/filepath"
)

// ExecMode represents whether the daemon runs for one user or system-wide.
type ExecMode string

const (
	// ExecModeUser keeps data under the user's home directory
	ExecModeUser ExecMode = "user"
	// ExecModeSystem keeps data under /var/lib (running as root)
	ExecModeSystem ExecMode = "system"
)

const (
	stateFileName    = "state.json"
	stateDBName      = "state.db"
	registryFileName = ".detoxd_registry"
	logFileName      = "detoxd.log"
	configFileName   = "config.yaml"
)

// DataPaths holds every file location the daemon uses.
type DataPaths struct {
	Mode         ExecMode
	DataDir      string
	StateFile    string // JSON snapshot (file backend)
	StateDB      string // SQLCipher snapshot (encrypted backend)
	RegistryFile string
	LogFile      string
	ConfigFile   string
	IsRoot       bool
}

// DetectPaths chooses the data directory from the effective UID.
func DetectPaths() DataPaths {
	if os.Geteuid() == 0 {
		return PathsFor(ExecModeSystem, "/var/lib/detoxd")
	}
	return PathsFor(ExecModeUser, filepath.Join(GetRealUserHome(), ".detoxd"))
}

// PathsFor lays out all files under dataDir.
func PathsFor(mode ExecMode, dataDir string) DataPaths {
	return DataPaths{
		Mode:         mode,
		DataDir:      dataDir,
		StateFile:    filepath.Join(dataDir, stateFileName),
		StateDB:      filepath.Join(dataDir, stateDBName),
		RegistryFile: filepath.Join(dataDir, registryFileName),
		LogFile:      filepath.Join(dataDir, logFileName),
		ConfigFile:   filepath.Join(dataDir, configFileName),
		IsRoot:       os.Geteuid() == 0,
	}
}

// String returns a human-readable description of the mode.
func (m ExecMode) String() string {
	switch m {
	case ExecModeSystem:
		return "system (root)"
	case ExecModeUser:
		return "user"
	default:
		return "unknown"
	}
}

// GetRealUserHome returns the real user's home directory, even when running under sudo.
// Under sudo, os.UserHomeDir() returns root's home, so we use SUDO_USER to find the real user.
func GetRealUserHome() string {
	if sudoUser := os.Getenv("SUDO_USER"); sudoUser != "" {
		if u, err := user.Lookup(sudoUser); err == nil {
			return u.HomeDir
		}
	}
	home, _ := os.UserHomeDir()
	return home
}
