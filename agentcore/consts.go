package agentcore

import (
	"os"
	"path/filepath"
)

const (
	DefaultAppName     = "agentcore"
	DefaultSessionID   = "default"
	DefaultDriver      = "libsql"
	DefaultDatabaseDSN = "agentcore.db"
)

var (
	// Version is overridden at build time with -ldflags "-X".
	Version = "dev"

	DefaultConfigPath  = filepath.Join(userConfigDir(), DefaultAppName)
	DefaultDatabaseDir = filepath.Join(userDataDir(), DefaultAppName)
)

func userConfigDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return dir
	}
	return "."
}

func userDataDir() string {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return dir
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".local", "share")
	}
	return "."
}
