package config

import (
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
)

// DefaultPath is where `her config init` writes the config file.
func DefaultPath() string {
	return filepath.Join(xdg.ConfigHome, AppName, fileName)
}

// FindFile returns the first existing config file in the XDG config
// directories, or "".
func FindFile() string {
	path, err := xdg.SearchConfigFile(filepath.Join(AppName, fileName))
	if err != nil {
		return ""
	}
	return path
}

func DefaultSessionDir() string {
	if xdg.StateHome != "" {
		return filepath.Join(xdg.StateHome, AppName)
	}
	return filepath.Join(os.TempDir(), AppName)
}
