package dirs

import (
	"os"
	"path/filepath"
)

func platformDataDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(homeDir, "Library", "Application Support")
}
