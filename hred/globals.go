package internal

import (
	"log"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
)

var (
	// DefaultAppName is used for config lookup paths and env prefixes
	DefaultAppName    = "hred"
	DefaultConfigPath = filepath.Join(getHomeDir(), ".config", DefaultAppName)
	DefaultSaveDir    = filepath.Join(DefaultConfigPath, "checkpoints")

	// Embedding builder defaults
	DefaultEmbeddingDim    = 300
	DefaultEmbeddingStdDev = 0.01
	DefaultEmbeddingSeed   = int64(123456)
	DefaultOutputSuffix    = ".emb"

	// Registry is disabled unless a DSN is configured
	DefaultRegistryDSN = ""
)

func getHomeDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		// Fallback to current working directory if home directory is unavailable
		cwd, cwdErr := os.Getwd()
		if cwdErr != nil {
			log.Printf("Unable to get home or working directory, using /tmp: %v", err)
			return "/tmp"
		}
		log.Printf("Unable to get home directory, using current working directory: %v", err)
		return cwd
	}
	return homeDir
}

// GetLogger returns a properly configured zerolog logger instance
func GetLogger() zerolog.Logger {
	return zerolog.New(os.Stderr).With().Timestamp().Logger()
}
