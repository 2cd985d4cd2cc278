package config

import (
	"os"

	"github.com/joho/godotenv"

	"github.com/banshee-data/loadprofile/internal/results"
)

// Environment variables read by the command-line tools.
const (
	EnvDataDir = "LOADPROFILE_DATA_DIR"
	EnvOutput  = "LOADPROFILE_OUTPUT"
	EnvConfig  = "LOADPROFILE_CONFIG"
	EnvDB      = "LOADPROFILE_DB"
)

// Env holds flag defaults taken from the environment.
type Env struct {
	DataDir    string
	OutputPath string
	ConfigPath string
	DBPath     string
}

// LoadEnv reads a .env file from the working directory when present, then
// returns the environment defaults. Variables already set in the process
// win over the file.
func LoadEnv() Env {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	return Env{
		DataDir:    getEnv(EnvDataDir, "data"),
		OutputPath: getEnv(EnvOutput, results.DefaultPath),
		ConfigPath: getEnv(EnvConfig, ""),
		DBPath:     getEnv(EnvDB, ""),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
