package env

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

var Env map[string]string

var envFiles = []string{
	".env",          // Current directory
	"../../.env",    // From cmd/formfox to project root
	"../../../.env", // Fallback for deeper nesting
}

func GetEnv(key, def string) string {
	// First check our loaded Env map
	if val, ok := Env[key]; ok {
		return val
	}
	// Fallback to OS environment variables (for Docker/tests)
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

// GetEnvBool parses a boolean value; unparsable values return def.
func GetEnvBool(key string, def bool) bool {
	v, err := strconv.ParseBool(strings.TrimSpace(GetEnv(key, "")))
	if err != nil {
		return def
	}
	return v
}

// GetEnvInt parses an integer value; unparsable values return def.
func GetEnvInt(key string, def int) int {
	v, err := strconv.Atoi(strings.TrimSpace(GetEnv(key, "")))
	if err != nil {
		return def
	}
	return v
}

// GetEnvDuration parses values like "15m" or "24h"; unparsable or
// non-positive values return def.
func GetEnvDuration(key string, def time.Duration) time.Duration {
	v, err := time.ParseDuration(strings.TrimSpace(GetEnv(key, "")))
	if err != nil || v <= 0 {
		return def
	}
	return v
}

func SetupEnvFile() {
	if LoadEnvFileIfPresent() {
		return
	}
	// If we get here, no env file was found
	panic("No .env file found in any of the expected locations")
}

// LoadEnvFileIfPresent reads the first .env file found and reports whether
// one was loaded. Used by commands that may run with OS environment only.
func LoadEnvFileIfPresent() bool {
	for _, envFile := range envFiles {
		values, err := godotenv.Read(envFile)
		if err == nil {
			Env = values
			return true
		}
	}
	return false
}

func IsDev() bool {
	return GetEnv("APP_ENV", "prod") == "dev"
}
