package utils

import (
	"os"
)

// GetEnv retrieves an environment variable or returns a default value if
// not set.
func GetEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// ExpandEnvVars expands ${VAR} references in a string, typically a raw
// config file before parsing.
func ExpandEnvVars(s string) string {
	return os.ExpandEnv(s)
}
