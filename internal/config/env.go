package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Environment variables read when the matching flag is left at its default.
const (
	EnvPort        = "PORT"
	EnvBind        = "BIND"
	EnvAllowSubnet = "ALLOW_SUBNET"
	EnvDatabaseURL = "DATABASE_URL"
	EnvLogFile     = "LOG_FILE"
)

// LoadDotEnv loads KEY=value pairs from the given files (".env" when none
// are given) without overriding variables already set. Missing files are
// not an error.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	return nil
}

// EnvString returns the trimmed value of key, or defaultVal when unset.
func EnvString(key, defaultVal string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return defaultVal
}

// EnvInt returns key parsed as an integer, or defaultVal when unset.
func EnvInt(key string, defaultVal int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, v, err)
	}
	return n, nil
}
