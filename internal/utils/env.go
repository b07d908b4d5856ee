package utils

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// SafeEnv returns the environment variable value for key, or fallback if empty.
func SafeEnv(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

// EnvInt parses key as an integer; unset keeps fallback.
func EnvInt(key string, fallback int) (int, error) {
	v := SafeEnv(key, "")
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

// EnvDuration parses key with time.ParseDuration; unset keeps fallback.
func EnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := SafeEnv(key, "")
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

// EnvList splits a comma-separated key, dropping blanks; unset keeps fallback.
func EnvList(key string, fallback []string) []string {
	v := SafeEnv(key, "")
	if v == "" {
		return fallback
	}
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
