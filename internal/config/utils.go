package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// envReader reads typed settings from the process environment. Malformed
// values fall back to the default and are collected so New can reject them.
type envReader struct {
	errs []error
}

func (r *envReader) lookup(key string) (string, bool) {
	value, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}
	return strings.TrimSpace(value), true
}

func (r *envReader) invalid(key, value string, err error) {
	r.errs = append(r.errs, fmt.Errorf("%s=%q: %w", key, value, err))
}

func (r *envReader) String(key, defaultVal string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return defaultVal
}

func (r *envReader) Int(key string, defaultVal int) int {
	value, ok := r.lookup(key)
	if !ok || value == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(value)
	if err != nil {
		r.invalid(key, value, err)
		return defaultVal
	}
	return v
}

func (r *envReader) Bool(key string, defaultVal bool) bool {
	value, ok := r.lookup(key)
	if !ok || value == "" {
		return defaultVal
	}
	v, err := strconv.ParseBool(value)
	if err != nil {
		r.invalid(key, value, err)
		return defaultVal
	}
	return v
}

func (r *envReader) Duration(key string, defaultVal time.Duration) time.Duration {
	value, ok := r.lookup(key)
	if !ok || value == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		r.invalid(key, value, err)
		return defaultVal
	}
	return d
}

func (r *envReader) Float(key string, defaultVal float64) float64 {
	value, ok := r.lookup(key)
	if !ok || value == "" {
		return defaultVal
	}
	v, err := strconv.ParseFloat(value, 64)
	if err != nil {
		r.invalid(key, value, err)
		return defaultVal
	}
	return v
}

// List splits a comma separated value, dropping empty entries.
func (r *envReader) List(key string, defaults []string) []string {
	value, ok := r.lookup(key)
	if !ok {
		return defaults
	}
	parts := strings.Split(value, ",")
	filtered := make([]string, 0, len(parts))
	for _, part := range parts {
		if p := strings.TrimSpace(part); p != "" {
			filtered = append(filtered, p)
		}
	}
	if len(filtered) == 0 {
		return defaults
	}
	return filtered
}

func (r *envReader) Err() error {
	if len(r.errs) == 0 {
		return nil
	}
	return fmt.Errorf("invalid configuration: %w", errors.Join(r.errs...))
}
