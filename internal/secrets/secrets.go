// Package secrets resolves credentials referenced from the configuration,
// either through environment variables or from mounted secret files.
// Secret values are never logged.
package secrets

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/tphakala/pulseshim/internal/errors"
	"github.com/tphakala/pulseshim/internal/logger"
)

const (
	componentSecrets = "secrets"

	// Secrets are tokens and DSNs, not files worth streaming
	maxSecretFileSize = 64 * 1024
)

// ExpandString resolves ${VAR} and ${VAR:-default} references. A reference
// without a default to an unset variable is an error.
func ExpandString(s string) (string, error) {
	if s == "" {
		return "", nil
	}

	var missing []string
	expanded := os.Expand(s, func(key string) string {
		name, fallback, hasFallback := strings.Cut(key, ":-")
		if value := os.Getenv(name); value != "" {
			return value
		}
		if hasFallback {
			return fallback
		}
		missing = append(missing, name)
		return ""
	})

	if len(missing) > 0 {
		return "", errors.Newf("missing required environment variable(s): %s", strings.Join(missing, ", ")).
			Component(componentSecrets).
			Category(errors.CategoryConfiguration).
			Build()
	}
	return expanded, nil
}

// ReadFile reads a secret from a file such as /run/secrets/sentry_dsn.
// Trailing newlines are trimmed; files readable by group or others are
// accepted with a warning.
func ReadFile(path string) (string, error) {
	if path == "" {
		return "", errors.Newf("secret file path is empty").
			Component(componentSecrets).
			Category(errors.CategoryValidation).
			Build()
	}

	cleanPath := filepath.Clean(path)
	info, err := os.Stat(cleanPath)
	if err != nil {
		category := errors.CategoryFileIO
		if os.IsNotExist(err) {
			category = errors.CategoryNotFound
		}
		return "", errors.New(err).
			Component(componentSecrets).
			Category(category).
			Context("path", cleanPath).
			Build()
	}

	switch {
	case !info.Mode().IsRegular():
		return "", errors.Newf("secret path is not a regular file: %s", cleanPath).
			Component(componentSecrets).
			Category(errors.CategoryValidation).
			Build()
	case info.Size() > maxSecretFileSize:
		return "", errors.Newf("secret file too large (max %d bytes): %s", maxSecretFileSize, cleanPath).
			Component(componentSecrets).
			Category(errors.CategoryValidation).
			Build()
	}

	if perm := info.Mode().Perm(); perm&0o077 != 0 {
		logger.Global().Module(componentSecrets).Warn("secret file has group/other permissions",
			logger.String("path", cleanPath),
			logger.String("mode", perm.String()))
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return "", errors.New(err).
			Component(componentSecrets).
			Category(errors.CategoryFileIO).
			Context("path", cleanPath).
			Build()
	}

	secret := strings.TrimRight(string(data), "\r\n")
	if secret == "" {
		return "", errors.Newf("secret file is empty: %s", cleanPath).
			Component(componentSecrets).
			Category(errors.CategoryValidation).
			Build()
	}
	return secret, nil
}

// Resolve picks the secret from filePath when set, otherwise from value
// with environment references expanded. Both empty resolves to "".
func Resolve(filePath, value string) (string, error) {
	if filePath != "" {
		return ReadFile(filePath)
	}
	return ExpandString(value)
}

// MustResolve is Resolve for required secrets
func MustResolve(fieldName, filePath, value string) (string, error) {
	secret, err := Resolve(filePath, value)
	if err != nil {
		return "", err
	}
	if secret == "" {
		return "", errors.Newf("%s is required but not provided", fieldName).
			Component(componentSecrets).
			Category(errors.CategoryConfiguration).
			Build()
	}
	return secret, nil
}
