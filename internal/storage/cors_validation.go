package storage

import (
	"errors"
	"strings"
)

// ValidateCORSOrigins rejects wildcard origins and enforces HTTPS
// (except localhost, for development). config.Load calls this against
// CORS_ALLOWED_ORIGINS at startup so a misconfigured allow-list fails
// fast instead of silently reflecting an insecure origin later.
func ValidateCORSOrigins(origins []string) error {
	for _, origin := range origins {
		if origin == "*" {
			return errors.New("wildcard CORS origin not allowed")
		}
		if !strings.HasPrefix(origin, "https://") && !strings.HasPrefix(origin, "http://localhost") {
			return errors.New("only HTTPS origins allowed (except http://localhost for development)")
		}
		if origin == "" || strings.Contains(origin, " ") {
			return errors.New("invalid origin format")
		}
	}
	return nil
}
