package server

import "strings"

// checkOrigin validates a browser origin against the configured allowed
// origins. Prefix matching lets a configured host accept any port.
func checkOrigin(origin string, allowed []string) bool {
	if origin == "" {
		return true
	}
	for _, allowedOrigin := range allowed {
		if allowedOrigin == "*" || strings.HasPrefix(origin, allowedOrigin) {
			return true
		}
	}
	return false
}
