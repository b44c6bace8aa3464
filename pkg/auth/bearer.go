package auth

import "strings"

const bearerPrefix = "Bearer "

// StripBearer returns the raw token from a value that may carry a Bearer prefix
func StripBearer(token string) string {
	token = strings.TrimSpace(token)
	if len(token) >= len(bearerPrefix) && strings.EqualFold(token[:len(bearerPrefix)], bearerPrefix) {
		return strings.TrimSpace(token[len(bearerPrefix):])
	}
	return token
}

// BearerHeader formats token as an Authorization header value.
// Tokens that already carry the prefix are not prefixed twice.
func BearerHeader(token string) string {
	raw := StripBearer(token)
	if raw == "" {
		return ""
	}
	return bearerPrefix + raw
}
