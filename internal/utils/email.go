package utils

import (
	"strings"
)

// ExtractAddressFromHeader reduces a From header value to the bare address,
// lowercased. "Display Name <User@Example.COM>" becomes "user@example.com".
func ExtractAddressFromHeader(sender string) string {
	if sender == "" {
		return ""
	}

	sender = strings.TrimSpace(sender)

	// Handle potential angle brackets (e.g., "Name <email@domain.com>")
	if strings.Contains(sender, "<") && strings.Contains(sender, ">") {
		startIdx := strings.LastIndex(sender, "<") + 1
		endIdx := strings.LastIndex(sender, ">")
		if startIdx > 0 && endIdx > startIdx {
			sender = sender[startIdx:endIdx]
		}
	}

	return strings.ToLower(strings.TrimSpace(sender))
}

// ExtractDomainFromEmail returns the lowercased domain part of an address,
// or empty when the value does not look like an address.
func ExtractDomainFromEmail(email string) string {
	email = ExtractAddressFromHeader(email)

	parts := strings.Split(email, "@")
	if len(parts) != 2 || parts[1] == "" {
		return ""
	}

	return parts[1]
}

// SanitizeHeaderValue strips CR and LF so untrusted text is safe to place in
// an outbound HTTP header.
func SanitizeHeaderValue(value string) string {
	value = strings.ReplaceAll(value, "\r", " ")
	value = strings.ReplaceAll(value, "\n", " ")
	return strings.TrimSpace(value)
}
