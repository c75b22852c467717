package ldap

import (
	"crypto/sha1" //nolint:gosec // {SHA} is the scheme the directory expects, not a choice
	"encoding/base64"
)

// FormatSHAPassword hashes password into the RFC 2307 userPassword "{SHA}" form.
func FormatSHAPassword(password string) string {
	sum := sha1.Sum([]byte(password)) //nolint:gosec
	return "{SHA}" + base64.StdEncoding.EncodeToString(sum[:])
}
