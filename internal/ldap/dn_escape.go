package ldap

import (
	"fmt"
	"strings"

	"github.com/go-ldap/ldap/v3"
)

// EscapeDNValue escapes an attribute value for use inside a DN, as described in RFC 4514:
//   - , + " \ < > ; are always escaped
//   - a leading # or space and a trailing space are escaped
//   - NUL is written as \00
//
// Examples:
//   - "Doe, John" → "Doe\, John"
//   - " John " → "\ John\ "
//   - "#123" → "\#123"
func EscapeDNValue(value string) string {
	if value == "" {
		return value
	}

	var result strings.Builder
	result.Grow(len(value) + 10)

	for i, r := range value {
		switch {
		case strings.ContainsRune(`,+"\<>;`, r):
			result.WriteByte('\\')
			result.WriteRune(r)
		case r == '#' && i == 0:
			result.WriteString(`\#`)
		case r == ' ' && (i == 0 || i == len(value)-1):
			result.WriteString(`\ `)
		case r == 0:
			result.WriteString(`\00`)
		default:
			result.WriteRune(r)
		}
	}

	return result.String()
}

// UnescapeDNValue reverses EscapeDNValue using the go-ldap DN parser.
// Values that do not parse are returned unchanged.
func UnescapeDNValue(value string) string {
	if !strings.Contains(value, `\`) {
		return value
	}

	dn, err := ldap.ParseDN("cn=" + value)
	if err != nil || len(dn.RDNs) != 1 || len(dn.RDNs[0].Attributes) != 1 {
		return value
	}
	return dn.RDNs[0].Attributes[0].Value
}

// BuildDN joins an escaped RDN and a parent DN: BuildDN("cn", "Doe, John", "ou=People,dc=example,dc=com").
func BuildDN(attribute, value, parent string) (string, error) {
	if attribute == "" || value == "" {
		return "", fmt.Errorf("RDN attribute and value cannot be empty")
	}

	rdn := attribute + "=" + EscapeDNValue(value)
	if parent == "" {
		return rdn, nil
	}
	if _, err := ldap.ParseDN(parent); err != nil {
		return "", fmt.Errorf("invalid parent DN %q: %w", parent, err)
	}
	return rdn + "," + parent, nil
}

// EqualDN reports whether a and b name the same entry, ignoring case and
// insignificant spacing. Unparseable DNs fall back to a case-insensitive
// string comparison.
func EqualDN(a, b string) bool {
	left, errA := ldap.ParseDN(a)
	right, errB := ldap.ParseDN(b)
	if errA != nil || errB != nil {
		return strings.EqualFold(a, b)
	}
	return left.EqualFold(right)
}
