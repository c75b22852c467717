package ldap

import (
	"regexp"
	"strings"
)

// WhoAmIResult contains the parsed response of the "Who Am I?" extended operation (RFC 4532).
type WhoAmIResult struct {
	AuthzID           string // Raw authorization ID from server
	DN                string // Set when the identity is a DN
	UserPrincipalName string // Set when the identity is a UPN
	SAMAccountName    string // Set when the identity is DOMAIN\user
	SID               string // Set when the identity is a SID
	Format            string // "dn", "upn", "sam", "sid", "empty" or "unknown"
}

var (
	rootDNRegex = regexp.MustCompile(`(?i)dc=.*`)
	dnFormat    = regexp.MustCompile(`(?i)^[a-z][a-z0-9-]*=.+`)
	sidFormat   = regexp.MustCompile(`^S-\d+-\d+(-\d+)*$`)
)

// RootDN returns the dc=... suffix of the identity, or "" if it has none.
func (r *WhoAmIResult) RootDN() string {
	return rootDNRegex.FindString(r.AuthzID)
}

// parseAuthzID fills the format-specific fields from AuthzID.
func (r *WhoAmIResult) parseAuthzID() {
	authzID := r.AuthzID

	if authzID == "" {
		r.Format = "empty"
		return
	}

	// "dn:" is the RFC 4513 form; AD answers with "u:DOMAIN\user"
	clean := strings.TrimPrefix(strings.TrimPrefix(authzID, "dn:"), "u:")

	switch {
	case dnFormat.MatchString(clean):
		r.Format = "dn"
		r.DN = clean
	case strings.Contains(clean, "@") && !strings.Contains(clean, "\\"):
		r.Format = "upn"
		r.UserPrincipalName = clean
	case strings.Contains(clean, "\\") && !strings.HasPrefix(clean, "S-"):
		r.Format = "sam"
		r.SAMAccountName = clean
	case sidFormat.MatchString(clean):
		r.Format = "sid"
		r.SID = clean
	default:
		r.Format = "unknown"
	}
}
