package ldap

import (
	"fmt"
	"regexp"

	"github.com/bwmarrin/go-objectsid"
)

var sidStringRegex = regexp.MustCompile(`^S-1-\d+(-\d+)*$`)

// SIDHandler converts Active Directory security identifiers.
// objectSid is stored in binary form; callers want the S-1-5-21-... form.
type SIDHandler struct{}

// NewSIDHandler creates a new SID handler instance.
func NewSIDHandler() *SIDHandler {
	return &SIDHandler{}
}

// ConvertBinarySIDToString converts a binary SID to its string representation.
func (s *SIDHandler) ConvertBinarySIDToString(binarySID []byte) (string, error) {
	// revision, sub-authority count and 6-byte identifier authority
	if len(binarySID) < 8 {
		return "", fmt.Errorf("binary SID too short: %d bytes", len(binarySID))
	}

	subAuthorities := int(binarySID[1])
	if want := 8 + 4*subAuthorities; len(binarySID) != want {
		return "", fmt.Errorf("invalid binary SID length: expected %d, got %d", want, len(binarySID))
	}

	sid := objectsid.Decode(binarySID)
	return sid.String(), nil
}

// ValidateSIDString validates that a string is a properly formatted SID.
func (s *SIDHandler) ValidateSIDString(sidString string) error {
	if sidString == "" {
		return fmt.Errorf("SID string cannot be empty")
	}
	if !sidStringRegex.MatchString(sidString) {
		return fmt.Errorf("invalid SID format: %s", sidString)
	}
	return nil
}

// SIDToSearchFilter creates a filter matching objectSid. AD accepts the string form directly.
func (s *SIDHandler) SIDToSearchFilter(sidString string) (string, error) {
	if err := s.ValidateSIDString(sidString); err != nil {
		return "", err
	}
	return fmt.Sprintf("(objectSid=%s)", sidString), nil
}
