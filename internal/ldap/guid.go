package ldap

import (
	"fmt"
	"strings"

	"github.com/go-ldap/ldap/v3"
	"github.com/google/uuid"
)

// GUIDBytesLength is the size of a binary objectGUID.
const GUIDBytesLength = 16

// GUIDHandler converts Active Directory object GUIDs.
// AD stores GUIDs mixed-endian: the first three fields are little-endian, the last 8 bytes as-is.
type GUIDHandler struct{}

// NewGUIDHandler creates a new GUID handler instance.
func NewGUIDHandler() *GUIDHandler {
	return &GUIDHandler{}
}

// swapGUIDEndianness converts between the AD byte layout and RFC 4122 order.
// The transformation is its own inverse.
func swapGUIDEndianness(in []byte) []byte {
	out := make([]byte, GUIDBytesLength)
	out[0], out[1], out[2], out[3] = in[3], in[2], in[1], in[0]
	out[4], out[5] = in[5], in[4]
	out[6], out[7] = in[7], in[6]
	copy(out[8:], in[8:])
	return out
}

// IsValidGUID checks if a string is a valid GUID (hyphenated, compact or braced).
func (g *GUIDHandler) IsValidGUID(guidString string) bool {
	_, err := g.NormalizeGUID(guidString)
	return err == nil
}

// NormalizeGUID converts a GUID string to lowercase hyphenated format.
func (g *GUIDHandler) NormalizeGUID(guidString string) (string, error) {
	guidString = strings.TrimSpace(guidString)
	if guidString == "" {
		return "", fmt.Errorf("GUID string cannot be empty")
	}

	id, err := uuid.Parse(guidString)
	if err != nil {
		return "", fmt.Errorf("invalid GUID format: %s", guidString)
	}
	return id.String(), nil
}

// GUIDBytesToString converts Active Directory GUID bytes to standard string format.
func (g *GUIDHandler) GUIDBytesToString(guidBytes []byte) (string, error) {
	if len(guidBytes) != GUIDBytesLength {
		return "", fmt.Errorf("invalid GUID byte length: expected %d, got %d", GUIDBytesLength, len(guidBytes))
	}

	id, err := uuid.FromBytes(swapGUIDEndianness(guidBytes))
	if err != nil {
		return "", fmt.Errorf("failed to decode GUID: %w", err)
	}
	return id.String(), nil
}

// StringToGUIDBytes converts a GUID string to Active Directory byte format.
func (g *GUIDHandler) StringToGUIDBytes(guidString string) ([]byte, error) {
	id, err := uuid.Parse(strings.TrimSpace(guidString))
	if err != nil {
		return nil, fmt.Errorf("invalid GUID format: %s", guidString)
	}
	return swapGUIDEndianness(id[:]), nil
}

// GUIDToSearchFilter creates a filter matching objectGUID in its binary form.
func (g *GUIDHandler) GUIDToSearchFilter(guidString string) (string, error) {
	guidBytes, err := g.StringToGUIDBytes(guidString)
	if err != nil {
		return "", fmt.Errorf("failed to convert GUID to bytes: %w", err)
	}

	return fmt.Sprintf("(objectGUID=%s)", ldap.EscapeFilter(string(guidBytes))), nil
}
