package ldap

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-ldap/ldap/v3"
	"github.com/hashicorp/terraform-plugin-log/tflog"
	"golang.org/x/text/encoding/unicode"
)

// userAccountControl and systemFlags bits.
const (
	UACAccountEnable         = 0x0001
	UACAccountDisable        = 0x0002
	UACPasswdNotRequired     = 0x0020
	UACPasswdCantChange      = 0x0040
	UACNormalAccount         = 0x0200
	UACDontExpirePasswd      = 0x10000
	UACPasswordExpired       = 0x800000
	SystemFlagDisallowDelete = 0x80000000
)

// ActiveDirectory layers AD account operations over a Session.
type ActiveDirectory struct {
	session *Session
}

// NewActiveDirectory wraps s. The session stays owned by the caller.
func NewActiveDirectory(s *Session) *ActiveDirectory {
	return &ActiveDirectory{session: s}
}

// AccountControlFlags returns the userAccountControl value written by ToggleAccountActivation.
func AccountControlFlags(active bool) int {
	if active {
		return UACAccountEnable | UACNormalAccount | UACDontExpirePasswd
	}
	return UACAccountDisable | UACNormalAccount | UACDontExpirePasswd
}

// lookupUser finds the entry whose cn is exactly cn. A miss is a KindSearch error.
func (ad *ActiveDirectory) lookupUser(ctx context.Context, cn string, attrs ...string) (*Entry, error) {
	if len(attrs) == 0 {
		attrs = []string{"distinguishedName"}
	}

	filter := fmt.Sprintf("(cn=%s)", ldap.EscapeFilter(cn))
	entry, err := ad.session.GetEntry(ctx, filter, attrs, nil)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		message := fmt.Sprintf("no user %s found", cn)
		return nil, NewLDAPError(KindSearch, message, "", noSuchObject("%s", message))
	}
	return entry, nil
}

// UserDN returns the distinguished name of the user whose cn is cn.
func (ad *ActiveDirectory) UserDN(ctx context.Context, cn string) (string, error) {
	entry, err := ad.lookupUser(ctx, cn)
	if err != nil {
		return "", err
	}
	return entry.DN, nil
}

// ToggleAccountActivation enables or disables the account whose cn is uid.
// userAccountControl is replaced with Enable|NormalAccount|DontExpirePasswd (0x10201)
// or Disable|NormalAccount|DontExpirePasswd (0x10202).
func (ad *ActiveDirectory) ToggleAccountActivation(ctx context.Context, uid string, active bool) error {
	entry, err := ad.lookupUser(ctx, uid)
	if err != nil {
		return err
	}

	flags := AccountControlFlags(active)
	tflog.SubsystemDebug(ad.session.logCtx(ctx), LogSubsystem, "Toggling account activation", map[string]any{
		"dn":                 entry.DN,
		"active":             active,
		"userAccountControl": fmt.Sprintf("0x%x", flags),
	})

	return ad.session.Modify(ctx, entry.DN, map[string][]string{
		"userAccountControl": {strconv.Itoa(flags)},
	}, ModReplace)
}

// SetPassword replaces the unicodePwd of the user whose cn is cn.
// AD only accepts this over an encrypted connection.
func (ad *ActiveDirectory) SetPassword(ctx context.Context, cn, newPassword string) error {
	entry, err := ad.lookupUser(ctx, cn)
	if err != nil {
		return err
	}

	encoded, err := EncodeUnicodePassword(newPassword)
	if err != nil {
		return err
	}

	return ad.session.Modify(ctx, entry.DN, map[string][]string{
		"unicodePwd": {encoded},
	}, ModReplace)
}

// AccountEnabled reports whether the ACCOUNTDISABLE bit of the user's userAccountControl is clear.
func (ad *ActiveDirectory) AccountEnabled(ctx context.Context, cn string) (bool, error) {
	entry, err := ad.lookupUser(ctx, cn, "userAccountControl")
	if err != nil {
		return false, err
	}

	raw := entry.GetString("userAccountControl")
	if raw == "" {
		return false, fmt.Errorf("user %s has no userAccountControl attribute", cn)
	}

	flags, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return false, fmt.Errorf("user %s has invalid userAccountControl %q: %w", cn, raw, err)
	}
	return flags&UACAccountDisable == 0, nil
}

// EncodeUnicodePassword returns the unicodePwd wire form of password: the quoted value in UTF-16LE.
func EncodeUnicodePassword(password string) (string, error) {
	encoder := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewEncoder()
	encoded, err := encoder.String(`"` + password + `"`)
	if err != nil {
		return "", fmt.Errorf("failed to encode password: %w", err)
	}
	return encoded, nil
}

// DecodeIdentifiers is an EntryCallback rewriting binary objectGUID and objectSid values
// into their string forms. Values that do not decode are left untouched.
func DecodeIdentifiers(e *Entry) {
	guids := NewGUIDHandler()
	sids := NewSIDHandler()

	for name, value := range e.Attributes {
		if value.IsMulti() {
			continue
		}
		switch {
		case strings.EqualFold(name, "objectGUID"):
			if s, err := guids.GUIDBytesToString([]byte(value.String())); err == nil {
				e.Attributes[name] = Scalar(s)
			}
		case strings.EqualFold(name, "objectSid"):
			if s, err := sids.ConvertBinarySIDToString([]byte(value.String())); err == nil {
				e.Attributes[name] = Scalar(s)
			}
		}
	}
}
