package ldap

import (
	"context"
	"fmt"
)

// AddGroupOfNames creates cn=<name>,<targetOU> as a groupOfNames holding members.
// groupOfNames requires at least one member.
func (s *Session) AddGroupOfNames(ctx context.Context, name, targetOU string, members []string) (string, error) {
	if len(members) == 0 {
		return "", fmt.Errorf("groupOfNames %s needs at least one member", name)
	}

	dn, err := BuildDN("cn", name, targetOU)
	if err != nil {
		return "", err
	}

	err = s.Add(ctx, dn, map[string][]string{
		"objectClass": {"groupOfNames"},
		"cn":          {name},
		"member":      members,
	})
	if err != nil {
		return "", err
	}
	return dn, nil
}
