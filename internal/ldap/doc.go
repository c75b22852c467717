/*
Package ldap provides a session-oriented LDAP client for the Terraform LDAP provider.

A Session wraps one authenticated connection and a set of search defaults
(base DN, scope and result limit). Every directory operation the provider
performs goes through a Session.

# Architecture Overview

The package is organized into several core components:

  - Session: connect, bind, search, read, add, modify, delete and Who Am I?
  - Pager: the simple paged results loop behind paginated searches
  - Entry: normalized search results with the single/multi value collapsing rule
  - ActiveDirectory: account activation, password and objectGUID/objectSid helpers
  - Config: connection settings from INI or JSON files with defaults applied

# Connecting

Connect dials the server, applies the network timeout and binds. When no
SearchOptions are given the base DN is derived from the dc= components of the
identity returned by Who Am I?. ConnectWithConfig and ConnectFromFile build
the same session from a Config.

The connection is reached through the Conn interface, so tests can swap the
network dialer for an in-memory directory with WithDialer.

# Searching

Search covers the subtree below the base DN and List its immediate children.
Both accept per-call options: WithPageSize turns on the paged results control,
WithTrackBy indexes results by an attribute value, and WithCallback lets the
caller rewrite each entry as it arrives. A search matching nothing returns a
nil result and a nil error.

# Error Handling

Every failure is an *LDAPError carrying the operation kind, the DN involved,
the LDAP result code and a diagnostic string in the form
"[ERROR_CODE]<code> <message> <server message>". IsNotFoundError,
IsConflictError and IsAuthenticationError classify errors by result code.

# Thread Safety

A Session serializes its operations with a mutex and may be shared by
concurrent callers. SearchOptions belong to one Session.

# Example Usage

	session, err := ldap.Connect(ctx, "ldaps://dc1.example.com", "cn=admin,dc=example,dc=com", password,
		5*time.Second, ldap.NewSearchOptions("dc=example,dc=com"))
	if err != nil {
		return err
	}
	defer session.Close()

	result, err := session.Search(ctx, "(objectClass=person)", []string{"cn", "mail"},
		ldap.WithPageSize(500), ldap.WithTrackBy("uid"))
	if err != nil {
		return err
	}
	for uid, entry := range result.Tracked {
		fmt.Println(uid, entry.GetString("mail"))
	}
*/
package ldap
