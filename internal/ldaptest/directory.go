// Package ldaptest provides an in-memory directory that satisfies the LDAP
// session's connection interface, for tests that need a server to talk to.
package ldaptest

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	ber "github.com/go-asn1-ber/asn1-ber"
	"github.com/go-ldap/ldap/v3"

	ldapclient "github.com/isometry/terraform-provider-ldap/internal/ldap"
)

// Ensure Directory satisfies the session's connection interface.
var _ ldapclient.Conn = &Directory{}

// Directory is a minimal in-memory LDAP server. It understands base, one-level
// and subtree searches, the filters go-ldap compiles (and, or, not, equality,
// substrings, presence), the simple paged results control, and add, modify
// and delete requests with the result codes a real server would send.
type Directory struct {
	mu      sync.Mutex
	entries map[string]*ldap.Entry // keyed by canonical DN

	// Credentials, when set, maps bind DNs to the password they must present.
	Credentials map[string]string
	// AuthzID overrides the identity returned by WhoAmI; defaults to "dn:<bind DN>".
	AuthzID string

	boundAs string
	timeout time.Duration
	closed  bool
	calls   map[string]int
}

// NewDirectory returns an empty directory.
func NewDirectory() *Directory {
	return &Directory{
		entries: make(map[string]*ldap.Entry),
		calls:   make(map[string]int),
	}
}

// Dialer returns a dialer that connects every session to d.
func (d *Directory) Dialer() ldapclient.Dialer {
	return func(_ context.Context, _ string, timeout time.Duration) (ldapclient.Conn, error) {
		d.mu.Lock()
		defer d.mu.Unlock()
		d.closed = false
		d.timeout = timeout
		return d, nil
	}
}

// Put stores an entry, replacing any entry already at dn.
func (d *Directory) Put(dn string, attrs map[string][]string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.entries[canonical(dn)] = ldap.NewEntry(dn, attrs)
}

// Get returns a copy of the attributes stored at dn, or nil when there is no such entry.
func (d *Directory) Get(dn string) map[string][]string {
	d.mu.Lock()
	defer d.mu.Unlock()

	entry, ok := d.entries[canonical(dn)]
	if !ok {
		return nil
	}
	attrs := make(map[string][]string, len(entry.Attributes))
	for _, attr := range entry.Attributes {
		attrs[attr.Name] = slices.Clone(attr.Values)
	}
	return attrs
}

// Len returns the number of stored entries.
func (d *Directory) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.entries)
}

// Calls returns how many times the named connection method has been invoked.
func (d *Directory) Calls(method string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls[method]
}

// Closed reports whether the last connection handed out has been closed.
func (d *Directory) Closed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

func (d *Directory) Bind(username, password string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls["Bind"]++

	if d.Credentials != nil {
		if want, ok := d.Credentials[username]; !ok || want != password {
			return ldap.NewError(ldap.LDAPResultInvalidCredentials, errors.New("invalid credentials"))
		}
	}
	d.boundAs = username
	return nil
}

func (d *Directory) Search(req *ldap.SearchRequest) (*ldap.SearchResult, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls["Search"]++

	if d.closed {
		return nil, ldap.NewError(ldap.ErrorNetwork, errors.New("connection closed"))
	}

	filter, err := ldap.CompileFilter(req.Filter)
	if err != nil {
		return nil, err
	}

	base, err := ldap.ParseDN(req.BaseDN)
	if err != nil {
		return nil, ldap.NewError(ldap.LDAPResultInvalidDNSyntax, err)
	}
	if req.Scope == ldap.ScopeBaseObject {
		if _, ok := d.entries[canonical(req.BaseDN)]; !ok {
			return nil, ldap.NewError(ldap.LDAPResultNoSuchObject, fmt.Errorf("no such object %s", req.BaseDN))
		}
	}

	var matched []*ldap.Entry
	for _, key := range d.sortedKeys() {
		entry := d.entries[key]
		dn, err := ldap.ParseDN(entry.DN)
		if err != nil || !inScope(base, dn, req.Scope) || !matches(filter, entry) {
			continue
		}
		matched = append(matched, project(entry, req.Attributes))
	}

	var limitErr error
	if req.SizeLimit > 0 && len(matched) > req.SizeLimit {
		matched = matched[:req.SizeLimit]
		limitErr = ldap.NewError(ldap.LDAPResultSizeLimitExceeded, errors.New("size limit exceeded"))
	}

	result := &ldap.SearchResult{}
	if paging, ok := ldap.FindControl(req.Controls, ldap.ControlTypePaging).(*ldap.ControlPaging); ok {
		matched, result.Controls = page(matched, paging)
	}
	result.Entries = matched
	return result, limitErr
}

func (d *Directory) Add(req *ldap.AddRequest) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls["Add"]++

	if _, err := ldap.ParseDN(req.DN); err != nil {
		return ldap.NewError(ldap.LDAPResultInvalidDNSyntax, err)
	}
	key := canonical(req.DN)
	if _, ok := d.entries[key]; ok {
		return ldap.NewError(ldap.LDAPResultEntryAlreadyExists, fmt.Errorf("entry %s already exists", req.DN))
	}

	attrs := make(map[string][]string, len(req.Attributes))
	for _, attr := range req.Attributes {
		attrs[attr.Type] = slices.Clone(attr.Vals)
	}
	d.entries[key] = ldap.NewEntry(req.DN, attrs)
	return nil
}

func (d *Directory) Modify(req *ldap.ModifyRequest) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls["Modify"]++

	entry, ok := d.entries[canonical(req.DN)]
	if !ok {
		return ldap.NewError(ldap.LDAPResultNoSuchObject, fmt.Errorf("no such object %s", req.DN))
	}

	attrs := make(map[string][]string, len(entry.Attributes))
	names := make(map[string]string, len(entry.Attributes))
	for _, attr := range entry.Attributes {
		attrs[attr.Name] = slices.Clone(attr.Values)
		names[strings.ToLower(attr.Name)] = attr.Name
	}

	for _, change := range req.Changes {
		mod := change.Modification
		name, exists := names[strings.ToLower(mod.Type)]
		if !exists {
			name = mod.Type
		}

		switch change.Operation {
		case ldap.AddAttribute:
			attrs[name] = append(attrs[name], mod.Vals...)
			names[strings.ToLower(name)] = name
		case ldap.ReplaceAttribute:
			if len(mod.Vals) == 0 {
				delete(attrs, name)
				delete(names, strings.ToLower(name))
				continue
			}
			attrs[name] = slices.Clone(mod.Vals)
			names[strings.ToLower(name)] = name
		case ldap.DeleteAttribute:
			if !exists {
				return ldap.NewError(ldap.LDAPResultNoSuchAttribute, fmt.Errorf("no such attribute %s", mod.Type))
			}
			if len(mod.Vals) == 0 {
				delete(attrs, name)
				delete(names, strings.ToLower(name))
				continue
			}
			attrs[name] = slices.DeleteFunc(attrs[name], func(v string) bool { return slices.Contains(mod.Vals, v) })
			if len(attrs[name]) == 0 {
				delete(attrs, name)
				delete(names, strings.ToLower(name))
			}
		default:
			return ldap.NewError(ldap.LDAPResultProtocolError, fmt.Errorf("unknown operation %d", change.Operation))
		}
	}

	d.entries[canonical(req.DN)] = ldap.NewEntry(entry.DN, attrs)
	return nil
}

func (d *Directory) Del(req *ldap.DelRequest) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls["Del"]++

	key := canonical(req.DN)
	if _, ok := d.entries[key]; !ok {
		return ldap.NewError(ldap.LDAPResultNoSuchObject, fmt.Errorf("no such object %s", req.DN))
	}

	parent, err := ldap.ParseDN(req.DN)
	if err != nil {
		return ldap.NewError(ldap.LDAPResultInvalidDNSyntax, err)
	}
	for other, entry := range d.entries {
		if other == key {
			continue
		}
		if dn, err := ldap.ParseDN(entry.DN); err == nil && parent.AncestorOfFold(dn) {
			return ldap.NewError(ldap.LDAPResultNotAllowedOnNonLeaf, fmt.Errorf("%s has children", req.DN))
		}
	}

	delete(d.entries, key)
	return nil
}

func (d *Directory) WhoAmI(_ []ldap.Control) (*ldap.WhoAmIResult, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls["WhoAmI"]++

	if d.closed {
		return nil, ldap.NewError(ldap.ErrorNetwork, errors.New("connection closed"))
	}
	if d.AuthzID != "" {
		return &ldap.WhoAmIResult{AuthzID: d.AuthzID}, nil
	}
	return &ldap.WhoAmIResult{AuthzID: "dn:" + d.boundAs}, nil
}

func (d *Directory) SetTimeout(timeout time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.timeout = timeout
}

func (d *Directory) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls["Close"]++
	d.closed = true
	return nil
}

func (d *Directory) sortedKeys() []string {
	keys := make([]string, 0, len(d.entries))
	for key := range d.entries {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// canonical lower-cases a DN and drops insignificant spacing, so that
// equivalent spellings share one key.
func canonical(dn string) string {
	parsed, err := ldap.ParseDN(dn)
	if err != nil {
		return strings.ToLower(dn)
	}
	rdns := make([]string, 0, len(parsed.RDNs))
	for _, rdn := range parsed.RDNs {
		parts := make([]string, 0, len(rdn.Attributes))
		for _, attr := range rdn.Attributes {
			parts = append(parts, strings.ToLower(attr.Type)+"="+strings.ToLower(attr.Value))
		}
		rdns = append(rdns, strings.Join(parts, "+"))
	}
	return strings.Join(rdns, ",")
}

func inScope(base, dn *ldap.DN, scope int) bool {
	switch scope {
	case ldap.ScopeBaseObject:
		return base.EqualFold(dn)
	case ldap.ScopeSingleLevel:
		if len(dn.RDNs) == 0 {
			return false
		}
		return base.EqualFold(&ldap.DN{RDNs: dn.RDNs[1:]})
	default:
		return base.EqualFold(dn) || base.AncestorOfFold(dn)
	}
}

// project copies the requested attributes of entry; no attributes or "*" means all.
func project(entry *ldap.Entry, requested []string) *ldap.Entry {
	all := len(requested) == 0 || slices.Contains(requested, "*")

	out := &ldap.Entry{DN: entry.DN}
	for _, attr := range entry.Attributes {
		if !all && !slices.ContainsFunc(requested, func(r string) bool { return strings.EqualFold(r, attr.Name) }) {
			continue
		}
		out.Attributes = append(out.Attributes, ldap.NewEntryAttribute(attr.Name, slices.Clone(attr.Values)))
	}
	return out
}

// page returns one page of entries and the response control. The cookie is
// the offset of the next page; an empty cookie ends the search. A request with
// size zero abandons the search and returns nothing.
func page(entries []*ldap.Entry, paging *ldap.ControlPaging) ([]*ldap.Entry, []ldap.Control) {
	if paging.PagingSize == 0 {
		return nil, []ldap.Control{ldap.NewControlPaging(0)}
	}

	offset := 0
	if len(paging.Cookie) > 0 {
		offset, _ = strconv.Atoi(string(paging.Cookie))
	}
	offset = min(offset, len(entries))

	end := min(offset+int(paging.PagingSize), len(entries))

	response := ldap.NewControlPaging(paging.PagingSize)
	if end < len(entries) {
		response.SetCookie([]byte(strconv.Itoa(end)))
	}
	return entries[offset:end], []ldap.Control{response}
}

// matches evaluates a filter compiled by ldap.CompileFilter against entry.
// Comparisons are case-insensitive, as with the directory string syntax;
// binary values must match exactly.
func matches(filter *ber.Packet, entry *ldap.Entry) bool {
	switch filter.Tag {
	case ldap.FilterAnd:
		for _, child := range filter.Children {
			if !matches(child, entry) {
				return false
			}
		}
		return true
	case ldap.FilterOr:
		for _, child := range filter.Children {
			if matches(child, entry) {
				return true
			}
		}
		return false
	case ldap.FilterNot:
		return len(filter.Children) == 1 && !matches(filter.Children[0], entry)
	case ldap.FilterPresent:
		return len(values(entry, filter.Data.String())) > 0
	case ldap.FilterEqualityMatch:
		if len(filter.Children) != 2 {
			return false
		}
		want := filter.Children[1].Data.String()
		return slices.ContainsFunc(values(entry, filter.Children[0].Data.String()), func(v string) bool {
			return v == want || (utf8.ValidString(v) && strings.EqualFold(v, want))
		})
	case ldap.FilterSubstrings:
		if len(filter.Children) != 2 {
			return false
		}
		return slices.ContainsFunc(values(entry, filter.Children[0].Data.String()), func(v string) bool {
			return matchSubstrings(strings.ToLower(v), filter.Children[1].Children)
		})
	default:
		return false
	}
}

func matchSubstrings(value string, parts []*ber.Packet) bool {
	for _, part := range parts {
		s := strings.ToLower(part.Data.String())
		switch part.Tag {
		case ldap.FilterSubstringsInitial:
			if !strings.HasPrefix(value, s) {
				return false
			}
			value = value[len(s):]
		case ldap.FilterSubstringsAny:
			i := strings.Index(value, s)
			if i < 0 {
				return false
			}
			value = value[i+len(s):]
		case ldap.FilterSubstringsFinal:
			if !strings.HasSuffix(value, s) {
				return false
			}
		}
	}
	return true
}

// values returns the values of attribute; "dn" matches nothing, as on a real server.
func values(entry *ldap.Entry, attribute string) []string {
	for _, attr := range entry.Attributes {
		if strings.EqualFold(attr.Name, attribute) {
			return attr.Values
		}
	}
	return nil
}
