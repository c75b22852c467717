package ldap

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-ldap/ldap/v3"
)

// Scope selects how far below the base DN a search reaches.
type Scope int

const (
	ScopeSubtree  Scope = iota // Recursive search of the whole subtree
	ScopeOneLevel              // Immediate children of the base DN only
)

// String returns the string representation of the search scope.
func (s Scope) String() string {
	switch s {
	case ScopeSubtree:
		return "subtree"
	case ScopeOneLevel:
		return "onelevel"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// ldapScope maps the scope onto the go-ldap wire constant.
func (s Scope) ldapScope() int {
	if s == ScopeOneLevel {
		return ldap.ScopeSingleLevel
	}
	return ldap.ScopeWholeSubtree
}

// ParseScope accepts "subtree" or "onelevel" (case-insensitive). Empty means subtree.
func ParseScope(value string) (Scope, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "subtree", "sub":
		return ScopeSubtree, nil
	case "onelevel", "one":
		return ScopeOneLevel, nil
	default:
		return ScopeSubtree, fmt.Errorf("invalid search scope %q: expected subtree or onelevel", value)
	}
}

// SearchOptions holds the base DN, scope and result ceiling applied to a session's searches.
// A SearchOptions value belongs to one Session; setters return the receiver for chaining.
type SearchOptions struct {
	baseDN      string
	resultLimit int
	scope       Scope
}

// NewSearchOptions creates options rooted at baseDN with no result limit and subtree scope.
func NewSearchOptions(baseDN string) *SearchOptions {
	return &SearchOptions{baseDN: baseDN}
}

func (o *SearchOptions) BaseDN() string   { return o.baseDN }
func (o *SearchOptions) ResultLimit() int { return o.resultLimit }
func (o *SearchOptions) Scope() Scope     { return o.scope }

func (o *SearchOptions) SetBaseDN(dn string) *SearchOptions {
	o.baseDN = dn
	return o
}

// SetResultLimit sets the maximum number of entries returned. 0 means unlimited;
// negative values are stored as 0.
func (o *SearchOptions) SetResultLimit(limit int) *SearchOptions {
	o.resultLimit = max(limit, 0)
	return o
}

func (o *SearchOptions) SetScope(scope Scope) *SearchOptions {
	o.scope = scope
	return o
}

// ModType selects the semantics of a Modify call.
type ModType int

const (
	ModReplace ModType = iota // Replace all values of each attribute
	ModAdd                    // Add values to each attribute
	ModDelete                 // Delete the given values (or the attribute, when no values are given)
)

// String returns the string representation of the modification type.
func (m ModType) String() string {
	switch m {
	case ModReplace:
		return "replace"
	case ModAdd:
		return "add"
	case ModDelete:
		return "delete"
	default:
		return fmt.Sprintf("unknown(%d)", int(m))
	}
}

// Conn is the subset of the go-ldap connection the session drives.
// All calls are synchronous; a Conn is not safe for concurrent use.
type Conn interface {
	Bind(username, password string) error
	Search(req *ldap.SearchRequest) (*ldap.SearchResult, error)
	Add(req *ldap.AddRequest) error
	Modify(req *ldap.ModifyRequest) error
	Del(req *ldap.DelRequest) error
	WhoAmI(controls []ldap.Control) (*ldap.WhoAmIResult, error)
	SetTimeout(timeout time.Duration)
	Close() error
}

// SearchResult contains the normalized entries of a search.
type SearchResult struct {
	Entries []*Entry          // Entries in server order; empty when Tracked is used
	Tracked map[string]*Entry // Entries keyed by the track-by attribute, when requested
	Pages   int               // Number of round trips issued
}

// Len returns the number of entries held by the result.
func (r *SearchResult) Len() int {
	if r == nil {
		return 0
	}
	if r.Tracked != nil {
		return len(r.Tracked)
	}
	return len(r.Entries)
}

// All returns every entry held by the result. Tracked entries come back in no particular order.
func (r *SearchResult) All() []*Entry {
	if r == nil {
		return nil
	}
	if r.Tracked == nil {
		return r.Entries
	}
	all := make([]*Entry, 0, len(r.Tracked))
	for _, entry := range r.Tracked {
		all = append(all, entry)
	}
	return all
}
