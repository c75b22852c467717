package ldap

import (
	"encoding/json"
	"slices"
	"sort"
	"strings"

	"github.com/go-ldap/ldap/v3"
)

// AttributeValue is either a single string or an ordered list of strings.
// An attribute returned with exactly one value is always held as a scalar.
type AttributeValue struct {
	values []string
	multi  bool
}

// Scalar wraps a single value.
func Scalar(value string) AttributeValue {
	return AttributeValue{values: []string{value}}
}

// Multi wraps an ordered list of values.
func Multi(values ...string) AttributeValue {
	return AttributeValue{values: slices.Clone(values), multi: true}
}

// collapse applies the normalization rule: one value is a scalar, anything else a list.
func collapse(values []string) AttributeValue {
	if len(values) == 1 {
		return Scalar(values[0])
	}
	return Multi(values...)
}

func (v AttributeValue) IsMulti() bool { return v.multi }

// String returns the scalar value, or the first value of a list.
func (v AttributeValue) String() string {
	if len(v.values) == 0 {
		return ""
	}
	return v.values[0]
}

// Values returns a copy of all values, whatever the shape.
func (v AttributeValue) Values() []string {
	return slices.Clone(v.values)
}

// MarshalJSON renders a scalar as a JSON string and a list as a JSON array.
func (v AttributeValue) MarshalJSON() ([]byte, error) {
	if !v.multi {
		return json.Marshal(v.String())
	}
	if v.values == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(v.values)
}

// Entry is one normalized directory entry.
type Entry struct {
	DN         string                    `json:"dn"`
	Attributes map[string]AttributeValue `json:"attributes"`
}

// EntryCallback is invoked with every entry as it is normalized. It may mutate the entry.
type EntryCallback func(*Entry)

// NewEntry builds an entry from raw attribute values, applying the collapsing rule.
func NewEntry(dn string, attrs map[string][]string) *Entry {
	entry := &Entry{
		DN:         dn,
		Attributes: make(map[string]AttributeValue, len(attrs)),
	}
	for name, values := range attrs {
		entry.Attributes[name] = collapse(values)
	}
	return entry
}

// NormalizeEntry converts a go-ldap search record into an Entry and fires cb, if set.
// Attribute names keep the case the server returned them in.
func NormalizeEntry(raw *ldap.Entry, cb EntryCallback) *Entry {
	entry := &Entry{
		DN:         raw.DN,
		Attributes: make(map[string]AttributeValue, len(raw.Attributes)),
	}

	for _, attr := range raw.Attributes {
		if attr == nil {
			continue
		}
		values := attr.Values
		if existing, ok := entry.Attributes[attr.Name]; ok {
			values = append(existing.Values(), values...)
		}
		entry.Attributes[attr.Name] = collapse(values)
	}

	if cb != nil {
		cb(entry)
	}

	return entry
}

// Get looks up an attribute by exact name first, then case-insensitively.
func (e *Entry) Get(name string) (AttributeValue, bool) {
	if v, ok := e.Attributes[name]; ok {
		return v, true
	}
	for attrName, v := range e.Attributes {
		if strings.EqualFold(attrName, name) {
			return v, true
		}
	}
	return AttributeValue{}, false
}

// GetString returns the (first) value of an attribute, or "" if absent.
func (e *Entry) GetString(name string) string {
	v, _ := e.Get(name)
	return v.String()
}

// GetValues returns every value of an attribute, or nil if absent.
func (e *Entry) GetValues(name string) []string {
	v, ok := e.Get(name)
	if !ok {
		return nil
	}
	return v.Values()
}

// Set stores raw values under name, applying the collapsing rule.
func (e *Entry) Set(name string, values ...string) {
	if e.Attributes == nil {
		e.Attributes = make(map[string]AttributeValue)
	}
	e.Attributes[name] = collapse(values)
}

// AttributeNames returns the attribute names in sorted order.
func (e *Entry) AttributeNames() []string {
	names := make([]string, 0, len(e.Attributes))
	for name := range e.Attributes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// trackKey returns the value an entry is indexed under for the track-by attribute.
func (e *Entry) trackKey(attribute string) string {
	if strings.EqualFold(attribute, "dn") {
		return e.DN
	}
	return e.GetString(attribute)
}
