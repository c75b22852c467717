// Package helpers converts directory entries to and from Terraform framework values
// so that resources and data sources share one representation.
package helpers

import (
	"context"
	"fmt"
	"sort"

	"github.com/hashicorp/terraform-plugin-framework/attr"
	"github.com/hashicorp/terraform-plugin-framework/diag"
	"github.com/hashicorp/terraform-plugin-framework/types"

	ldapclient "github.com/isometry/terraform-provider-ldap/internal/ldap"
)

// AttributesType is the Terraform type of an entry's attributes: every attribute
// maps to the list of its values, single-valued or not.
var AttributesType = types.MapType{ElemType: types.ListType{ElemType: types.StringType}}

// EntryAttrTypes describes an entry object as exposed by the data sources.
var EntryAttrTypes = map[string]attr.Type{
	"dn":         types.StringType,
	"attributes": AttributesType,
}

// EntryObjectType is the object type of EntryAttrTypes.
var EntryObjectType = types.ObjectType{AttrTypes: EntryAttrTypes}

// EntryAttributes flattens the attributes of an entry into raw value lists.
func EntryAttributes(entry *ldapclient.Entry) map[string][]string {
	if entry == nil {
		return nil
	}
	attrs := make(map[string][]string, len(entry.Attributes))
	for name, value := range entry.Attributes {
		attrs[name] = value.Values()
	}
	return attrs
}

// AttributesToMap converts raw value lists into an AttributesType value.
func AttributesToMap(ctx context.Context, attrs map[string][]string) (types.Map, diag.Diagnostics) {
	var diags diag.Diagnostics

	elements := make(map[string]attr.Value, len(attrs))
	for name, values := range attrs {
		if values == nil {
			values = []string{}
		}
		list, d := types.ListValueFrom(ctx, types.StringType, values)
		diags.Append(d...)
		if diags.HasError() {
			return types.MapNull(AttributesType.ElemType), diags
		}
		elements[name] = list
	}

	m, d := types.MapValue(AttributesType.ElemType, elements)
	diags.Append(d...)
	return m, diags
}

// MapToAttributes converts an AttributesType value back into raw value lists.
// A null map yields an empty, non-nil result. Unknown values are rejected.
func MapToAttributes(ctx context.Context, value types.Map) (map[string][]string, error) {
	attrs := make(map[string][]string)
	if value.IsNull() {
		return attrs, nil
	}
	if value.IsUnknown() {
		return nil, fmt.Errorf("cannot process unknown attributes")
	}

	for name, element := range value.Elements() {
		list, ok := element.(types.List)
		if !ok {
			return nil, fmt.Errorf("attribute %s: expected list of strings, got %T", name, element)
		}
		if list.IsUnknown() {
			return nil, fmt.Errorf("attribute %s: cannot process unknown values", name)
		}

		values := make([]string, 0, len(list.Elements()))
		for i, v := range list.Elements() {
			s, ok := v.(types.String)
			if !ok || s.IsUnknown() {
				return nil, fmt.Errorf("attribute %s: value %d is not a known string", name, i)
			}
			values = append(values, s.ValueString())
		}
		attrs[name] = values
	}

	return attrs, nil
}

// EntryToObject converts an entry into an EntryObjectType value.
func EntryToObject(ctx context.Context, entry *ldapclient.Entry) (types.Object, diag.Diagnostics) {
	attributes, diags := AttributesToMap(ctx, EntryAttributes(entry))
	if diags.HasError() {
		return types.ObjectNull(EntryAttrTypes), diags
	}

	obj, d := types.ObjectValue(EntryAttrTypes, map[string]attr.Value{
		"dn":         types.StringValue(entry.DN),
		"attributes": attributes,
	})
	diags.Append(d...)
	return obj, diags
}

// EntriesToList converts entries, in order, into a list of EntryObjectType values.
func EntriesToList(ctx context.Context, entries []*ldapclient.Entry) (types.List, diag.Diagnostics) {
	var diags diag.Diagnostics

	elements := make([]attr.Value, 0, len(entries))
	for _, entry := range entries {
		obj, d := EntryToObject(ctx, entry)
		diags.Append(d...)
		if diags.HasError() {
			return types.ListNull(EntryObjectType), diags
		}
		elements = append(elements, obj)
	}

	list, d := types.ListValue(EntryObjectType, elements)
	diags.Append(d...)
	return list, diags
}

// StringListToSlice returns the known string elements of a list. Null yields nil.
func StringListToSlice(ctx context.Context, value types.List) ([]string, diag.Diagnostics) {
	if value.IsNull() || value.IsUnknown() {
		return nil, nil
	}
	var out []string
	diags := value.ElementsAs(ctx, &out, false)
	return out, diags
}

// SameValues reports whether a and b hold the same values regardless of order.
func SameValues(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	x := append([]string(nil), a...)
	y := append([]string(nil), b...)
	sort.Strings(x)
	sort.Strings(y)
	for i := range x {
		if x[i] != y[i] {
			return false
		}
	}
	return true
}
