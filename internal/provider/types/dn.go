package types

import (
	"context"
	"fmt"

	"github.com/go-ldap/ldap/v3"
	"github.com/hashicorp/terraform-plugin-framework/attr"
	"github.com/hashicorp/terraform-plugin-framework/attr/xattr"
	"github.com/hashicorp/terraform-plugin-framework/diag"
	"github.com/hashicorp/terraform-plugin-framework/types/basetypes"
	"github.com/hashicorp/terraform-plugin-go/tftypes"

	ldapclient "github.com/isometry/terraform-provider-ldap/internal/ldap"
)

var (
	_ basetypes.StringTypable                    = DNType{}
	_ basetypes.StringValuableWithSemanticEquals = DN{}
	_ xattr.ValidateableAttribute                = DN{}
)

// DNType is the attribute type of a Distinguished Name.
//
// Two DNs are semantically equal when they name the same entry, so a server
// that echoes "CN=JDoe, DC=example" for a configured "cn=jdoe,dc=example"
// does not produce a diff.
type DNType struct {
	basetypes.StringType
}

func (t DNType) String() string {
	return "types.DNType"
}

func (t DNType) ValueType(ctx context.Context) attr.Value {
	return DN{}
}

func (t DNType) Equal(o attr.Type) bool {
	other, ok := o.(DNType)
	return ok && t.StringType.Equal(other.StringType)
}

func (t DNType) ValueFromString(ctx context.Context, in basetypes.StringValue) (basetypes.StringValuable, diag.Diagnostics) {
	return DN{StringValue: in}, nil
}

func (t DNType) ValueFromTerraform(ctx context.Context, in tftypes.Value) (attr.Value, error) {
	value, err := t.StringType.ValueFromTerraform(ctx, in)
	if err != nil {
		return nil, err
	}

	str, ok := value.(basetypes.StringValue)
	if !ok {
		return nil, fmt.Errorf("unexpected value type %T", value)
	}

	return DN{StringValue: str}, nil
}

// DN is a Distinguished Name value.
type DN struct {
	basetypes.StringValue
}

func (v DN) Type(ctx context.Context) attr.Type {
	return DNType{}
}

func (v DN) Equal(o attr.Value) bool {
	other, ok := o.(DN)
	return ok && v.StringValue.Equal(other.StringValue)
}

// StringSemanticEquals reports whether both values name the same entry.
func (v DN) StringSemanticEquals(ctx context.Context, newValuable basetypes.StringValuable) (bool, diag.Diagnostics) {
	var diags diag.Diagnostics

	other, ok := newValuable.(DN)
	if !ok {
		diags.AddError(
			"Semantic Equality Check Error",
			fmt.Sprintf("Expected a DN value, got: %T. Please report this issue to the provider developers.", newValuable),
		)
		return false, diags
	}

	if !v.known() || !other.known() {
		return v.Equal(other), diags
	}

	return ldapclient.EqualDN(v.ValueString(), other.ValueString()), diags
}

// ValidateAttribute rejects values that do not parse as a DN.
func (v DN) ValidateAttribute(ctx context.Context, req xattr.ValidateAttributeRequest, resp *xattr.ValidateAttributeResponse) {
	if !v.known() {
		return
	}

	if _, err := ldap.ParseDN(v.ValueString()); err != nil {
		resp.Diagnostics.AddAttributeError(
			req.Path,
			"Invalid Distinguished Name",
			fmt.Sprintf("The value %q is not a valid distinguished name: %s", v.ValueString(), err),
		)
	}
}

// ValueDN parses the value. Null and unknown values parse to nil.
func (v DN) ValueDN() (*ldap.DN, error) {
	if !v.known() {
		return nil, nil
	}
	return ldap.ParseDN(v.ValueString())
}

func (v DN) known() bool {
	return !v.IsNull() && !v.IsUnknown()
}

func NewDNValue(value string) DN {
	return DN{StringValue: basetypes.NewStringValue(value)}
}

func NewDNNull() DN {
	return DN{StringValue: basetypes.NewStringNull()}
}

func NewDNUnknown() DN {
	return DN{StringValue: basetypes.NewStringUnknown()}
}
