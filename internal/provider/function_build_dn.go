package provider

import (
	"context"

	"github.com/hashicorp/terraform-plugin-framework/function"

	ldapclient "github.com/isometry/terraform-provider-ldap/internal/ldap"
)

var _ function.Function = &BuildDNFunction{}

func NewBuildDNFunction() function.Function {
	return &BuildDNFunction{}
}

// BuildDNFunction implements the build_dn function.
type BuildDNFunction struct{}

// Metadata returns the function name.
func (f BuildDNFunction) Metadata(_ context.Context, req function.MetadataRequest, resp *function.MetadataResponse) {
	resp.Name = "build_dn"
}

// Definition returns the function schema including parameters and return types.
func (f BuildDNFunction) Definition(_ context.Context, req function.DefinitionRequest, resp *function.DefinitionResponse) {
	resp.Definition = function.Definition{
		Summary:     "Build a distinguished name from an RDN and its parent",
		Description: "Escapes value as an RDN attribute value (RFC 4514) and joins attribute=value to the parent DN.",
		MarkdownDescription: "Escapes `value` as an RDN attribute value (RFC 4514) and joins `attribute=value` to `parent`.\n\n" +
			"`provider::ldap::build_dn(\"cn\", \"Doe, John\", \"ou=People,dc=example,dc=com\")` returns " +
			"`cn=Doe\\, John,ou=People,dc=example,dc=com`. An empty parent yields the RDN alone.",
		Parameters: []function.Parameter{
			function.StringParameter{
				Name:        "attribute",
				Description: "RDN attribute type, e.g. cn, uid or ou.",
			},
			function.StringParameter{
				Name:        "value",
				Description: "Unescaped RDN attribute value.",
			},
			function.StringParameter{
				Name:        "parent",
				Description: "Parent distinguished name; may be empty.",
			},
		},
		Return: function.StringReturn{},
	}
}

// Run implements the function logic.
func (f BuildDNFunction) Run(ctx context.Context, req function.RunRequest, resp *function.RunResponse) {
	var attribute, value, parent string

	resp.Error = function.ConcatFuncErrors(resp.Error, req.Arguments.Get(ctx, &attribute, &value, &parent))
	if resp.Error != nil {
		return
	}

	dn, err := ldapclient.BuildDN(attribute, value, parent)
	if err != nil {
		resp.Error = function.NewFuncError(err.Error())
		return
	}

	resp.Error = function.ConcatFuncErrors(resp.Error, resp.Result.Set(ctx, dn))
}
