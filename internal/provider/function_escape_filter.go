package provider

import (
	"context"

	"github.com/go-ldap/ldap/v3"
	"github.com/hashicorp/terraform-plugin-framework/function"
)

var _ function.Function = &EscapeFilterFunction{}

func NewEscapeFilterFunction() function.Function {
	return &EscapeFilterFunction{}
}

// EscapeFilterFunction implements the escape_filter function.
type EscapeFilterFunction struct{}

// Metadata returns the function name.
func (f EscapeFilterFunction) Metadata(_ context.Context, req function.MetadataRequest, resp *function.MetadataResponse) {
	resp.Name = "escape_filter"
}

// Definition returns the function schema including parameters and return types.
func (f EscapeFilterFunction) Definition(_ context.Context, req function.DefinitionRequest, resp *function.DefinitionResponse) {
	resp.Definition = function.Definition{
		Summary:             "Escape a value for use in a search filter",
		Description:         "Escapes the characters that are special in LDAP search filters (RFC 4515): *, (, ), \\ and NUL.",
		MarkdownDescription: "Escapes the characters that are special in LDAP search filters (RFC 4515): `*`, `(`, `)`, `\\` and NUL, so that `\"(uid=${provider::ldap::escape_filter(var.uid)})\"` matches the value literally.",
		Parameters: []function.Parameter{
			function.StringParameter{
				Name:        "value",
				Description: "Assertion value to escape.",
			},
		},
		Return: function.StringReturn{},
	}
}

// Run implements the function logic.
func (f EscapeFilterFunction) Run(ctx context.Context, req function.RunRequest, resp *function.RunResponse) {
	var value string

	resp.Error = function.ConcatFuncErrors(resp.Error, req.Arguments.Get(ctx, &value))
	if resp.Error != nil {
		return
	}

	resp.Error = function.ConcatFuncErrors(resp.Error, resp.Result.Set(ctx, ldap.EscapeFilter(value)))
}
