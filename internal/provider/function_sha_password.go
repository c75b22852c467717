package provider

import (
	"context"

	"github.com/hashicorp/terraform-plugin-framework/function"

	ldapclient "github.com/isometry/terraform-provider-ldap/internal/ldap"
)

var _ function.Function = &SHAPasswordFunction{}

func NewSHAPasswordFunction() function.Function {
	return &SHAPasswordFunction{}
}

// SHAPasswordFunction implements the sha_password function.
type SHAPasswordFunction struct{}

// Metadata returns the function name.
func (f SHAPasswordFunction) Metadata(_ context.Context, req function.MetadataRequest, resp *function.MetadataResponse) {
	resp.Name = "sha_password"
}

// Definition returns the function schema including parameters and return types.
func (f SHAPasswordFunction) Definition(_ context.Context, req function.DefinitionRequest, resp *function.DefinitionResponse) {
	resp.Definition = function.Definition{
		Summary:     "Hash a password for userPassword",
		Description: "Returns {SHA} followed by the base64 SHA-1 digest of the password, the RFC 2307 form accepted in userPassword.",
		MarkdownDescription: "Returns `{SHA}` followed by the base64 SHA-1 digest of `password`, the RFC 2307 form accepted in `userPassword`.\n\n" +
			"Unsalted SHA-1 is weak; prefer server-side hashing where the directory supports it.",
		Parameters: []function.Parameter{
			function.StringParameter{
				Name:        "password",
				Description: "Clear-text password.",
			},
		},
		Return: function.StringReturn{},
	}
}

// Run implements the function logic.
func (f SHAPasswordFunction) Run(ctx context.Context, req function.RunRequest, resp *function.RunResponse) {
	var password string

	resp.Error = function.ConcatFuncErrors(resp.Error, req.Arguments.Get(ctx, &password))
	if resp.Error != nil {
		return
	}

	resp.Error = function.ConcatFuncErrors(resp.Error, resp.Result.Set(ctx, ldapclient.FormatSHAPassword(password)))
}
