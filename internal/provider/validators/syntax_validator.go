package validators

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-ldap/ldap/v3"
	"github.com/hashicorp/terraform-plugin-framework/schema/validator"
)

// Ensure the implementation satisfies the expected interface.
var _ validator.String = syntaxValidator{}

// syntaxValidator rejects strings the LDAP library cannot parse as the given kind of value.
type syntaxValidator struct {
	summary string
	noun    string
	parse   func(string) error
}

// Description describes the validation in plain text.
func (v syntaxValidator) Description(_ context.Context) string {
	return "value must be " + v.noun
}

// MarkdownDescription describes the validation in Markdown.
func (v syntaxValidator) MarkdownDescription(ctx context.Context) string {
	return v.Description(ctx)
}

// ValidateString performs the validation.
func (v syntaxValidator) ValidateString(ctx context.Context, request validator.StringRequest, response *validator.StringResponse) {
	// Skip validation for unknown or null values
	if request.ConfigValue.IsNull() || request.ConfigValue.IsUnknown() {
		return
	}

	value := request.ConfigValue.ValueString()

	err := v.parse(value)
	if strings.TrimSpace(value) == "" {
		err = fmt.Errorf("value cannot be empty")
	}
	if err != nil {
		response.Diagnostics.AddAttributeError(
			request.Path,
			v.summary,
			fmt.Sprintf("The value %q is not %s: %s", value, v.noun, err.Error()),
		)
	}
}

// IsValidDN returns a validator which ensures that any configured
// attribute value is a valid Distinguished Name (DN).
//
// Unknown values and null values are skipped from validation.
func IsValidDN() validator.String {
	return syntaxValidator{
		summary: "Invalid Distinguished Name",
		noun:    "a valid Distinguished Name (DN)",
		parse: func(value string) error {
			_, err := ldap.ParseDN(value)
			return err
		},
	}
}

// IsValidFilter returns a validator which ensures that any configured
// attribute value compiles as an RFC 4515 search filter.
//
// Unknown values and null values are skipped from validation.
func IsValidFilter() validator.String {
	return syntaxValidator{
		summary: "Invalid Search Filter",
		noun:    "a valid LDAP search filter",
		parse: func(value string) error {
			_, err := ldap.CompileFilter(value)
			return err
		},
	}
}
