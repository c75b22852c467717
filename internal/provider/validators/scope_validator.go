package validators

import (
	"context"
	"fmt"
	"strings"

	"github.com/hashicorp/terraform-plugin-framework/schema/validator"

	ldapclient "github.com/isometry/terraform-provider-ldap/internal/ldap"
)

// Ensure the implementation satisfies the expected interface.
var _ validator.String = scopeValidator{}

// scopeValidator accepts the search scopes a session understands, in any case.
type scopeValidator struct{}

// Description describes the validation in plain text.
func (v scopeValidator) Description(_ context.Context) string {
	return fmt.Sprintf("value must be one of: %s, %s (case-insensitive)", ldapclient.ScopeSubtree, ldapclient.ScopeOneLevel)
}

// MarkdownDescription describes the validation in Markdown.
func (v scopeValidator) MarkdownDescription(ctx context.Context) string {
	return fmt.Sprintf("value must be one of: `%s`, `%s` (case-insensitive)", ldapclient.ScopeSubtree, ldapclient.ScopeOneLevel)
}

// ValidateString performs the validation.
func (v scopeValidator) ValidateString(ctx context.Context, request validator.StringRequest, response *validator.StringResponse) {
	// Skip validation for unknown or null values
	if request.ConfigValue.IsNull() || request.ConfigValue.IsUnknown() {
		return
	}

	value := request.ConfigValue.ValueString()

	_, err := ldapclient.ParseScope(value)
	if strings.TrimSpace(value) == "" {
		err = fmt.Errorf("scope cannot be empty")
	}
	if err != nil {
		response.Diagnostics.AddAttributeError(
			request.Path,
			"Invalid Search Scope",
			fmt.Sprintf("The value %q is not a valid search scope: %s", value, err.Error()),
		)
	}
}

// IsSearchScope returns a validator which ensures that any configured
// attribute value names a search scope: "subtree" (or "sub") or "onelevel"
// (or "one"), ignoring case.
//
// Unknown values and null values are skipped from validation.
func IsSearchScope() validator.String {
	return scopeValidator{}
}
