package ldap

import (
	"context"
	"errors"
	"fmt"

	"github.com/hashicorp/terraform-plugin-log/tflog"
)

// ProviderData is handed by the provider to its data sources and resources.
type ProviderData struct {
	Session *Session
	AD      *ActiveDirectory
}

// NewProviderData wraps an open session.
func NewProviderData(s *Session) *ProviderData {
	return &ProviderData{
		Session: s,
		AD:      NewActiveDirectory(s),
	}
}

// ValidateConnection checks the session is still usable by asking the server who we are.
func (pd *ProviderData) ValidateConnection(ctx context.Context) error {
	if pd == nil || pd.Session == nil {
		return errors.New("LDAP session is not initialized")
	}

	result, err := pd.Session.WhoAmI(ctx)
	if err != nil {
		return fmt.Errorf("LDAP session check failed: %w", err)
	}

	tflog.Debug(ctx, "Provider data validation successful", map[string]any{
		"server":   pd.Session.Server(),
		"authz_id": result.AuthzID,
	})

	return nil
}

// Close closes the underlying session.
func (pd *ProviderData) Close() error {
	if pd == nil || pd.Session == nil {
		return nil
	}
	if err := pd.Session.Close(); err != nil && !errors.Is(err, ErrSessionClosed) {
		return fmt.Errorf("failed to close LDAP session: %w", err)
	}
	return nil
}
