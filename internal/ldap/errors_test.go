package ldap

import (
	"errors"
	"fmt"
	"testing"

	"github.com/go-ldap/ldap/v3"
	"github.com/stretchr/testify/assert"
)

func TestNewLDAPError(t *testing.T) {
	tests := []struct {
		name     string
		kind     ErrorKind
		err      error
		wantCode uint16
		wantDiag string
	}{
		{
			name:     "ldap error",
			kind:     KindBind,
			err:      ldap.NewError(ldap.LDAPResultInvalidCredentials, errors.New("80090308: AcceptSecurityContext error")),
			wantCode: ldap.LDAPResultInvalidCredentials,
			wantDiag: "[ERROR_CODE]49 Invalid Credentials 80090308: AcceptSecurityContext error",
		},
		{
			name:     "generic error",
			kind:     KindConnect,
			err:      errors.New("connection refused"),
			wantCode: ldap.LDAPResultOther,
			wantDiag: "[ERROR_CODE]80 Other connection refused",
		},
		{
			name:     "wrapped ldap error",
			kind:     KindSearch,
			err:      fmt.Errorf("page 2: %w", ldap.NewError(ldap.LDAPResultNoSuchObject, errors.New("no such base"))),
			wantCode: ldap.LDAPResultNoSuchObject,
			wantDiag: "[ERROR_CODE]32 No Such Object no such base",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := NewLDAPError(tt.kind, "operation failed", "cn=x,dc=example,dc=com", tt.err)

			assert.Equal(t, tt.kind, result.Kind)
			assert.Equal(t, tt.wantCode, result.LDAPCode)
			assert.Equal(t, tt.wantDiag, result.Diagnostic)
			assert.Equal(t, "cn=x,dc=example,dc=com", result.DN)
			assert.ErrorIs(t, result, tt.err)
		})
	}
}

func TestLDAPError_Error(t *testing.T) {
	tests := []struct {
		name    string
		ldapErr *LDAPError
		want    string
	}{
		{
			name:    "message only",
			ldapErr: &LDAPError{Kind: KindSearch, Message: "no base DN"},
			want:    "no base DN",
		},
		{
			name: "with diagnostic",
			ldapErr: &LDAPError{
				Kind:       KindBind,
				Message:    "Can't bind to LDAP server",
				Diagnostic: "[ERROR_CODE]49 Invalid Credentials bad password",
			},
			want: "Can't bind to LDAP server cause : [ERROR_CODE]49 Invalid Credentials bad password",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.ldapErr.Error())
		})
	}
}

func TestFormatDiagnostic_UnknownCode(t *testing.T) {
	diag := FormatDiagnostic(ldap.NewError(999, errors.New("odd")))
	assert.Equal(t, "[ERROR_CODE]999 Unknown error (999) odd", diag)
}

func TestIsKind(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", NewLDAPError(KindModify, "Modify failed", "", errors.New("boom")))

	assert.True(t, IsKind(err, KindModify))
	assert.False(t, IsKind(err, KindAdd))
	assert.False(t, IsKind(errors.New("plain"), KindModify))
	assert.False(t, IsKind(nil, KindModify))
}

func TestGetErrorCategory(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorCategory
	}{
		{"nil", nil, ErrorCategoryUnknown},
		{"not found", NewLDAPError(KindSearch, "x", "", ldap.NewError(ldap.LDAPResultNoSuchObject, errors.New("gone"))), ErrorCategoryNotFound},
		{"conflict", NewLDAPError(KindAdd, "x", "", ldap.NewError(ldap.LDAPResultEntryAlreadyExists, errors.New("dup"))), ErrorCategoryConflict},
		{"auth", NewLDAPError(KindBind, "x", "", ldap.NewError(ldap.LDAPResultInvalidCredentials, errors.New("bad"))), ErrorCategoryAuthentication},
		{"permission", ldap.NewError(ldap.LDAPResultInsufficientAccessRights, errors.New("denied")), ErrorCategoryPermission},
		{"generic connection", NewLDAPError(KindConnect, "x", "", errors.New("dial tcp: connection refused")), ErrorCategoryConnection},
		{"generic other", errors.New("weird"), ErrorCategoryUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, GetErrorCategory(tt.err))
		})
	}
}

func TestErrorPredicates(t *testing.T) {
	notFound := NewLDAPError(KindSearch, "x", "", ldap.NewError(ldap.LDAPResultNoSuchObject, errors.New("gone")))
	assert.True(t, IsNotFoundError(notFound))
	assert.False(t, IsConflictError(notFound))

	assert.True(t, IsConflictError(ldap.NewError(ldap.LDAPResultEntryAlreadyExists, errors.New("dup"))))
	assert.True(t, IsAuthenticationError(ldap.NewError(ldap.LDAPResultInvalidCredentials, errors.New("bad"))))
	assert.True(t, IsPermissionError(ldap.NewError(ldap.LDAPResultUnwillingToPerform, errors.New("no"))))
}
