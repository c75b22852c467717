package ldap

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-ldap/ldap/v3"
)

// ErrorKind identifies the session operation that failed.
type ErrorKind string

const (
	KindConnect ErrorKind = "connect"
	KindBind    ErrorKind = "bind"
	KindSearch  ErrorKind = "search"
	KindModify  ErrorKind = "modify"
	KindAdd     ErrorKind = "add"
	KindDelete  ErrorKind = "delete"
)

// ErrorCategory represents different categories of LDAP errors.
type ErrorCategory string

const (
	ErrorCategoryConnection     ErrorCategory = "connection"
	ErrorCategoryAuthentication ErrorCategory = "authentication"
	ErrorCategoryPermission     ErrorCategory = "permission"
	ErrorCategoryNotFound       ErrorCategory = "not_found"
	ErrorCategoryConflict       ErrorCategory = "conflict"
	ErrorCategoryValidation     ErrorCategory = "validation"
	ErrorCategoryServer         ErrorCategory = "server"
	ErrorCategoryUnknown        ErrorCategory = "unknown"
)

var (
	ErrSessionClosed   = errors.New("ldap session is closed")
	ErrInvalidPageSize = errors.New("page size must be greater than zero")
	ErrNoBaseDN        = errors.New("can't retrieve root DN from the bound identity")
	ErrEmptyDN         = errors.New("DN cannot be empty")
	ErrEmptyFilter     = errors.New("search filter cannot be empty")
)

// LDAPError is the typed failure returned by every session operation.
//
// Diagnostic always has the form "[ERROR_CODE]<code> <description> <message>"
// so that log scrapers can rely on it.
type LDAPError struct {
	Kind       ErrorKind // Operation family that failed
	Message    string    // Human-readable message
	Diagnostic string    // Raw transport diagnostic
	DN         string    // DN involved in the operation (if applicable)
	LDAPCode   uint16    // LDAP result code
	Cause      error     // Underlying error
}

func (e *LDAPError) Error() string {
	if e.Diagnostic == "" {
		return e.Message
	}
	return e.Message + " cause : " + e.Diagnostic
}

func (e *LDAPError) Unwrap() error {
	return e.Cause
}

// GetCategory returns the error category derived from the result code.
func (e *LDAPError) GetCategory() ErrorCategory {
	if e.LDAPCode == ldap.LDAPResultOther && e.Cause != nil {
		return categorizeGenericError(e.Cause)
	}
	return categorizeError(e.LDAPCode)
}

// NewLDAPError builds a typed error of the given kind from a transport failure.
func NewLDAPError(kind ErrorKind, message, dn string, cause error) *LDAPError {
	return &LDAPError{
		Kind:       kind,
		Message:    message,
		Diagnostic: FormatDiagnostic(cause),
		DN:         dn,
		LDAPCode:   resultCode(cause),
		Cause:      cause,
	}
}

// FormatDiagnostic renders a transport error as
// "[ERROR_CODE]<code> <description> <message>".
// Errors that do not carry an LDAP result code are reported as code 80 (Other).
func FormatDiagnostic(err error) string {
	code := resultCode(err)

	description, ok := ldap.LDAPResultCodeMap[code]
	if !ok {
		description = fmt.Sprintf("Unknown error (%d)", code)
	}

	message := ""
	var ldapErr *ldap.Error
	switch {
	case errors.As(err, &ldapErr):
		if ldapErr.Err != nil {
			message = ldapErr.Err.Error()
		}
	case err != nil:
		message = err.Error()
	}

	return fmt.Sprintf("[ERROR_CODE]%d %s %s", code, description, message)
}

// resultCode extracts the LDAP result code carried by err.
func resultCode(err error) uint16 {
	var ldapErr *ldap.Error
	if errors.As(err, &ldapErr) {
		return ldapErr.ResultCode
	}
	return ldap.LDAPResultOther
}

// noSuchObject is used when a lookup succeeded on the wire but matched nothing.
func noSuchObject(format string, args ...any) error {
	return ldap.NewError(ldap.LDAPResultNoSuchObject, fmt.Errorf(format, args...))
}

// IsKind reports whether err is an *LDAPError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var ldapErr *LDAPError
	if errors.As(err, &ldapErr) {
		return ldapErr.Kind == kind
	}
	return false
}

// categoryByCode maps the result codes the provider reacts to onto categories.
// Codes absent from the table are ErrorCategoryUnknown.
var categoryByCode = map[uint16]ErrorCategory{
	ldap.LDAPResultInvalidCredentials:          ErrorCategoryAuthentication,
	ldap.LDAPResultInappropriateAuthentication: ErrorCategoryAuthentication,
	ldap.LDAPResultStrongAuthRequired:          ErrorCategoryAuthentication,

	ldap.LDAPResultInsufficientAccessRights: ErrorCategoryPermission,
	ldap.LDAPResultUnwillingToPerform:       ErrorCategoryPermission,

	ldap.LDAPResultNoSuchObject:           ErrorCategoryNotFound,
	ldap.LDAPResultNoSuchAttribute:        ErrorCategoryNotFound,
	ldap.LDAPResultUndefinedAttributeType: ErrorCategoryNotFound,

	ldap.LDAPResultEntryAlreadyExists:     ErrorCategoryConflict,
	ldap.LDAPResultAttributeOrValueExists: ErrorCategoryConflict,
	ldap.LDAPResultObjectClassViolation:   ErrorCategoryConflict,
	ldap.LDAPResultNotAllowedOnNonLeaf:    ErrorCategoryConflict,

	ldap.LDAPResultInvalidAttributeSyntax: ErrorCategoryValidation,
	ldap.LDAPResultConstraintViolation:    ErrorCategoryValidation,
	ldap.LDAPResultInvalidDNSyntax:        ErrorCategoryValidation,
	ldap.LDAPResultNamingViolation:        ErrorCategoryValidation,
	ldap.LDAPResultFilterError:            ErrorCategoryValidation,

	ldap.LDAPResultServerDown:         ErrorCategoryServer,
	ldap.LDAPResultUnavailable:        ErrorCategoryServer,
	ldap.LDAPResultBusy:               ErrorCategoryServer,
	ldap.LDAPResultTimeLimitExceeded:  ErrorCategoryServer,
	ldap.LDAPResultAdminLimitExceeded: ErrorCategoryServer,

	ldap.LDAPResultConnectError:  ErrorCategoryConnection,
	ldap.LDAPResultProtocolError: ErrorCategoryConnection,
	ldap.ErrorNetwork:            ErrorCategoryConnection,
}

func categorizeError(code uint16) ErrorCategory {
	if category, ok := categoryByCode[code]; ok {
		return category
	}
	return ErrorCategoryUnknown
}

// categorizeGenericError guesses a category for errors that carry no result code,
// such as dial failures.
func categorizeGenericError(err error) ErrorCategory {
	msg := strings.ToLower(err.Error())

	for _, marker := range []string{"connection", "network", "timeout", "broken pipe"} {
		if strings.Contains(msg, marker) {
			return ErrorCategoryConnection
		}
	}
	for _, marker := range []string{"authentication", "credentials"} {
		if strings.Contains(msg, marker) {
			return ErrorCategoryAuthentication
		}
	}
	return ErrorCategoryUnknown
}

// GetErrorCategory returns the category of an error.
func GetErrorCategory(err error) ErrorCategory {
	if err == nil {
		return ErrorCategoryUnknown
	}

	var ldapErr *LDAPError
	if errors.As(err, &ldapErr) {
		return ldapErr.GetCategory()
	}

	// Raw go-ldap library errors
	var resultErr *ldap.Error
	if errors.As(err, &resultErr) {
		return categorizeError(resultErr.ResultCode)
	}

	return categorizeGenericError(err)
}

// IsNotFoundError checks if an error indicates a "not found" condition.
func IsNotFoundError(err error) bool {
	return GetErrorCategory(err) == ErrorCategoryNotFound
}

// IsConflictError checks if an error indicates a conflict (already exists).
func IsConflictError(err error) bool {
	return GetErrorCategory(err) == ErrorCategoryConflict
}

// IsAuthenticationError checks if an error indicates an authentication problem.
func IsAuthenticationError(err error) bool {
	return GetErrorCategory(err) == ErrorCategoryAuthentication
}

// IsPermissionError checks if an error indicates a permission problem.
func IsPermissionError(err error) bool {
	return GetErrorCategory(err) == ErrorCategoryPermission
}
