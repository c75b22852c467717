package ldap

import (
	"context"
	"errors"
	"maps"
	"strings"
	"time"

	"github.com/go-ldap/ldap/v3"
	"github.com/hashicorp/terraform-plugin-log/tflog"
)

// LogSubsystem is the tflog subsystem used by every session operation.
const LogSubsystem = "ldap"

// providerSubsystem is registered by the provider package for data source and resource logs.
const providerSubsystem = "provider"

const redacted = "[REDACTED]"

// Durations above which a search is reported at a higher level.
const (
	slowSearch     = time.Second
	verySlowSearch = 5 * time.Second
)

// Attribute and field names whose values are never logged.
var secretKeys = map[string]struct{}{
	"password":     {},
	"passwd":       {},
	"pwd":          {},
	"userpassword": {},
	"unicodepwd":   {},
	"secret":       {},
	"token":        {},
	"credentials":  {},
}

// Substrings that mark a string value as carrying a secret.
var secretMarkers = []string{"password=", "passwd=", "pwd=", "secret=", "token=", "{sha}", "{ssha}"}

// NewLogContext registers the ldap subsystem on ctx.
// Level is read from TF_LOG_PROVIDER_LDAP_LDAP; password fields are always masked.
func NewLogContext(ctx context.Context) context.Context {
	ctx = tflog.NewSubsystem(ctx, LogSubsystem,
		tflog.WithLevelFromEnv("TF_LOG_PROVIDER_LDAP_LDAP"))
	return tflog.SubsystemMaskFieldValuesWithFieldKeys(ctx, LogSubsystem, "password", "unicodePwd", "userPassword")
}

// LogOperation runs fn between a start and an end record. The end record carries
// duration_ms and, on failure, the error. fields is updated in place.
func LogOperation(ctx context.Context, subsystem, operation string, fields map[string]any, fn func() error) error {
	if fields == nil {
		fields = make(map[string]any)
	}
	fields["operation"] = operation

	tflog.SubsystemDebug(ctx, subsystem, "Starting "+operation, fields)

	start := time.Now()
	err := fn()
	fields["duration_ms"] = time.Since(start).Milliseconds()

	if err != nil {
		fields["error"] = err.Error()
		tflog.SubsystemError(ctx, subsystem, operation+" failed", fields)
		return err
	}

	tflog.SubsystemDebug(ctx, subsystem, operation+" completed", fields)
	return nil
}

// LogPerformance reports the duration of a finished operation, raising the level
// for slow ones.
func LogPerformance(ctx context.Context, subsystem, operation string, duration time.Duration, fields map[string]any) {
	record := map[string]any{
		"operation":   operation,
		"duration_ms": duration.Milliseconds(),
	}
	maps.Copy(record, fields)

	switch {
	case duration > verySlowSearch:
		tflog.SubsystemWarn(ctx, subsystem, "Slow "+operation, record)
	case duration > slowSearch:
		tflog.SubsystemInfo(ctx, subsystem, operation+" timing", record)
	default:
		tflog.SubsystemDebug(ctx, subsystem, operation+" timing", record)
	}
}

// LogLDAPError records err with whatever the server told us about it: the result
// code, the matched DN and the diagnostic message.
func LogLDAPError(ctx context.Context, subsystem string, operation string, err error, fields map[string]any) {
	record := map[string]any{
		"operation": operation,
		"error":     err.Error(),
	}
	maps.Copy(record, fields)

	var sessionErr *LDAPError
	if errors.As(err, &sessionErr) {
		record["error_kind"] = string(sessionErr.Kind)
		record["diagnostic"] = sessionErr.Diagnostic
	}

	var protocolErr *ldap.Error
	if errors.As(err, &protocolErr) {
		record["ldap_result_code"] = protocolErr.ResultCode
		if protocolErr.MatchedDN != "" {
			record["ldap_matched_dn"] = protocolErr.MatchedDN
		}
		if protocolErr.Err != nil {
			record["ldap_diagnostic_message"] = protocolErr.Err.Error()
		}
	}

	tflog.SubsystemError(ctx, subsystem, "LDAP operation failed", record)
}

// LogConnectionEvent records a step of the connect and bind sequence.
// Failures log at error level, completed steps at info and attempts at debug.
func LogConnectionEvent(ctx context.Context, event string, fields map[string]any) {
	record := SanitizeFields(fields)
	record["event"] = event

	switch {
	case strings.HasSuffix(event, "_failed"):
		tflog.SubsystemError(ctx, LogSubsystem, "Connection event", record)
	case event == "connection_established", event == "authentication_success":
		tflog.SubsystemInfo(ctx, LogSubsystem, "Connection event", record)
	default:
		tflog.SubsystemDebug(ctx, LogSubsystem, "Connection event", record)
	}
}

// SanitizeFields returns a copy of fields with secret values replaced.
// A value is secret when its key names a password-like attribute or when it is
// a string embedding one (a URL query, a {SHA} hash).
func SanitizeFields(fields map[string]any) map[string]any {
	sanitized := make(map[string]any, len(fields))
	for key, value := range fields {
		if isSecretKey(key) || isSecretValue(value) {
			sanitized[key] = redacted
			continue
		}
		sanitized[key] = value
	}
	return sanitized
}

func isSecretKey(key string) bool {
	_, ok := secretKeys[strings.ToLower(key)]
	return ok
}

func isSecretValue(value any) bool {
	s, ok := value.(string)
	if !ok {
		return false
	}
	s = strings.ToLower(s)
	for _, marker := range secretMarkers {
		if strings.Contains(s, marker) {
			return true
		}
	}
	return false
}

// LogResourceOperation logs the start of a resource CRUD operation and returns
// the function that logs its outcome.
func LogResourceOperation(ctx context.Context, resource, operation string, fields map[string]any) func(error) {
	return logProviderOperation(ctx, "resource", resource, operation, fields)
}

// LogDataSourceOperation is LogResourceOperation for data source reads.
func LogDataSourceOperation(ctx context.Context, dataSource, operation string, fields map[string]any) func(error) {
	return logProviderOperation(ctx, "data_source", dataSource, operation, fields)
}

func logProviderOperation(ctx context.Context, kind, name, operation string, fields map[string]any) func(error) {
	record := func() map[string]any {
		r := SanitizeFields(fields)
		r[kind] = name
		r["operation"] = operation
		return r
	}

	start := time.Now()
	tflog.SubsystemDebug(ctx, providerSubsystem, name+" "+operation+" started", record())

	return func(err error) {
		r := record()
		r["duration_ms"] = time.Since(start).Milliseconds()
		if err != nil {
			r["error"] = err.Error()
			tflog.SubsystemError(ctx, providerSubsystem, name+" "+operation+" failed", r)
			return
		}
		tflog.SubsystemDebug(ctx, providerSubsystem, name+" "+operation+" completed", r)
	}
}
