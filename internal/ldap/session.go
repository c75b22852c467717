package ldap

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-ldap/ldap/v3"
	"github.com/hashicorp/terraform-plugin-log/tflog"
)

// DefaultTimeout is the network timeout used when none is configured.
const DefaultTimeout = 5 * time.Second

// Session owns one bound LDAP connection and the search options applied to it.
//
// A Session is created connected and bound, and stays usable until Close.
// Calls are serialised on an internal mutex; the paged search of one call
// never interleaves with another call on the same Session.
type Session struct {
	mu      sync.Mutex
	conn    Conn
	options *SearchOptions
	server  string
	bindDN  string
	closed  bool

	lastResultCount int
	logContext      context.Context // Context with the ldap subsystem configured
}

// ConnectOption customises how Connect reaches the server.
type ConnectOption func(*connectSettings)

type connectSettings struct {
	dialer Dialer
}

// WithDialer replaces the go-ldap dialer, typically with a fake in tests.
func WithDialer(d Dialer) ConnectOption {
	return func(s *connectSettings) {
		s.dialer = d
	}
}

// Connect dials host, binds as login and returns a ready Session.
//
// host may be a bare hostname ("dc1.example.com", "dc1:389") or an ldap:// or
// ldaps:// URL. When opts is nil the base DN is derived from the bound identity.
// Dial failures are KindConnect errors; bind failures are KindBind errors and
// leave no connection behind.
func Connect(ctx context.Context, host, login, password string, timeout time.Duration, opts *SearchOptions, dialOpts ...ConnectOption) (*Session, error) {
	settings := &connectSettings{dialer: DialLDAP}
	for _, opt := range dialOpts {
		opt(settings)
	}

	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	logCtx := NewLogContext(ctx)
	url := NormalizeHost(host)

	fields := map[string]any{
		"server":     url,
		"bind_dn":    login,
		"timeout_ms": timeout.Milliseconds(),
	}
	LogConnectionEvent(logCtx, "connection_attempt", fields)

	conn, err := settings.dialer(ctx, url, timeout)
	if err != nil {
		LogConnectionEvent(logCtx, "connection_failed", map[string]any{"server": url, "error": err.Error()})
		return nil, NewLDAPError(KindConnect, fmt.Sprintf("Can't connect to ldap server %s", host), "", err)
	}
	conn.SetTimeout(timeout)

	LogConnectionEvent(logCtx, "authentication_attempt", fields)

	if err := conn.Bind(login, password); err != nil {
		_ = conn.Close()
		LogConnectionEvent(logCtx, "authentication_failed", map[string]any{
			"server":  url,
			"bind_dn": login,
			"error":   err.Error(),
		})
		return nil, NewLDAPError(KindBind, fmt.Sprintf("Can't bind to ldap server %s", host), login, err)
	}

	LogConnectionEvent(logCtx, "authentication_success", fields)

	s := &Session{
		conn:       conn,
		options:    opts,
		server:     url,
		bindDN:     login,
		logContext: logCtx,
	}

	if s.options == nil {
		rootDN, err := s.rootDN()
		if err != nil {
			_ = conn.Close()
			return nil, err
		}
		s.options = NewSearchOptions(rootDN)
	}

	LogConnectionEvent(logCtx, "connection_established", map[string]any{
		"server":  url,
		"base_dn": s.options.BaseDN(),
	})

	return s, nil
}

// ConnectWithConfig validates cfg and connects with its settings.
func ConnectWithConfig(ctx context.Context, cfg *Config, dialOpts ...ConnectOption) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid LDAP configuration: %w", err)
	}

	scope, err := ParseScope(cfg.Scope)
	if err != nil {
		return nil, err
	}

	var opts *SearchOptions
	if cfg.BaseDN != "" {
		opts = NewSearchOptions(cfg.BaseDN)
	}

	s, err := Connect(ctx, cfg.Host, cfg.User, cfg.Password, cfg.Timeout, opts, dialOpts...)
	if err != nil {
		return nil, err
	}

	// A derived base DN still takes the configured scope and limit.
	s.options.SetResultLimit(cfg.ResultLimit).SetScope(scope)
	return s, nil
}

// ConnectFromFile loads a configuration file section and connects with it.
func ConnectFromFile(ctx context.Context, path, section string, dialOpts ...ConnectOption) (*Session, error) {
	cfg, err := LoadConfigFile(path, section)
	if err != nil {
		return nil, err
	}
	return ConnectWithConfig(ctx, cfg, dialOpts...)
}

// rootDN derives the base DN from the dc=... suffix of the bound identity.
func (s *Session) rootDN() (string, error) {
	result, err := s.whoAmI()
	if err != nil {
		return "", err
	}

	rootDN := result.RootDN()
	if rootDN == "" {
		return "", fmt.Errorf("%w: %q", ErrNoBaseDN, result.AuthzID)
	}
	return rootDN, nil
}

// SearchOptions returns the options used by Search, List and GetEntry.
func (s *Session) SearchOptions() *SearchOptions {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.options
}

// SetSearchOptions swaps the options used by subsequent calls.
func (s *Session) SetSearchOptions(opts *SearchOptions) {
	if opts == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.options = opts
}

// Server returns the LDAP URL the session is connected to.
func (s *Session) Server() string { return s.server }

// BindDN returns the identity the session is bound as.
func (s *Session) BindDN() string { return s.bindDN }

// LastResultCount returns the number of entries collected by the last Search or List.
func (s *Session) LastResultCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastResultCount
}

// SearchOption tunes a single Search or List call.
type SearchOption func(*searchSettings)

type searchSettings struct {
	callback EntryCallback
	trackBy  string
	pageSize int
	paged    bool
}

// WithCallback invokes cb on every normalized entry.
func WithCallback(cb EntryCallback) SearchOption {
	return func(s *searchSettings) {
		s.callback = cb
	}
}

// WithTrackBy indexes results by the (first) value of attribute instead of returning a list.
// The special name "dn" indexes by distinguished name.
func WithTrackBy(attribute string) SearchOption {
	return func(s *searchSettings) {
		s.trackBy = attribute
	}
}

// WithPageSize enables the simple paged results control. size must be greater than zero.
func WithPageSize(size int) SearchOption {
	return func(s *searchSettings) {
		s.pageSize = size
		s.paged = true
	}
}

func newSearchSettings(opts []SearchOption) (*searchSettings, error) {
	settings := &searchSettings{}
	for _, opt := range opts {
		opt(settings)
	}
	if settings.paged && settings.pageSize <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidPageSize, settings.pageSize)
	}
	return settings, nil
}

// SplitAttributes turns "cn, mail,sn" into []string{"cn", "mail", "sn"}.
func SplitAttributes(list string) []string {
	var attrs []string
	for attr := range strings.SplitSeq(list, ",") {
		if attr = strings.TrimSpace(attr); attr != "" {
			attrs = append(attrs, attr)
		}
	}
	return attrs
}

func requestedAttributes(attrs []string) []string {
	if len(attrs) == 0 {
		return []string{"*"}
	}
	return attrs
}

// Search runs filter over the whole subtree below the base DN.
// It returns nil (and no error) when nothing matches.
func (s *Session) Search(ctx context.Context, filter string, attrs []string, opts ...SearchOption) (*SearchResult, error) {
	return s.find(ctx, ScopeSubtree, filter, attrs, opts)
}

// List runs filter over the immediate children of the base DN.
// It returns nil (and no error) when nothing matches.
func (s *Session) List(ctx context.Context, filter string, attrs []string, opts ...SearchOption) (*SearchResult, error) {
	return s.find(ctx, ScopeOneLevel, filter, attrs, opts)
}

func (s *Session) find(ctx context.Context, scope Scope, filter string, attrs []string, opts []SearchOption) (*SearchResult, error) {
	settings, err := newSearchSettings(opts)
	if err != nil {
		return nil, err
	}
	if filter == "" {
		return nil, ErrEmptyFilter
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrSessionClosed
	}
	s.lastResultCount = 0

	req := pageRequest{
		baseDN:     s.options.BaseDN(),
		scope:      scope,
		filter:     filter,
		attributes: requestedAttributes(attrs),
		sizeLimit:  s.options.ResultLimit(),
		callback:   settings.callback,
		trackBy:    settings.trackBy,
	}

	var result *SearchResult
	if settings.paged {
		req.pageSize = uint32(settings.pageSize)
		req.logCtx = s.logCtx(ctx)
		result, err = pagedSearch(ctx, s.conn, req)
	} else {
		result, err = s.directSearch(ctx, req)
	}
	if err != nil {
		return nil, err
	}

	s.lastResultCount = result.Len()
	if result.Len() == 0 {
		return nil, nil
	}
	return result, nil
}

// directSearch issues one unpaged search bounded by the request size limit.
// A sizeLimitExceeded response still yields the entries the server sent.
func (s *Session) directSearch(ctx context.Context, req pageRequest) (*SearchResult, error) {
	logCtx := s.logCtx(ctx)
	fields := map[string]any{
		"base_dn":    req.baseDN,
		"scope":      req.scope.String(),
		"filter":     req.filter,
		"attributes": req.attributes,
		"size_limit": req.sizeLimit,
	}

	var result *SearchResult
	err := LogOperation(logCtx, LogSubsystem, "search", fields, func() error {
		searchReq := ldap.NewSearchRequest(
			req.baseDN,
			req.scope.ldapScope(),
			ldap.NeverDerefAliases,
			req.sizeLimit,
			0,
			false,
			req.filter,
			req.attributes,
			nil,
		)

		raw, err := s.conn.Search(searchReq)
		if err != nil && (raw == nil || !ldap.IsErrorWithCode(err, ldap.LDAPResultSizeLimitExceeded)) {
			LogLDAPError(logCtx, LogSubsystem, "search", err, nil)
			return NewLDAPError(KindSearch, "Can't perform research", req.baseDN, err)
		}

		result = &SearchResult{Pages: 1}
		if req.trackBy != "" {
			result.Tracked = make(map[string]*Entry, len(raw.Entries))
		}
		for _, entry := range raw.Entries {
			result.add(NormalizeEntry(entry, req.callback), req.trackBy)
		}
		return nil
	})

	return result, err
}

// GetEntry returns the first entry matching filter, searched with the session scope.
// It returns nil (and no error) when nothing matches.
func (s *Session) GetEntry(ctx context.Context, filter string, attrs []string, cb EntryCallback) (*Entry, error) {
	if filter == "" {
		return nil, ErrEmptyFilter
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrSessionClosed
	}

	result, err := s.directSearch(ctx, pageRequest{
		baseDN:     s.options.BaseDN(),
		scope:      s.options.Scope(),
		filter:     filter,
		attributes: requestedAttributes(attrs),
		sizeLimit:  1,
		callback:   cb,
	})
	if err != nil {
		return nil, err
	}

	if len(result.Entries) == 0 {
		return nil, nil
	}
	return result.Entries[0], nil
}

// ReadEntry reads the entry at dn itself. It returns nil (and no error) when dn does not exist.
func (s *Session) ReadEntry(ctx context.Context, dn string, attrs []string) (*Entry, error) {
	if dn == "" {
		return nil, ErrEmptyDN
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrSessionClosed
	}

	searchReq := ldap.NewSearchRequest(
		dn,
		ldap.ScopeBaseObject,
		ldap.NeverDerefAliases,
		1,
		0,
		false,
		"(objectClass=*)",
		requestedAttributes(attrs),
		nil,
	)

	raw, err := s.conn.Search(searchReq)
	if err != nil {
		if ldap.IsErrorWithCode(err, ldap.LDAPResultNoSuchObject) {
			tflog.SubsystemDebug(s.logCtx(ctx), LogSubsystem, "Entry not found", map[string]any{"dn": dn})
			return nil, nil
		}
		LogLDAPError(s.logCtx(ctx), LogSubsystem, "read", err, map[string]any{"dn": dn})
		return nil, NewLDAPError(KindSearch, fmt.Sprintf("Can't read ldap entry %s", dn), dn, err)
	}

	if len(raw.Entries) == 0 {
		return nil, nil
	}
	return NormalizeEntry(raw.Entries[0], nil), nil
}

// Modify applies changes to dn with add, replace or delete semantics.
// With ModDelete an attribute mapped to no values is removed entirely.
func (s *Session) Modify(ctx context.Context, dn string, changes map[string][]string, modType ModType) error {
	if dn == "" {
		return ErrEmptyDN
	}

	req := ldap.NewModifyRequest(dn, nil)
	for _, name := range sortedKeys(changes) {
		values := changes[name]
		switch modType {
		case ModAdd:
			req.Add(name, values)
		case ModDelete:
			req.Delete(name, values)
		case ModReplace:
			req.Replace(name, values)
		default:
			return fmt.Errorf("unsupported modification type %s", modType)
		}
	}

	return s.modify(ctx, dn, modType.String(), req)
}

func (s *Session) modify(ctx context.Context, dn, mode string, req *ldap.ModifyRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSessionClosed
	}

	fields := map[string]any{
		"dn":      dn,
		"mode":    mode,
		"changes": len(req.Changes),
	}

	return LogOperation(s.logCtx(ctx), LogSubsystem, "modify", fields, func() error {
		if err := s.conn.Modify(req); err != nil {
			return NewLDAPError(KindModify, fmt.Sprintf("Can't perform modification of %s", dn), dn, err)
		}
		return nil
	})
}

// Add creates dn with the given attributes.
func (s *Session) Add(ctx context.Context, dn string, attrs map[string][]string) error {
	if dn == "" {
		return ErrEmptyDN
	}

	req := ldap.NewAddRequest(dn, nil)
	for _, name := range sortedKeys(attrs) {
		req.Attribute(name, attrs[name])
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSessionClosed
	}

	fields := map[string]any{
		"dn":         dn,
		"attributes": len(attrs),
	}

	return LogOperation(s.logCtx(ctx), LogSubsystem, "add", fields, func() error {
		if err := s.conn.Add(req); err != nil {
			return NewLDAPError(KindAdd, fmt.Sprintf("Can't add ldap entry %s", dn), dn, err)
		}
		return nil
	})
}

// Delete removes dn.
func (s *Session) Delete(ctx context.Context, dn string) error {
	if dn == "" {
		return ErrEmptyDN
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSessionClosed
	}

	return LogOperation(s.logCtx(ctx), LogSubsystem, "delete", map[string]any{"dn": dn}, func() error {
		if err := s.conn.Del(ldap.NewDelRequest(dn, nil)); err != nil {
			return NewLDAPError(KindDelete, fmt.Sprintf("Can't delete ldap entry %s", dn), dn, err)
		}
		return nil
	})
}

// WhoAmI performs the LDAP "Who Am I?" extended operation.
func (s *Session) WhoAmI(ctx context.Context) (*WhoAmIResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrSessionClosed
	}

	tflog.SubsystemTrace(s.logCtx(ctx), LogSubsystem, "Performing WhoAmI", nil)
	return s.whoAmI()
}

func (s *Session) whoAmI() (*WhoAmIResult, error) {
	raw, err := s.conn.WhoAmI(nil)
	if err != nil {
		return nil, NewLDAPError(KindSearch, "WhoAmI operation failed", "", err)
	}
	if raw == nil {
		return nil, NewLDAPError(KindSearch, "WhoAmI operation returned nil result", "", nil)
	}

	result := &WhoAmIResult{AuthzID: raw.AuthzID}
	result.parseAuthzID()
	return result, nil
}

// Close releases the connection. Any later call, including a second Close, returns ErrSessionClosed.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSessionClosed
	}
	s.closed = true

	LogConnectionEvent(s.logContext, "connection_closed", map[string]any{"server": s.server})
	return s.conn.Close()
}

// logCtx returns the context carrying the ldap subsystem logger.
// Operation contexts from the framework do not carry it, so the one captured at Connect is used.
func (s *Session) logCtx(_ context.Context) context.Context {
	return s.logContext
}

func sortedKeys(m map[string][]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
