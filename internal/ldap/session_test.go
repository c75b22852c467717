package ldap

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-ldap/ldap/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestConnect_DialFailure(t *testing.T) {
	dialErr := ldap.NewError(ldap.ErrorNetwork, errors.New("dial tcp 10.0.0.1:389: connect: connection refused"))
	failingDialer := WithDialer(func(context.Context, string, time.Duration) (Conn, error) {
		return nil, dialErr
	})

	s, err := Connect(t.Context(), "10.0.0.1", testBindDN, testPassword, time.Second, nil, failingDialer)
	require.Error(t, err)
	assert.Nil(t, s)
	assert.True(t, IsKind(err, KindConnect))
	assert.ErrorIs(t, err, dialErr)
	assert.Contains(t, err.Error(), "cause : [ERROR_CODE]200 ")
}

func TestConnect_BindFailureClosesConnection(t *testing.T) {
	conn := &MockConn{}
	conn.On("SetTimeout", time.Second).Return()
	conn.On("Bind", testBindDN, "wrong").
		Return(ldap.NewError(ldap.LDAPResultInvalidCredentials, errors.New("invalid credentials")))
	conn.On("Close").Return(nil).Once()

	s, err := Connect(t.Context(), "ldap.example.com", testBindDN, "wrong", time.Second, nil, dialerFor(conn))
	require.Error(t, err)
	assert.Nil(t, s)
	assert.True(t, IsKind(err, KindBind))
	assert.False(t, IsKind(err, KindConnect))
	assert.True(t, IsAuthenticationError(err))
	conn.AssertExpectations(t)
}

func TestConnect_DialerReceivesURLAndTimeout(t *testing.T) {
	var gotURL string
	var gotTimeout time.Duration

	conn := &MockConn{}
	conn.On("SetTimeout", DefaultTimeout).Return()
	conn.On("Bind", testBindDN, testPassword).Return(nil)

	dialer := WithDialer(func(_ context.Context, url string, timeout time.Duration) (Conn, error) {
		gotURL, gotTimeout = url, timeout
		return conn, nil
	})

	_, err := Connect(t.Context(), "dc1.example.com:3389", testBindDN, testPassword, 0, NewSearchOptions(testBaseDN), dialer)
	require.NoError(t, err)
	assert.Equal(t, "ldap://dc1.example.com:3389", gotURL)
	assert.Equal(t, DefaultTimeout, gotTimeout)
	conn.AssertExpectations(t)
}

func TestConnect_DerivesBaseDN(t *testing.T) {
	tests := []struct {
		name    string
		authzID string
		want    string
	}{
		{"lowercase", "dn:cn=admin,dc=example,dc=com", "dc=example,dc=com"},
		{"uppercase", "dn:CN=Admin,OU=Staff,DC=corp,DC=example", "DC=corp,DC=example"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn := &MockConn{}
			conn.On("SetTimeout", time.Second).Return()
			conn.On("Bind", testBindDN, testPassword).Return(nil)
			conn.On("WhoAmI", mock.Anything).Return(&ldap.WhoAmIResult{AuthzID: tt.authzID}, nil)

			s, err := Connect(t.Context(), "ldap.example.com", testBindDN, testPassword, time.Second, nil, dialerFor(conn))
			require.NoError(t, err)
			assert.Equal(t, tt.want, s.SearchOptions().BaseDN())
			assert.Equal(t, ScopeSubtree, s.SearchOptions().Scope())
			assert.Equal(t, 0, s.SearchOptions().ResultLimit())
		})
	}
}

func TestConnect_NoBaseDNInIdentity(t *testing.T) {
	conn := &MockConn{}
	conn.On("SetTimeout", time.Second).Return()
	conn.On("Bind", testBindDN, testPassword).Return(nil)
	conn.On("WhoAmI", mock.Anything).Return(&ldap.WhoAmIResult{AuthzID: `u:EXAMPLE\admin`}, nil)
	conn.On("Close").Return(nil).Once()

	s, err := Connect(t.Context(), "ldap.example.com", testBindDN, testPassword, time.Second, nil, dialerFor(conn))
	assert.Nil(t, s)
	assert.ErrorIs(t, err, ErrNoBaseDN)
	conn.AssertExpectations(t)
}

func TestSession_SearchReturnsNilOnNoMatch(t *testing.T) {
	conn := &MockConn{}
	s := newTestSession(t, conn)

	conn.On("Search", mock.Anything).Return(&ldap.SearchResult{}, nil)

	result, err := s.Search(t.Context(), "(uid=nobody)", nil)
	require.NoError(t, err)
	assert.Nil(t, result)

	result, err = s.List(t.Context(), "(uid=nobody)", nil)
	require.NoError(t, err)
	assert.Nil(t, result)

	result, err = s.Search(t.Context(), "(uid=nobody)", nil, WithPageSize(10))
	require.NoError(t, err)
	assert.Nil(t, result)
}

func TestSession_SearchDirect(t *testing.T) {
	conn := &MockConn{}
	s := newTestSession(t, conn)
	s.SearchOptions().SetResultLimit(25)

	conn.On("Search", mock.MatchedBy(func(req *ldap.SearchRequest) bool {
		return req.BaseDN == testBaseDN &&
			req.Scope == ldap.ScopeWholeSubtree &&
			req.SizeLimit == 25 &&
			len(req.Controls) == 0 &&
			assert.ObjectsAreEqual([]string{"*"}, req.Attributes)
	})).Return(&ldap.SearchResult{Entries: rawEntries("u", 3)}, nil).Once()

	result, err := s.Search(t.Context(), "(objectClass=person)", nil)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Len(t, result.Entries, 3)
	assert.Equal(t, 3, s.LastResultCount())
	conn.AssertExpectations(t)
}

func TestSession_ListUsesOneLevelScope(t *testing.T) {
	conn := &MockConn{}
	s := newTestSession(t, conn)

	conn.On("Search", mock.MatchedBy(func(req *ldap.SearchRequest) bool {
		return req.Scope == ldap.ScopeSingleLevel
	})).Return(&ldap.SearchResult{Entries: rawEntries("u", 1)}, nil).Once()

	result, err := s.List(t.Context(), "(objectClass=*)", SplitAttributes("cn,mail"))
	require.NoError(t, err)
	assert.Equal(t, 1, result.Len())
	conn.AssertExpectations(t)
}

func TestSession_SearchSizeLimitExceededKeepsEntries(t *testing.T) {
	conn := &MockConn{}
	s := newTestSession(t, conn)

	conn.On("Search", mock.Anything).Return(
		&ldap.SearchResult{Entries: rawEntries("u", 2)},
		ldap.NewError(ldap.LDAPResultSizeLimitExceeded, errors.New("size limit exceeded")),
	).Once()

	result, err := s.Search(t.Context(), "(objectClass=person)", nil)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Len())
}

func TestSession_SearchFailure(t *testing.T) {
	conn := &MockConn{}
	s := newTestSession(t, conn)

	conn.On("Search", mock.Anything).
		Return(nil, ldap.NewError(ldap.LDAPResultNoSuchObject, errors.New("0000208D: NameErr"))).
		Once()

	result, err := s.Search(t.Context(), "(objectClass=person)", nil)
	assert.Nil(t, result)
	assert.True(t, IsKind(err, KindSearch))
	assert.Contains(t, err.Error(), "[ERROR_CODE]32 No Such Object 0000208D: NameErr")
}

func TestSession_SearchTrackBy(t *testing.T) {
	conn := &MockConn{}
	s := newTestSession(t, conn)

	conn.On("Search", mock.Anything).Return(&ldap.SearchResult{Entries: rawEntries("u", 3)}, nil).Once()

	result, err := s.Search(t.Context(), "(objectClass=person)", []string{"cn"}, WithTrackBy("cn"))
	require.NoError(t, err)
	assert.Len(t, result.Tracked, 3)
	assert.Contains(t, result.Tracked, "ub")
}

func TestSession_InvalidPageSize(t *testing.T) {
	conn := &MockConn{}
	s := newTestSession(t, conn)

	for _, size := range []int{0, -1} {
		result, err := s.Search(t.Context(), "(objectClass=*)", nil, WithPageSize(size))
		assert.ErrorIs(t, err, ErrInvalidPageSize)
		assert.Nil(t, result)
	}
	conn.AssertNotCalled(t, "Search", mock.Anything)
}

func TestSession_GetEntry(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		conn := &MockConn{}
		s := newTestSession(t, conn)
		s.SearchOptions().SetScope(ScopeOneLevel)

		conn.On("Search", mock.MatchedBy(func(req *ldap.SearchRequest) bool {
			return req.SizeLimit == 1 && req.Scope == ldap.ScopeSingleLevel
		})).Return(&ldap.SearchResult{Entries: rawEntries("u", 1)}, nil).Once()

		called := false
		entry, err := s.GetEntry(t.Context(), "(cn=ua)", nil, func(*Entry) { called = true })
		require.NoError(t, err)
		require.NotNil(t, entry)
		assert.Equal(t, "cn=ua,"+testBaseDN, entry.DN)
		assert.True(t, called)
	})

	t.Run("not found", func(t *testing.T) {
		conn := &MockConn{}
		s := newTestSession(t, conn)

		conn.On("Search", mock.Anything).Return(&ldap.SearchResult{}, nil).Once()

		entry, err := s.GetEntry(t.Context(), "(cn=nobody)", nil, nil)
		require.NoError(t, err)
		assert.Nil(t, entry)
	})

	t.Run("call failed", func(t *testing.T) {
		conn := &MockConn{}
		s := newTestSession(t, conn)

		conn.On("Search", mock.Anything).
			Return(nil, ldap.NewError(ldap.LDAPResultFilterError, errors.New("bad filter"))).
			Once()

		entry, err := s.GetEntry(t.Context(), "(cn=", nil, nil)
		assert.Nil(t, entry)
		assert.True(t, IsKind(err, KindSearch))
	})
}

func TestSession_ReadEntry(t *testing.T) {
	conn := &MockConn{}
	s := newTestSession(t, conn)

	dn := "cn=ua," + testBaseDN
	conn.On("Search", mock.MatchedBy(func(req *ldap.SearchRequest) bool {
		return req.BaseDN == dn && req.Scope == ldap.ScopeBaseObject
	})).Return(&ldap.SearchResult{Entries: rawEntries("u", 1)}, nil).Once()
	conn.On("Search", mock.Anything).
		Return(nil, ldap.NewError(ldap.LDAPResultNoSuchObject, errors.New("no such object"))).
		Once()

	entry, err := s.ReadEntry(t.Context(), dn, nil)
	require.NoError(t, err)
	assert.Equal(t, dn, entry.DN)

	entry, err = s.ReadEntry(t.Context(), "cn=gone,"+testBaseDN, nil)
	require.NoError(t, err)
	assert.Nil(t, entry)
}

func TestSession_Modify(t *testing.T) {
	tests := []struct {
		name    string
		modType ModType
		wantOp  uint
	}{
		{"replace", ModReplace, ldap.ReplaceAttribute},
		{"add", ModAdd, ldap.AddAttribute},
		{"delete", ModDelete, ldap.DeleteAttribute},
	}

	dn := "cn=ua," + testBaseDN

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn := &MockConn{}
			s := newTestSession(t, conn)

			conn.On("Modify", mock.MatchedBy(func(req *ldap.ModifyRequest) bool {
				return req.DN == dn &&
					len(req.Changes) == 2 &&
					req.Changes[0].Operation == tt.wantOp &&
					req.Changes[0].Modification.Type == "description" &&
					req.Changes[1].Modification.Type == "mail"
			})).Return(nil).Once()

			err := s.Modify(t.Context(), dn, map[string][]string{
				"mail":        {"ua@example.com"},
				"description": {"a", "b"},
			}, tt.modType)
			require.NoError(t, err)
			conn.AssertExpectations(t)
		})
	}
}

func TestSession_ModifyFailure(t *testing.T) {
	conn := &MockConn{}
	s := newTestSession(t, conn)

	dn := "cn=ua," + testBaseDN
	conn.On("Modify", mock.Anything).
		Return(ldap.NewError(ldap.LDAPResultInsufficientAccessRights, errors.New("access denied"))).
		Once()

	err := s.Modify(t.Context(), dn, map[string][]string{"mail": {"x"}}, ModReplace)
	require.Error(t, err)

	var ldapErr *LDAPError
	require.ErrorAs(t, err, &ldapErr)
	assert.Equal(t, KindModify, ldapErr.Kind)
	assert.Equal(t, dn, ldapErr.DN)
	assert.Contains(t, ldapErr.Message, dn)
	assert.Equal(t, "[ERROR_CODE]50 Insufficient Access Rights access denied", ldapErr.Diagnostic)
}

func TestSession_ModifyThenGetEntryRoundTrip(t *testing.T) {
	conn := &MockConn{}
	s := newTestSession(t, conn)

	dn := "cn=ua," + testBaseDN
	stored := &ldap.SearchResult{}

	conn.On("Modify", mock.Anything).Run(func(args mock.Arguments) {
		req := args.Get(0).(*ldap.ModifyRequest)
		attrs := map[string][]string{}
		for _, change := range req.Changes {
			attrs[change.Modification.Type] = change.Modification.Vals
		}
		stored.Entries = []*ldap.Entry{ldap.NewEntry(req.DN, attrs)}
	}).Return(nil).Once()
	conn.On("Search", mock.Anything).Return(stored, nil).Once()

	require.NoError(t, s.Modify(t.Context(), dn, map[string][]string{"description": {"a", "b"}}, ModReplace))

	entry, err := s.GetEntry(t.Context(), "(cn=ua)", []string{"description"}, nil)
	require.NoError(t, err)
	value, ok := entry.Get("description")
	require.True(t, ok)
	assert.True(t, value.IsMulti())
	assert.Equal(t, []string{"a", "b"}, value.Values())
}

func TestSession_AddAndDelete(t *testing.T) {
	conn := &MockConn{}
	s := newTestSession(t, conn)

	dn := "cn=new," + testBaseDN

	conn.On("Add", mock.MatchedBy(func(req *ldap.AddRequest) bool {
		return req.DN == dn && len(req.Attributes) == 2 && req.Attributes[0].Type == "cn"
	})).Return(nil).Once()
	conn.On("Add", mock.Anything).
		Return(ldap.NewError(ldap.LDAPResultEntryAlreadyExists, errors.New("exists"))).
		Once()
	conn.On("Del", mock.MatchedBy(func(req *ldap.DelRequest) bool { return req.DN == dn })).Return(nil).Once()
	conn.On("Del", mock.Anything).
		Return(ldap.NewError(ldap.LDAPResultNotAllowedOnNonLeaf, errors.New("has children"))).
		Once()

	attrs := map[string][]string{"objectClass": {"person"}, "cn": {"new"}}

	require.NoError(t, s.Add(t.Context(), dn, attrs))

	err := s.Add(t.Context(), dn, attrs)
	assert.True(t, IsKind(err, KindAdd))
	assert.True(t, IsConflictError(err))

	require.NoError(t, s.Delete(t.Context(), dn))

	err = s.Delete(t.Context(), "ou=parent,"+testBaseDN)
	assert.True(t, IsKind(err, KindDelete))

	conn.AssertExpectations(t)
}

func TestSession_EmptyArguments(t *testing.T) {
	conn := &MockConn{}
	s := newTestSession(t, conn)

	_, err := s.Search(t.Context(), "", nil)
	assert.ErrorIs(t, err, ErrEmptyFilter)
	_, err = s.GetEntry(t.Context(), "", nil, nil)
	assert.ErrorIs(t, err, ErrEmptyFilter)
	assert.ErrorIs(t, s.Modify(t.Context(), "", nil, ModReplace), ErrEmptyDN)
	assert.ErrorIs(t, s.Add(t.Context(), "", nil), ErrEmptyDN)
	assert.ErrorIs(t, s.Delete(t.Context(), ""), ErrEmptyDN)
}

func TestSession_Close(t *testing.T) {
	conn := &MockConn{}
	s := newTestSession(t, conn)
	conn.On("Close").Return(nil).Once()

	require.NoError(t, s.Close())
	assert.ErrorIs(t, s.Close(), ErrSessionClosed)

	_, err := s.Search(t.Context(), "(objectClass=*)", nil)
	assert.ErrorIs(t, err, ErrSessionClosed)
	_, err = s.GetEntry(t.Context(), "(objectClass=*)", nil, nil)
	assert.ErrorIs(t, err, ErrSessionClosed)
	_, err = s.WhoAmI(t.Context())
	assert.ErrorIs(t, err, ErrSessionClosed)
	assert.ErrorIs(t, s.Modify(t.Context(), "cn=x", nil, ModReplace), ErrSessionClosed)
	assert.ErrorIs(t, s.Add(t.Context(), "cn=x", nil), ErrSessionClosed)
	assert.ErrorIs(t, s.Delete(t.Context(), "cn=x"), ErrSessionClosed)

	conn.AssertExpectations(t)
	conn.AssertNotCalled(t, "Search", mock.Anything)
}

func TestSession_WhoAmI(t *testing.T) {
	conn := &MockConn{}
	s := newTestSession(t, conn)

	conn.On("WhoAmI", mock.Anything).Return(&ldap.WhoAmIResult{AuthzID: "u:jdoe@example.com"}, nil).Once()

	result, err := s.WhoAmI(t.Context())
	require.NoError(t, err)
	assert.Equal(t, "upn", result.Format)
	assert.Equal(t, "jdoe@example.com", result.UserPrincipalName)
}

func TestSession_SetSearchOptions(t *testing.T) {
	conn := &MockConn{}
	s := newTestSession(t, conn)

	s.SetSearchOptions(NewSearchOptions("ou=People," + testBaseDN))
	s.SetSearchOptions(nil)

	conn.On("Search", mock.MatchedBy(func(req *ldap.SearchRequest) bool {
		return req.BaseDN == "ou=People,"+testBaseDN
	})).Return(&ldap.SearchResult{}, nil).Once()

	_, err := s.Search(t.Context(), "(objectClass=*)", nil)
	require.NoError(t, err)
	conn.AssertExpectations(t)
}

func TestSplitAttributes(t *testing.T) {
	assert.Equal(t, []string{"cn", "mail", "sn"}, SplitAttributes("cn, mail,sn"))
	assert.Nil(t, SplitAttributes(""))
	assert.Equal(t, []string{"cn"}, SplitAttributes("cn,,"))
}
