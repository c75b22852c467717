package ldap

import (
	"context"
	"testing"
	"time"

	"github.com/go-ldap/ldap/v3"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const (
	testBindDN   = "cn=admin,dc=example,dc=com"
	testPassword = "secret"
	testBaseDN   = "dc=example,dc=com"
)

// MockConn implements the Conn interface for testing.
type MockConn struct {
	mock.Mock
}

func (m *MockConn) Bind(username, password string) error {
	args := m.Called(username, password)
	return args.Error(0)
}

func (m *MockConn) Search(req *ldap.SearchRequest) (*ldap.SearchResult, error) {
	args := m.Called(req)
	result, _ := args.Get(0).(*ldap.SearchResult)
	return result, args.Error(1)
}

func (m *MockConn) Add(req *ldap.AddRequest) error {
	args := m.Called(req)
	return args.Error(0)
}

func (m *MockConn) Modify(req *ldap.ModifyRequest) error {
	args := m.Called(req)
	return args.Error(0)
}

func (m *MockConn) Del(req *ldap.DelRequest) error {
	args := m.Called(req)
	return args.Error(0)
}

func (m *MockConn) WhoAmI(controls []ldap.Control) (*ldap.WhoAmIResult, error) {
	args := m.Called(controls)
	result, _ := args.Get(0).(*ldap.WhoAmIResult)
	return result, args.Error(1)
}

func (m *MockConn) SetTimeout(timeout time.Duration) {
	m.Called(timeout)
}

func (m *MockConn) Close() error {
	args := m.Called()
	return args.Error(0)
}

// dialerFor returns a Dialer handing out conn.
func dialerFor(conn Conn) ConnectOption {
	return WithDialer(func(_ context.Context, _ string, _ time.Duration) (Conn, error) {
		return conn, nil
	})
}

// newTestSession connects a session over a mocked, successfully bound connection.
func newTestSession(t *testing.T, conn *MockConn) *Session {
	t.Helper()

	conn.On("SetTimeout", time.Second).Return()
	conn.On("Bind", testBindDN, testPassword).Return(nil)

	s, err := Connect(t.Context(), "ldap.example.com", testBindDN, testPassword, time.Second,
		NewSearchOptions(testBaseDN), dialerFor(conn))
	require.NoError(t, err)
	return s
}

// pagingResponse builds the response controls of one page.
func pagingResponse(cookie string) []ldap.Control {
	return []ldap.Control{&ldap.ControlPaging{Cookie: []byte(cookie)}}
}

// rawEntries builds n entries named cn=<prefix><i>.
func rawEntries(prefix string, n int) []*ldap.Entry {
	entries := make([]*ldap.Entry, 0, n)
	for i := range n {
		cn := prefix + string(rune('a'+i))
		entries = append(entries, ldap.NewEntry("cn="+cn+","+testBaseDN, map[string][]string{
			"cn":          {cn},
			"objectClass": {"top", "person"},
		}))
	}
	return entries
}
