package ldap

import (
	"errors"
	"testing"

	"github.com/go-ldap/ldap/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestBatchModification_Add(t *testing.T) {
	batch := NewBatchModification().
		Add("mail", BatchReplace, "jdoe@example.com").
		Add("description", BatchRemoveAll, "ignored").
		Add("memberOf", BatchAdd, "cn=a", "cn=b")

	items := batch.Items()
	require.Len(t, items, 3)
	assert.Equal(t, 3, batch.Len())
	assert.Equal(t, BatchItem{Attribute: "mail", Operation: BatchReplace, Values: []string{"jdoe@example.com"}}, items[0])
	assert.Nil(t, items[1].Values)
	assert.Equal(t, []string{"cn=a", "cn=b"}, items[2].Values)
}

func TestBatchModification_Request(t *testing.T) {
	batch := NewBatchModification(BatchItem{Attribute: "telephoneNumber", Operation: BatchRemove, Values: []string{"555"}}).
		Add("description", BatchRemoveAll).
		Add("mail", BatchAdd, "x@example.com")

	req, err := batch.request(testUserDN)
	require.NoError(t, err)
	require.Len(t, req.Changes, 3)

	assert.Equal(t, uint(ldap.DeleteAttribute), req.Changes[0].Operation)
	assert.Equal(t, []string{"555"}, req.Changes[0].Modification.Vals)
	assert.Equal(t, uint(ldap.DeleteAttribute), req.Changes[1].Operation)
	assert.Empty(t, req.Changes[1].Modification.Vals)
	assert.Equal(t, uint(ldap.AddAttribute), req.Changes[2].Operation)
}

func TestBatchModification_RequestRejectsInvalidItems(t *testing.T) {
	_, err := NewBatchModification().Add("", BatchAdd, "x").request(testUserDN)
	assert.ErrorContains(t, err, "attribute name cannot be empty")

	_, err = NewBatchModification(BatchItem{Attribute: "cn", Operation: BatchOperation(42)}).request(testUserDN)
	assert.ErrorContains(t, err, "unsupported operation unknown(42)")
}

func TestSession_ModifyBatch(t *testing.T) {
	conn := &MockConn{}
	s := newTestSession(t, conn)

	conn.On("Modify", mock.MatchedBy(func(req *ldap.ModifyRequest) bool {
		return req.DN == testUserDN && len(req.Changes) == 2
	})).Return(nil).Once()
	conn.On("Modify", mock.Anything).
		Return(ldap.NewError(ldap.LDAPResultNoSuchAttribute, errors.New("no such attribute"))).
		Once()

	batch := NewBatchModification().
		Add("mail", BatchReplace, "jdoe@example.com").
		Add("description", BatchRemoveAll)

	require.NoError(t, s.ModifyBatch(t.Context(), testUserDN, batch))

	err := s.ModifyBatch(t.Context(), testUserDN, NewBatchModification().Add("fax", BatchRemove, "1"))
	assert.True(t, IsKind(err, KindModify))
	assert.True(t, IsNotFoundError(err))

	conn.AssertExpectations(t)
}

func TestSession_ModifyBatchEmpty(t *testing.T) {
	conn := &MockConn{}
	s := newTestSession(t, conn)

	assert.Error(t, s.ModifyBatch(t.Context(), testUserDN, nil))
	assert.Error(t, s.ModifyBatch(t.Context(), testUserDN, NewBatchModification()))
	assert.ErrorIs(t, s.ModifyBatch(t.Context(), "", NewBatchModification().Add("cn", BatchAdd, "x")), ErrEmptyDN)
	conn.AssertNotCalled(t, "Modify", mock.Anything)
}

func TestBatchOperation_String(t *testing.T) {
	assert.Equal(t, "add", BatchAdd.String())
	assert.Equal(t, "replace", BatchReplace.String())
	assert.Equal(t, "remove", BatchRemove.String())
	assert.Equal(t, "remove_all", BatchRemoveAll.String())
}
