package ldap

import (
	"context"
	"fmt"
	"slices"

	"github.com/go-ldap/ldap/v3"
)

// BatchOperation is the kind of change applied to one attribute in a batch.
type BatchOperation int

const (
	BatchAdd       BatchOperation = iota // Add values
	BatchReplace                         // Replace all values
	BatchRemove                          // Remove the listed values
	BatchRemoveAll                       // Remove the attribute
)

// String returns the string representation of the batch operation.
func (op BatchOperation) String() string {
	switch op {
	case BatchAdd:
		return "add"
	case BatchReplace:
		return "replace"
	case BatchRemove:
		return "remove"
	case BatchRemoveAll:
		return "remove_all"
	default:
		return fmt.Sprintf("unknown(%d)", int(op))
	}
}

// BatchItem is one attribute change of a batch.
type BatchItem struct {
	Attribute string
	Operation BatchOperation
	Values    []string // Always nil for BatchRemoveAll
}

// BatchModification collects attribute changes applied to one entry in a single modify request.
type BatchModification struct {
	items []BatchItem
}

// NewBatchModification creates an empty batch, optionally seeded with items.
func NewBatchModification(items ...BatchItem) *BatchModification {
	return &BatchModification{items: slices.Clone(items)}
}

// Add appends a change. Values given with BatchRemoveAll are dropped.
func (b *BatchModification) Add(attribute string, op BatchOperation, values ...string) *BatchModification {
	item := BatchItem{Attribute: attribute, Operation: op}
	if op != BatchRemoveAll {
		item.Values = slices.Clone(values)
	}
	b.items = append(b.items, item)
	return b
}

// Items returns the changes in insertion order.
func (b *BatchModification) Items() []BatchItem {
	return slices.Clone(b.items)
}

// Len returns the number of changes in the batch.
func (b *BatchModification) Len() int {
	return len(b.items)
}

// request builds the go-ldap modify request for dn.
func (b *BatchModification) request(dn string) (*ldap.ModifyRequest, error) {
	req := ldap.NewModifyRequest(dn, nil)
	for _, item := range b.items {
		if item.Attribute == "" {
			return nil, fmt.Errorf("batch modification of %s: attribute name cannot be empty", dn)
		}
		switch item.Operation {
		case BatchAdd:
			req.Add(item.Attribute, item.Values)
		case BatchReplace:
			req.Replace(item.Attribute, item.Values)
		case BatchRemove:
			req.Delete(item.Attribute, item.Values)
		case BatchRemoveAll:
			req.Delete(item.Attribute, []string{})
		default:
			return nil, fmt.Errorf("batch modification of %s: unsupported operation %s", dn, item.Operation)
		}
	}
	return req, nil
}

// ModifyBatch applies every change of batch to dn in one modify request.
func (s *Session) ModifyBatch(ctx context.Context, dn string, batch *BatchModification) error {
	if dn == "" {
		return ErrEmptyDN
	}
	if batch == nil || batch.Len() == 0 {
		return fmt.Errorf("batch modification of %s: no changes", dn)
	}

	req, err := batch.request(dn)
	if err != nil {
		return err
	}

	return s.modify(ctx, dn, "batch", req)
}
