package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Collection names used by the reconciliation core
const (
	CollectionBills     = "bills"
	CollectionMerchants = "merchantTransactions"
	CollectionReports   = "reports"
	CollectionIndex     = "transactionIndex"
	CollectionAdminPay  = "adminPayments"
	CollectionAgentPay  = "agentPayments"
)

var (
	ErrNotFound    = errors.New("store: document not found")
	ErrContention  = errors.New("store: too much contention on key")
	ErrInvalidPath = errors.New("store: invalid path")
)

// MaxCASAttempts bounds the compare-and-set retry loop of AtomicUpdate
const MaxCASAttempts = 32

// Document is a stored JSON value and its key within a collection
type Document struct {
	ID   string
	Data json.RawMessage
}

// UpdateFunc receives the current value (nil when absent) and returns the
// next value. Returning nil bytes leaves the key untouched; returning an
// error aborts the update and the error is passed back to the caller.
type UpdateFunc func(current []byte) ([]byte, error)

// Store is the document-collection collaborator of the reconciliation core
type Store interface {
	ListAll(ctx context.Context, collection string) ([]Document, error)
	// Get returns nil when the document does not exist.
	Get(ctx context.Context, collection, id string) (*Document, error)
	Put(ctx context.Context, collection, id string, data []byte) error
	// Update merges top-level fields into an existing document. A nil value
	// removes the field. Missing documents yield ErrNotFound.
	Update(ctx context.Context, collection, id string, fields map[string]any) error
	// AtomicUpdate runs fn as a compare-and-set loop on a single key and returns the stored value.
	AtomicUpdate(ctx context.Context, collection, id string, fn UpdateFunc) ([]byte, error)
	// BatchWrite applies all writes at once. Keys are "collection/id" (whole
	// document) or "collection/id/field"; nil values delete.
	BatchWrite(ctx context.Context, writes map[string]any) error
	NewID() string
	Close() error
}

// Path is a parsed BatchWrite key
type Path struct {
	Collection string
	ID         string
	Field      string
}

func (p Path) String() string {
	if p.Field == "" {
		return p.Collection + "/" + p.ID
	}
	return p.Collection + "/" + p.ID + "/" + p.Field
}

func DocPath(collection, id string) string {
	return Path{Collection: collection, ID: id}.String()
}

func FieldPath(collection, id, field string) string {
	return Path{Collection: collection, ID: id, Field: field}.String()
}

func ParsePath(raw string) (Path, error) {
	parts := strings.Split(strings.Trim(raw, "/"), "/")
	if len(parts) < 2 || len(parts) > 3 {
		return Path{}, fmt.Errorf("%w: %q", ErrInvalidPath, raw)
	}
	for _, p := range parts {
		if p == "" {
			return Path{}, fmt.Errorf("%w: %q", ErrInvalidPath, raw)
		}
	}
	p := Path{Collection: parts[0], ID: parts[1]}
	if len(parts) == 3 {
		p.Field = parts[2]
	}
	return p, nil
}

// DocWrites groups batch writes by document, preserving whole-document
// writes separately from field writes.
type DocWrites struct {
	Path   Path
	Whole  bool
	Value  any
	Fields map[string]any
}

func GroupWrites(writes map[string]any) (map[string]*DocWrites, error) {
	grouped := make(map[string]*DocWrites, len(writes))
	for raw, value := range writes {
		p, err := ParsePath(raw)
		if err != nil {
			return nil, err
		}
		key := DocPath(p.Collection, p.ID)
		dw, ok := grouped[key]
		if !ok {
			dw = &DocWrites{Path: Path{Collection: p.Collection, ID: p.ID}, Fields: map[string]any{}}
			grouped[key] = dw
		}
		if p.Field == "" {
			dw.Whole = true
			dw.Value = value
			continue
		}
		dw.Fields[p.Field] = value
	}
	return grouped, nil
}

// Apply computes the next value of a document given its current value.
// A nil result means the document is deleted.
func (dw *DocWrites) Apply(current []byte) ([]byte, error) {
	next := current
	if dw.Whole {
		if dw.Value == nil {
			next = nil
		} else {
			b, err := Marshal(dw.Value)
			if err != nil {
				return nil, err
			}
			next = b
		}
	}
	if len(dw.Fields) == 0 {
		return next, nil
	}
	return MergeFields(next, dw.Fields)
}

// MergeFields sets top-level fields on a JSON object; nil values delete the field
func MergeFields(data []byte, fields map[string]any) ([]byte, error) {
	obj := map[string]json.RawMessage{}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &obj); err != nil {
			return nil, fmt.Errorf("decode document: %w", err)
		}
	}
	for k, v := range fields {
		if v == nil {
			delete(obj, k)
			continue
		}
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode field %s: %w", k, err)
		}
		obj[k] = b
	}
	return json.Marshal(obj)
}

// Marshal encodes a value, passing raw JSON through untouched
func Marshal(v any) ([]byte, error) {
	switch b := v.(type) {
	case []byte:
		return b, nil
	case json.RawMessage:
		return b, nil
	}
	return json.Marshal(v)
}
