// Package docstore defines the document-store contract the rest of the
// application is written against.
//
// A Backend holds named collections of schemaless documents keyed by a
// string ID. It supports live subscriptions (Watch), simple CRUD and
// equality queries, and atomic multi-document batches whose operations may
// carry preconditions. Two implementations exist: mongostore (MongoDB change
// streams and session transactions) and memstore (in-process, used by tests
// and the "memory" backend).
package docstore

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
)

var (
	// ErrNotFound is returned when a document does not exist, or when a
	// conditional single-document write matched nothing.
	ErrNotFound = errors.New("docstore: document not found")

	// ErrDuplicate is returned by Insert when the ID is already taken.
	ErrDuplicate = errors.New("docstore: duplicate document id")

	// ErrConflict is returned (wrapped in *ConflictError) when a batch
	// precondition does not hold at commit time.
	ErrConflict = errors.New("docstore: precondition failed")
)

// ConflictError reports which batch operation failed its precondition.
type ConflictError struct {
	Collection string
	ID         string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("docstore: precondition failed on %s/%s", e.Collection, e.ID)
}

func (e *ConflictError) Unwrap() error { return ErrConflict }

// Document is one stored document. Data never contains "_id".
type Document struct {
	ID   string
	Data bson.M
}

// Decode unmarshals the document into v, exposing the ID as "_id".
func (d Document) Decode(v interface{}) error {
	m := make(bson.M, len(d.Data)+1)
	for k, val := range d.Data {
		m[k] = val
	}
	m["_id"] = d.ID
	raw, err := bson.Marshal(m)
	if err != nil {
		return fmt.Errorf("docstore: encode %s: %w", d.ID, err)
	}
	return bson.Unmarshal(raw, v)
}

// Encode converts a typed value into the Data map of a document, dropping
// any "_id" field it carries.
func Encode(v interface{}) (bson.M, error) {
	raw, err := bson.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m bson.M
	if err := bson.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	delete(m, "_id")
	return m, nil
}

// ChangeKind is the type of a document change.
type ChangeKind int

const (
	Added ChangeKind = iota
	Modified
	Removed
)

func (k ChangeKind) String() string {
	switch k {
	case Added:
		return "added"
	case Modified:
		return "modified"
	case Removed:
		return "removed"
	}
	return "unknown"
}

// Change is one document change inside a ChangeSet.
type Change struct {
	Kind ChangeKind
	Doc  Document
}

// ChangeSet carries the full current contents of one collection plus the
// changes that produced it.
type ChangeSet struct {
	Collection string
	Docs       []Document
	Changes    []Change
}

// ChangeBatch groups every collection touched by one commit. The first
// batch a watcher receives holds a ChangeSet for every watched collection,
// with all existing documents reported as Added.
type ChangeBatch struct {
	Sets []ChangeSet
}

// Handler receives watch events. Calls are serialized per watch.
type Handler interface {
	OnChange(ChangeBatch)
	OnError(error)
}

// HandlerFuncs adapts plain functions to Handler.
type HandlerFuncs struct {
	Change func(ChangeBatch)
	Error  func(error)
}

func (h HandlerFuncs) OnChange(b ChangeBatch) {
	if h.Change != nil {
		h.Change(b)
	}
}

func (h HandlerFuncs) OnError(err error) {
	if h.Error != nil {
		h.Error(err)
	}
}

// Unsubscribe stops a watch. After it returns no further handler calls are
// made.
type Unsubscribe func()

// OpKind is the type of a batch operation.
type OpKind int

const (
	OpInsert OpKind = iota
	OpSet
	OpUpdate
	OpDelete
)

// Op is one write inside an atomic batch. Match, when set, is an equality
// precondition on the existing document; if it does not hold the whole
// batch is rejected with *ConflictError.
type Op struct {
	Kind       OpKind
	Collection string
	ID         string
	Data       bson.M
	Match      bson.M
}

// Backend is the document store.
type Backend interface {
	Watch(ctx context.Context, collections []string, h Handler) (Unsubscribe, error)

	Get(ctx context.Context, coll, id string) (Document, error)
	Find(ctx context.Context, coll string, match bson.M) ([]Document, error)
	FindOne(ctx context.Context, coll string, match bson.M) (Document, error)
	Count(ctx context.Context, coll string, match bson.M) (int64, error)

	Create(ctx context.Context, coll string, data bson.M) (string, error)
	Insert(ctx context.Context, coll, id string, data bson.M) error
	Set(ctx context.Context, coll, id string, data bson.M) error
	Update(ctx context.Context, coll, id string, fields bson.M) error
	Delete(ctx context.Context, coll, id string) error
	DeleteWhere(ctx context.Context, coll string, match bson.M) (int64, error)

	Batch(ctx context.Context, ops []Op) error
}

// UpdateWhere is a conditional single-document update expressed as a batch.
// It returns ErrNotFound when the document is missing and ErrConflict when
// the precondition does not hold.
func UpdateWhere(ctx context.Context, b Backend, coll, id string, match, fields bson.M) error {
	if _, err := b.Get(ctx, coll, id); err != nil {
		return err
	}
	return b.Batch(ctx, []Op{{Kind: OpUpdate, Collection: coll, ID: id, Data: fields, Match: match}})
}

// DeleteIf deletes a document only when match holds.
func DeleteIf(ctx context.Context, b Backend, coll, id string, match bson.M) error {
	if _, err := b.Get(ctx, coll, id); err != nil {
		return err
	}
	return b.Batch(ctx, []Op{{Kind: OpDelete, Collection: coll, ID: id, Match: match}})
}

// DecodeAll decodes docs into a slice of T.
func DecodeAll[T any](docs []Document) ([]T, error) {
	out := make([]T, 0, len(docs))
	for _, d := range docs {
		var v T
		if err := d.Decode(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}
