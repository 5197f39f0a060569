package store

import (
	"context"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ToFirestoreFunc converts a domain value into the map Firestore stores.
type ToFirestoreFunc[T any] func(*T) map[string]interface{}

// FromFirestoreFunc converts a stored Firestore map back into a domain value.
type FromFirestoreFunc[T any] func(map[string]interface{}) *T

// Collection wraps a Firestore collection reference with typed
// converters, so call sites never touch map[string]interface{} directly.
type Collection[T any] struct {
	Ref           *firestore.CollectionRef
	ToFirestore   ToFirestoreFunc[T]
	FromFirestore FromFirestoreFunc[T]
}

// Doc returns a typed reference to a known document id.
func (c *Collection[T]) Doc(id string) *DocumentRef[T] {
	return &DocumentRef[T]{Ref: c.Ref.Doc(id), ToFirestore: c.ToFirestore, FromFirestore: c.FromFirestore}
}

// NewDoc allocates a reference with a fresh auto-generated id.
func (c *Collection[T]) NewDoc() *DocumentRef[T] {
	return &DocumentRef[T]{Ref: c.Ref.NewDoc(), ToFirestore: c.ToFirestore, FromFirestore: c.FromFirestore}
}

// All fetches every document in the collection.
func (c *Collection[T]) All(ctx context.Context) ([]*T, error) {
	docs, err := c.Ref.Documents(ctx).GetAll()
	if err != nil {
		return nil, err
	}
	out := make([]*T, 0, len(docs))
	for _, d := range docs {
		out = append(out, c.FromFirestore(d.Data()))
	}
	return out, nil
}

// DocumentRef is a typed handle to one Firestore document.
type DocumentRef[T any] struct {
	Ref           *firestore.DocumentRef
	ToFirestore   ToFirestoreFunc[T]
	FromFirestore FromFirestoreFunc[T]
}

// ID returns the document's Firestore id.
func (d *DocumentRef[T]) ID() string {
	return d.Ref.ID
}

// Get fetches and decodes the document. Returns (nil, nil) when absent.
func (d *DocumentRef[T]) Get(ctx context.Context) (*T, error) {
	snap, err := d.Ref.Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, nil
		}
		return nil, err
	}
	return d.FromFirestore(snap.Data()), nil
}

// Set merges data into the document, creating it if absent.
func (d *DocumentRef[T]) Set(ctx context.Context, data *T) error {
	_, err := d.Ref.Set(ctx, d.ToFirestore(data), firestore.MergeAll)
	return err
}

// Update applies a partial field update. Keys must match the stored
// field names; callers building nested updates should build full nested
// maps rather than dotted paths to avoid accidental array overwrites.
func (d *DocumentRef[T]) Update(ctx context.Context, updates map[string]interface{}) error {
	_, err := d.Ref.Set(ctx, updates, firestore.MergeAll)
	return err
}

// Delete removes the document.
func (d *DocumentRef[T]) Delete(ctx context.Context) error {
	_, err := d.Ref.Delete(ctx)
	return err
}
