// Package infer builds relational table metadata from sampled
// documents: one base table per collection plus virtual tables for
// nested documents and arrays, with field types unified across the
// sample through the promotion table.
package infer

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
)

// DocumentSource is a pull-based sequence of sampled documents. It is
// the generator-side view of a sampling cursor: Next advances,
// Document decodes the current element, Err reports any cursor
// failure after Next returns false, Close releases the cursor.
//
// The generator owns the source for the duration of one Generate call
// and closes it on completion and on error.
type DocumentSource interface {
	Next(ctx context.Context) bool
	Document() (bson.D, error)
	Err() error
	Close(ctx context.Context) error
}
