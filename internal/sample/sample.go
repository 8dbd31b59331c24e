// Package sample reads documents out of a collection for schema
// inference. The scan method decides which slice of the collection the
// generator sees, and therefore which shapes it can learn.
package sample

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"doctable/internal/infer"
)

// ScanMethod selects how sample documents are drawn from a collection.
type ScanMethod string

const (
	// IDForward reads the oldest documents first, sorted by _id.
	IDForward ScanMethod = "idForward"

	// IDReverse reads the newest documents first, sorted by _id
	// descending.
	IDReverse ScanMethod = "idReverse"

	// Random draws a uniform random sample.
	Random ScanMethod = "random"

	// All reads the entire collection, ignoring the limit.
	All ScanMethod = "all"
)

// ParseScanMethod maps a configuration string to a ScanMethod.
func ParseScanMethod(s string) (ScanMethod, error) {
	switch ScanMethod(s) {
	case IDForward, IDReverse, Random, All:
		return ScanMethod(s), nil
	case "":
		return IDForward, nil
	default:
		return "", fmt.Errorf("unknown scan method %q", s)
	}
}

// Open starts a sampling cursor over the collection. The limit caps the
// number of documents except for the All method, which always reads
// everything.
func Open(ctx context.Context, coll *mongo.Collection, method ScanMethod, limit int64) (infer.DocumentSource, error) {
	var (
		cur *mongo.Cursor
		err error
	)
	switch method {
	case IDForward:
		opts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})
		if limit > 0 {
			opts = opts.SetLimit(limit)
		}
		cur, err = coll.Find(ctx, bson.D{}, opts)
	case IDReverse:
		opts := options.Find().SetSort(bson.D{{Key: "_id", Value: -1}})
		if limit > 0 {
			opts = opts.SetLimit(limit)
		}
		cur, err = coll.Find(ctx, bson.D{}, opts)
	case Random:
		stages := mongo.Pipeline{
			{{Key: "$sample", Value: bson.D{{Key: "size", Value: limit}}}},
		}
		cur, err = coll.Aggregate(ctx, stages)
	case All:
		cur, err = coll.Find(ctx, bson.D{})
	default:
		return nil, fmt.Errorf("unknown scan method %q", method)
	}
	if err != nil {
		return nil, fmt.Errorf("sample %s: %w", coll.Name(), err)
	}
	return &cursorSource{cur: cur}, nil
}

// cursorSource adapts a driver cursor to the generator's source
// interface.
type cursorSource struct {
	cur *mongo.Cursor
}

func (c *cursorSource) Next(ctx context.Context) bool {
	return c.cur.Next(ctx)
}

func (c *cursorSource) Document() (bson.D, error) {
	var doc bson.D
	if err := c.cur.Decode(&doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func (c *cursorSource) Err() error {
	return c.cur.Err()
}

func (c *cursorSource) Close(ctx context.Context) error {
	return c.cur.Close(ctx)
}
