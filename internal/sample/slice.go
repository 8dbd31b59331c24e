package sample

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"

	"doctable/internal/infer"
)

// Slice wraps in-memory documents as a source, for tests and offline
// generation from exported document dumps.
func Slice(docs ...bson.D) infer.DocumentSource {
	return &sliceSource{docs: docs, pos: -1}
}

type sliceSource struct {
	docs []bson.D
	pos  int
}

func (s *sliceSource) Next(context.Context) bool {
	if s.pos+1 >= len(s.docs) {
		return false
	}
	s.pos++
	return true
}

func (s *sliceSource) Document() (bson.D, error) {
	return s.docs[s.pos], nil
}

func (s *sliceSource) Err() error { return nil }

func (s *sliceSource) Close(context.Context) error { return nil }
