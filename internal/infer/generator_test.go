package infer

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"doctable/internal/doctype"
	"doctable/internal/schema"
)

// docSource yields an in-memory document slice.
type docSource struct {
	docs   []bson.D
	pos    int
	err    error
	closed bool
}

func (s *docSource) Next(ctx context.Context) bool {
	if s.err != nil || s.pos >= len(s.docs) {
		return false
	}
	s.pos++
	return true
}

func (s *docSource) Document() (bson.D, error) {
	return s.docs[s.pos-1], nil
}

func (s *docSource) Err() error { return s.err }

func (s *docSource) Close(ctx context.Context) error {
	s.closed = true
	return nil
}

func generate(t *testing.T, collection string, docs ...bson.D) map[string]*schema.Table {
	t.Helper()
	src := &docSource{docs: docs}
	tables, err := NewGenerator().Generate(context.Background(), collection, src)
	require.NoError(t, err)
	assert.True(t, src.closed, "source must be closed")
	return tables
}

func TestGenerate_ScalarDocument(t *testing.T) {
	tables := generate(t, "users", bson.D{
		{Key: "_id", Value: "u1"},
		{Key: "name", Value: "ada"},
		{Key: "age", Value: int32(36)},
		{Key: "score", Value: 1.5},
	})
	require.Len(t, tables, 1)

	users := tables["users"]
	require.NotNil(t, users)
	assert.False(t, users.Virtual())
	require.Equal(t, 4, users.Len())

	id, ok := users.Column("users__id")
	require.True(t, ok)
	assert.Equal(t, "_id", id.Path)
	assert.True(t, id.PrimaryKey)
	assert.Equal(t, doctype.SQLVarchar, id.SQLType)

	name, _ := users.Column("name")
	assert.Equal(t, doctype.SQLVarchar, name.SQLType)
	age, _ := users.Column("age")
	assert.Equal(t, doctype.SQLInteger, age.SQLType)
	score, _ := users.Column("score")
	assert.Equal(t, doctype.SQLDouble, score.SQLType)
}

func TestGenerate_TypePromotionAcrossDocuments(t *testing.T) {
	tables := generate(t, "m",
		bson.D{{Key: "_id", Value: "a"}, {Key: "n", Value: int32(1)}},
		bson.D{{Key: "_id", Value: "b"}, {Key: "n", Value: int64(2)}},
		bson.D{{Key: "_id", Value: "c"}, {Key: "n", Value: 2.5}},
	)
	n, ok := tables["m"].Column("n")
	require.True(t, ok)
	// integer -> bigint -> decimal
	assert.Equal(t, doctype.SQLDecimal, n.SQLType)
	assert.Equal(t, doctype.BsonDouble, n.SourceType)
}

func TestGenerate_NestedDocumentBecomesVirtualTable(t *testing.T) {
	// {"_id":"key","doc":{"field":1}} yields the base table plus a
	// virtual table joined back over _id.
	tables := generate(t, "c", bson.D{
		{Key: "_id", Value: "key"},
		{Key: "doc", Value: bson.D{{Key: "field", Value: int32(1)}}},
	})
	require.Len(t, tables, 2)

	base := tables["c"]
	require.NotNil(t, base)
	docRef, ok := base.Column("doc")
	require.True(t, ok)
	assert.Equal(t, "c_doc", docRef.VirtualTableName)
	assert.Equal(t, doctype.SQLJavaObject, docRef.SQLType)

	vt := tables["c_doc"]
	require.NotNil(t, vt)
	assert.True(t, vt.Virtual())
	require.Equal(t, 2, vt.Len())

	fk, ok := vt.Column("c__id")
	require.True(t, ok)
	assert.Equal(t, "_id", fk.Path)
	assert.True(t, fk.PrimaryKey)
	assert.Equal(t, 1, fk.ForeignKeyOrder)

	field, ok := vt.Column("field")
	require.True(t, ok)
	assert.Equal(t, "doc.field", field.Path)
	assert.Equal(t, doctype.SQLInteger, field.SQLType)
}

func TestGenerate_ScalarArray(t *testing.T) {
	// {_id:"k", array:[1,2,3]} yields a virtual table carrying the
	// parent key, a level-0 index column and a value column.
	tables := generate(t, "c", bson.D{
		{Key: "_id", Value: "k"},
		{Key: "array", Value: bson.A{int32(1), int32(2), int32(3)}},
	})
	vt := tables["c_array"]
	require.NotNil(t, vt)
	require.Equal(t, 3, vt.Len())

	fk, ok := vt.Column("c__id")
	require.True(t, ok)
	assert.True(t, fk.PrimaryKey)
	assert.Equal(t, 1, fk.ForeignKeyOrder)

	idx, ok := vt.Column("array_index_lvl_0")
	require.True(t, ok)
	assert.True(t, idx.IsArrayIndex)
	assert.Equal(t, 0, idx.ArrayIndexLevel)
	assert.True(t, idx.PrimaryKey)
	assert.True(t, idx.Generated)
	assert.Equal(t, doctype.SQLBigInt, idx.SQLType)

	value, ok := vt.Column("value")
	require.True(t, ok)
	assert.Equal(t, "array", value.Path)
	assert.Equal(t, doctype.SQLInteger, value.SQLType)
}

func TestGenerate_ArrayOfArrays(t *testing.T) {
	tables := generate(t, "c", bson.D{
		{Key: "_id", Value: "k"},
		{Key: "grid", Value: bson.A{bson.A{int32(1)}, bson.A{int32(2), int32(3)}}},
	})
	vt := tables["c_grid"]
	require.NotNil(t, vt)

	_, ok := vt.Column("grid_index_lvl_0")
	assert.True(t, ok)
	lvl1, ok := vt.Column("grid_index_lvl_1")
	require.True(t, ok)
	assert.Equal(t, 1, lvl1.ArrayIndexLevel)

	value, ok := vt.Column("value")
	require.True(t, ok)
	assert.Equal(t, doctype.SQLInteger, value.SQLType)
}

func TestGenerate_ArrayOfDocuments(t *testing.T) {
	tables := generate(t, "orders", bson.D{
		{Key: "_id", Value: "o1"},
		{Key: "items", Value: bson.A{
			bson.D{{Key: "sku", Value: "a"}, {Key: "qty", Value: int32(2)}},
			bson.D{{Key: "sku", Value: "b"}, {Key: "qty", Value: int32(1)}},
		}},
	})
	vt := tables["orders_items"]
	require.NotNil(t, vt)

	sku, ok := vt.Column("sku")
	require.True(t, ok)
	assert.Equal(t, "items.sku", sku.Path)
	assert.Equal(t, doctype.SQLVarchar, sku.SQLType)
	qty, ok := vt.Column("qty")
	require.True(t, ok)
	assert.Equal(t, doctype.SQLInteger, qty.SQLType)
}

func TestGenerate_NestedArrayInsideDocumentArray(t *testing.T) {
	// An array field inside array elements becomes a grandchild table
	// carrying the full ancestor key chain.
	tables := generate(t, "c", bson.D{
		{Key: "_id", Value: "k"},
		{Key: "outer", Value: bson.A{
			bson.D{{Key: "inner", Value: bson.A{int32(7)}}},
		}},
	})
	inner := tables["c_outer_inner"]
	require.NotNil(t, inner)

	fks := inner.ForeignKeys()
	require.Len(t, fks, 2)
	assert.Equal(t, "c__id", fks[0].SQLName)
	assert.Equal(t, 1, fks[0].ForeignKeyOrder)
	assert.Equal(t, "outer_index_lvl_0", fks[1].SQLName)
	assert.Equal(t, 2, fks[1].ForeignKeyOrder)

	_, ok := inner.Column("inner_index_lvl_0")
	assert.True(t, ok)
	value, ok := inner.Column("value")
	require.True(t, ok)
	assert.Equal(t, doctype.SQLInteger, value.SQLType)
}

func TestGenerate_DocumentScalarConflict(t *testing.T) {
	// A path holding a sub-document in one document and a scalar in
	// another degrades to varchar, and no virtual table survives.
	tables := generate(t, "c",
		bson.D{{Key: "_id", Value: "a"}, {Key: "p", Value: bson.D{{Key: "x", Value: int32(1)}}}},
		bson.D{{Key: "_id", Value: "b"}, {Key: "p", Value: int32(5)}},
	)
	require.Len(t, tables, 1)

	p, ok := tables["c"].Column("p")
	require.True(t, ok)
	assert.Equal(t, doctype.SQLVarchar, p.SQLType)
	assert.Empty(t, p.VirtualTableName)
	_, exists := tables["c_p"]
	assert.False(t, exists)
}

func TestGenerate_ConflictDiscardsNestedSubtree(t *testing.T) {
	tables := generate(t, "c",
		bson.D{{Key: "_id", Value: "a"}, {Key: "p", Value: bson.D{
			{Key: "q", Value: bson.A{int32(1)}},
		}}},
		bson.D{{Key: "_id", Value: "b"}, {Key: "p", Value: "text"}},
	)
	require.Len(t, tables, 1)
	_, exists := tables["c_p"]
	assert.False(t, exists)
	_, exists = tables["c_p_q"]
	assert.False(t, exists)
}

func TestGenerate_ConflictedPathStaysText(t *testing.T) {
	// Once a path has conflicted it is never promoted back to a
	// virtual table, even if later documents hold structure again.
	tables := generate(t, "c",
		bson.D{{Key: "_id", Value: "a"}, {Key: "p", Value: bson.D{{Key: "x", Value: int32(1)}}}},
		bson.D{{Key: "_id", Value: "b"}, {Key: "p", Value: int32(5)}},
		bson.D{{Key: "_id", Value: "d"}, {Key: "p", Value: bson.D{{Key: "y", Value: int32(2)}}}},
	)
	require.Len(t, tables, 1)
	p, _ := tables["c"].Column("p")
	assert.Equal(t, doctype.SQLVarchar, p.SQLType)
}

func TestGenerate_ArrayElementKindConflict(t *testing.T) {
	// Object elements in one document, scalar elements in another:
	// the virtual table survives but every element column is text.
	tables := generate(t, "c",
		bson.D{{Key: "_id", Value: "k0"}, {Key: "array", Value: bson.A{
			bson.D{{Key: "field1", Value: int32(1)}, {Key: "field2", Value: int32(2)}},
		}}},
		bson.D{{Key: "_id", Value: "k1"}, {Key: "array", Value: bson.A{int32(1), int32(2), int32(3)}}},
	)
	vt := tables["c_array"]
	require.NotNil(t, vt)

	field1, ok := vt.Column("field1")
	require.True(t, ok)
	assert.Equal(t, doctype.SQLVarchar, field1.SQLType)
	field2, ok := vt.Column("field2")
	require.True(t, ok)
	assert.Equal(t, doctype.SQLVarchar, field2.SQLType)
	value, ok := vt.Column("value")
	require.True(t, ok)
	assert.Equal(t, doctype.SQLVarchar, value.SQLType)

	// Keys are untouched by the degradation.
	fk, _ := vt.Column("c__id")
	assert.Equal(t, doctype.SQLVarchar, fk.SQLType)
	idx, _ := vt.Column("array_index_lvl_0")
	assert.Equal(t, doctype.SQLBigInt, idx.SQLType)
}

func TestGenerate_ShallowerConflictDropsDeepIndexColumns(t *testing.T) {
	// Arrays of arrays first, scalars at the same level next: the
	// deeper index column is removed and survivors degrade to text.
	tables := generate(t, "c",
		bson.D{{Key: "_id", Value: "a"}, {Key: "g", Value: bson.A{bson.A{int32(1)}}}},
		bson.D{{Key: "_id", Value: "b"}, {Key: "g", Value: bson.A{int32(9)}}},
	)
	vt := tables["c_g"]
	require.NotNil(t, vt)

	_, ok := vt.Column("g_index_lvl_1")
	assert.False(t, ok, "deeper index column must be removed")
	_, ok = vt.Column("g_index_lvl_0")
	assert.True(t, ok)
	value, ok := vt.Column("value")
	require.True(t, ok)
	assert.Equal(t, doctype.SQLVarchar, value.SQLType)
}

func TestGenerate_PrimaryKeyTypeConsistency(t *testing.T) {
	// The root key promotes across documents; every virtual table's
	// copy must end up with the final promoted type.
	tables := generate(t, "c",
		bson.D{{Key: "_id", Value: int32(1)}, {Key: "doc", Value: bson.D{{Key: "f", Value: int32(1)}}}},
		bson.D{{Key: "_id", Value: int64(2)}, {Key: "arr", Value: bson.A{int32(1)}}},
	)
	root, _ := tables["c"].Column("c__id")
	require.Equal(t, doctype.SQLBigInt, root.SQLType)

	for _, name := range []string{"c_doc", "c_arr"} {
		vt := tables[name]
		require.NotNil(t, vt, name)
		fk, ok := vt.ColumnByPath("_id")
		require.True(t, ok, name)
		assert.Equal(t, doctype.SQLBigInt, fk.SQLType, name)
		assert.Equal(t, doctype.BsonInt64, fk.SourceType, name)
	}
}

func TestGenerate_AbsentAndNullFieldsAreNotConflicts(t *testing.T) {
	tables := generate(t, "c",
		bson.D{{Key: "_id", Value: "a"}, {Key: "doc", Value: bson.D{{Key: "f", Value: int32(1)}}}},
		bson.D{{Key: "_id", Value: "b"}},
		bson.D{{Key: "_id", Value: "d"}, {Key: "doc", Value: nil}},
	)
	require.Len(t, tables, 2)
	docRef, _ := tables["c"].Column("doc")
	assert.Equal(t, "c_doc", docRef.VirtualTableName)
}

func TestGenerate_MissingIDTolerated(t *testing.T) {
	tables := generate(t, "c", bson.D{{Key: "x", Value: int32(1)}})
	base := tables["c"]
	require.NotNil(t, base)
	_, ok := base.Column("x")
	assert.True(t, ok)
	assert.Empty(t, base.PrimaryKeys())
}

func TestGenerate_SamplingOrderSensitivityOnConflicts(t *testing.T) {
	// Conflicting shapes make inference order-sensitive: both orders
	// agree the column is text, but the recorded source type follows
	// the last document seen. Accepted sampling-based behavior.
	d1 := bson.D{{Key: "_id", Value: "a"}, {Key: "p", Value: bson.D{{Key: "x", Value: int32(1)}}}}
	d2 := bson.D{{Key: "_id", Value: "b"}, {Key: "p", Value: int32(5)}}

	forward := generate(t, "c", d1, d2)
	backward := generate(t, "c", d2, d1)

	pf, _ := forward["c"].Column("p")
	pb, _ := backward["c"].Column("p")
	assert.Equal(t, doctype.SQLVarchar, pf.SQLType)
	assert.Equal(t, doctype.SQLVarchar, pb.SQLType)
	assert.Equal(t, doctype.BsonInt32, pf.SourceType)
	assert.Equal(t, doctype.BsonDocument, pb.SourceType)

	// Order does not matter without conflicts.
	_, fwd := forward["c_p"]
	_, bwd := backward["c_p"]
	assert.False(t, fwd)
	assert.False(t, bwd)
}

func TestGenerate_SourceErrorPropagatesAndCloses(t *testing.T) {
	src := &docSource{err: errors.New("cursor timeout")}
	_, err := NewGenerator().Generate(context.Background(), "c", src)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cursor timeout")
	assert.True(t, src.closed)
}
