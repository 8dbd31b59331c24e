package schema

import (
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"doctable/internal/doctype"
)

func fixtureTables(t *testing.T) map[string]*Table {
	t.Helper()

	base := NewTable("media", "media")
	require.NoError(t, base.Add(&Column{
		Path: "_id", SQLName: "media__id",
		SQLType: doctype.SQLVarchar, SourceType: doctype.BsonObjectID,
		PrimaryKey: true,
	}))
	require.NoError(t, base.Add(&Column{
		Path: "title", SQLName: "title",
		SQLType: doctype.SQLVarchar, SourceType: doctype.BsonString,
	}))
	require.NoError(t, base.Add(&Column{
		Path: "views", SQLName: "views",
		SQLType: doctype.SQLBigInt, SourceType: doctype.BsonInt64,
	}))
	require.NoError(t, base.Add(&Column{
		Path: "tags", SQLName: "tags",
		SQLType: doctype.SQLArray, SourceType: doctype.BsonArray,
		VirtualTableName: "media_tags",
	}))

	tags := NewTable("media_tags", "media")
	tags.FieldPath = "tags"
	require.NoError(t, tags.Add(&Column{
		Path: "_id", SQLName: "media__id",
		SQLType: doctype.SQLVarchar, SourceType: doctype.BsonObjectID,
		PrimaryKey: true, ForeignKeyOrder: 1,
	}))
	idx := &Column{
		SQLName: "tags_index_lvl_0",
		SQLType: doctype.SQLBigInt, SourceType: doctype.BsonInt64,
		PrimaryKey: true, Generated: true,
		IsArrayIndex: true, ArrayIndexLevel: 0,
	}
	require.NoError(t, tags.Add(idx))
	require.NoError(t, tags.Add(&Column{
		Path: "tags", SQLName: "value",
		SQLType: doctype.SQLVarchar, SourceType: doctype.BsonString,
	}))

	return map[string]*Table{base.SQLName: base, tags.SQLName: tags}
}

func TestMarshalTables_Golden(t *testing.T) {
	data, err := MarshalTables(fixtureTables(t))
	require.NoError(t, err)

	g := goldie.New(t)
	g.Assert(t, "media_schema", data)
}

func TestMarshalTables_RoundTrip(t *testing.T) {
	original := fixtureTables(t)
	data, err := MarshalTables(original)
	require.NoError(t, err)

	parsed, err := UnmarshalTables(data)
	require.NoError(t, err)
	require.Len(t, parsed, 2)

	base := parsed["media"]
	require.NotNil(t, base)
	assert.Equal(t, "media", base.Collection)
	assert.Equal(t, 4, base.Len())

	id, ok := base.Column("media__id")
	require.True(t, ok)
	assert.True(t, id.PrimaryKey)
	assert.Equal(t, doctype.SQLVarchar, id.SQLType)
	assert.Equal(t, doctype.BsonObjectID, id.SourceType)

	tagsCol, ok := base.Column("tags")
	require.True(t, ok)
	assert.Equal(t, "media_tags", tagsCol.VirtualTableName)

	tags := parsed["media_tags"]
	require.NotNil(t, tags)
	assert.True(t, tags.Virtual())
	idx, ok := tags.Column("tags_index_lvl_0")
	require.True(t, ok)
	assert.True(t, idx.IsArrayIndex)
	assert.Equal(t, 0, idx.ArrayIndexLevel)
	assert.True(t, idx.PrimaryKey)

	// Imports mint new table versions.
	assert.NotEqual(t, original["media"].ID, base.ID)
}

func TestUnmarshalTables_Rejections(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"not json", "nonsense"},
		{"empty table name", `[{"sqlName":"","collectionName":"c","columns":[]}]`},
		{"unknown sql type", `[{"sqlName":"t","collectionName":"c","columns":[
			{"fieldPath":"a","sqlName":"a","sqlType":"blob","dbType":"string"}]}]`},
		{"unknown db type", `[{"sqlName":"t","collectionName":"c","columns":[
			{"fieldPath":"a","sqlName":"a","sqlType":"varchar","dbType":"mystery"}]}]`},
		{"duplicate column", `[{"sqlName":"t","collectionName":"c","columns":[
			{"fieldPath":"a","sqlName":"a","sqlType":"varchar","dbType":"string"},
			{"fieldPath":"b","sqlName":"a","sqlType":"varchar","dbType":"string"}]}]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := UnmarshalTables([]byte(tt.data))
			assert.Error(t, err)
		})
	}
}
