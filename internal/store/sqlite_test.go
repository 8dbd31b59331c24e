package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"doctable/internal/doctype"
	"doctable/internal/schema"
)

func openTestStore(t *testing.T) *SQLite {
	t.Helper()
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "schemas.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close(context.Background()) })
	return s
}

func storeFixture(t *testing.T) (*schema.Schema, map[string]*schema.Table) {
	t.Helper()

	media := schema.NewTable("media", "media")
	require.NoError(t, media.Add(&schema.Column{
		Path: "_id", SQLName: "media__id",
		SQLType: doctype.SQLVarchar, SourceType: doctype.BsonObjectID,
		PrimaryKey: true,
	}))
	require.NoError(t, media.Add(&schema.Column{
		Path: "title", SQLName: "title",
		SQLType: doctype.SQLVarchar, SourceType: doctype.BsonString,
	}))

	tags := schema.NewTable("media_tags", "media")
	tags.FieldPath = "tags"
	require.NoError(t, tags.Add(&schema.Column{
		Path: "_id", SQLName: "media__id",
		SQLType: doctype.SQLVarchar, SourceType: doctype.BsonObjectID,
		PrimaryKey: true, ForeignKeyOrder: 1,
	}))
	require.NoError(t, tags.Add(&schema.Column{
		Path: "tags", SQLName: "value",
		SQLType: doctype.SQLVarchar, SourceType: doctype.BsonString,
	}))

	tables := map[string]*schema.Table{"media": media, "media_tags": tags}
	return schema.NewSchema("catalog", "appdb", tables), tables
}

func TestOpenSQLiteAppliesPragmas(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.verifyPragma("journal_mode", "wal"))
	require.NoError(t, s.verifyPragma("foreign_keys", "1"))
}

func TestOpenSQLiteIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schemas.db")
	for i := 0; i < 2; i++ {
		s, err := OpenSQLite(path)
		require.NoError(t, err)
		require.NoError(t, s.Close(context.Background()))
	}
}

func TestSQLiteWriteReadRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	sc, tables := storeFixture(t)

	require.NoError(t, s.Write(ctx, sc, tables))

	got, err := s.Read(ctx, "catalog", 1)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, sc.Name, got.Name)
	require.Equal(t, sc.Version, got.Version)
	require.Equal(t, sc.Database, got.Database)
	require.Equal(t, sc.Tables, got.Tables)

	gotTables, err := s.ReadTables(ctx, got)
	require.NoError(t, err)
	require.Len(t, gotTables, 2)
	require.Equal(t, tables["media"].ID, gotTables["media"].ID)
	col, ok := gotTables["media_tags"].Column("media__id")
	require.True(t, ok)
	require.True(t, col.PrimaryKey)
	require.Equal(t, 1, col.ForeignKeyOrder)
	require.Equal(t, "tags", gotTables["media_tags"].FieldPath)
}

func TestSQLiteMissesReturnNil(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	sc, err := s.Read(ctx, "absent", 1)
	require.NoError(t, err)
	require.Nil(t, sc)

	sc, err = s.ReadLatest(ctx, "absent")
	require.NoError(t, err)
	require.Nil(t, sc)

	tbl, err := s.ReadTable(ctx, "absent", 1, "no-such-id")
	require.NoError(t, err)
	require.Nil(t, tbl)
}

func TestSQLiteWriteDuplicateVersionFails(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	sc, tables := storeFixture(t)

	require.NoError(t, s.Write(ctx, sc, tables))
	require.Error(t, s.Write(ctx, sc, tables))
}

func TestSQLiteUpdateReplacesVersion(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	sc, tables := storeFixture(t)
	require.NoError(t, s.Write(ctx, sc, tables))

	delete(tables, "media_tags")
	sc.SetTables(tables)
	require.NoError(t, s.Update(ctx, sc, tables))

	got, err := s.Read(ctx, "catalog", 1)
	require.NoError(t, err)
	require.Len(t, got.Tables, 1)
	require.Equal(t, "media", got.Tables[0].SQLName)
}

func TestSQLiteVersioning(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	sc, tables := storeFixture(t)
	require.NoError(t, s.Write(ctx, sc, tables))

	next := sc.NextVersion(tables)
	require.NoError(t, s.Write(ctx, next, tables))

	latest, err := s.ReadLatest(ctx, "catalog")
	require.NoError(t, err)
	require.Equal(t, 2, latest.Version)

	require.NoError(t, s.RemoveVersion(ctx, "catalog", 2))
	latest, err = s.ReadLatest(ctx, "catalog")
	require.NoError(t, err)
	require.Equal(t, 1, latest.Version)

	require.NoError(t, s.Remove(ctx, "catalog"))
	latest, err = s.ReadLatest(ctx, "catalog")
	require.NoError(t, err)
	require.Nil(t, latest)
}

func TestSQLiteRemoveCascadesTables(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	sc, tables := storeFixture(t)
	require.NoError(t, s.Write(ctx, sc, tables))

	require.NoError(t, s.Remove(ctx, "catalog"))

	tbl, err := s.ReadTable(ctx, "catalog", 1, tables["media"].ID)
	require.NoError(t, err)
	require.Nil(t, tbl)
}

func TestSQLiteList(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	sc, tables := storeFixture(t)
	require.NoError(t, s.Write(ctx, sc, tables))
	require.NoError(t, s.Write(ctx, sc.NextVersion(tables), tables))

	other := schema.NewSchema("analytics", "appdb", tables)
	require.NoError(t, s.Write(ctx, other, tables))

	all, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	// Ordered by name, newest version first within a name.
	require.Equal(t, "analytics", all[0].Name)
	require.Equal(t, "catalog", all[1].Name)
	require.Equal(t, 2, all[1].Version)
	require.Equal(t, 1, all[2].Version)
}
