package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"doctable/internal/schema"
)

// Collections holding schema metadata inside the source database. The
// leading underscore keeps them out of the generated table namespace.
const (
	schemasCollection = "_sqlSchemas"
	tablesCollection  = "_sqlTables"
)

// unauthorizedCode is the server error code for a write the connected
// role is not allowed to perform.
const unauthorizedCode = 13

// Mongo keeps schema metadata in the source database itself, so every
// client connecting to the database sees the same generated schema.
type Mongo struct {
	db *mongo.Database
}

var _ Store = (*Mongo)(nil)

// NewMongo wraps the source database as a schema store.
func NewMongo(db *mongo.Database) *Mongo {
	return &Mongo{db: db}
}

// schemaDoc is the persisted schema aggregate. The aggregate itself is
// stored as its JSON form; name and version are duplicated as indexed
// fields for lookup.
type schemaDoc struct {
	ID     string `bson:"_id"`
	Schema string `bson:"schemaJSON"`
}

func encodeSchema(sc *schema.Schema) (string, error) {
	data, err := json.Marshal(sc)
	if err != nil {
		return "", fmt.Errorf("store: encode schema %s: %w", sc.Name, err)
	}
	return string(data), nil
}

func decodeSchema(doc schemaDoc) (*schema.Schema, error) {
	var sc schema.Schema
	if err := json.Unmarshal([]byte(doc.Schema), &sc); err != nil {
		return nil, fmt.Errorf("store: decode schema %s: %w", doc.ID, err)
	}
	return &sc, nil
}

// tableDoc is one persisted table artifact. The artifact holds the
// same JSON bytes the SQLite store and the export command produce.
type tableDoc struct {
	ID            string `bson:"_id"`
	SchemaName    string `bson:"schemaName"`
	SchemaVersion int    `bson:"schemaVersion"`
	SQLName       string `bson:"sqlName"`
	Artifact      string `bson:"artifact"`
}

func schemaDocID(name string, version int) string {
	return fmt.Sprintf("%s::%d", name, version)
}

func (m *Mongo) Read(ctx context.Context, name string, version int) (*schema.Schema, error) {
	var doc schemaDoc
	err := m.db.Collection(schemasCollection).
		FindOne(ctx, bson.D{{Key: "_id", Value: schemaDocID(name, version)}}).
		Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: read schema: %w", err)
	}
	return decodeSchema(doc)
}

func (m *Mongo) ReadLatest(ctx context.Context, name string) (*schema.Schema, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "schemaVersion", Value: -1}})
	var doc schemaDoc
	err := m.db.Collection(schemasCollection).
		FindOne(ctx, bson.D{{Key: "schemaName", Value: name}}, opts).
		Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: read latest schema: %w", err)
	}
	return decodeSchema(doc)
}

func (m *Mongo) ReadTable(ctx context.Context, name string, version int, tableID string) (*schema.Table, error) {
	var doc tableDoc
	err := m.db.Collection(tablesCollection).
		FindOne(ctx, bson.D{
			{Key: "_id", Value: tableID},
			{Key: "schemaName", Value: name},
			{Key: "schemaVersion", Value: version},
		}).
		Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: read table: %w", err)
	}
	t, err := schema.UnmarshalTable([]byte(doc.Artifact))
	if err != nil {
		return nil, fmt.Errorf("store: read table: %w", err)
	}
	t.ID = doc.ID
	return t, nil
}

func (m *Mongo) ReadTables(ctx context.Context, sc *schema.Schema) (map[string]*schema.Table, error) {
	tables := make(map[string]*schema.Table, len(sc.Tables))
	for _, ref := range sc.Tables {
		t, err := m.ReadTable(ctx, sc.Name, sc.Version, ref.ID)
		if err != nil {
			return nil, err
		}
		if t == nil {
			return nil, fmt.Errorf("schema %s v%d references missing table %s", sc.Name, sc.Version, ref.SQLName)
		}
		tables[t.SQLName] = t
	}
	return tables, nil
}

func (m *Mongo) Write(ctx context.Context, sc *schema.Schema, tables map[string]*schema.Table) error {
	existing, err := m.Read(ctx, sc.Name, sc.Version)
	if err != nil {
		return err
	}
	if existing != nil {
		return fmt.Errorf("store: schema %s v%d already exists", sc.Name, sc.Version)
	}
	return m.writeVersion(ctx, sc, tables)
}

func (m *Mongo) Update(ctx context.Context, sc *schema.Schema, tables map[string]*schema.Table) error {
	if err := m.RemoveVersion(ctx, sc.Name, sc.Version); err != nil {
		return err
	}
	return m.writeVersion(ctx, sc, tables)
}

func (m *Mongo) writeVersion(ctx context.Context, sc *schema.Schema, tables map[string]*schema.Table) error {
	for _, t := range tables {
		artifact, err := schema.MarshalTable(t)
		if err != nil {
			return fmt.Errorf("store: write table %s: %w", t.SQLName, err)
		}
		doc := tableDoc{
			ID:            t.ID,
			SchemaName:    sc.Name,
			SchemaVersion: sc.Version,
			SQLName:       t.SQLName,
			Artifact:      string(artifact),
		}
		if _, err := m.db.Collection(tablesCollection).InsertOne(ctx, doc); err != nil {
			return writeErr("write table "+t.SQLName, err)
		}
	}

	data, err := encodeSchema(sc)
	if err != nil {
		return err
	}
	if _, err := m.db.Collection(schemasCollection).InsertOne(ctx, bson.D{
		{Key: "_id", Value: schemaDocID(sc.Name, sc.Version)},
		{Key: "schemaName", Value: sc.Name},
		{Key: "schemaVersion", Value: sc.Version},
		{Key: "schemaJSON", Value: data},
	}); err != nil {
		return writeErr("write schema "+sc.Name, err)
	}
	return nil
}

func (m *Mongo) Remove(ctx context.Context, name string) error {
	if _, err := m.db.Collection(tablesCollection).
		DeleteMany(ctx, bson.D{{Key: "schemaName", Value: name}}); err != nil {
		return writeErr("remove schema "+name, err)
	}
	if _, err := m.db.Collection(schemasCollection).
		DeleteMany(ctx, bson.D{{Key: "schemaName", Value: name}}); err != nil {
		return writeErr("remove schema "+name, err)
	}
	return nil
}

func (m *Mongo) RemoveVersion(ctx context.Context, name string, version int) error {
	filter := bson.D{
		{Key: "schemaName", Value: name},
		{Key: "schemaVersion", Value: version},
	}
	if _, err := m.db.Collection(tablesCollection).DeleteMany(ctx, filter); err != nil {
		return writeErr(fmt.Sprintf("remove schema %s v%d", name, version), err)
	}
	if _, err := m.db.Collection(schemasCollection).DeleteMany(ctx, filter); err != nil {
		return writeErr(fmt.Sprintf("remove schema %s v%d", name, version), err)
	}
	return nil
}

func (m *Mongo) List(ctx context.Context) ([]*schema.Schema, error) {
	opts := options.Find().SetSort(bson.D{
		{Key: "schemaName", Value: 1},
		{Key: "schemaVersion", Value: -1},
	})
	cur, err := m.db.Collection(schemasCollection).Find(ctx, bson.D{}, opts)
	if err != nil {
		return nil, fmt.Errorf("store: list schemas: %w", err)
	}
	defer cur.Close(ctx)

	var out []*schema.Schema
	for cur.Next(ctx) {
		var doc schemaDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("store: list schemas: %w", err)
		}
		sc, err := decodeSchema(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, sc)
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("store: list schemas: %w", err)
	}
	return out, nil
}

func (m *Mongo) Close(ctx context.Context) error {
	return m.db.Client().Disconnect(ctx)
}

// writeErr classifies a driver write failure: authorization refusals
// become SecurityError so callers can degrade, everything else is
// passed through wrapped.
func writeErr(op string, err error) error {
	if isUnauthorized(err) {
		return &SecurityError{Op: op, Err: err}
	}
	return fmt.Errorf("store: %s: %w", op, err)
}

func isUnauthorized(err error) bool {
	var ce mongo.CommandError
	if errors.As(err, &ce) && ce.Code == unauthorizedCode {
		return true
	}
	var we mongo.WriteException
	if errors.As(err, &we) {
		for _, e := range we.WriteErrors {
			if e.Code == unauthorizedCode {
				return true
			}
		}
	}
	return false
}
