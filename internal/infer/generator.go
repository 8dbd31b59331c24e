package infer

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"go.mongodb.org/mongo-driver/bson"

	"doctable/internal/doctype"
	"doctable/internal/resolve"
	"doctable/internal/schema"
)

// Generator synthesizes a table forest from a sampled document
// sequence. A Generator is stateless; all per-sample state lives in
// the run created by Generate, so one Generator may serve concurrent
// calls.
type Generator struct {
	nameLimit int
}

// NewGenerator returns a generator using the standard identifier
// length budget.
func NewGenerator() *Generator {
	return &Generator{nameLimit: resolve.MaxNameLength}
}

// NewGeneratorWithNameLimit returns a generator with an explicit
// identifier budget. Used by tests exercising truncation.
func NewGeneratorWithNameLimit(limit int) *Generator {
	return &Generator{nameLimit: limit}
}

// Generate consumes the sampled documents of one collection and
// returns the synthesized tables keyed by SQL name. The source is
// closed before returning, on success and on error.
//
// Inference is order-sensitive when documents hold conflicting shapes
// at the same path: conflicts degrade to the string fallback, and
// which non-conflicting shape the rest of a column's metadata reflects
// depends on which document the sampler yielded last. Two runs with
// different sampling strategies can therefore disagree on conflicted
// paths; this is an accepted property of sampling-based inference.
func (g *Generator) Generate(ctx context.Context, collection string, src DocumentSource) (map[string]*schema.Table, error) {
	defer src.Close(ctx)

	r := newRun(collection, g.nameLimit)
	for src.Next(ctx) {
		doc, err := src.Document()
		if err != nil {
			return nil, fmt.Errorf("decode sampled document: %w", err)
		}
		r.processDocument(doc)
	}
	if err := src.Err(); err != nil {
		return nil, fmt.Errorf("sample %s: %w", collection, err)
	}

	r.finish()
	return r.result(), nil
}

// elemKind classifies array elements for conflict tracking. Mixing
// kinds within one array path is the complex/scalar conflict of the
// promotion policy.
type elemKind int

const (
	elemScalar elemKind = iota + 1
	elemObject
	elemArray
)

// run is the state of one Generate call.
type run struct {
	collection string
	nameLimit  int

	// names assigns table identifiers.
	names *resolve.Registry

	// tables is keyed by the field path of the nested structure; the
	// empty path is the base table.
	tables map[string]*tableState
}

// tableState pairs a table under construction with its column-name
// registry and array-element bookkeeping.
type tableState struct {
	path  string // field path this table was rooted at; "" for base
	rel   string // path relative to the parent table, for index names
	table *schema.Table
	names *resolve.Registry

	// kinds records the element kind seen per array nesting level.
	kinds map[int]elemKind

	// conflicted is set once elements of mixed kind were observed;
	// from then on every element-derived column is a string
	// serialization of whatever is present.
	conflicted bool
}

func newRun(collection string, nameLimit int) *run {
	return &run{
		collection: collection,
		nameLimit:  nameLimit,
		names:      resolve.NewRegistryWithLimit(nameLimit),
		tables:     make(map[string]*tableState),
	}
}

func (r *run) base() *tableState {
	ts, ok := r.tables[""]
	if !ok {
		name := r.names.Resolve(r.collection)
		ts = &tableState{
			path:  "",
			rel:   "",
			table: schema.NewTable(name, r.collection),
			names: resolve.NewRegistryWithLimit(r.nameLimit),
			kinds: make(map[int]elemKind),
		}
		r.tables[""] = ts
	}
	return ts
}

func (r *run) processDocument(doc bson.D) {
	base := r.base()

	// _id is the primary key of the whole forest. A document without
	// one is treated as having an absent field, not as an error.
	for _, field := range doc {
		if field.Key != "_id" {
			continue
		}
		bt := doctype.ClassifyValue(field.Value)
		if col, ok := base.table.ColumnByPath("_id"); ok {
			col.SQLType = doctype.Promote(col.SQLType, bt)
			if bt != doctype.BsonNull {
				col.SourceType = bt
			}
		} else {
			name := base.names.Resolve(resolve.Combine(r.collection, "_id"))
			_ = base.table.Add(&schema.Column{
				Path:       "_id",
				SQLName:    name,
				SQLType:    doctype.DefaultSQLType(bt),
				SourceType: bt,
				PrimaryKey: true,
			})
		}
		break
	}

	r.walkObject(base, "", doc, true)
}

// walkObject folds an object's fields into the given table. skipID
// excludes the root _id, which is handled as the primary key.
func (r *run) walkObject(ts *tableState, prefix string, fields bson.D, skipID bool) {
	for _, field := range fields {
		if skipID && prefix == "" && field.Key == "_id" {
			continue
		}
		r.observe(ts, resolve.Combine(prefix, field.Key), field.Value)
	}
}

func (r *run) observe(ts *tableState, path string, value any) {
	bt := doctype.ClassifyValue(value)

	if bt.IsComplex() {
		if ts.conflicted {
			// Inside a conflicted virtual table, nested structure is
			// kept as opaque text rather than promoted to new tables.
			r.textColumn(ts, path, bt)
			return
		}
		r.observeComplex(ts, path, value, bt)
		return
	}
	r.observeScalar(ts, path, bt)
}

func (r *run) observeScalar(ts *tableState, path string, bt doctype.BsonType) {
	col, ok := ts.table.ColumnByPath(path)
	if !ok {
		sqlType := doctype.DefaultSQLType(bt)
		if ts.conflicted {
			sqlType = doctype.SQLVarchar
		}
		_ = ts.table.Add(&schema.Column{
			Path:       path,
			SQLName:    ts.names.Resolve(r.rel(ts, path)),
			SQLType:    sqlType,
			SourceType: bt,
		})
		return
	}

	if col.VirtualTableName != "" {
		if bt == doctype.BsonNull {
			// A null where a structure used to be is an absent field,
			// not a conflict.
			return
		}
		// Structure earlier, scalar now: the column degrades to text
		// and the virtual table for this path is discarded for good.
		r.discardSubtree(path)
		col.VirtualTableName = ""
	}

	col.SQLType = doctype.Promote(col.SQLType, bt)
	if ts.conflicted {
		col.SQLType = doctype.SQLVarchar
	}
	if bt != doctype.BsonNull {
		col.SourceType = bt
	}
}

func (r *run) observeComplex(ts *tableState, path string, value any, bt doctype.BsonType) {
	col, ok := ts.table.ColumnByPath(path)
	if ok {
		sameKind := col.VirtualTableName != "" &&
			((bt == doctype.BsonDocument && col.SQLType == doctype.SQLJavaObject) ||
				(bt == doctype.BsonArray && col.SQLType == doctype.SQLArray))
		if !sameKind {
			// Scalar earlier (or the other complex kind): degrade to
			// text. A path that has conflicted once never becomes a
			// virtual table again.
			if col.VirtualTableName != "" {
				r.discardSubtree(path)
				col.VirtualTableName = ""
			}
			col.SQLType = doctype.SQLVarchar
			col.SourceType = bt
			return
		}
		col.SourceType = bt
		r.descend(r.tables[path], path, value, bt)
		return
	}

	vt := r.createVirtual(ts, path, bt)
	_ = ts.table.Add(&schema.Column{
		Path:             path,
		SQLName:          ts.names.Resolve(r.rel(ts, path)),
		SQLType:          doctype.DefaultSQLType(bt),
		SourceType:       bt,
		VirtualTableName: vt.table.SQLName,
	})
	r.descend(vt, path, value, bt)
}

func (r *run) descend(vt *tableState, path string, value any, bt doctype.BsonType) {
	if vt == nil {
		return
	}
	if bt == doctype.BsonDocument {
		r.walkObject(vt, path, asDocument(value), false)
		return
	}
	r.walkArray(vt, path, 0, asArray(value))
}

// createVirtual registers a new virtual table rooted at path. The new
// table inherits every primary-key column of its parent as a
// foreign-key copy, ordered by ancestor depth, so rows can be joined
// back to the document they came from.
func (r *run) createVirtual(parent *tableState, path string, bt doctype.BsonType) *tableState {
	name := r.names.Resolve(resolve.Combine(r.collection, path))
	vt := &tableState{
		path:  path,
		rel:   strings.ReplaceAll(r.rel(parent, path), resolve.Separator, "_"),
		table: schema.NewTable(name, r.collection),
		names: resolve.NewRegistryWithLimit(r.nameLimit),
		kinds: make(map[int]elemKind),
	}
	vt.table.FieldPath = path
	order := 0
	for _, pk := range parent.table.PrimaryKeys() {
		order++
		cp := pk.Clone()
		cp.ForeignKeyOrder = order
		cp.PrimaryKey = true
		cp.VirtualTableName = ""
		_ = vt.table.Add(cp)
		vt.names.Reserve(cp.SQLName)
	}
	r.tables[path] = vt
	return vt
}

func (r *run) walkArray(ts *tableState, arrPath string, level int, arr bson.A) {
	r.ensureIndexColumn(ts, level)

	for _, elem := range arr {
		bt := doctype.ClassifyValue(elem)
		if bt == doctype.BsonNull {
			// Null elements carry no shape.
			continue
		}

		kind := elemScalar
		switch bt {
		case doctype.BsonDocument:
			kind = elemObject
		case doctype.BsonArray:
			kind = elemArray
		}
		r.noteElemKind(ts, level, kind)

		switch {
		case kind == elemObject:
			r.walkObject(ts, arrPath, asDocument(elem), false)
		case kind == elemArray && !ts.conflicted:
			r.walkArray(ts, arrPath, level+1, asArray(elem))
		default:
			// Scalar element, or any element once the table has
			// conflicted and holds text serializations only.
			r.valueColumn(ts, arrPath, bt)
		}
	}
}

// noteElemKind records the element kind at a nesting level and applies
// the conflict policy when it disagrees with what was seen before:
// index columns deeper than the conflicting level are removed, and
// every element-derived column degrades to the string fallback.
func (r *run) noteElemKind(ts *tableState, level int, kind elemKind) {
	prev, seen := ts.kinds[level]
	if !seen {
		ts.kinds[level] = kind
		return
	}
	if prev == kind {
		return
	}
	ts.kinds[level] = kind
	if ts.conflicted {
		return
	}
	ts.conflicted = true

	var drop []string
	for _, col := range ts.table.Columns() {
		if col.IsArrayIndex && col.ArrayIndexLevel > level {
			drop = append(drop, col.SQLName)
			continue
		}
		if col.PrimaryKey || col.ForeignKey() || col.IsArrayIndex {
			continue
		}
		col.SQLType = doctype.SQLVarchar
	}
	for _, name := range drop {
		ts.table.Remove(name)
	}
	for lvl := range ts.kinds {
		if lvl > level {
			delete(ts.kinds, lvl)
		}
	}
}

func (r *run) ensureIndexColumn(ts *tableState, level int) {
	for _, col := range ts.table.Columns() {
		if col.IsArrayIndex && col.ArrayIndexLevel == level {
			return
		}
	}
	name := ts.names.Resolve(ts.rel + "_index_lvl_" + strconv.Itoa(level))
	_ = ts.table.Add(&schema.Column{
		SQLName:         name,
		SQLType:         doctype.SQLBigInt,
		SourceType:      doctype.BsonInt64,
		PrimaryKey:      true,
		Generated:       true,
		IsArrayIndex:    true,
		ArrayIndexLevel: level,
	})
}

// valueColumn records a scalar array element under the synthetic value
// column of the virtual table.
func (r *run) valueColumn(ts *tableState, arrPath string, bt doctype.BsonType) {
	col, ok := ts.table.ColumnByPath(arrPath)
	if !ok {
		sqlType := doctype.DefaultSQLType(bt)
		if ts.conflicted {
			sqlType = doctype.SQLVarchar
		}
		_ = ts.table.Add(&schema.Column{
			Path:       arrPath,
			SQLName:    ts.names.Resolve("value"),
			SQLType:    sqlType,
			SourceType: bt,
		})
		return
	}
	col.SQLType = doctype.Promote(col.SQLType, bt)
	if ts.conflicted {
		col.SQLType = doctype.SQLVarchar
	}
	if bt != doctype.BsonNull {
		col.SourceType = bt
	}
}

// textColumn records an opaque string serialization at path, used for
// nested structure inside conflicted virtual tables.
func (r *run) textColumn(ts *tableState, path string, bt doctype.BsonType) {
	col, ok := ts.table.ColumnByPath(path)
	if !ok {
		_ = ts.table.Add(&schema.Column{
			Path:       path,
			SQLName:    ts.names.Resolve(r.rel(ts, path)),
			SQLType:    doctype.SQLVarchar,
			SourceType: bt,
		})
		return
	}
	col.SQLType = doctype.SQLVarchar
	col.SourceType = bt
}

// discardSubtree removes the virtual table rooted at path and every
// virtual table nested beneath it.
func (r *run) discardSubtree(path string) {
	for p := range r.tables {
		if p == path || strings.HasPrefix(p, path+resolve.Separator) {
			delete(r.tables, p)
		}
	}
}

// rel returns path relative to the table's own root, which is what
// column identifiers are derived from.
func (r *run) rel(ts *tableState, path string) string {
	if ts.path == "" {
		return path
	}
	return strings.TrimPrefix(path, ts.path+resolve.Separator)
}

// finish runs the post-sample consistency pass: every virtual table's
// copy of the root primary key takes on the exact type the base table
// settled on, since joins compare these columns by equality.
func (r *run) finish() {
	base, ok := r.tables[""]
	if !ok {
		return
	}
	rootPK, ok := base.table.ColumnByPath("_id")
	if !ok {
		return
	}
	for path, ts := range r.tables {
		if path == "" {
			continue
		}
		if col, ok := ts.table.ColumnByPath("_id"); ok {
			col.SQLType = rootPK.SQLType
			col.SourceType = rootPK.SourceType
		}
	}
}

func (r *run) result() map[string]*schema.Table {
	out := make(map[string]*schema.Table, len(r.tables))
	for _, ts := range r.tables {
		out[ts.table.SQLName] = ts.table
	}
	return out
}

func asDocument(v any) bson.D {
	switch doc := v.(type) {
	case bson.D:
		return doc
	case bson.M:
		out := make(bson.D, 0, len(doc))
		for k, val := range doc {
			out = append(out, bson.E{Key: k, Value: val})
		}
		return out
	case map[string]any:
		out := make(bson.D, 0, len(doc))
		for k, val := range doc {
			out = append(out, bson.E{Key: k, Value: val})
		}
		return out
	default:
		return nil
	}
}

func asArray(v any) bson.A {
	switch arr := v.(type) {
	case bson.A:
		return arr
	case []any:
		return bson.A(arr)
	default:
		return nil
	}
}
