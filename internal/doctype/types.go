package doctype

import (
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// BsonType classifies the value observed at a document field.
//
// The enumeration covers every BSON type the sampler can hand us after
// driver decoding. Deprecated wire types (symbol, DBPointer, undefined)
// decode to their modern equivalents and never appear here.
type BsonType int

const (
	BsonNull BsonType = iota
	BsonBoolean
	BsonInt32
	BsonInt64
	BsonDouble
	BsonDecimal128
	BsonString
	BsonObjectID
	BsonDateTime
	BsonBinary
	BsonMinKey
	BsonMaxKey
	BsonDocument
	BsonArray
)

var bsonTypeNames = map[BsonType]string{
	BsonNull:       "null",
	BsonBoolean:    "boolean",
	BsonInt32:      "int32",
	BsonInt64:      "int64",
	BsonDouble:     "double",
	BsonDecimal128: "decimal128",
	BsonString:     "string",
	BsonObjectID:   "objectId",
	BsonDateTime:   "date",
	BsonBinary:     "binData",
	BsonMinKey:     "minKey",
	BsonMaxKey:     "maxKey",
	BsonDocument:   "object",
	BsonArray:      "array",
}

func (t BsonType) String() string {
	if name, ok := bsonTypeNames[t]; ok {
		return name
	}
	return "unknown"
}

// IsComplex reports whether the type is a sub-document or an array.
// Complex and scalar observations at the same path never merge; they
// degrade to the string fallback.
func (t BsonType) IsComplex() bool {
	return t == BsonDocument || t == BsonArray
}

// SQLType is the unified relational type a column settles on after
// every sampled observation has been folded in through Promote.
type SQLType int

const (
	SQLNull SQLType = iota
	SQLBoolean
	SQLInteger
	SQLBigInt
	SQLDouble
	SQLDecimal
	SQLTimestamp
	SQLVarchar
	SQLVarbinary
	// SQLJavaObject marks a column whose value is a sub-document
	// promoted to a virtual table rather than stored inline.
	SQLJavaObject
	// SQLArray marks a column whose value is an array promoted to a
	// virtual table rather than stored inline.
	SQLArray
)

var sqlTypeNames = map[SQLType]string{
	SQLNull:       "null",
	SQLBoolean:    "boolean",
	SQLInteger:    "integer",
	SQLBigInt:     "bigint",
	SQLDouble:     "double",
	SQLDecimal:    "decimal",
	SQLTimestamp:  "timestamp",
	SQLVarchar:    "varchar",
	SQLVarbinary:  "varbinary",
	SQLJavaObject: "javaObject",
	SQLArray:      "array",
}

func (t SQLType) String() string {
	if name, ok := sqlTypeNames[t]; ok {
		return name
	}
	return "unknown"
}

// ParseSQLType maps the lowercase artifact spelling back to a SQLType.
// Unknown spellings come back as (SQLNull, false).
func ParseSQLType(name string) (SQLType, bool) {
	for t, n := range sqlTypeNames {
		if n == name {
			return t, true
		}
	}
	return SQLNull, false
}

// ParseBsonType maps the lowercase artifact spelling back to a BsonType.
func ParseBsonType(name string) (BsonType, bool) {
	for t, n := range bsonTypeNames {
		if n == name {
			return t, true
		}
	}
	return BsonNull, false
}

// ClassifyValue maps a driver-decoded value to its BsonType.
//
// The driver decodes into bson.D/bson.A for containers and primitive.*
// for the BSON-specific scalars; plain Go scalars cover the rest. A nil
// value, primitive.Null and primitive.Undefined all classify as null.
func ClassifyValue(v any) BsonType {
	switch v.(type) {
	case nil, primitive.Null, primitive.Undefined:
		return BsonNull
	case bool:
		return BsonBoolean
	case int32:
		return BsonInt32
	case int64, int:
		return BsonInt64
	case float64, float32:
		return BsonDouble
	case primitive.Decimal128:
		return BsonDecimal128
	case string:
		return BsonString
	case primitive.ObjectID:
		return BsonObjectID
	case primitive.DateTime, primitive.Timestamp:
		return BsonDateTime
	case primitive.Binary, []byte:
		return BsonBinary
	case primitive.MinKey:
		return BsonMinKey
	case primitive.MaxKey:
		return BsonMaxKey
	case bson.D, bson.M, map[string]any:
		return BsonDocument
	case bson.A, []any:
		return BsonArray
	default:
		// Regex, JavaScript and friends have no tabular shape; treat
		// them as opaque strings.
		return BsonString
	}
}
