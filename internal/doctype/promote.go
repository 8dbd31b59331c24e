package doctype

// DefaultSQLType is the first-observation mapping: the relational type
// assigned to a path the first time any value is seen there.
func DefaultSQLType(observed BsonType) SQLType {
	switch observed {
	case BsonNull:
		return SQLNull
	case BsonBoolean:
		return SQLBoolean
	case BsonInt32:
		return SQLInteger
	case BsonInt64:
		return SQLBigInt
	case BsonDouble:
		return SQLDouble
	case BsonDecimal128:
		return SQLDecimal
	case BsonDateTime:
		return SQLTimestamp
	case BsonBinary:
		return SQLVarbinary
	case BsonDocument:
		return SQLJavaObject
	case BsonArray:
		return SQLArray
	default:
		// string, objectId, minKey, maxKey
		return SQLVarchar
	}
}

// promotions is the unified-type table: previous relational type crossed
// with the newly observed BSON type. Pairs not listed fall back to
// varchar, which can represent any value as text. The table is pure
// data; Promote is the only reader.
//
// Invariants encoded here:
//   - a null observation never changes an established type
//   - numeric promotions widen (integer -> bigint -> decimal), never narrow
//   - int64/double mixes go to decimal so neither side loses precision
//   - complex (object/array) vs scalar mixes degrade to varchar
//   - temporal vs non-temporal mixes degrade to varchar
var promotions = map[SQLType]map[BsonType]SQLType{
	SQLBoolean: {
		BsonNull:    SQLBoolean,
		BsonBoolean: SQLBoolean,
	},
	SQLInteger: {
		BsonNull:       SQLInteger,
		BsonInt32:      SQLInteger,
		BsonInt64:      SQLBigInt,
		BsonDouble:     SQLDouble,
		BsonDecimal128: SQLDecimal,
	},
	SQLBigInt: {
		BsonNull:       SQLBigInt,
		BsonInt32:      SQLBigInt,
		BsonInt64:      SQLBigInt,
		BsonDouble:     SQLDecimal,
		BsonDecimal128: SQLDecimal,
	},
	SQLDouble: {
		BsonNull:       SQLDouble,
		BsonInt32:      SQLDouble,
		BsonInt64:      SQLDecimal,
		BsonDouble:     SQLDouble,
		BsonDecimal128: SQLDecimal,
	},
	SQLDecimal: {
		BsonNull:       SQLDecimal,
		BsonInt32:      SQLDecimal,
		BsonInt64:      SQLDecimal,
		BsonDouble:     SQLDecimal,
		BsonDecimal128: SQLDecimal,
	},
	SQLTimestamp: {
		BsonNull:     SQLTimestamp,
		BsonDateTime: SQLTimestamp,
	},
	SQLVarbinary: {
		BsonNull:   SQLVarbinary,
		BsonBinary: SQLVarbinary,
	},
	SQLJavaObject: {
		BsonNull:     SQLJavaObject,
		BsonDocument: SQLJavaObject,
	},
	SQLArray: {
		BsonNull:  SQLArray,
		BsonArray: SQLArray,
	},
}

// Promote returns the relational type that represents both the previous
// inferred type and a newly observed value. The lookup is total: every
// pair resolves, with varchar as the universal fallback.
func Promote(prev SQLType, observed BsonType) SQLType {
	if prev == SQLNull {
		return DefaultSQLType(observed)
	}
	if row, ok := promotions[prev]; ok {
		if next, ok := row[observed]; ok {
			return next
		}
	}
	return SQLVarchar
}
