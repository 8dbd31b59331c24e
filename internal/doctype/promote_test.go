package doctype

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// sourceOf maps each relational type to a BSON type that would have
// produced it on first observation.
var sourceOf = map[SQLType]BsonType{
	SQLBoolean:    BsonBoolean,
	SQLInteger:    BsonInt32,
	SQLBigInt:     BsonInt64,
	SQLDouble:     BsonDouble,
	SQLDecimal:    BsonDecimal128,
	SQLTimestamp:  BsonDateTime,
	SQLVarchar:    BsonString,
	SQLVarbinary:  BsonBinary,
	SQLJavaObject: BsonDocument,
	SQLArray:      BsonArray,
}

func TestPromote_Idempotent(t *testing.T) {
	// Observing a value consistent with the current type never changes it.
	for sqlType, bsonType := range sourceOf {
		assert.Equal(t, sqlType, Promote(sqlType, bsonType),
			"promote(%s, %s)", sqlType, bsonType)
	}
}

func TestPromote_NullObservationKeepsType(t *testing.T) {
	for sqlType := range sourceOf {
		assert.Equal(t, sqlType, Promote(sqlType, BsonNull),
			"null observation must not move %s", sqlType)
	}
}

func TestPromote_FirstObservation(t *testing.T) {
	tests := []struct {
		observed BsonType
		want     SQLType
	}{
		{BsonNull, SQLNull},
		{BsonBoolean, SQLBoolean},
		{BsonInt32, SQLInteger},
		{BsonInt64, SQLBigInt},
		{BsonDouble, SQLDouble},
		{BsonDecimal128, SQLDecimal},
		{BsonString, SQLVarchar},
		{BsonObjectID, SQLVarchar},
		{BsonDateTime, SQLTimestamp},
		{BsonBinary, SQLVarbinary},
		{BsonMinKey, SQLVarchar},
		{BsonMaxKey, SQLVarchar},
		{BsonDocument, SQLJavaObject},
		{BsonArray, SQLArray},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Promote(SQLNull, tt.observed), "observed %s", tt.observed)
	}
}

func TestPromote_NumericWidening(t *testing.T) {
	tests := []struct {
		prev     SQLType
		observed BsonType
		want     SQLType
	}{
		{SQLInteger, BsonInt64, SQLBigInt},
		{SQLInteger, BsonDouble, SQLDouble},
		{SQLInteger, BsonDecimal128, SQLDecimal},
		{SQLBigInt, BsonInt32, SQLBigInt},
		{SQLBigInt, BsonDouble, SQLDecimal},
		{SQLDouble, BsonInt32, SQLDouble},
		{SQLDouble, BsonInt64, SQLDecimal},
		{SQLDecimal, BsonInt32, SQLDecimal},
		{SQLDecimal, BsonDouble, SQLDecimal},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Promote(tt.prev, tt.observed),
			"promote(%s, %s)", tt.prev, tt.observed)
	}
}

// rank orders types from most specific to the universal fallback so the
// widening property can be asserted as monotone.
func rank(t SQLType) int {
	switch t {
	case SQLNull:
		return 0
	case SQLBoolean, SQLInteger, SQLTimestamp, SQLVarbinary, SQLJavaObject, SQLArray:
		return 1
	case SQLBigInt, SQLDouble:
		return 2
	case SQLDecimal:
		return 3
	default: // varchar
		return 4
	}
}

func TestPromote_MonotoneWidening(t *testing.T) {
	// Folding any further observation into a type never produces a more
	// specific type than the one already held.
	all := []SQLType{
		SQLNull, SQLBoolean, SQLInteger, SQLBigInt, SQLDouble, SQLDecimal,
		SQLTimestamp, SQLVarchar, SQLVarbinary, SQLJavaObject, SQLArray,
	}
	observed := []BsonType{
		BsonNull, BsonBoolean, BsonInt32, BsonInt64, BsonDouble,
		BsonDecimal128, BsonString, BsonObjectID, BsonDateTime, BsonBinary,
		BsonMinKey, BsonMaxKey, BsonDocument, BsonArray,
	}
	for _, prev := range all {
		for _, obs := range observed {
			next := Promote(prev, obs)
			assert.GreaterOrEqual(t, rank(next), rank(prev),
				"promote(%s, %s) = %s narrowed", prev, obs, next)
		}
	}
}

func TestPromote_ComplexScalarConflict(t *testing.T) {
	assert.Equal(t, SQLVarchar, Promote(SQLJavaObject, BsonInt32))
	assert.Equal(t, SQLVarchar, Promote(SQLArray, BsonString))
	assert.Equal(t, SQLVarchar, Promote(SQLInteger, BsonDocument))
	assert.Equal(t, SQLVarchar, Promote(SQLBigInt, BsonArray))
	assert.Equal(t, SQLVarchar, Promote(SQLJavaObject, BsonArray))
	assert.Equal(t, SQLVarchar, Promote(SQLArray, BsonDocument))
}

func TestPromote_TemporalConflict(t *testing.T) {
	assert.Equal(t, SQLVarchar, Promote(SQLTimestamp, BsonInt64))
	assert.Equal(t, SQLVarchar, Promote(SQLInteger, BsonDateTime))
}

func TestPromote_TotalLookup(t *testing.T) {
	// Every pair resolves to something; unlisted pairs hit the varchar
	// fallback rather than panicking.
	assert.Equal(t, SQLVarchar, Promote(SQLBoolean, BsonDouble))
	assert.Equal(t, SQLVarchar, Promote(SQLVarbinary, BsonString))
	assert.NotPanics(t, func() {
		Promote(SQLType(99), BsonType(99))
	})
}

func TestClassifyValue(t *testing.T) {
	oid := primitive.NewObjectID()
	tests := []struct {
		value any
		want  BsonType
	}{
		{nil, BsonNull},
		{primitive.Null{}, BsonNull},
		{true, BsonBoolean},
		{int32(1), BsonInt32},
		{int64(1), BsonInt64},
		{1.5, BsonDouble},
		{primitive.NewDecimal128(0, 1), BsonDecimal128},
		{"s", BsonString},
		{oid, BsonObjectID},
		{primitive.DateTime(0), BsonDateTime},
		{primitive.Binary{Data: []byte{1}}, BsonBinary},
		{primitive.MinKey{}, BsonMinKey},
		{primitive.MaxKey{}, BsonMaxKey},
		{bson.D{{Key: "a", Value: 1}}, BsonDocument},
		{bson.A{1, 2}, BsonArray},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ClassifyValue(tt.value), "value %#v", tt.value)
	}
}
