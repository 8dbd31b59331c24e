package cli

import (
	"testing"

	"github.com/stretchr/testify/require"
)

const validArtifact = `[
  {
    "sqlName": "media",
    "collectionName": "media",
    "columns": [
      {
        "fieldPath": "_id",
        "sqlName": "media__id",
        "sqlType": "varchar",
        "dbType": "objectId",
        "isPrimaryKey": true
      },
      {
        "fieldPath": "title",
        "sqlName": "title",
        "sqlType": "varchar",
        "dbType": "string"
      }
    ]
  },
  {
    "sqlName": "media_tags",
    "collectionName": "media",
    "fieldPath": "tags",
    "columns": [
      {
        "fieldPath": "_id",
        "sqlName": "media__id",
        "sqlType": "varchar",
        "dbType": "objectId",
        "isPrimaryKey": true,
        "foreignKeyOrder": 1
      },
      {
        "fieldPath": "tags_index_lvl_0",
        "sqlName": "tags_index_lvl_0",
        "sqlType": "bigint",
        "dbType": "int64",
        "isPrimaryKey": true,
        "isGenerated": true,
        "arrayIndexLevel": 0
      },
      {
        "fieldPath": "tags",
        "sqlName": "value",
        "sqlType": "varchar",
        "dbType": "string"
      }
    ]
  }
]`

func TestValidateArtifactAccepts(t *testing.T) {
	require.NoError(t, validateArtifact([]byte(validArtifact)))
}

func TestValidateArtifactRejectsBadJSON(t *testing.T) {
	err := validateArtifact([]byte(`[{`))
	require.Error(t, err)
	require.Contains(t, err.Error(), "not valid JSON")
}

func TestValidateArtifactRejectsUnknownType(t *testing.T) {
	bad := `[
  {
    "sqlName": "media",
    "collectionName": "media",
    "columns": [
      {"fieldPath": "_id", "sqlName": "id", "sqlType": "text", "dbType": "string"}
    ]
  }
]`
	require.Error(t, validateArtifact([]byte(bad)))
}

func TestValidateArtifactRejectsMissingFields(t *testing.T) {
	bad := `[
  {
    "collectionName": "media",
    "columns": []
  }
]`
	require.Error(t, validateArtifact([]byte(bad)))
}

func TestValidateArtifactRejectsEmptyName(t *testing.T) {
	bad := `[
  {
    "sqlName": "",
    "collectionName": "media",
    "columns": []
  }
]`
	require.Error(t, validateArtifact([]byte(bad)))
}
