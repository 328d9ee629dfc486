package search

// indexDefinition splits text fields into single characters so that a phrase
// query matches any substring.
const indexDefinition = `{
  "settings": {
    "analysis": {
      "tokenizer": {
        "char_tokenizer": {
          "type": "pattern",
          "pattern": ""
        }
      },
      "analyzer": {
        "char_analyzer": {
          "type": "custom",
          "tokenizer": "char_tokenizer",
          "filter": ["lowercase"]
        }
      }
    }
  },
  "mappings": {
    "dynamic": "strict",
    "properties": {
      "flat": {
        "type": "nested",
        "properties": {
          "path": {"type": "text", "analyzer": "char_analyzer"},
          "value": {"type": "text", "analyzer": "char_analyzer"}
        }
      },
      "updateVersion": {"type": "long"},
      "updateAt": {"type": "long"},
      "updateAtTimeZone": {"type": "integer"},
      "source": {
        "properties": {
          "dbName": {"type": "keyword"},
          "collName": {"type": "keyword"}
        }
      }
    }
  }
}`
