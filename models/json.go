package models

import (
	"encoding/json"

	"gorm.io/datatypes"
)

// StringList decodes a JSON array column; malformed or empty values yield nil.
func StringList(raw datatypes.JSON) []string {
	if len(raw) == 0 {
		return nil
	}
	var out []string
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return out
}

// JSONList encodes items for a JSON array column.
func JSONList(items []string) datatypes.JSON {
	if items == nil {
		items = []string{}
	}
	b, _ := json.Marshal(items)
	return datatypes.JSON(b)
}
