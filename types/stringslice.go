package types

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

// JSONStringSlice defined JSON data type, need to implements driver.Valuer, sql.Scanner interface
type JSONStringSlice []string

// Value return json value, implement driver.Valuer interface
func (s JSONStringSlice) Value() (driver.Value, error) {
	if s == nil {
		return nil, nil
	}
	ba, err := s.MarshalJSON()
	return string(ba), err
}

// Scan scan value into the slice, implements sql.Scanner interface
func (s *JSONStringSlice) Scan(val interface{}) error {
	var ba []byte
	switch v := val.(type) {
	case []byte:
		ba = v
	case string:
		ba = []byte(v)
	default:
		return errors.New(fmt.Sprint("Failed to unmarshal JSONB value:", val))
	}
	t := []string{}
	err := json.Unmarshal(ba, &t)
	*s = JSONStringSlice(t)
	return err
}

// MarshalJSON to output non base64 encoded []byte
func (s JSONStringSlice) MarshalJSON() ([]byte, error) {
	if s == nil {
		return []byte("null"), nil
	}
	t := ([]string)(s)
	return json.Marshal(t)
}

// UnmarshalJSON to deserialize []byte
func (s *JSONStringSlice) UnmarshalJSON(b []byte) error {
	t := []string{}
	err := json.Unmarshal(b, &t)
	*s = JSONStringSlice(t)
	return err
}

// Contains reports whether the slice contains the given member id.
func (s JSONStringSlice) Contains(id string) bool {
	for _, m := range s {
		if m == id {
			return true
		}
	}
	return false
}

// GormDataType gorm common data type
func (s JSONStringSlice) GormDataType() string {
	return "jsonstringslice"
}

// GormDBDataType gorm db data type
func (JSONStringSlice) GormDBDataType(db *gorm.DB, field *schema.Field) string {
	switch db.Dialector.Name() {
	case "sqlite":
		return "JSON"
	case "mysql":
		return "JSON"
	case "postgres":
		return "JSONB"
	}
	return ""
}
