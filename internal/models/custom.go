package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// CustomData holds opaque course-specific metadata persisted as JSONB.
type CustomData map[string]interface{}

// Value marshals the bag for persistence.
func (c CustomData) Value() (driver.Value, error) {
	if c == nil {
		return []byte("{}"), nil
	}
	return marshalJSONB(map[string]interface{}(c), "custom data")
}

// Scan unmarshals JSONB payloads into the bag.
func (c *CustomData) Scan(value interface{}) error {
	out := CustomData{}
	if err := scanJSONB(value, &out, "custom data"); err != nil {
		return err
	}
	*c = out
	return nil
}

// String returns the string value stored under key, or "".
func (c CustomData) String(key string) string {
	if c == nil {
		return ""
	}
	if v, ok := c[key].(string); ok {
		return v
	}
	return ""
}

func marshalJSONB(v interface{}, name string) (driver.Value, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", name, err)
	}
	return data, nil
}

func scanJSONB(value interface{}, dest interface{}, name string) error {
	if value == nil {
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported type %T for %s", value, name)
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("unmarshal %s: %w", name, err)
	}
	return nil
}
