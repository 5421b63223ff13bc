package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// JSONValue stores an arbitrary typed comparison value (string, number, bool,
// or a list thereof) as a JSON text column.
type JSONValue struct {
	V interface{}
}

func (j JSONValue) Value() (driver.Value, error) {
	if j.V == nil {
		return nil, nil
	}
	b, err := json.Marshal(j.V)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (j *JSONValue) Scan(src interface{}) error {
	if src == nil {
		j.V = nil
		return nil
	}
	var b []byte
	switch s := src.(type) {
	case []byte:
		b = s
	case string:
		b = []byte(s)
	default:
		return fmt.Errorf("json value: cannot scan %T", src)
	}
	if len(b) == 0 {
		j.V = nil
		return nil
	}
	return json.Unmarshal(b, &j.V)
}

func (j JSONValue) MarshalJSON() ([]byte, error) {
	return json.Marshal(j.V)
}

func (j *JSONValue) UnmarshalJSON(b []byte) error {
	return json.Unmarshal(b, &j.V)
}

// JSONMap stores a string-keyed map as a JSON text column.
type JSONMap map[string]interface{}

func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (m *JSONMap) Scan(src interface{}) error {
	if src == nil {
		*m = nil
		return nil
	}
	var b []byte
	switch s := src.(type) {
	case []byte:
		b = s
	case string:
		b = []byte(s)
	default:
		return fmt.Errorf("json map: cannot scan %T", src)
	}
	if len(b) == 0 {
		*m = nil
		return nil
	}
	return json.Unmarshal(b, m)
}
