package types

import (
	"database/sql/driver"
	"fmt"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Properties represents a JSONB field for storing arbitrary string key-value pairs
type Properties map[string]string

// Scan implements the sql.Scanner interface for Properties
func (p *Properties) Scan(value interface{}) error {
	if value == nil {
		*p = make(Properties)
		return nil
	}

	bytes, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("failed to unmarshal JSONB value: %v", value)
	}

	result := make(Properties)
	err := json.Unmarshal(bytes, &result)
	*p = result
	return err
}

// Value implements the driver.Valuer interface for Properties
func (p Properties) Value() (driver.Value, error) {
	if p == nil {
		return json.Marshal(make(Properties))
	}
	return json.Marshal(p)
}

// Copy returns a shallow copy so callers can mutate it freely
func (p Properties) Copy() Properties {
	out := make(Properties, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}
