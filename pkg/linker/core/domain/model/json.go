package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// marshalJSON renders v as a JSON string column value, using empty when v is nil.
func marshalJSON(v interface{}, isNil bool, empty string) (driver.Value, error) {
	if isNil {
		return empty, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// unmarshalJSON decodes a JSON column value (string or []byte) into dst.
func unmarshalJSON(value interface{}, dst interface{}, typeName string) error {
	var b []byte
	switch v := value.(type) {
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		return fmt.Errorf("unsupported Scan type for %s: %T", typeName, value)
	}
	if len(b) == 0 {
		return nil
	}
	return json.Unmarshal(b, dst)
}

// FailureList is an ordered list of error messages stored as a JSON array.
type FailureList []string

// Value implements driver.Valuer.
func (fl FailureList) Value() (driver.Value, error) {
	return marshalJSON(fl, fl == nil, "[]")
}

// Scan implements sql.Scanner.
func (fl *FailureList) Scan(value interface{}) error {
	*fl = FailureList{}
	if value == nil {
		return nil
	}
	return unmarshalJSON(value, fl, "FailureList")
}

// StepFailures groups error messages by pipeline step name, stored as a JSON object.
type StepFailures map[string][]string

// Value implements driver.Valuer.
func (sf StepFailures) Value() (driver.Value, error) {
	return marshalJSON(sf, sf == nil, "{}")
}

// Scan implements sql.Scanner.
func (sf *StepFailures) Scan(value interface{}) error {
	*sf = StepFailures{}
	if value == nil {
		return nil
	}
	return unmarshalJSON(value, sf, "StepFailures")
}

// MatchMetadata records how an image was matched to a product.
type MatchMetadata struct {
	Filename         string   `json:"filename"`
	ExtractionSource string   `json:"extraction_source"`
	SessionID        string   `json:"session_id"`
	SKU              string   `json:"sku"`
	AlternateSKUs    []string `json:"alternate_skus,omitempty"`
	PromotedFrom     string   `json:"promoted_from,omitempty"`
}

// Value implements driver.Valuer.
func (m MatchMetadata) Value() (driver.Value, error) {
	return marshalJSON(m, false, "{}")
}

// Scan implements sql.Scanner.
func (m *MatchMetadata) Scan(value interface{}) error {
	*m = MatchMetadata{}
	if value == nil {
		return nil
	}
	return unmarshalJSON(value, m, "MatchMetadata")
}

// Value implements driver.Valuer.
func (s SessionSummary) Value() (driver.Value, error) {
	return marshalJSON(s, false, "{}")
}

// Scan implements sql.Scanner.
func (s *SessionSummary) Scan(value interface{}) error {
	*s = SessionSummary{}
	if value == nil {
		return nil
	}
	return unmarshalJSON(value, s, "SessionSummary")
}
