// Package message defines the wire-level change record exchanged between
// client and server: one message per mutated field.
package message

import (
	"encoding/json"
	"fmt"
)

// ValueType tags how Message.Value should be interpreted by a handler.
type ValueType int

const (
	ValueNone ValueType = iota
	ValueNumber
	ValueString
)

func (v ValueType) String() string {
	switch v {
	case ValueNone:
		return "None"
	case ValueNumber:
		return "Number"
	case ValueString:
		return "String"
	default:
		return "None"
	}
}

// ParseValueType maps the wire name back to a ValueType.
func ParseValueType(s string) (ValueType, error) {
	switch s {
	case "None":
		return ValueNone, nil
	case "Number":
		return ValueNumber, nil
	case "String":
		return ValueString, nil
	default:
		return ValueNone, fmt.Errorf("message: unknown value_type %q", s)
	}
}

func (v ValueType) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.String())
}

func (v *ValueType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseValueType(s)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// Message is a single field-level change: one dataset/row/column address,
// one HLC timestamp string, one typed value.
type Message struct {
	Timestamp string    `json:"timestamp"`
	Dataset   string    `json:"dataset"`
	Row       string    `json:"row"`
	Column    string    `json:"column"`
	ValueType ValueType `json:"value_type"`
	Value     string    `json:"value"`
}

// ByTimestamp sorts messages ascending by their HLC string, which is the
// same order as the underlying (millis, counter, node) tuple.
type ByTimestamp []Message

func (b ByTimestamp) Len() int           { return len(b) }
func (b ByTimestamp) Less(i, j int) bool { return b[i].Timestamp < b[j].Timestamp }
func (b ByTimestamp) Swap(i, j int)      { b[i], b[j] = b[j], b[i] }
