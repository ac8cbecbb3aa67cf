package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// DefaultEventType is the category assumed when a trace record carries none
const DefaultEventType = "process"

// Event is the complete observed call sequence of one monitored process
type Event struct {
	Type        string `json:"type,omitempty"`
	ProcessID   int    `json:"process_id"`
	ProcessName string `json:"process_name"`
	CommandLine string `json:"command_line,omitempty"`
	Calls       []Call `json:"calls"`
}

// Category returns the event type, falling back to DefaultEventType
func (e *Event) Category() string {
	if e.Type == "" {
		return DefaultEventType
	}
	return e.Type
}

// Call is one observed invocation
type Call struct {
	API         string           `json:"api"`
	Arguments   map[string]Value `json:"arguments"`
	ReturnValue Value            `json:"return_value"`
	Status      string           `json:"status,omitempty"`
	Time        float64          `json:"time,omitempty"`
}

// Arg returns the positional argument pN
func (c *Call) Arg(n int) (Value, bool) {
	v, ok := c.Arguments["p"+strconv.Itoa(n)]
	return v, ok
}

// Value is a loosely typed trace argument: a scalar rendered as a string,
// or a compound list of strings (e.g. a socket address tuple).
type Value struct {
	str    string
	list   []string
	isList bool

	// set when the JSON held an object or a nested list
	malformed bool
}

// StringValue builds a scalar Value
func StringValue(s string) Value {
	return Value{str: s}
}

// ListValue builds a compound Value
func ListValue(items ...string) Value {
	return Value{list: items, isList: true}
}

// String returns the scalar form. Lists render in fmt's bracketed form.
func (v Value) String() string {
	if v.isList {
		return fmt.Sprint(v.list)
	}
	return v.str
}

// List returns the compound elements, or nil for a scalar
func (v Value) List() []string {
	return v.list
}

// IsList reports whether the value is compound
func (v Value) IsList() bool {
	return v.isList
}

// Malformed reports whether the argument, or one of its elements, was not a
// JSON scalar. The raw text is kept in String or List but is not a usable value.
func (v Value) Malformed() bool {
	return v.malformed
}

// Int parses the scalar form as a base-10 integer
func (v Value) Int() (int64, error) {
	if v.isList {
		return 0, fmt.Errorf("compound value %v is not an integer", v.list)
	}
	if v.malformed {
		return 0, fmt.Errorf("value %s is not a scalar", v.str)
	}
	return strconv.ParseInt(v.str, 10, 64)
}

func (v Value) MarshalJSON() ([]byte, error) {
	if v.isList {
		if v.list == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.list)
	}
	return json.Marshal(v.str)
}

func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		var raw []json.RawMessage
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		items := make([]string, 0, len(raw))
		malformed := false
		for _, r := range raw {
			s, ok, err := scalarString(r)
			if err != nil {
				return err
			}
			malformed = malformed || !ok
			items = append(items, s)
		}
		*v = Value{list: items, isList: true, malformed: malformed}
		return nil
	}

	s, ok, err := scalarString(data)
	if err != nil {
		return err
	}
	*v = Value{str: s, malformed: !ok}
	return nil
}

// scalarString renders a JSON scalar the way the tracer prints it. Objects
// and nested lists come back verbatim with ok set to false.
func scalarString(data json.RawMessage) (s string, ok bool, err error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return "", true, nil
	}
	switch data[0] {
	case '"':
		if err := json.Unmarshal(data, &s); err != nil {
			return "", false, err
		}
		return s, true, nil
	case 'n':
		return "", true, nil
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(data, &b); err != nil {
			return "", false, err
		}
		return strconv.FormatBool(b), true, nil
	case '{', '[':
		return string(data), false, nil
	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return "", false, err
		}
		return n.String(), true, nil
	}
}
