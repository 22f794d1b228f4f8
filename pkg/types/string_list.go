package types

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// StringList stores image and evidence references as a JSON array.
type StringList []string

func (s StringList) Value() (driver.Value, error) {
	if s == nil {
		return "[]", nil
	}
	payload, err := json.Marshal([]string(s))
	if err != nil {
		return nil, fmt.Errorf("string list: marshal %w", err)
	}
	return string(payload), nil
}

func (s *StringList) Scan(value interface{}) error {
	var out []string
	if err := scanJSON(value, &out, "string list"); err != nil {
		return err
	}
	*s = out
	return nil
}

// Clone returns an independent copy.
func (s StringList) Clone() StringList {
	if s == nil {
		return nil
	}
	out := make(StringList, len(s))
	copy(out, s)
	return out
}
