package types

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// UserLevels maps user ids to their explicit power level, persisted as JSON.
type UserLevels map[string]int

// Value marshals the map into JSON.
func (u UserLevels) Value() (driver.Value, error) {
	if u == nil {
		return "{}", nil
	}
	buf, err := json.Marshal(u)
	if err != nil {
		return nil, err
	}
	return string(buf), nil
}

// Scan decodes JSON into the map.
func (u *UserLevels) Scan(value interface{}) error {
	if value == nil {
		*u = UserLevels{}
		return nil
	}

	var raw []byte
	switch v := value.(type) {
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("user levels: unsupported scan type %T", value)
	}

	result := make(UserLevels)
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &result); err != nil {
			return err
		}
	}
	*u = result
	return nil
}

// Clone returns a copy safe to mutate.
func (u UserLevels) Clone() UserLevels {
	out := make(UserLevels, len(u))
	for k, v := range u {
		out[k] = v
	}
	return out
}
