package rpc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// ID is a JSON-RPC request id. It is either an integer or a string; the two
// forms never compare equal, so 1 and "1" are distinct ids.
type ID struct {
	name     string
	number   int64
	isString bool
}

// NumberID returns an integer id.
func NumberID(n int64) ID {
	return ID{number: n}
}

// StringID returns a string id.
func StringID(s string) ID {
	return ID{name: s, isString: true}
}

// IsString reports whether the id is a string id.
func (id ID) IsString() bool { return id.isString }

// String returns the id formatted for logs.
func (id ID) String() string {
	if id.isString {
		return strconv.Quote(id.name)
	}
	return strconv.FormatInt(id.number, 10)
}

// Key returns a map key that keeps numeric and string ids apart.
func (id ID) Key() string {
	if id.isString {
		return "s:" + id.name
	}
	return "n:" + strconv.FormatInt(id.number, 10)
}

// MarshalJSON implements json.Marshaler.
func (id ID) MarshalJSON() ([]byte, error) {
	if id.isString {
		return json.Marshal(id.name)
	}
	return []byte(strconv.FormatInt(id.number, 10)), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = StringID(s)
		return nil
	}

	n, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return fmt.Errorf("rpc: id must be an integer or a string, got %s", data)
	}
	*id = NumberID(n)
	return nil
}
