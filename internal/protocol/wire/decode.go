package wire

import (
	"fmt"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// RawMessage is a raw encoded JSON value whose decoding is deferred.
type RawMessage = jsoniter.RawMessage

// Decode converts a Socket.IO event argument into a typed payload.
//
// The socket client hands over decoded JSON (map[string]any); raw JSON bytes
// and strings are accepted too.
func Decode(arg any, out any) error {
	if arg == nil {
		return fmt.Errorf("decode %T: empty payload", out)
	}
	var raw []byte
	switch v := arg.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("encode %T: %w", arg, err)
		}
		raw = data
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %T: %w", out, err)
	}
	return nil
}

// Marshal encodes a payload with the same codec Decode uses.
func Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

// Unmarshal decodes a payload with the same codec Decode uses.
func Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}
