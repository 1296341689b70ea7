package encryption

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// valueJSON is the plaintext sealed inside an envelope. The type tag lets
// Decrypt hand back the same Go type the caller wrote.
type valueJSON struct {
	Type string          `json:"t"`
	S    *string         `json:"s,omitempty"`
	J    json.RawMessage `json:"j,omitempty"`
}

func encodeValue(v any) ([]byte, error) {
	enc, err := marshalValue(v)
	if err != nil {
		return nil, err
	}
	out, err := json.Marshal(enc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode value: %w", err)
	}
	return out, nil
}

func marshalValue(v any) (valueJSON, error) {
	str := func(t, s string) (valueJSON, error) { return valueJSON{Type: t, S: &s}, nil }

	switch x := v.(type) {
	case nil:
		return valueJSON{Type: "null"}, nil
	case string:
		return str("s", x)
	case bool:
		return str("bool", strconv.FormatBool(x))
	case int:
		return str("i", strconv.FormatInt(int64(x), 10))
	case int32:
		return str("i", strconv.FormatInt(int64(x), 10))
	case int64:
		return str("i", strconv.FormatInt(x, 10))
	case float32:
		return str("f", strconv.FormatFloat(float64(x), 'g', -1, 32))
	case float64:
		return str("f", strconv.FormatFloat(x, 'g', -1, 64))
	case []byte:
		return str("b", base64.StdEncoding.EncodeToString(x))
	case time.Time:
		return str("ts", x.UTC().Format(time.RFC3339Nano))
	}

	raw, err := json.Marshal(v)
	if err != nil {
		return valueJSON{}, fmt.Errorf("unsupported value type %T: %w", v, err)
	}
	return valueJSON{Type: "json", J: raw}, nil
}

func decodeValue(data []byte) (any, error) {
	var enc valueJSON
	if err := json.Unmarshal(data, &enc); err != nil {
		return nil, fmt.Errorf("failed to decode value: %w", err)
	}

	if enc.Type == "null" {
		return nil, nil
	}
	if enc.Type == "json" {
		var out any
		if err := json.Unmarshal(enc.J, &out); err != nil {
			return nil, fmt.Errorf("failed to decode value: %w", err)
		}
		return out, nil
	}
	if enc.S == nil {
		return nil, fmt.Errorf("failed to decode value: missing payload for type %q", enc.Type)
	}

	s := *enc.S
	switch enc.Type {
	case "s":
		return s, nil
	case "bool":
		return strconv.ParseBool(s)
	case "i":
		return strconv.ParseInt(s, 10, 64)
	case "f":
		return strconv.ParseFloat(s, 64)
	case "b":
		return base64.StdEncoding.DecodeString(s)
	case "ts":
		return time.Parse(time.RFC3339Nano, s)
	}
	return nil, fmt.Errorf("failed to decode value: unknown type %q", enc.Type)
}
