package crypto

import (
	"bytes"
	"encoding/json"
	"errors"
	"sort"
	"strconv"

	"golang.org/x/text/unicode/norm"
)

var (
	ErrUnsupportedType = errors.New("unsupported type in canonical encoding")
	ErrKeyCollision    = errors.New("canonical key collision after normalization")
)

// Canonicalize encodes v as canonical JSON: object keys sorted, strings
// NFC-normalized, no insignificant whitespace. Two semantically equal values
// always produce identical bytes, which makes the encoding safe to digest.
func Canonicalize(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeValue(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeValue(buf *bytes.Buffer, v any) error {
	switch value := v.(type) {
	case nil:
		buf.WriteString("null")
		return nil
	case string:
		return writeString(buf, value)
	case bool:
		buf.WriteString(strconv.FormatBool(value))
		return nil
	case int:
		buf.WriteString(strconv.FormatInt(int64(value), 10))
		return nil
	case int64:
		buf.WriteString(strconv.FormatInt(value, 10))
		return nil
	case map[string]any:
		return writeMap(buf, value)
	case []any:
		return writeSlice(buf, value)
	case []string:
		out := make([]any, len(value))
		for i, s := range value {
			out[i] = s
		}
		return writeSlice(buf, out)
	default:
		return ErrUnsupportedType
	}
}

func writeString(buf *bytes.Buffer, s string) error {
	encoded, err := json.Marshal(norm.NFC.String(s))
	if err != nil {
		return err
	}
	buf.Write(encoded)
	return nil
}

func writeMap(buf *bytes.Buffer, m map[string]any) error {
	keys := make([]string, 0, len(m))
	seen := map[string]struct{}{}
	normalized := make(map[string]any, len(m))
	for key, value := range m {
		key = norm.NFC.String(key)
		if _, ok := seen[key]; ok {
			return ErrKeyCollision
		}
		seen[key] = struct{}{}
		keys = append(keys, key)
		normalized[key] = value
	}
	sort.Strings(keys)

	buf.WriteByte('{')
	for i, key := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := writeString(buf, key); err != nil {
			return err
		}
		buf.WriteByte(':')
		if err := writeValue(buf, normalized[key]); err != nil {
			return err
		}
	}
	buf.WriteByte('}')
	return nil
}

func writeSlice(buf *bytes.Buffer, values []any) error {
	buf.WriteByte('[')
	for i, value := range values {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := writeValue(buf, value); err != nil {
			return err
		}
	}
	buf.WriteByte(']')
	return nil
}
