package configstore

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"strings"

	"github.com/rendis/fastconfig/pkg/schema"
)

// NormalizeContent parses raw as a JSON object and flattens every value to
// a string: strings verbatim, numbers by their literal text, booleans as
// true/false, null as "", arrays and objects as compact JSON.
func NormalizeContent(raw []byte) (map[string]string, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, schema.NewError(schema.ErrCodeBadRequest, "content must be object")
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return nil, schema.NewError(schema.ErrCodeBadRequest, "content must be object")
	}
	obj, ok := doc.(map[string]any)
	if !ok {
		return nil, schema.NewError(schema.ErrCodeBadRequest, "content must be object")
	}

	out := make(map[string]string, len(obj))
	for k, v := range obj {
		s, err := stringify(v)
		if err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeBadRequest, "content value for %q: %v", k, err)
		}
		out[k] = s
	}
	return out, nil
}

func stringify(v any) (string, error) {
	switch t := v.(type) {
	case nil:
		return "", nil
	case string:
		return t, nil
	case json.Number:
		return t.String(), nil
	case bool:
		if t {
			return "true", nil
		}
		return "false", nil
	default:
		return encodeJSON(t, "")
	}
}

func encodeJSON(v any, indent string) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if indent != "" {
		enc.SetIndent("", indent)
	}
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

// EncodeContent serializes a flat map as stored content: indented JSON with
// sorted keys, one key per line.
func EncodeContent(m map[string]string) (string, error) {
	if m == nil {
		m = map[string]string{}
	}
	s, err := encodeJSON(m, "  ")
	if err != nil {
		return "", schema.NewError(schema.ErrCodeInternal, "encode content").WithCause(err)
	}
	return s, nil
}

// DecodeContent parses stored content for serving.
func DecodeContent(content string) (map[string]any, error) {
	var out map[string]any
	if err := json.Unmarshal([]byte(content), &out); err != nil {
		return nil, err
	}
	if out == nil {
		return nil, errors.New("content is not an object")
	}
	return out, nil
}
