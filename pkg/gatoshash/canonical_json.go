package gatoshash

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"unicode/utf8"

	"github.com/gatos-project/gatos/pkg/gatoserr"
)

// CanonicalJSON encodes v as canonical JSON (spec §4.1 canonical_json):
// object keys are sorted lexicographically and recursively, arrays
// preserve order, strings must be valid UTF-8, and floats that cannot
// round-trip (NaN, +/-Inf) are rejected. Adapted from the teacher's RFC
// 8785 encoder (pkg/canonicalize.JCS): same recursive marshal-after-decode
// strategy, extended with the UTF-8 and NaN/Inf checks spec §4.1 requires.
func CanonicalJSON(v interface{}) ([]byte, error) {
	intermediate, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: pre-marshal failed: %v", gatoserr.ErrEncode, err)
	}

	var generic interface{}
	decoder := json.NewDecoder(bytes.NewReader(intermediate))
	decoder.UseNumber()
	if err := decoder.Decode(&generic); err != nil {
		return nil, fmt.Errorf("%w: intermediate decode failed: %v", gatoserr.ErrEncode, err)
	}

	return canonicalMarshal(generic)
}

func canonicalMarshal(v interface{}) ([]byte, error) {
	switch t := v.(type) {
	case nil:
		return []byte("null"), nil
	case bool:
		if t {
			return []byte("true"), nil
		}
		return []byte("false"), nil
	case json.Number:
		return canonicalNumber(t)
	case string:
		if !utf8.ValidString(t) {
			return nil, fmt.Errorf("%w: string is not valid UTF-8", gatoserr.ErrEncode)
		}
		return canonicalString(t)
	case []interface{}:
		var buf bytes.Buffer
		buf.WriteByte('[')
		for i, elem := range t {
			if i > 0 {
				buf.WriteByte(',')
			}
			b, err := canonicalMarshal(elem)
			if err != nil {
				return nil, err
			}
			buf.Write(b)
		}
		buf.WriteByte(']')
		return buf.Bytes(), nil
	case map[string]interface{}:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		var buf bytes.Buffer
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			kb, err := canonicalString(k)
			if err != nil {
				return nil, err
			}
			buf.Write(kb)
			buf.WriteByte(':')
			vb, err := canonicalMarshal(t[k])
			if err != nil {
				return nil, err
			}
			buf.Write(vb)
		}
		buf.WriteByte('}')
		return buf.Bytes(), nil
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return nil, fmt.Errorf("%w: NaN/Inf cannot round-trip through canonical JSON", gatoserr.ErrEncode)
		}
		return canonicalMarshal(json.Number(formatFloat(t)))
	default:
		return nil, fmt.Errorf("%w: unsupported type %T", gatoserr.ErrEncode, v)
	}
}

func canonicalString(s string) ([]byte, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", gatoserr.ErrEncode, err)
	}
	return b, nil
}

func canonicalNumber(n json.Number) ([]byte, error) {
	// json.Number preserves the exact textual form the caller supplied, so
	// no reformatting is needed or desired here.
	return []byte(n.String()), nil
}

func formatFloat(f float64) string {
	return json.Number(fmt.Sprintf("%g", f)).String()
}
