package chatformat

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/n0madic/go-callview/internal/types"
)

func parse(raw json.RawMessage) gjson.Result {
	if len(raw) == 0 || !gjson.ValidBytes(raw) {
		return gjson.Result{}
	}
	return gjson.ParseBytes(raw)
}

// first returns the first existing, non-null field among keys. Used to accept
// both camelCase and snake_case spellings.
func first(obj gjson.Result, keys ...string) gjson.Result {
	for _, k := range keys {
		if r := obj.Get(escapeKey(k)); r.Exists() && r.Type != gjson.Null {
			return r
		}
	}
	return gjson.Result{}
}

// escapeKey escapes gjson path metacharacters in a single object key.
func escapeKey(k string) string {
	if !strings.ContainsAny(k, ".*?|#@\\") {
		return k
	}
	var b strings.Builder
	for _, r := range k {
		switch r {
		case '.', '*', '?', '|', '#', '@', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

func isString(r gjson.Result) bool { return r.Type == gjson.String }

func isNumber(r gjson.Result) bool { return r.Type == gjson.Number }

func isObjectOrAbsent(r gjson.Result) bool {
	return !r.Exists() || r.Type == gjson.Null || r.IsObject()
}

func floatPtr(r gjson.Result) *float64 {
	if !isNumber(r) {
		return nil
	}
	return types.Float64Ptr(r.Float())
}

func intPtr(r gjson.Result) *int {
	if !isNumber(r) {
		return nil
	}
	return types.IntPtr(int(r.Int()))
}

// numberOrZero reads an integer count, treating anything non-numeric as 0.
func numberOrZero(r gjson.Result) int {
	if !isNumber(r) {
		return 0
	}
	return int(r.Int())
}

func stringPtr(r gjson.Result) *string {
	if !isString(r) {
		return nil
	}
	return types.StringPtr(r.Str)
}

// stringList accepts a single string or an array of strings.
func stringList(r gjson.Result) []string {
	if isString(r) {
		return []string{r.Str}
	}
	if !r.IsArray() {
		return nil
	}
	var out []string
	for _, s := range r.Array() {
		if isString(s) {
			out = append(out, s.Str)
		}
	}
	return out
}

// rawJSON returns the value as compact JSON, or nil when absent.
func rawJSON(r gjson.Result) json.RawMessage {
	if !r.Exists() {
		return nil
	}
	return json.RawMessage(r.Raw)
}

// argumentsString renders tool call arguments, which arrive either as a JSON
// encoded string or as an object, into the string form used on the wire.
func argumentsString(r gjson.Result) string {
	switch {
	case !r.Exists() || r.Type == gjson.Null:
		return "{}"
	case isString(r):
		return r.Str
	default:
		return r.Raw
	}
}

// textOrRaw returns string leaves as-is and anything else as raw JSON.
func textOrRaw(r gjson.Result) string {
	if isString(r) {
		return r.Str
	}
	return r.Raw
}

func compactString(raw json.RawMessage) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	return buf.String()
}
