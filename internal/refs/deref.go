package refs

import (
	"bytes"
	"encoding/json"

	"github.com/tidwall/gjson"
)

// Deref returns a copy of value in which every string leaf that is a key of
// refMap is replaced by the mapped value. Object key order is preserved and a
// top-level reference is replaced directly. value itself is never modified.
func Deref(value json.RawMessage, refMap map[string]json.RawMessage) json.RawMessage {
	if value == nil {
		return nil
	}
	if len(refMap) == 0 || !gjson.ValidBytes(value) {
		return append(json.RawMessage(nil), value...)
	}
	var buf bytes.Buffer
	buf.Grow(len(value))
	rewrite(&buf, gjson.ParseBytes(value), refMap)
	return buf.Bytes()
}

func rewrite(buf *bytes.Buffer, res gjson.Result, refMap map[string]json.RawMessage) {
	switch {
	case res.Type == gjson.String:
		if v, ok := refMap[res.Str]; ok && len(v) > 0 && IsRef(res.Str) {
			buf.Write(v)
			return
		}
		buf.WriteString(res.Raw)
	case res.IsObject():
		buf.WriteByte('{')
		first := true
		res.ForEach(func(k, v gjson.Result) bool {
			if !first {
				buf.WriteByte(',')
			}
			first = false
			buf.WriteString(k.Raw)
			buf.WriteByte(':')
			rewrite(buf, v, refMap)
			return true
		})
		buf.WriteByte('}')
	case res.IsArray():
		buf.WriteByte('[')
		first := true
		res.ForEach(func(_, v gjson.Result) bool {
			if !first {
				buf.WriteByte(',')
			}
			first = false
			rewrite(buf, v, refMap)
			return true
		})
		buf.WriteByte(']')
	default:
		buf.WriteString(res.Raw)
	}
}
