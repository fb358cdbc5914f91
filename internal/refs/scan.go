package refs

import (
	"encoding/json"
	"sort"

	"github.com/tidwall/gjson"

	"github.com/n0madic/go-callview/internal/types"
)

// Collect returns the distinct reference strings found anywhere in the call's
// inputs and output, sorted.
func Collect(call *types.Call) []string {
	if call == nil {
		return nil
	}
	seen := make(map[string]struct{})
	for _, raw := range []json.RawMessage{call.Inputs, call.Output} {
		if len(raw) == 0 || !gjson.ValidBytes(raw) {
			continue
		}
		walk(gjson.ParseBytes(raw), func(s string) {
			seen[s] = struct{}{}
		})
	}
	if len(seen) == 0 {
		return nil
	}
	out := make([]string, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// IsRefArray reports whether raw is a non-empty array made only of reference
// strings.
func IsRefArray(raw json.RawMessage) bool {
	if len(raw) == 0 || !gjson.ValidBytes(raw) {
		return false
	}
	res := gjson.ParseBytes(raw)
	if !res.IsArray() {
		return false
	}
	n := 0
	all := true
	res.ForEach(func(_, v gjson.Result) bool {
		n++
		if v.Type != gjson.String || !IsRef(v.Str) {
			all = false
			return false
		}
		return true
	})
	return all && n > 0
}

func walk(res gjson.Result, visit func(string)) {
	switch {
	case res.Type == gjson.String:
		if IsRef(res.Str) {
			visit(res.Str)
		}
	case res.IsObject(), res.IsArray():
		res.ForEach(func(_, v gjson.Result) bool {
			walk(v, visit)
			return true
		})
	}
}
