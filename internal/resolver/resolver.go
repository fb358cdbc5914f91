// Package resolver looks up the values behind reference strings found in
// call payloads.
package resolver

import (
	"context"
	"encoding/json"
	"fmt"
)

// Resolver fetches reference values. The returned slice is positionally
// aligned with uris; a nil entry means the reference could not be resolved.
type Resolver interface {
	ResolveRefs(ctx context.Context, uris []string) ([]json.RawMessage, error)
}

// Func adapts a function to the Resolver interface.
type Func func(ctx context.Context, uris []string) ([]json.RawMessage, error)

func (f Func) ResolveRefs(ctx context.Context, uris []string) ([]json.RawMessage, error) {
	return f(ctx, uris)
}

// Static resolves references from a fixed map. Used for offline replay and
// tests.
type Static map[string]json.RawMessage

func (s Static) ResolveRefs(_ context.Context, uris []string) ([]json.RawMessage, error) {
	out := make([]json.RawMessage, len(uris))
	for i, uri := range uris {
		if v, ok := s[uri]; ok {
			out[i] = v
		}
	}
	return out, nil
}

// ResolveMap resolves uris and zips the result into a map, leaving out
// references that came back unresolved.
func ResolveMap(ctx context.Context, r Resolver, uris []string) (map[string]json.RawMessage, error) {
	if len(uris) == 0 || r == nil {
		return map[string]json.RawMessage{}, nil
	}
	vals, err := r.ResolveRefs(ctx, uris)
	if err != nil {
		return map[string]json.RawMessage{}, err
	}
	if len(vals) != len(uris) {
		return map[string]json.RawMessage{}, fmt.Errorf("resolver returned %d values for %d refs", len(vals), len(uris))
	}
	out := make(map[string]json.RawMessage, len(uris))
	for i, uri := range uris {
		if v := vals[i]; len(v) > 0 {
			out[uri] = v
		}
	}
	return out, nil
}
