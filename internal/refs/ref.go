// Package refs recognises object-reference placeholders inside call payloads
// and substitutes resolved values for them.
package refs

import (
	"errors"
	"fmt"
	"strings"
)

const (
	// Prefix is the scheme prefix of public references.
	Prefix = "weave:///"
	// InternalPrefix is the scheme prefix of project-id scoped references.
	InternalPrefix = "weave-trace-internal:///"
)

// Reference kinds.
const (
	KindObject = "object"
	KindOp     = "op"
	KindTable  = "table"
	KindCall   = "call"
)

// ErrNotRef is returned by Parse for strings that are not references.
var ErrNotRef = errors.New("not a reference")

// Ref is a parsed reference string.
type Ref struct {
	Internal  bool
	Entity    string
	Project   string
	ProjectID string
	Kind      string
	Name      string
	Digest    string
	Extra     []string
}

// IsRef reports whether s is a reference placeholder.
func IsRef(s string) bool {
	rest, ok := trimScheme(s)
	return ok && rest != ""
}

// Parse splits a reference string into its components.
func Parse(s string) (*Ref, error) {
	rest, ok := trimScheme(s)
	if !ok || rest == "" {
		return nil, fmt.Errorf("%q: %w", s, ErrNotRef)
	}
	segs := strings.Split(rest, "/")

	r := &Ref{Internal: strings.HasPrefix(s, InternalPrefix)}
	if r.Internal {
		r.ProjectID = segs[0]
		segs = segs[1:]
	} else {
		if len(segs) < 2 {
			return nil, fmt.Errorf("%q: missing entity or project: %w", s, ErrNotRef)
		}
		r.Entity, r.Project = segs[0], segs[1]
		segs = segs[2:]
	}
	if len(segs) < 2 || segs[1] == "" {
		return nil, fmt.Errorf("%q: missing kind or name: %w", s, ErrNotRef)
	}
	r.Kind = segs[0]

	switch r.Kind {
	case KindObject, KindOp:
		name, digest, found := strings.Cut(segs[1], ":")
		if !found || name == "" || digest == "" {
			return nil, fmt.Errorf("%q: expected name:digest: %w", s, ErrNotRef)
		}
		r.Name, r.Digest = name, digest
	case KindTable:
		r.Digest = segs[1]
	case KindCall:
		r.Name = segs[1]
	default:
		return nil, fmt.Errorf("%q: unknown kind %q: %w", s, r.Kind, ErrNotRef)
	}
	if len(segs) > 2 {
		r.Extra = append([]string(nil), segs[2:]...)
	}
	return r, nil
}

// String renders the reference back to its canonical form.
func (r *Ref) String() string {
	var b strings.Builder
	if r.Internal {
		b.WriteString(InternalPrefix)
		b.WriteString(r.ProjectID)
	} else {
		b.WriteString(Prefix)
		b.WriteString(r.Entity)
		b.WriteByte('/')
		b.WriteString(r.Project)
	}
	b.WriteByte('/')
	b.WriteString(r.Kind)
	b.WriteByte('/')
	switch r.Kind {
	case KindTable:
		b.WriteString(r.Digest)
	case KindCall:
		b.WriteString(r.Name)
	default:
		b.WriteString(r.Name)
		b.WriteByte(':')
		b.WriteString(r.Digest)
	}
	for _, e := range r.Extra {
		b.WriteByte('/')
		b.WriteString(e)
	}
	return b.String()
}

func trimScheme(s string) (string, bool) {
	if rest, ok := strings.CutPrefix(s, Prefix); ok {
		return rest, true
	}
	return strings.CutPrefix(s, InternalPrefix)
}
