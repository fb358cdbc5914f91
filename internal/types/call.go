package types

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// Call is a single traced execution as recorded by the trace server.
// Inputs and Output are kept as raw JSON; every consumer treats them as read-only.
type Call struct {
	ID         string          `json:"id,omitempty"`
	ProjectID  string          `json:"project_id,omitempty"`
	OpName     string          `json:"op_name,omitempty"`
	TraceID    string          `json:"trace_id,omitempty"`
	Inputs     json.RawMessage `json:"inputs,omitempty"`
	Output     json.RawMessage `json:"output,omitempty"`
	Attributes json.RawMessage `json:"attributes,omitempty"`
	Summary    json.RawMessage `json:"summary,omitempty"`
}

// HasInputs reports whether the call carries a non-null inputs value.
func (c *Call) HasInputs() bool {
	return c != nil && present(c.Inputs)
}

// HasOutput reports whether the call carries a non-null output value.
func (c *Call) HasOutput() bool {
	return c != nil && present(c.Output)
}

// Digest is a stable content hash of the call's JSON payload.
func (c *Call) Digest() string {
	if c == nil {
		return ""
	}
	h := sha256.New()
	for _, part := range [][]byte{[]byte(c.ID), c.Inputs, c.Output, c.Attributes} {
		h.Write(compact(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Clone returns a deep copy so callers can rewrite fields without aliasing.
func (c *Call) Clone() *Call {
	if c == nil {
		return nil
	}
	out := *c
	out.Inputs = cloneRaw(c.Inputs)
	out.Output = cloneRaw(c.Output)
	out.Attributes = cloneRaw(c.Attributes)
	out.Summary = cloneRaw(c.Summary)
	return &out
}

func present(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null"))
}

func compact(raw []byte) []byte {
	if len(raw) == 0 {
		return nil
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return raw
	}
	return buf.Bytes()
}

func cloneRaw(raw json.RawMessage) json.RawMessage {
	if raw == nil {
		return nil
	}
	return append(json.RawMessage(nil), raw...)
}
