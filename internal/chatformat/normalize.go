package chatformat

import (
	"encoding/json"

	"github.com/tidwall/gjson"

	"github.com/n0madic/go-callview/internal/types"
)

// NormalizeRequest converts a recorded request body into the canonical
// request. Unrecognised shapes are read leniently as OpenAI requests; the
// result is never nil.
func NormalizeRequest(raw json.RawMessage) *types.ChatRequest {
	req := parse(raw)
	switch {
	case isGeminiRequest(req):
		return normalizeGeminiRequest(req)
	case isResponsesRequest(req):
		return normalizeResponsesRequest(req)
	case isAnthropicRequest(req):
		return normalizeAnthropicRequest(req)
	case isOTELValue(req):
		if out := otelRequest(newSpanAttrs(req)); out != nil {
			return out
		}
	}
	return decodeOpenAIRequest(req)
}

// NormalizeCompletion converts a recorded response body into the canonical
// completion. req is the already normalized request of the same call and may
// be nil; some formats take the model name from it. Span attributes without a
// request yield nil, every other shape a non-nil completion.
func NormalizeCompletion(req *types.ChatRequest, raw json.RawMessage) *types.ChatCompletion {
	out := parse(raw)
	switch {
	case isAnthropicCompletion(out):
		return normalizeAnthropicCompletion(out)
	case isGeminiCompletion(out):
		return normalizeGeminiCompletion(req, out)
	case isMistralCompletion(out):
		return normalizeMistralCompletion(req, out)
	case isOTELValue(out):
		return otelCompletion(newSpanAttrs(out), req)
	case isResponsesResult(out):
		return normalizeResponsesResult(out)
	}
	return decodeOpenAICompletion(out)
}

// IsOTEL reports whether the call is an exported OpenTelemetry span. Such
// calls are normalized from their span attributes instead of inputs/output.
func IsOTEL(call *types.Call) bool {
	return call != nil && isOTELCall(newView(call))
}

// NormalizeOTELRequest derives the request from a span's prompt attributes.
// It returns nil when the span carries no prompt.
func NormalizeOTELRequest(call *types.Call) *types.ChatRequest {
	if call == nil {
		return nil
	}
	return otelRequest(callSpanAttrs(newView(call)))
}

// NormalizeOTELCompletion derives the completion from a span's completion
// attributes. It returns nil when req is nil.
func NormalizeOTELCompletion(call *types.Call, req *types.ChatRequest) *types.ChatCompletion {
	if call == nil {
		return nil
	}
	return otelCompletion(callSpanAttrs(newView(call)), req)
}

// NormalizeTraceCall returns a copy of the call whose inputs and output are
// replaced by the canonical request and completion. Calls without both
// inputs and output, and spans with no recoverable prompt, come back as is.
func NormalizeTraceCall(call *types.Call) *types.Call {
	if !call.HasOutput() || !call.HasInputs() {
		return call
	}

	var (
		req  *types.ChatRequest
		comp *types.ChatCompletion
	)
	if IsOTEL(call) {
		req = NormalizeOTELRequest(call)
		if req == nil {
			return call
		}
		comp = NormalizeOTELCompletion(call, req)
	} else {
		req = NormalizeRequest(call.Inputs)
		comp = NormalizeCompletion(req, call.Output)
	}

	out := call.Clone()
	out.Inputs = types.MustJSON(req)
	out.Output = types.MustJSON(comp)
	return out
}

// IsStructuredOutput reports whether the call asked for a JSON-schema
// constrained response.
func IsStructuredOutput(call *types.Call) bool {
	if call == nil {
		return false
	}
	rf := parse(call.Inputs).Get("response_format")
	return rf.IsObject() &&
		rf.Get("type").Type == gjson.String && rf.Get("type").Str == "json_schema" &&
		rf.Get("json_schema").IsObject()
}

// IsAnthropicCompletion reports whether raw is an Anthropic Messages
// response body.
func IsAnthropicCompletion(raw json.RawMessage) bool {
	return isAnthropicCompletion(parse(raw))
}
