// Package chatformat detects the vendor wire format of a traced call and
// converts its request and completion into the canonical chat schema.
package chatformat

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/n0madic/go-callview/internal/types"
)

// Format identifies the wire format a call's payload conforms to.
type Format int

const (
	None Format = iota
	OpenAI
	Anthropic
	Gemini
	Mistral
	OTEL
	OAIResponses
)

var formatNames = map[Format]string{
	None:         "none",
	OpenAI:       "openai",
	Anthropic:    "anthropic",
	Gemini:       "gemini",
	Mistral:      "mistral",
	OTEL:         "otel",
	OAIResponses: "oai_responses",
}

func (f Format) String() string {
	if name, ok := formatNames[f]; ok {
		return name
	}
	return fmt.Sprintf("format(%d)", int(f))
}

// ParseFormat is the inverse of Format.String.
func ParseFormat(s string) (Format, error) {
	for f, name := range formatNames {
		if name == s {
			return f, nil
		}
	}
	return None, fmt.Errorf("unknown chat format %q", s)
}

func (f Format) MarshalJSON() ([]byte, error) {
	return json.Marshal(f.String())
}

func (f *Format) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseFormat(s)
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}

// Priority is the order in which formats are tested. The first match wins, so
// more specific shapes come before the generic OpenAI shape they overlap with.
var Priority = []Format{OAIResponses, Anthropic, Mistral, OpenAI, Gemini, OTEL}

// view is a parsed call used by the predicates.
type view struct {
	call       *types.Call
	inputs     gjson.Result
	output     gjson.Result
	attributes gjson.Result
}

func newView(call *types.Call) view {
	return view{
		call:       call,
		inputs:     parse(call.Inputs),
		output:     parse(call.Output),
		attributes: parse(call.Attributes),
	}
}

// hasOutput is false for a missing or null output.
func (v view) hasOutput() bool {
	return v.output.Exists() && v.output.Type != gjson.Null
}

var detectors = map[Format]func(view) bool{
	OAIResponses: isResponsesCall,
	Anthropic:    isAnthropicCall,
	Mistral:      isMistralCall,
	OpenAI:       isOpenAICall,
	Gemini:       isGeminiCall,
	OTEL:         isOTELCall,
}

// Classify returns the chat format of the call, or None when the call is not
// chat shaped. It is total over any input.
func Classify(call *types.Call) Format {
	if call == nil {
		return None
	}
	v := newView(call)
	for _, f := range Priority {
		if detectors[f](v) {
			return f
		}
	}
	return None
}

// IsChat reports whether Classify finds any chat format.
func IsChat(call *types.Call) bool {
	return Classify(call) != None
}
