// Package tokens estimates prompt sizes of canonical requests.
package tokens

import (
	"sync"

	"github.com/tiktoken-go/tokenizer"

	"github.com/n0madic/go-callview/internal/types"
)

const (
	perMessage   = 3
	perName      = 1
	replyPriming = 3
	charsPerTok  = 4
)

var (
	codecOnce sync.Once
	codec     tokenizer.Codec
)

func encoder() tokenizer.Codec {
	codecOnce.Do(func() {
		c, err := tokenizer.Get(tokenizer.Cl100kBase)
		if err == nil {
			codec = c
		}
	})
	return codec
}

// Count returns the number of cl100k tokens in s, or a length based
// estimate when the encoder is unavailable.
func Count(s string) int {
	if s == "" {
		return 0
	}
	if enc := encoder(); enc != nil {
		if ids, _, err := enc.Encode(s); err == nil {
			return len(ids)
		}
	}
	return approx(s)
}

func approx(s string) int {
	n := (len([]rune(s)) + charsPerTok - 1) / charsPerTok
	if n == 0 {
		return 1
	}
	return n
}

// EstimateRequest approximates the prompt tokens a request consumes,
// following the chat completion accounting of per-message overhead.
func EstimateRequest(req *types.ChatRequest) int {
	if req == nil {
		return 0
	}
	total := 0
	for _, m := range req.Messages {
		total += perMessage + Count(m.Role)
		if m.Name != "" {
			total += perName + Count(m.Name)
		}
		total += countContent(m.Content)
		for _, tc := range m.ToolCalls {
			total += Count(tc.Function.Name) + Count(tc.Function.Arguments)
		}
	}
	for _, tool := range req.Tools {
		total += Count(tool.Function.Name) + Count(tool.Function.Description) + Count(string(tool.Function.Parameters))
	}
	if len(req.Messages) > 0 {
		total += replyPriming
	}
	return total
}

func countContent(c *types.Content) int {
	if c == nil {
		return 0
	}
	if !c.IsParts() {
		return Count(c.Text)
	}
	n := 0
	for _, p := range c.Parts {
		switch p.Type {
		case types.PartText:
			n += Count(p.Text)
		case types.PartToolUse:
			n += Count(p.Name) + Count(string(p.Input))
		case types.PartToolResult:
			n += Count(types.ToolResultText(p.Content))
		}
	}
	return n
}
