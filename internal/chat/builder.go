// Package chat assembles the display chat for a traced call: it resolves the
// call's references, normalizes both sides and memoizes the result.
package chat

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/tidwall/gjson"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/n0madic/go-callview/internal/chatformat"
	"github.com/n0madic/go-callview/internal/memo"
	"github.com/n0madic/go-callview/internal/refs"
	"github.com/n0madic/go-callview/internal/resolver"
	"github.com/n0madic/go-callview/internal/types"
)

const tracerName = "github.com/n0madic/go-callview/internal/chat"

// Chat is the canonical chat derived from one call.
type Chat struct {
	Loading            bool                  `json:"loading"`
	Request            *types.ChatRequest    `json:"request"`
	Completion         *types.ChatCompletion `json:"completion"`
	IsStructuredOutput bool                  `json:"is_structured_output"`
	ResolveError       string                `json:"resolve_error,omitempty"`
}

// Builder derives chats. It is safe for concurrent use.
type Builder struct {
	resolver resolver.Resolver
	memo     *memo.Store[*Chat]
	log      *zap.Logger
	tracer   trace.Tracer
}

// Option configures a Builder.
type Option func(*builderOptions)

type builderOptions struct {
	log      *zap.Logger
	ttl      time.Duration
	capacity int
}

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) Option {
	return func(o *builderOptions) {
		if log != nil {
			o.log = log
		}
	}
}

// WithMemo bounds the derived chat cache.
func WithMemo(ttl time.Duration, capacity int) Option {
	return func(o *builderOptions) {
		o.ttl = ttl
		o.capacity = capacity
	}
}

// NewBuilder creates a Builder resolving references through r. r may be nil,
// in which case references are left unresolved.
func NewBuilder(r resolver.Resolver, opts ...Option) *Builder {
	o := builderOptions{log: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	return &Builder{
		resolver: r,
		memo:     memo.New[*Chat](o.ttl, o.capacity),
		log:      o.log,
		tracer:   otel.Tracer(tracerName),
	}
}

// Close releases the memo sweeper.
func (b *Builder) Close() {
	b.memo.Close()
}

// Build resolves the call's references and derives its chat. When
// resolution fails the returned chat is still usable: it is derived with
// the references left in place, carries ResolveError, and the error is
// returned alongside it. Returned chats are shared and must not be modified.
func (b *Builder) Build(ctx context.Context, call *types.Call) (*Chat, error) {
	if call == nil {
		return Derive(nil, nil), nil
	}

	uris := refs.Collect(call)
	ctx, span := b.tracer.Start(ctx, "chat.build",
		trace.WithAttributes(
			attribute.String("call.id", call.ID),
			attribute.Int("refs.count", len(uris)),
		))
	defer span.End()

	refMap, err := resolver.ResolveMap(ctx, b.resolver, uris)
	if err != nil {
		err = fmt.Errorf("failed to resolve %d refs: %w", len(uris), err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "resolve failed")
		b.log.Warn("chat.resolve_failed",
			zap.String("call_id", call.ID),
			zap.Int("refs", len(uris)),
			zap.Error(err))
		chat := Derive(call, nil)
		chat.ResolveError = err.Error()
		return chat, err
	}

	key := call.Digest() + ":" + valuesDigest(refMap)
	if chat, ok := b.memo.Get(key); ok {
		span.SetAttributes(attribute.Bool("chat.memo_hit", true))
		return chat, nil
	}

	chat := Derive(call, refMap)
	b.memo.Put(key, chat)
	b.log.Debug("chat.build",
		zap.String("call_id", call.ID),
		zap.Int("refs", len(uris)),
		zap.Int("resolved", len(refMap)),
		zap.Stringer("format", chatformat.Classify(call)))
	return chat, nil
}

// Derive computes the chat for a call from already resolved reference
// values. It is pure: the call and refMap are not modified.
func Derive(call *types.Call, refMap map[string]json.RawMessage) *Chat {
	chat := &Chat{IsStructuredOutput: chatformat.IsStructuredOutput(call)}
	if call == nil {
		chat.Request = chatformat.NormalizeRequest(nil)
		return chat
	}

	if chatformat.IsOTEL(call) {
		chat.Request = chatformat.NormalizeOTELRequest(call)
		if call.HasOutput() {
			chat.Completion = chatformat.NormalizeOTELCompletion(call, chat.Request)
		}
		return chat
	}

	chat.Request = chatformat.NormalizeRequest(refs.Deref(call.Inputs, refMap))
	if call.HasOutput() {
		output := refs.Deref(call.Output, refMap)
		chat.Completion = chatformat.NormalizeCompletion(chat.Request, output)
		// references inside choices are not resolved; hide them instead of
		// rendering raw ref strings
		if chat.Completion != nil && allChoicesAreRefs(output) {
			chat.Completion.Choices = []types.Choice{}
		}
	}
	return chat
}

func allChoicesAreRefs(output json.RawMessage) bool {
	choices := gjson.GetBytes(output, "choices")
	if !choices.IsArray() {
		return false
	}
	return refs.IsRefArray(json.RawMessage(choices.Raw))
}

// valuesDigest hashes the resolved set independent of map order.
func valuesDigest(refMap map[string]json.RawMessage) string {
	if len(refMap) == 0 {
		return ""
	}
	keys := make([]string, 0, len(refMap))
	for k := range refMap {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	h := sha256.New()
	for _, k := range keys {
		h.Write([]byte(k))
		h.Write([]byte{0})
		h.Write(refMap[k])
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
