package playground

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	anthropicoption "github.com/anthropics/anthropic-sdk-go/option"
	"github.com/openai/openai-go/v3"
	openaioption "github.com/openai/openai-go/v3/option"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/n0madic/go-callview/internal/chatformat"
	"github.com/n0madic/go-callview/internal/models"
	"github.com/n0madic/go-callview/internal/types"
)

const tracerName = "github.com/n0madic/go-callview/internal/playground"

var (
	// ErrUnknownProvider is returned when no provider can serve the model.
	ErrUnknownProvider = errors.New("unknown model provider")
	// ErrProviderNotConfigured is returned when the provider has no API key.
	ErrProviderNotConfigured = errors.New("model provider is not configured")
)

// ProviderConfig holds the endpoint and credentials of one provider. An
// empty BaseURL selects the SDK default.
type ProviderConfig struct {
	BaseURL string
	APIKey  string
}

// Config configures a Runner.
type Config struct {
	OpenAI     ProviderConfig
	Anthropic  ProviderConfig
	Gemini     ProviderConfig
	HTTPClient *http.Client
}

// Runner replays playground states against the model providers.
type Runner struct {
	cfg    Config
	log    *zap.Logger
	tracer trace.Tracer
}

// NewRunner creates a Runner. log may be nil.
func NewRunner(cfg Config, log *zap.Logger) *Runner {
	if log == nil {
		log = zap.NewNop()
	}
	return &Runner{cfg: cfg, log: log, tracer: otel.Tracer(tracerName)}
}

// Run sends the state's request to the provider serving its model and
// returns the normalized completion.
func (r *Runner) Run(ctx context.Context, state State) (*types.ChatCompletion, error) {
	provider := models.ProviderFor(state.Model)
	if provider == "" {
		return nil, fmt.Errorf("%w for model %q", ErrUnknownProvider, state.Model)
	}

	ctx, span := r.tracer.Start(ctx, "playground.run",
		trace.WithAttributes(
			attribute.String("gen_ai.request.model", state.Model),
			attribute.String("gen_ai.system", string(provider)),
		))
	defer span.End()

	inputs := Inputs(state)
	req := chatformat.NormalizeRequest(types.MustJSON(inputs))

	var (
		raw json.RawMessage
		err error
	)
	switch provider {
	case models.ProviderOpenAI:
		raw, err = r.runOpenAI(ctx, inputs)
	case models.ProviderAnthropic:
		raw, err = r.runAnthropic(ctx, state, req)
	case models.ProviderGemini:
		raw, err = r.runGemini(ctx, state, req)
	default:
		err = fmt.Errorf("%w: %s", ErrUnknownProvider, provider)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "playground run failed")
		r.log.Warn("playground.run_failed",
			zap.String("model", state.Model),
			zap.String("provider", string(provider)),
			zap.Error(err))
		return nil, err
	}

	comp := chatformat.NormalizeCompletion(req, raw)
	r.log.Info("playground.run",
		zap.String("model", state.Model),
		zap.String("provider", string(provider)),
		zap.Int("choices", len(comp.Choices)),
		zap.Bool("track_llm_call", state.TrackLLMCall))
	return comp, nil
}

func (r *Runner) runOpenAI(ctx context.Context, inputs map[string]any) (json.RawMessage, error) {
	pc := r.cfg.OpenAI
	if pc.APIKey == "" {
		return nil, fmt.Errorf("openai: %w", ErrProviderNotConfigured)
	}
	opts := []openaioption.RequestOption{openaioption.WithAPIKey(pc.APIKey)}
	if pc.BaseURL != "" {
		opts = append(opts, openaioption.WithBaseURL(strings.TrimSuffix(pc.BaseURL, "/")+"/"))
	}
	if r.cfg.HTTPClient != nil {
		opts = append(opts, openaioption.WithHTTPClient(r.cfg.HTTPClient))
	}
	client := openai.NewClient(opts...)

	body := make(map[string]any, len(inputs))
	for k, v := range inputs {
		if k != "key" {
			body[k] = v
		}
	}
	var raw []byte
	if err := client.Post(ctx, "chat/completions", body, &raw); err != nil {
		return nil, fmt.Errorf("openai chat completion failed: %w", err)
	}
	return raw, nil
}

func (r *Runner) runAnthropic(ctx context.Context, state State, req *types.ChatRequest) (json.RawMessage, error) {
	pc := r.cfg.Anthropic
	if pc.APIKey == "" {
		return nil, fmt.Errorf("anthropic: %w", ErrProviderNotConfigured)
	}
	opts := []anthropicoption.RequestOption{anthropicoption.WithAPIKey(pc.APIKey)}
	if pc.BaseURL != "" {
		opts = append(opts, anthropicoption.WithBaseURL(strings.TrimSuffix(pc.BaseURL, "/")+"/"))
	}
	if r.cfg.HTTPClient != nil {
		opts = append(opts, anthropicoption.WithHTTPClient(r.cfg.HTTPClient))
	}
	client := anthropic.NewClient(opts...)

	var raw []byte
	if err := client.Post(ctx, "v1/messages", anthropicBody(state, req), &raw); err != nil {
		return nil, fmt.Errorf("anthropic messages request failed: %w", err)
	}
	return raw, nil
}

func (r *Runner) runGemini(ctx context.Context, state State, req *types.ChatRequest) (json.RawMessage, error) {
	pc := r.cfg.Gemini
	if pc.APIKey == "" {
		return nil, fmt.Errorf("gemini: %w", ErrProviderNotConfigured)
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      pc.APIKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPClient:  r.cfg.HTTPClient,
		HTTPOptions: genai.HTTPOptions{BaseURL: pc.BaseURL},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	contents, config := geminiRequest(state, req)
	resp, err := client.Models.GenerateContent(ctx, bareModel(state.Model), contents, config)
	if err != nil {
		return nil, fmt.Errorf("gemini generate content failed: %w", err)
	}
	raw, err := json.Marshal(resp)
	if err != nil {
		return nil, fmt.Errorf("failed to encode gemini response: %w", err)
	}
	return raw, nil
}

// bareModel strips a routing prefix such as "gemini/".
func bareModel(model string) string {
	if i := strings.LastIndex(model, "/"); i >= 0 {
		return model[i+1:]
	}
	return model
}
