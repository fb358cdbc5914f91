package resolver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

const (
	// DefaultTimeout bounds a single read_batch round trip.
	DefaultTimeout = 30 * time.Second
	// DefaultBatchSize is the number of refs sent per read_batch request.
	DefaultBatchSize = 100
	// DefaultMaxRetries is the number of extra attempts for transient failures.
	DefaultMaxRetries = 2

	readBatchPath = "/refs/read_batch"
	tracerName    = "github.com/n0madic/go-callview/internal/resolver"
)

var retryBaseDelay = 200 * time.Millisecond

// HTTPConfig configures the trace server client.
type HTTPConfig struct {
	BaseURL     string
	APIKey      string // sent as basic auth password for user "api"
	BearerToken string // used instead of APIKey when set
	Timeout     time.Duration
	BatchSize   int
	MaxRetries  int
	UserAgent   string
}

// HTTP resolves references through the trace server's refs/read_batch
// endpoint.
type HTTP struct {
	cfg    HTTPConfig
	client *http.Client
	log    *zap.Logger
	tracer trace.Tracer
}

type readBatchRequest struct {
	Refs []string `json:"refs"`
}

type readBatchResponse struct {
	Vals []json.RawMessage `json:"vals"`
}

// NewHTTP creates a trace server resolver. log may be nil.
func NewHTTP(cfg HTTPConfig, log *zap.Logger) (*HTTP, error) {
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.BaseURL == "" {
		return nil, errors.New("trace server url is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if log == nil {
		log = zap.NewNop()
	}

	var transport http.RoundTripper = http.DefaultTransport
	if cfg.BearerToken != "" {
		transport = &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.BearerToken, TokenType: "Bearer"}),
			Base:   transport,
		}
	}
	return &HTTP{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout, Transport: transport},
		log:    log,
		tracer: otel.Tracer(tracerName),
	}, nil
}

// ResolveRefs fetches uris in batches. Any failed batch fails the whole call.
func (h *HTTP) ResolveRefs(ctx context.Context, uris []string) ([]json.RawMessage, error) {
	ctx, span := h.tracer.Start(ctx, "refs.read_batch",
		trace.WithAttributes(
			attribute.Int("refs.count", len(uris)),
			attribute.String("server.address", h.cfg.BaseURL),
		))
	defer span.End()

	out := make([]json.RawMessage, 0, len(uris))
	for start := 0; start < len(uris); start += h.cfg.BatchSize {
		end := min(start+h.cfg.BatchSize, len(uris))
		vals, err := h.readBatchWithRetry(ctx, uris[start:end])
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "read_batch failed")
			return nil, err
		}
		out = append(out, vals...)
	}
	return out, nil
}

func (h *HTTP) readBatchWithRetry(ctx context.Context, refs []string) ([]json.RawMessage, error) {
	var lastErr error
	for attempt := 0; attempt <= h.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := retryBaseDelay << (attempt - 1)
			h.log.Warn("refs.retry",
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
				zap.Error(lastErr))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}
		vals, err := h.readBatch(ctx, refs)
		if err == nil {
			return vals, nil
		}
		lastErr = err
		if !retryable(err) || ctx.Err() != nil {
			break
		}
	}
	return nil, lastErr
}

func retryable(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Temporary()
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

func (h *HTTP) readBatch(ctx context.Context, refs []string) ([]json.RawMessage, error) {
	body, err := json.Marshal(readBatchRequest{Refs: refs})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal read_batch request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.cfg.BaseURL+readBatchPath, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if h.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", h.cfg.UserAgent)
	}
	if h.cfg.BearerToken == "" && h.cfg.APIKey != "" {
		req.SetBasicAuth("api", h.cfg.APIKey)
	}

	started := time.Now()
	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("trace server request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read trace server response: %w", err)
	}
	h.log.Debug("refs.response",
		zap.Int("status", resp.StatusCode),
		zap.Int("refs", len(refs)),
		zap.Duration("elapsed", time.Since(started)))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(raw), RequestID: requestID(resp.Header)}
	}

	var decoded readBatchResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("failed to decode read_batch response: %w", err)
	}
	if len(decoded.Vals) != len(refs) {
		return nil, fmt.Errorf("read_batch returned %d values for %d refs", len(decoded.Vals), len(refs))
	}
	for i, v := range decoded.Vals {
		if bytes.Equal(bytes.TrimSpace(v), []byte("null")) {
			decoded.Vals[i] = nil
		}
	}
	return decoded.Vals, nil
}
