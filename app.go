package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/n0madic/go-callview/internal/chat"
	"github.com/n0madic/go-callview/internal/config"
	"github.com/n0madic/go-callview/internal/logging"
	"github.com/n0madic/go-callview/internal/playground"
	"github.com/n0madic/go-callview/internal/resolver"
	"github.com/n0madic/go-callview/internal/types"
)

// playgroundTimeout bounds one provider round trip of a playground run.
const playgroundTimeout = 2 * time.Minute

// app carries the wiring shared by every subcommand.
type app struct {
	cfg     *config.Config
	log     *zap.Logger
	closers []func()
}

func newApp(opts *rootOptions) (*app, error) {
	v := config.New()
	if opts.logLevel != "" {
		v.Set("log.level", opts.logLevel)
	}
	cfg, err := config.Load(v, opts.configFile)
	if err != nil {
		return nil, err
	}
	log, err := logging.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		return nil, err
	}
	return &app{cfg: cfg, log: log}, nil
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	_ = a.log.Sync()
}

// resolver returns the reference resolver for this run: a static map when
// refsFile is given, otherwise the configured trace server behind a cache.
// A nil result means references stay unresolved.
func (a *app) resolver(ctx context.Context, refsFile string) (resolver.Resolver, error) {
	if refsFile != "" {
		data, err := os.ReadFile(refsFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read refs file: %w", err)
		}
		var static resolver.Static
		if err := json.Unmarshal(data, &static); err != nil {
			return nil, fmt.Errorf("failed to parse refs file %s: %w", refsFile, err)
		}
		return static, nil
	}

	ts := a.cfg.TraceServer
	if ts.URL == "" {
		a.log.Info("refs.resolver_disabled", zap.String("reason", "trace_server.url is empty"))
		return nil, nil
	}
	backend, err := resolver.NewHTTP(resolver.HTTPConfig{
		BaseURL:     ts.URL,
		APIKey:      ts.APIKey,
		BearerToken: ts.BearerToken,
		Timeout:     ts.Timeout,
		BatchSize:   ts.BatchSize,
		MaxRetries:  ts.MaxRetries,
		UserAgent:   config.UserAgent(),
	}, a.log)
	if err != nil {
		return nil, err
	}

	cc := a.cfg.Cache
	if cc.RedisAddr != "" {
		rc, err := resolver.NewRedisCache(ctx, resolver.RedisConfig{
			Addr:     cc.RedisAddr,
			Password: cc.RedisPassword,
			DB:       cc.RedisDB,
			TTL:      cc.TTL,
		})
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = rc.Close() })
		a.log.Info("refs.cache", zap.String("backend", "redis"), zap.String("addr", cc.RedisAddr))
		return resolver.NewCaching(backend, rc, a.log), nil
	}
	mc := resolver.NewMemoryCache(cc.TTL, cc.Capacity)
	a.closers = append(a.closers, mc.Close)
	return resolver.NewCaching(backend, mc, a.log), nil
}

func (a *app) builder(r resolver.Resolver) *chat.Builder {
	b := chat.NewBuilder(r, chat.WithLogger(a.log), chat.WithMemo(a.cfg.Cache.TTL, a.cfg.Cache.Capacity))
	a.closers = append(a.closers, b.Close)
	return b
}

func (a *app) runner() *playground.Runner {
	pc := a.cfg.Playground
	return playground.NewRunner(playground.Config{
		OpenAI:     playground.ProviderConfig{BaseURL: pc.OpenAIBaseURL, APIKey: pc.OpenAIAPIKey},
		Anthropic:  playground.ProviderConfig{BaseURL: pc.AnthropicBaseURL, APIKey: pc.AnthropicAPIKey},
		Gemini:     playground.ProviderConfig{BaseURL: pc.GeminiBaseURL, APIKey: pc.GeminiAPIKey},
		HTTPClient: &http.Client{Timeout: playgroundTimeout},
	}, a.log)
}

// readCall decodes a call from path, or from stdin when path is empty or
// "-". Both a bare call and a {"call": ...} envelope are accepted.
func readCall(path string, stdin io.Reader) (*types.Call, error) {
	data, err := readInput(path, stdin)
	if err != nil {
		return nil, err
	}
	var envelope struct {
		Call *types.Call `json:"call"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("failed to parse call: %w", err)
	}
	if envelope.Call != nil {
		return envelope.Call, nil
	}
	var call types.Call
	if err := json.Unmarshal(data, &call); err != nil {
		return nil, fmt.Errorf("failed to parse call: %w", err)
	}
	if !call.HasInputs() && !call.HasOutput() {
		return nil, errors.New("input has neither inputs nor output")
	}
	return &call, nil
}

func readInput(path string, stdin io.Reader) ([]byte, error) {
	if path == "" || path == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("failed to read stdin: %w", err)
		}
		if strings.TrimSpace(string(data)) == "" {
			return nil, errors.New("no input on stdin; pass --file")
		}
		return data, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return data, nil
}
