// Package aigateway provides a multi-provider LLM gateway: a canonical
// model registry resolves a caller-supplied model string across
// providers, a health-aware selector fails over between them, and a
// pricing resolver turns token usage into cost.
//
// The Gateway type is the main entry point: create one with New, register
// provider adapters with RegisterProvider, and drive requests with
// Execute or ExecuteStream. Curated models, manual pricing overrides, and
// provider credentials are configured via [Config], loadable from YAML or
// JSON with [LoadConfig].
package aigateway

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ferro-labs/llm-gateway/internal/health"
	"github.com/ferro-labs/llm-gateway/internal/ingest"
	"github.com/ferro-labs/llm-gateway/internal/logging"
	"github.com/ferro-labs/llm-gateway/internal/metrics"
	"github.com/ferro-labs/llm-gateway/internal/pricing"
	"github.com/ferro-labs/llm-gateway/internal/selector"
	"github.com/ferro-labs/llm-gateway/plugin"
	"github.com/ferro-labs/llm-gateway/providers"
	"github.com/ferro-labs/llm-gateway/registry"
)

// EventHookFunc is called asynchronously after a gateway event (request
// completed or failed).
type EventHookFunc func(ctx context.Context, subject string, data map[string]interface{})

// Event subject constants used when invoking gateway hooks.
const (
	SubjectRequestCompleted = "gateway.request.completed"
	SubjectRequestFailed    = "gateway.request.failed"
)

// OutcomeStore persists a finalized request Outcome. *storage.Store
// satisfies this; it is accepted as an interface here so the core gateway
// package does not need to import the concrete SQL store.
type OutcomeStore interface {
	SaveOutcome(ctx context.Context, o Outcome) error
}

// TokenCounter estimates a token count for text the provider didn't report
// usage for. *tokenizer.Tokenizer satisfies this.
type TokenCounter interface {
	Count(text string) int
}

// Gateway is the main entry point for executing LLM requests.
type Gateway struct {
	mu        sync.RWMutex
	config    Config
	registry  *registry.Registry
	health    *health.Tracker
	selector  *selector.Selector
	pricing   *pricing.Resolver
	providers map[string]providers.Provider
	plugins   *plugin.Manager
	hooks     []EventHookFunc
	store     OutcomeStore
	tokens    TokenCounter
	ingester  *ingest.Ingester
	scheduler *ingest.Scheduler
	logger    *slog.Logger
}

// New creates a Gateway from cfg: it builds the registry, health tracker,
// selector, and pricing resolver, loads curated models and manual pricing
// overrides, and validates the configuration.
func New(cfg Config) (*Gateway, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	logging.Setup(cfg.LogLevel, cfg.LogFormat)
	logger := logging.Logger

	healthTracker := health.NewTracker(health.DefaultConfig(), time.Now)
	reg := registry.New(healthTracker, logger)
	pricingResolver := pricing.NewResolver(reg)

	g := &Gateway{
		config:    cfg,
		registry:  reg,
		health:    healthTracker,
		selector:  selector.New(reg, healthTracker, logger),
		pricing:   pricingResolver,
		providers: make(map[string]providers.Provider),
		plugins:   plugin.NewManager(),
		logger:    logger,
	}

	for _, cm := range cfg.canonicalModels() {
		if err := reg.Register(cm); err != nil {
			return nil, fmt.Errorf("loading curated model %q: %w", cm.ID, err)
		}
	}
	for alias, canonicalID := range cfg.Aliases {
		reg.AddAlias(alias, canonicalID)
	}
	pricingResolver.LoadManualOverrides(cfg.manualQuotes())

	return g, nil
}

// RegisterProvider registers a provider adapter under its own Name().
func (g *Gateway) RegisterProvider(p providers.Provider) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.providers[p.Name()] = p
}

// GetProvider returns a registered provider by name.
func (g *Gateway) GetProvider(name string) (providers.Provider, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	p, ok := g.providers[name]
	return p, ok
}

// ListProviders returns the names of all registered providers.
func (g *Gateway) ListProviders() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	names := make([]string, 0, len(g.providers))
	for name := range g.providers {
		names = append(names, name)
	}
	return names
}

// Registry exposes the canonical model registry for CLI/HTTP tooling
// (search, export, manual registration) that needs direct access.
func (g *Gateway) Registry() *registry.Registry { return g.registry }

// Health exposes the health tracker for the CLI's health summary report.
func (g *Gateway) Health() *health.Tracker { return g.health }

// Pricing exposes the pricing resolver for the CLI's pricing inspection
// and audit-trail commands.
func (g *Gateway) Pricing() *pricing.Resolver { return g.pricing }

// UseStore attaches a durable outcome store. Without one, outcomes are
// still logged and surfaced via metrics, but not persisted.
func (g *Gateway) UseStore(store OutcomeStore) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.store = store
}

// UseTokenizer attaches a fallback token counter, used when a provider
// response omits usage.
func (g *Gateway) UseTokenizer(tc TokenCounter) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.tokens = tc
}

// UseIngester attaches the catalog ingester and always starts its cron
// schedule, using cfg.IngestSchedule or ingest.DefaultSchedule when empty.
func (g *Gateway) UseIngester(in *ingest.Ingester) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.ingester = in
	expr := g.config.IngestSchedule
	sched, err := ingest.NewScheduler(in, expr, g.logger)
	if err != nil {
		return fmt.Errorf("building ingest schedule: %w", err)
	}
	g.scheduler = sched
	g.scheduler.Start()
	return nil
}

// RegisterPlugin registers a plugin at the given lifecycle stage.
func (g *Gateway) RegisterPlugin(stage plugin.Stage, p plugin.Plugin) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.plugins.Register(stage, p)
}

// LoadPlugins initializes and registers plugins from the gateway
// configuration (config.go carries domain fields now; plugin config, if
// any, is wired in by the caller via RegisterPlugin — kept as a thin
// pass-through for callers that built a factory-backed registration list).
func (g *Gateway) LoadPlugins(names []string, factoryConfig map[string]map[string]interface{}, stages map[string]plugin.Stage) error {
	for _, name := range names {
		factory, ok := plugin.GetFactory(name)
		if !ok {
			return fmt.Errorf("unknown plugin: %s", name)
		}
		p := factory()
		if err := p.Init(factoryConfig[name]); err != nil {
			return fmt.Errorf("plugin %s init failed: %w", name, err)
		}
		if err := g.RegisterPlugin(stages[name], p); err != nil {
			return fmt.Errorf("plugin %s register failed: %w", name, err)
		}
	}
	return nil
}

// AddHook registers an EventHookFunc called asynchronously on each
// completed or failed request.
func (g *Gateway) AddHook(fn EventHookFunc) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.hooks = append(g.hooks, fn)
}

// Outcome is the finalized record of one Execute/ExecuteStream call,
// surfaced to the caller and (if a store is attached) persisted.
type Outcome struct {
	RequestID        string
	CanonicalID      string
	Provider         string
	NativeID         string
	Status           string // "success" | "error"
	ErrorKind        selector.ErrorKind
	ErrorMessage     string
	InputTokens      int
	OutputTokens     int
	Cost             pricing.Cost
	Attempts         []selector.Attempt
	ProcessingTimeMS int64
	CreatedAt        time.Time
}

// Execute resolves req.Model, runs the health-aware failover selection
// across its provider bindings, computes cost from the resolved usage,
// persists the outcome, and emits metrics and hooks.
func (g *Gateway) Execute(ctx context.Context, req providers.Request) (*providers.Response, Outcome, error) {
	start := time.Now()
	log := logging.FromContext(ctx)
	requestID := uuid.NewString()

	pctx := plugin.NewContext(&req)
	if g.plugins.HasPlugins() {
		if err := g.plugins.RunBefore(ctx, pctx); err != nil {
			metrics.RequestsTotal.WithLabelValues("", req.Model, "rejected").Inc()
			return nil, Outcome{RequestID: requestID, CreatedAt: start}, err
		}
		req = *pctx.Request
	}

	resp, out := g.execute(ctx, req, requestID, start)

	if out.Status == "error" {
		pctx.Error = fmt.Errorf("%s", out.ErrorMessage)
		g.plugins.RunOnError(ctx, pctx)
		g.finish(ctx, log, out, nil)
		return nil, out, fmt.Errorf("%s: %s", out.ErrorKind, out.ErrorMessage)
	}

	if g.plugins.HasPlugins() {
		pctx.Response = resp
		_ = g.plugins.RunAfter(ctx, pctx)
	}
	g.finish(ctx, log, out, resp)
	return resp, out, nil
}

// execute runs the selection-and-dispatch algorithm once, consulting the
// configured fallback mapping exactly once if the selector reports
// NoAvailableProvider for the original model.
func (g *Gateway) execute(ctx context.Context, req providers.Request, requestID string, start time.Time) (*providers.Response, Outcome) {
	resp, out := g.executeOnce(ctx, req, requestID, start)
	if out.ErrorKind != selector.KindNoAvailableProvider {
		return resp, out
	}

	canonicalID, ok := g.registry.Resolve(req.Model)
	if !ok {
		return resp, out
	}
	mapped, ok := g.config.FallbackMappings[canonicalID]
	if !ok {
		return resp, out
	}
	req.Model = mapped
	return g.executeOnce(ctx, req, requestID, start)
}

// selectorOptionsFor translates the §7 inbound routing hints carried on a
// request (preferred provider, required features, max cost, strategy) into
// the Options the selector filters and ranks bindings with.
func selectorOptionsFor(req providers.Request) selector.Options {
	return selector.Options{
		Strategy:         registry.Strategy(req.Strategy),
		Preferred:        req.PreferredProvider,
		RequiredFeatures: req.RequiredFeatures,
		MaxCostPerToken:  req.MaxCostPerToken,
	}
}

func (g *Gateway) executeOnce(ctx context.Context, req providers.Request, requestID string, start time.Time) (*providers.Response, Outcome) {
	runFn := func(ctx context.Context, provider, nativeID string) (*providers.Response, error) {
		p, ok := g.GetProvider(provider)
		if !ok {
			return nil, selector.NewError(selector.KindProviderCredentialOrAvailable, provider, nativeID, 0,
				fmt.Errorf("no adapter registered for provider %q", provider))
		}
		nativeReq := req
		nativeReq.Model = nativeID
		resp, err := p.Complete(ctx, nativeReq)
		if err != nil {
			return nil, classifyProviderError(provider, nativeID, err)
		}
		return resp, nil
	}

	out := selector.Execute(ctx, g.selector, req.Model, selector.RunFunc[*providers.Response](runFn), selectorOptionsFor(req))
	return g.toOutcome(requestID, start, req, out)
}

func (g *Gateway) toOutcome(requestID string, start time.Time, req providers.Request, out selector.Outcome[*providers.Response]) (*providers.Response, Outcome) {
	result := Outcome{
		RequestID:        requestID,
		CanonicalID:      out.CanonicalID,
		Provider:         out.Provider,
		NativeID:         out.NativeID,
		Attempts:         out.Attempts,
		ProcessingTimeMS: time.Since(start).Milliseconds(),
		CreatedAt:        start,
	}

	if !out.Success {
		result.Status = "error"
		result.ErrorKind = out.Reason
		if out.LastError != nil {
			result.ErrorMessage = out.LastError.Error()
		} else {
			result.ErrorMessage = string(out.Reason)
		}
		return nil, result
	}

	resp := out.Response
	if resp.Object == "" {
		resp.Object = "chat.completion"
	}
	if resp.Created == 0 {
		resp.Created = time.Now().Unix()
	}

	inputTokens, outputTokens := resp.Usage.PromptTokens, resp.Usage.CompletionTokens
	if inputTokens == 0 && outputTokens == 0 && g.tokens != nil {
		inputTokens = g.estimateInputTokens(req)
		outputTokens = g.estimateOutputTokens(resp)
	}
	result.InputTokens = inputTokens
	result.OutputTokens = outputTokens

	quote := g.pricing.Resolve(out.CanonicalID, out.Provider, out.NativeID)
	result.Cost = pricing.Compute(quote, inputTokens, outputTokens)
	if !quote.IsUsable() {
		result.ErrorKind = selector.KindPricingMissing
	}
	result.Status = "success"
	return resp, result
}

func (g *Gateway) estimateInputTokens(req providers.Request) int {
	if g.tokens == nil {
		return 0
	}
	total := 0
	for _, m := range req.Messages {
		total += g.tokens.Count(m.Content)
	}
	return total
}

func (g *Gateway) estimateOutputTokens(resp *providers.Response) int {
	if g.tokens == nil || len(resp.Choices) == 0 {
		return 0
	}
	return g.tokens.Count(resp.Choices[0].Message.Content)
}

// finish persists the outcome (if a store is attached), emits metrics, logs,
// and fires event hooks. It never fails the request: persistence/metrics
// errors are logged and swallowed.
func (g *Gateway) finish(ctx context.Context, log *slog.Logger, out Outcome, resp *providers.Response) {
	g.mu.RLock()
	store := g.store
	g.mu.RUnlock()
	if store != nil {
		if err := store.SaveOutcome(ctx, out); err != nil {
			log.Error("failed to persist outcome", "request_id", out.RequestID, "error", err.Error())
		}
	}

	if out.Provider != "" {
		view := g.health.Snapshot(out.CanonicalID, out.Provider)
		metrics.HealthScore.WithLabelValues(out.Provider, out.CanonicalID).Set(view.State.Score())
	}

	latency := time.Duration(out.ProcessingTimeMS) * time.Millisecond
	if out.Status == "success" {
		metrics.RequestsTotal.WithLabelValues(out.Provider, out.CanonicalID, "success").Inc()
		metrics.RequestDuration.WithLabelValues(out.Provider, out.CanonicalID).Observe(latency.Seconds())
		metrics.TokensInput.WithLabelValues(out.Provider, out.CanonicalID).Add(float64(out.InputTokens))
		metrics.TokensOutput.WithLabelValues(out.Provider, out.CanonicalID).Add(float64(out.OutputTokens))
		if out.Cost.Total > 0 {
			metrics.RequestCostUSD.WithLabelValues(out.Provider, out.CanonicalID).Add(out.Cost.Total)
		}
		log.Info("request completed",
			"request_id", out.RequestID, "model", out.CanonicalID, "provider", out.Provider,
			"latency_ms", out.ProcessingTimeMS, "tokens_in", out.InputTokens, "tokens_out", out.OutputTokens,
			"cost_usd", out.Cost.Total)
		g.publishEvent(ctx, SubjectRequestCompleted, map[string]interface{}{
			"request_id": out.RequestID, "provider": out.Provider, "model": out.CanonicalID,
			"latency_ms": out.ProcessingTimeMS, "tokens_in": out.InputTokens, "tokens_out": out.OutputTokens,
			"cost_usd": out.Cost.Total, "timestamp": time.Now(),
		})
		return
	}

	metrics.RequestsTotal.WithLabelValues(out.Provider, out.CanonicalID, "error").Inc()
	metrics.ProviderErrors.WithLabelValues(out.Provider, string(out.ErrorKind)).Inc()
	log.Error("request failed",
		"request_id", out.RequestID, "model", out.CanonicalID, "kind", out.ErrorKind,
		"error", out.ErrorMessage, "latency_ms", out.ProcessingTimeMS)
	g.publishEvent(ctx, SubjectRequestFailed, map[string]interface{}{
		"request_id": out.RequestID, "model": out.CanonicalID, "kind": out.ErrorKind,
		"error": out.ErrorMessage, "latency_ms": out.ProcessingTimeMS, "timestamp": time.Now(),
	})
}

func (g *Gateway) publishEvent(ctx context.Context, subject string, data map[string]interface{}) {
	g.mu.RLock()
	hooks := make([]EventHookFunc, len(g.hooks))
	copy(hooks, g.hooks)
	g.mu.RUnlock()
	for _, h := range hooks {
		fn := h
		go fn(ctx, subject, data)
	}
}

// ExecuteStream behaves like Execute but returns a streaming channel
// instead of a single response. Usage/cost accounting happens after the
// stream closes: output tokens are estimated with the fallback tokenizer
// over the accumulated content. Stream chunks carry no usage data, so
// provider-reported usage is not read, and input tokens are recorded as 0.
func (g *Gateway) ExecuteStream(ctx context.Context, req providers.Request) (<-chan providers.StreamChunk, error) {
	log := logging.FromContext(ctx)
	requestID := uuid.NewString()
	start := time.Now()

	pctx := plugin.NewContext(&req)
	if g.plugins.HasPlugins() {
		if err := g.plugins.RunBefore(ctx, pctx); err != nil {
			metrics.RequestsTotal.WithLabelValues("", req.Model, "rejected").Inc()
			return nil, err
		}
		if pctx.Reject {
			metrics.RequestsTotal.WithLabelValues("", req.Model, "rejected").Inc()
			return nil, fmt.Errorf("request rejected by plugin: %s", pctx.Reason)
		}
		req = *pctx.Request
	}

	runFn := func(ctx context.Context, provider, nativeID string) (<-chan providers.StreamChunk, error) {
		p, ok := g.GetProvider(provider)
		if !ok {
			return nil, selector.NewError(selector.KindProviderCredentialOrAvailable, provider, nativeID, 0,
				fmt.Errorf("no adapter registered for provider %q", provider))
		}
		sp, ok := p.(providers.StreamProvider)
		if !ok {
			return nil, selector.NewError(selector.KindProviderClient, provider, nativeID, 0,
				fmt.Errorf("provider %q does not support streaming", provider))
		}
		nativeReq := req
		nativeReq.Model = nativeID
		ch, err := sp.CompleteStream(ctx, nativeReq)
		if err != nil {
			return nil, classifyProviderError(provider, nativeID, err)
		}
		return ch, nil
	}

	out := selector.Execute(ctx, g.selector, req.Model, selector.RunFunc[<-chan providers.StreamChunk](runFn), selectorOptionsFor(req))
	if !out.Success {
		outcome := Outcome{
			RequestID: requestID, CanonicalID: out.CanonicalID, Status: "error",
			ErrorKind: out.Reason, Attempts: out.Attempts, CreatedAt: start,
			ProcessingTimeMS: time.Since(start).Milliseconds(),
		}
		if out.LastError != nil {
			outcome.ErrorMessage = out.LastError.Error()
		}
		g.finish(ctx, log, outcome, nil)
		return nil, fmt.Errorf("%s", outcome.ErrorMessage)
	}

	log.Info("stream started", "request_id", requestID, "model", out.CanonicalID, "provider", out.Provider)
	return g.wrapStream(ctx, requestID, start, out), nil
}

// wrapStream forwards chunks to the caller unmodified while accumulating
// content for a post-hoc token estimate, finalizing the outcome once the
// upstream channel closes.
func (g *Gateway) wrapStream(ctx context.Context, requestID string, start time.Time, out selector.Outcome[<-chan providers.StreamChunk]) <-chan providers.StreamChunk {
	downstream := make(chan providers.StreamChunk)
	log := logging.FromContext(ctx)

	go func() {
		defer close(downstream)
		var content string
		var streamErr error
		for chunk := range out.Response {
			if chunk.Error != nil {
				streamErr = chunk.Error
			}
			for _, c := range chunk.Choices {
				content += c.Delta.Content
			}
			downstream <- chunk
		}

		outcome := Outcome{
			RequestID: requestID, CanonicalID: out.CanonicalID, Provider: out.Provider,
			NativeID: out.NativeID, Attempts: out.Attempts, CreatedAt: start,
			ProcessingTimeMS: time.Since(start).Milliseconds(),
		}
		if streamErr != nil {
			outcome.Status = "error"
			outcome.ErrorKind = selector.KindProviderTransient
			outcome.ErrorMessage = streamErr.Error()
			g.finish(ctx, log, outcome, nil)
			return
		}

		outputTokens := 0
		if g.tokens != nil {
			outputTokens = g.tokens.Count(content)
		}
		outcome.OutputTokens = outputTokens
		quote := g.pricing.Resolve(out.CanonicalID, out.Provider, out.NativeID)
		outcome.Cost = pricing.Compute(quote, 0, outputTokens)
		if !quote.IsUsable() {
			outcome.ErrorKind = selector.KindPricingMissing
		}
		outcome.Status = "success"
		g.finish(ctx, log, outcome, nil)
	}()

	return downstream
}

// Close releases gateway resources (the ingest scheduler, if running).
func (g *Gateway) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.scheduler != nil {
		g.scheduler.Stop()
	}
	return nil
}

var statusPattern = regexp.MustCompile(`\((\d{3})\)`)

// classifyProviderError wraps a provider adapter's error in a typed
// *selector.Error. Most teacher-derived adapters format their error text
// as "<provider> API error (<status>): <detail>"; classifyProviderError
// extracts the embedded status code so the selector's retry policy applies
// even though these adapters don't return a typed status yet.
func classifyProviderError(provider, nativeID string, err error) error {
	status := 0
	if m := statusPattern.FindStringSubmatch(err.Error()); m != nil {
		fmt.Sscanf(m[1], "%d", &status)
	}
	kind := selector.ClassifyHTTPStatus(status)
	return selector.NewError(kind, provider, nativeID, status, err)
}
