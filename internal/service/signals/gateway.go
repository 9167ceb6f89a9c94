package signals

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/paygate-labs/transaction-risk-engine/internal/infrastructure/cache"
	"github.com/paygate-labs/transaction-risk-engine/internal/infrastructure/telemetry"
)

// Gateway mediates every signal fetch. Each registered source sits
// behind its own circuit breaker and rolling per-minute quota, with a
// TTL response cache in front of both, so a cached answer costs neither
// quota nor a probe.
type Gateway struct {
	mu        sync.RWMutex
	sources   map[string]*sourceEntry
	order     []string
	fallbacks map[string][]string

	store   cache.Store
	timeout time.Duration
	logger  *zap.Logger
	tracer  *telemetry.RiskTracer
	rec     FetchRecorder

	hits   atomic.Int64
	misses atomic.Int64
	stores atomic.Int64
}

type sourceEntry struct {
	source  Source
	cfg     SourceConfig
	breaker *Breaker
	limiter *rate.Limiter
}

// CacheStats counts response cache traffic since startup
type CacheStats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
	Stores int64 `json:"stores"`
}

// SourceBreaker pairs a breaker snapshot with the source it protects
type SourceBreaker struct {
	Source string `json:"source"`
	Kind   Kind   `json:"kind"`
	Snapshot
}

// FetchRecorder observes fetch outcomes, cached and failed ones included
type FetchRecorder interface {
	RecordSignalFetch(ctx context.Context, durationMS float64, source string, success bool, reason string)
}

// NewGateway creates a gateway. A nil store disables response caching;
// timeout bounds one whole FetchAll fan-out.
func NewGateway(store cache.Store, timeout time.Duration, logger *zap.Logger) *Gateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 800 * time.Millisecond
	}
	return &Gateway{
		sources:   make(map[string]*sourceEntry),
		fallbacks: make(map[string][]string),
		store:     store,
		timeout:   timeout,
		logger:    logger,
		tracer:    telemetry.NewRiskTracer("signals.gateway"),
	}
}

// SetRecorder wires fetch outcome metrics; a nil recorder disables them
func (g *Gateway) SetRecorder(rec FetchRecorder) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rec = rec
}

func (g *Gateway) record(ctx context.Context, res Result) Result {
	g.mu.RLock()
	rec := g.rec
	g.mu.RUnlock()

	if rec != nil {
		rec.RecordSignalFetch(ctx, float64(res.Latency.Microseconds())/1000.0,
			res.Source, res.Success, res.Reason)
	}
	return res
}

// Register adds a source under its own breaker and limiter. Source
// names must be unique.
func (g *Gateway) Register(src Source, cfg SourceConfig) error {
	if src == nil {
		return fmt.Errorf("source is required")
	}
	name := src.Name()
	if name == "" {
		return fmt.Errorf("source name is required")
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if _, exists := g.sources[name]; exists {
		return fmt.Errorf("source %q already registered", name)
	}

	var limiter *rate.Limiter
	if cfg.Quota > 0 {
		limiter = rate.NewLimiter(rate.Limit(float64(cfg.Quota)/60.0), cfg.Quota)
	}

	g.sources[name] = &sourceEntry{
		source:  src,
		cfg:     cfg,
		breaker: NewBreaker(cfg.FailureThreshold, cfg.Cooldown),
		limiter: limiter,
	}
	g.order = append(g.order, name)

	return nil
}

// SetFallbacks declares the ordered sources to try when name fails.
// Every name in the chain must already be registered.
func (g *Gateway) SetFallbacks(name string, chain []string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.sources[name]; !ok {
		return fmt.Errorf("source %q not registered", name)
	}
	for _, fb := range chain {
		if fb == name {
			return fmt.Errorf("source %q cannot fall back to itself", name)
		}
		if _, ok := g.sources[fb]; !ok {
			return fmt.Errorf("fallback source %q not registered", fb)
		}
	}

	g.fallbacks[name] = append([]string(nil), chain...)
	return nil
}

// Sources lists registered source names in registration order
func (g *Gateway) Sources() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]string(nil), g.order...)
}

// Fetch resolves one signal through cache, breaker, quota and finally
// the backend. It always returns a Result; failures are carried on the
// Reason field, never as errors.
func (g *Gateway) Fetch(ctx context.Context, name string, req Request) Result {
	start := time.Now()

	g.mu.RLock()
	entry, ok := g.sources[name]
	g.mu.RUnlock()

	if !ok {
		return g.record(ctx, Result{Source: name, Reason: ReasonUnregistered, Latency: time.Since(start)})
	}
	kind := entry.source.Kind()

	key := cache.SignalPrefix + name + ":" + req.CacheKey()
	if g.store != nil && entry.cfg.CacheTTL > 0 {
		var payload Payload
		err := g.store.GetJSON(ctx, key, &payload)
		if err == nil {
			g.hits.Add(1)
			return g.record(ctx, Result{
				Source:  name,
				Kind:    kind,
				Success: true,
				Payload: payload,
				Latency: time.Since(start),
				Cached:  true,
			})
		}
		if !cache.IsNotFound(err) {
			g.logger.Warn("signal cache read failed",
				zap.String("source", name),
				zap.Error(err))
		}
		g.misses.Add(1)
	}

	if !entry.breaker.Allow() {
		return g.record(ctx, Result{Source: name, Kind: kind, Reason: ReasonCircuitOpen, Latency: time.Since(start)})
	}

	// quota exhaustion is back-pressure, not backend health; release the
	// probe slot and leave the breaker untouched
	if entry.limiter != nil && !entry.limiter.Allow() {
		entry.breaker.CancelProbe()
		return g.record(ctx, Result{Source: name, Kind: kind, Reason: ReasonRateLimited, Latency: time.Since(start)})
	}

	callCtx := ctx
	if entry.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, entry.cfg.Timeout)
		defer cancel()
	}

	callCtx, span := g.tracer.StartSignalSpan(callCtx, name, string(kind))
	payload, err := entry.source.Fetch(callCtx, req)
	telemetry.EndSpan(span, err)
	latency := time.Since(start)

	if err != nil {
		entry.breaker.RecordFailure()

		reason := ReasonSourceError
		if errors.Is(err, context.DeadlineExceeded) {
			reason = ReasonTimeout
		}
		g.logger.Warn("signal source failed",
			zap.String("source", name),
			zap.String("reason", reason),
			zap.Duration("latency", latency),
			zap.Error(err))

		return g.record(ctx, Result{Source: name, Kind: kind, Reason: reason, Latency: latency})
	}

	entry.breaker.RecordSuccess()

	payload.Score = clamp01(payload.Score)
	payload.Confidence = clamp01(payload.Confidence)

	if g.store != nil && entry.cfg.CacheTTL > 0 {
		if err := g.store.SetJSON(ctx, key, payload, entry.cfg.CacheTTL); err != nil {
			g.logger.Warn("signal cache write failed",
				zap.String("source", name),
				zap.Error(err))
		} else {
			g.stores.Add(1)
		}
	}

	return g.record(ctx, Result{
		Source:  name,
		Kind:    kind,
		Success: true,
		Payload: payload,
		Latency: latency,
	})
}

// FetchWithFallbacks tries the named source, then its declared
// fallbacks in order. The returned Result is the first success or the
// last failure.
func (g *Gateway) FetchWithFallbacks(ctx context.Context, name string, req Request) Result {
	result := g.Fetch(ctx, name, req)
	if result.Success {
		return result
	}

	for _, fallback := range g.fallbackChain(name) {
		if ctx.Err() != nil {
			break
		}
		g.logger.Warn("signal source failed, trying fallback",
			zap.String("source", result.Source),
			zap.String("reason", result.Reason),
			zap.String("fallback", fallback))

		next := g.Fetch(ctx, fallback, req)
		if next.Success {
			return next
		}
		result = next
	}

	return result
}

// FetchAll resolves the named sources in parallel under the gateway
// deadline. Results arrive in the same order as names, one per name.
func (g *Gateway) FetchAll(ctx context.Context, names []string, req Request) []Result {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	ctx, span := g.tracer.Start(ctx, "signals.fan_out")
	defer telemetry.EndSpan(span, nil)

	results := make([]Result, len(names))

	var wg sync.WaitGroup
	for i, name := range names {
		wg.Add(1)
		go func(slot int, source string) {
			defer wg.Done()
			results[slot] = g.FetchWithFallbacks(ctx, source, req)
		}(i, name)
	}
	wg.Wait()

	return results
}

// CacheStats reports response cache traffic
func (g *Gateway) CacheStats() CacheStats {
	return CacheStats{
		Hits:   g.hits.Load(),
		Misses: g.misses.Load(),
		Stores: g.stores.Load(),
	}
}

// BreakerStats snapshots every breaker in registration order
func (g *Gateway) BreakerStats() []SourceBreaker {
	g.mu.RLock()
	defer g.mu.RUnlock()

	stats := make([]SourceBreaker, 0, len(g.order))
	for _, name := range g.order {
		entry := g.sources[name]
		stats = append(stats, SourceBreaker{
			Source:   name,
			Kind:     entry.source.Kind(),
			Snapshot: entry.breaker.Snapshot(),
		})
	}
	return stats
}

// ResetBreaker forces the named source's breaker closed
func (g *Gateway) ResetBreaker(name string) error {
	g.mu.RLock()
	entry, ok := g.sources[name]
	g.mu.RUnlock()

	if !ok {
		return fmt.Errorf("source %q not registered", name)
	}
	entry.breaker.Reset()
	return nil
}

func (g *Gateway) fallbackChain(name string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]string(nil), g.fallbacks[name]...)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
