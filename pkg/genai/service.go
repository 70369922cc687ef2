// Package genai is the AI enrichment layer of tasklift. It fronts a
// remote generative model with a multi-tier, credential-scoped response
// cache, in-flight request coalescing, persistent cross-session storage,
// a quota circuit breaker, and bounded retry with backoff. The four
// operations (motivation text, task metadata refinement, template kit
// generation, task breakdown) all run through the same pipeline:
// cache → coalescer → breaker → retry → remote call.
package genai

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/singleflight"

	"github.com/tasklift/tasklift/pkg/cache"
	"github.com/tasklift/tasklift/pkg/metrics"
	"github.com/tasklift/tasklift/pkg/models"
	"github.com/tasklift/tasklift/pkg/persist"
	"github.com/tasklift/tasklift/pkg/telemetry"
)

// Config holds the enrichment layer's tunables. TTLs and capacities are
// per operation family; throttle and cooldown values are policy
// defaults, configurable rather than fixed truths.
type Config struct {
	// Model is the remote model identifier.
	Model string

	// MaxRetries bounds backoff retries for transient rate limits.
	MaxRetries int

	// RetryInitialInterval is the first backoff delay (doubled per
	// attempt, with jitter).
	RetryInitialInterval time.Duration

	// Cooldown is how long the breaker suspends calls after quota
	// exhaustion.
	Cooldown time.Duration

	// RefineLimit / RefineWindow throttle the best-effort metadata
	// refinement family.
	RefineLimit  int
	RefineWindow time.Duration

	MotivationTTL      time.Duration
	MotivationCapacity int
	MetadataTTL        time.Duration
	MetadataCapacity   int
	KitTTL             time.Duration
	KitCapacity        int
	BreakdownTTL       time.Duration
	BreakdownCapacity  int
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		Model:                "gpt-4o-mini",
		MaxRetries:           2,
		RetryInitialInterval: 2 * time.Second,
		Cooldown:             DefaultCooldown,
		RefineLimit:          5,
		RefineWindow:         time.Minute,
		MotivationTTL:        3 * time.Minute,
		MotivationCapacity:   100,
		MetadataTTL:          30 * 24 * time.Hour,
		MetadataCapacity:     300,
		KitTTL:               24 * time.Hour,
		KitCapacity:          120,
		BreakdownTTL:         30 * 24 * time.Hour,
		BreakdownCapacity:    200,
	}
}

// Service owns the four caches, the in-flight groups, the breaker, the
// refine throttle, and the persistence bridge. Constructed once per
// process and passed by reference; tests build fresh instances with
// fake clients.
type Service struct {
	cfg    Config
	client Generator
	creds  CredentialSource
	scoper *cache.Scoper

	motivation *cache.Cache[string]
	metadata   *cache.Cache[models.TaskMetadata]
	kits       *cache.Cache[models.TemplateKit]
	breakdowns *cache.Cache[[]string]

	flights map[string]*singleflight.Group

	breaker  *Breaker
	throttle *RateWindow
	bridge   *persist.Bridge
	metrics  *metrics.Metrics
	tracer   *telemetry.Provider

	loadOnce sync.Once
}

// Option customizes a Service.
type Option func(*Service)

// WithBridge attaches a persistence bridge: the snapshot is loaded
// lazily before the first cache access, and every cache write schedules
// a debounced flush. The bridge also persists the breaker cooldown.
func WithBridge(b *persist.Bridge) Option {
	return func(s *Service) { s.bridge = b }
}

// WithMetrics attaches Prometheus instrumentation.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithTelemetry attaches a tracing provider.
func WithTelemetry(p *telemetry.Provider) Option {
	return func(s *Service) { s.tracer = p }
}

// NewService builds the enrichment service around a remote client and a
// credential source.
func NewService(cfg Config, client Generator, creds CredentialSource, opts ...Option) *Service {
	def := DefaultConfig()
	if cfg.Model == "" {
		cfg.Model = def.Model
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryInitialInterval <= 0 {
		cfg.RetryInitialInterval = def.RetryInitialInterval
	}
	if cfg.RefineLimit <= 0 {
		cfg.RefineLimit = def.RefineLimit
	}
	if cfg.RefineWindow <= 0 {
		cfg.RefineWindow = def.RefineWindow
	}
	applyTTLDefaults(&cfg, def)

	s := &Service{
		cfg:        cfg,
		client:     client,
		creds:      creds,
		scoper:     cache.NewScoper(),
		motivation: cache.New[string](cfg.MotivationCapacity, cfg.MotivationTTL),
		metadata:   cache.New[models.TaskMetadata](cfg.MetadataCapacity, cfg.MetadataTTL),
		kits:       cache.New[models.TemplateKit](cfg.KitCapacity, cfg.KitTTL),
		breakdowns: cache.New[[]string](cfg.BreakdownCapacity, cfg.BreakdownTTL),
		flights: map[string]*singleflight.Group{
			cache.FamilyMotivation: {},
			cache.FamilyMetadata:   {},
			cache.FamilyKit:        {},
			cache.FamilyBreakdown:  {},
		},
		throttle: NewRateWindow(cfg.RefineLimit, cfg.RefineWindow),
	}

	for _, opt := range opts {
		opt(s)
	}

	var store CooldownStore
	if s.bridge != nil {
		store = s.bridge
	}
	s.breaker = NewBreaker(cfg.Cooldown, store)

	if s.tracer == nil {
		// Disabled Init cannot fail; it returns a no-op provider.
		s.tracer, _ = telemetry.Init(context.Background(), telemetry.Config{Enabled: false})
	}
	return s
}

func applyTTLDefaults(cfg *Config, def Config) {
	if cfg.MotivationTTL <= 0 {
		cfg.MotivationTTL = def.MotivationTTL
	}
	if cfg.MotivationCapacity <= 0 {
		cfg.MotivationCapacity = def.MotivationCapacity
	}
	if cfg.MetadataTTL <= 0 {
		cfg.MetadataTTL = def.MetadataTTL
	}
	if cfg.MetadataCapacity <= 0 {
		cfg.MetadataCapacity = def.MetadataCapacity
	}
	if cfg.KitTTL <= 0 {
		cfg.KitTTL = def.KitTTL
	}
	if cfg.KitCapacity <= 0 {
		cfg.KitCapacity = def.KitCapacity
	}
	if cfg.BreakdownTTL <= 0 {
		cfg.BreakdownTTL = def.BreakdownTTL
	}
	if cfg.BreakdownCapacity <= 0 {
		cfg.BreakdownCapacity = def.BreakdownCapacity
	}
}

// Motivate returns a short motivational sentence for the given number
// of pending tasks.
func (s *Service) Motivate(ctx context.Context, pendingCount int) (string, error) {
	s.ensureLoaded()
	ctx, span := s.tracer.StartOperation(ctx, cache.FamilyMotivation)
	defer span.End()

	key := s.key(cache.FamilyMotivation, strconv.Itoa(pendingCount))
	if v, ok := s.motivation.Get(key); ok {
		s.observeCache(cache.FamilyMotivation, true)
		telemetry.RecordCacheResult(span, true, false)
		return v, nil
	}
	s.observeCache(cache.FamilyMotivation, false)

	v, err := fetchCoalesced(s, cache.FamilyMotivation, key, s.motivation, func() (string, error) {
		out, err := s.generate(ctx, cache.FamilyMotivation, motivationRequest(s.cfg.Model, pendingCount))
		if err != nil {
			return "", err
		}
		return strings.Trim(strings.TrimSpace(out), `"`), nil
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return "", err
	}
	return v, nil
}

// Refine classifies a task title into metadata. Best effort: when the
// per-minute throttle is exhausted it returns the inert default without
// calling out or touching the cache, and never makes the caller wait
// out a rate limit.
func (s *Service) Refine(ctx context.Context, title string) (models.TaskMetadata, error) {
	s.ensureLoaded()
	ctx, span := s.tracer.StartOperation(ctx, cache.FamilyMetadata)
	defer span.End()

	norm := cache.NormalizeInput(title)
	if norm == "" {
		return models.DefaultMetadata(), nil
	}

	key := s.key(cache.FamilyMetadata, norm)
	if v, ok := s.metadata.Get(key); ok {
		s.observeCache(cache.FamilyMetadata, true)
		telemetry.RecordCacheResult(span, true, false)
		return v, nil
	}
	s.observeCache(cache.FamilyMetadata, false)

	if !s.throttle.Allow() {
		if s.metrics != nil {
			s.metrics.ThrottleRejects.Inc()
		}
		return models.DefaultMetadata(), nil
	}

	v, err := fetchCoalesced(s, cache.FamilyMetadata, key, s.metadata, func() (models.TaskMetadata, error) {
		out, err := s.generate(ctx, cache.FamilyMetadata, refineRequest(s.cfg.Model, title))
		if err != nil {
			return models.TaskMetadata{}, err
		}
		var md models.TaskMetadata
		if err := json.Unmarshal([]byte(stripFences(out)), &md); err != nil {
			return models.TaskMetadata{}, fmt.Errorf("parse metadata response: %w", err)
		}
		return md.Normalize(), nil
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return models.TaskMetadata{}, err
	}
	return v, nil
}

// GenerateKit produces a reusable checklist template from a short prompt.
func (s *Service) GenerateKit(ctx context.Context, prompt string) (models.TemplateKit, error) {
	s.ensureLoaded()
	ctx, span := s.tracer.StartOperation(ctx, cache.FamilyKit)
	defer span.End()

	norm := cache.NormalizeInput(prompt)
	if norm == "" {
		return models.TemplateKit{}, fmt.Errorf("empty kit prompt")
	}

	key := s.key(cache.FamilyKit, norm)
	if v, ok := s.kits.Get(key); ok {
		s.observeCache(cache.FamilyKit, true)
		telemetry.RecordCacheResult(span, true, false)
		return v, nil
	}
	s.observeCache(cache.FamilyKit, false)

	v, err := fetchCoalesced(s, cache.FamilyKit, key, s.kits, func() (models.TemplateKit, error) {
		out, err := s.generate(ctx, cache.FamilyKit, kitRequest(s.cfg.Model, prompt))
		if err != nil {
			return models.TemplateKit{}, err
		}
		var kit models.TemplateKit
		if err := json.Unmarshal([]byte(stripFences(out)), &kit); err != nil {
			return models.TemplateKit{}, fmt.Errorf("parse kit response: %w", err)
		}
		return kit.Normalize(), nil
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return models.TemplateKit{}, err
	}
	return v, nil
}

// Breakdown splits a task into concrete subtasks.
func (s *Service) Breakdown(ctx context.Context, task string) ([]string, error) {
	s.ensureLoaded()
	ctx, span := s.tracer.StartOperation(ctx, cache.FamilyBreakdown)
	defer span.End()

	norm := cache.NormalizeInput(task)
	if norm == "" {
		return nil, fmt.Errorf("empty task")
	}

	key := s.key(cache.FamilyBreakdown, norm)
	if v, ok := s.breakdowns.Get(key); ok {
		s.observeCache(cache.FamilyBreakdown, true)
		telemetry.RecordCacheResult(span, true, false)
		return v, nil
	}
	s.observeCache(cache.FamilyBreakdown, false)

	v, err := fetchCoalesced(s, cache.FamilyBreakdown, key, s.breakdowns, func() ([]string, error) {
		out, err := s.generate(ctx, cache.FamilyBreakdown, breakdownRequest(s.cfg.Model, task))
		if err != nil {
			return nil, err
		}
		var steps []string
		if err := json.Unmarshal([]byte(stripFences(out)), &steps); err != nil {
			return nil, fmt.Errorf("parse breakdown response: %w", err)
		}
		return steps, nil
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	return v, nil
}

// fetchCoalesced routes a cache miss through the family's singleflight
// group: concurrent callers for the same key share one remote call and
// observe the same result or error. The winning call stores the value
// and schedules a snapshot flush before any waiter is released, so no
// waiter can observe a later, different value within one coalescing
// window. Failures are never cached.
func fetchCoalesced[V any](s *Service, family, key string, c *cache.Cache[V], fetch func() (V, error)) (V, error) {
	g := s.flights[family]
	v, err, shared := g.Do(key, func() (interface{}, error) {
		val, err := fetch()
		if err != nil {
			return nil, err
		}
		c.Set(key, val)
		s.scheduleFlush()
		return val, nil
	})
	if shared && s.metrics != nil {
		s.metrics.CoalescedWaits.WithLabelValues(family).Inc()
	}
	if err != nil {
		var zero V
		return zero, err
	}
	return v.(V), nil
}

// generate performs the remote call with classification-aware retry.
// Only transient rate limits are retried; quota exhaustion arms the
// breaker and fails immediately; an auth rejection clears the stored
// credential. The breaker and the credential are re-read before every
// attempt so a cooldown armed elsewhere or a rotated credential takes
// effect mid-backoff.
func (s *Service) generate(ctx context.Context, family string, req Request) (string, error) {
	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = s.cfg.RetryInitialInterval
	expo.Multiplier = 2
	expo.RandomizationFactor = 0.2
	expo.MaxElapsedTime = 0
	bo := backoff.WithContext(backoff.WithMaxRetries(expo, uint64(s.cfg.MaxRetries)), ctx)

	attempt := 0
	var out string
	op := func() error {
		if attempt > 0 && s.metrics != nil {
			s.metrics.Retries.WithLabelValues(family).Inc()
		}
		attempt++

		if err := s.breaker.Check(); err != nil {
			s.observeOutcome(family, ClassCooldown)
			if s.metrics != nil {
				s.metrics.CooldownRejects.Inc()
			}
			return backoff.Permanent(err)
		}
		credential := s.creds.Credential()

		callCtx, span := s.tracer.StartRemoteCall(ctx, family, req.Model)
		start := time.Now()
		res, err := s.client.Generate(callCtx, credential, req)
		if s.metrics != nil {
			s.metrics.CallDuration.WithLabelValues(family).Observe(time.Since(start).Seconds())
		}
		if err == nil {
			span.End()
			s.observeOutcome(family, "ok")
			out = res
			return nil
		}
		telemetry.RecordError(span, err)
		span.End()

		class := Classify(err)
		s.observeOutcome(family, class)
		switch class {
		case ClassQuota:
			s.breaker.Trip()
			if s.metrics != nil {
				s.metrics.BreakerTrips.Inc()
			}
			return backoff.Permanent(err)
		case ClassRateLimit:
			return err
		case ClassAuth:
			s.creds.Clear()
			return backoff.Permanent(err)
		default:
			return backoff.Permanent(err)
		}
	}

	if err := backoff.Retry(op, bo); err != nil {
		return "", err
	}
	return out, nil
}

// key builds a credential-scoped cache key.
func (s *Service) key(family, normalized string) string {
	return cache.Key(s.scoper.Scope(s.creds.Credential()), family, normalized)
}

// ensureLoaded restores the persisted snapshot once, lazily, before the
// first cache access of the process lifetime.
func (s *Service) ensureLoaded() {
	s.loadOnce.Do(func() {
		if s.bridge == nil {
			return
		}
		snap := s.bridge.Load()
		if snap == nil {
			return
		}
		s.motivation.Restore(snap.Motivation)
		s.metadata.Restore(snap.Metadata)
		s.kits.Restore(snap.Kits)
		s.breakdowns.Restore(snap.Breakdowns)
	})
}

func (s *Service) snapshot() *persist.Snapshot {
	return &persist.Snapshot{
		Motivation: s.motivation.Entries(),
		Metadata:   s.metadata.Entries(),
		Kits:       s.kits.Entries(),
		Breakdowns: s.breakdowns.Entries(),
	}
}

func (s *Service) scheduleFlush() {
	if s.bridge != nil {
		s.bridge.Schedule(s.snapshot)
	}
}

func (s *Service) observeCache(family string, hit bool) {
	if s.metrics == nil {
		return
	}
	if hit {
		s.metrics.CacheHits.WithLabelValues(family).Inc()
	} else {
		s.metrics.CacheMisses.WithLabelValues(family).Inc()
	}
}

func (s *Service) observeOutcome(family string, outcome FailureClass) {
	if s.metrics == nil {
		return
	}
	s.metrics.RemoteCalls.WithLabelValues(family, string(outcome)).Inc()
}

// CacheStats reports per-family cache counters.
func (s *Service) CacheStats() map[string]cache.Stats {
	s.ensureLoaded()
	return map[string]cache.Stats{
		cache.FamilyMotivation: s.motivation.Stats(),
		cache.FamilyMetadata:   s.metadata.Stats(),
		cache.FamilyKit:        s.kits.Stats(),
		cache.FamilyBreakdown:  s.breakdowns.Stats(),
	}
}

// ClearCaches drops all cached entries and schedules a flush so the
// cleared state is persisted too.
func (s *Service) ClearCaches() {
	s.ensureLoaded()
	s.motivation.Clear()
	s.metadata.Clear()
	s.kits.Clear()
	s.breakdowns.Clear()
	s.scheduleFlush()
}

// CooldownUntil reports the active breaker deadline, if any.
func (s *Service) CooldownUntil() (time.Time, bool) {
	return s.breaker.Until()
}

// ResetCooldown clears an active quota cooldown.
func (s *Service) ResetCooldown() {
	s.breaker.Reset()
}

// Flush writes any pending snapshot immediately.
func (s *Service) Flush() {
	if s.bridge != nil {
		s.bridge.Flush()
	}
}

// Close flushes pending state and releases the storage backend.
func (s *Service) Close() error {
	if s.bridge != nil {
		return s.bridge.Close()
	}
	return nil
}
