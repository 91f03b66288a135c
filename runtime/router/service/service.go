// Package service is the top-level planning entry point. One Service owns
// the site configuration, both cache tiers, and the planner, and threads
// them through request handling: normalize, probe caches, plan, validate,
// clamp, store.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/wayfind-labs/wayfind/runtime/router/cache"
	"github.com/wayfind-labs/wayfind/runtime/router/normalize"
	"github.com/wayfind-labs/wayfind/runtime/router/plan"
	"github.com/wayfind-labs/wayfind/runtime/router/predictor"
	"github.com/wayfind-labs/wayfind/runtime/router/prompt"
	"github.com/wayfind-labs/wayfind/runtime/router/records"
	"github.com/wayfind-labs/wayfind/runtime/router/resolve"
	"github.com/wayfind-labs/wayfind/runtime/router/routes"
	"github.com/wayfind-labs/wayfind/runtime/router/site"
	"github.com/wayfind-labs/wayfind/runtime/router/telemetry"
)

// ErrMalformedQuery rejects empty or over-length queries before any
// predictor call.
var ErrMalformedQuery = errors.New("malformed query")

// accessDeniedNote is appended to reasoning when the RBAC clamp fires.
const accessDeniedNote = "Access denied: Insufficient permissions for this route"

type (
	// Options configures a Service.
	Options struct {
		// Config is the validated site configuration. Required.
		Config *site.Configuration

		// Predictor is the model port. Required.
		Predictor predictor.Predictor

		// Searcher is the record search backend. Required. The service
		// layers the configuration's restricted-columns policy on top.
		Searcher records.Searcher

		// RequestStore overrides the request-tier backend. Defaults to the
		// in-process store.
		RequestStore cache.Store

		// RequestTTL and StructuralTTL override the tier lifetimes.
		RequestTTL    time.Duration
		StructuralTTL time.Duration

		// PredictTimeout bounds one predictor call. Defaults to 60 seconds.
		PredictTimeout time.Duration

		// ResolveTimeout bounds one resolver call. Defaults to 30 seconds.
		ResolveTimeout time.Duration

		// Logger, Metrics and Tracer default to no-ops.
		Logger  telemetry.Logger
		Metrics telemetry.Metrics
		Tracer  telemetry.Tracer
	}

	// Service handles planning requests.
	Service struct {
		cfg       *site.Configuration
		planner   *plan.Planner
		resolver  *resolve.Resolver
		validator *routes.Validator
		caches    *cache.Dual
		logger    telemetry.Logger
		metrics   telemetry.Metrics
		tracer    telemetry.Tracer
		now       func() time.Time

		flight singleflight.Group
		stores sync.WaitGroup

		statsMu         sync.Mutex
		requests        uint64
		totalDuration   time.Duration
		totalConfidence float64
	}

	// Stats aggregates request totals and cache statistics.
	Stats struct {
		Requests      uint64      `json:"requests"`
		AvgDurationMS float64     `json:"avg_duration_ms"`
		AvgConfidence float64     `json:"avg_confidence"`
		Cache         cache.Stats `json:"cache"`
	}
)

// New assembles a Service: restricted searcher, resolver, validator, prompt
// builder, planner, and both cache tiers. The configuration is validated
// before anything is built; an invalid configuration aborts startup.
func New(opts Options) (*Service, error) {
	if opts.Config == nil {
		return nil, errors.New("config is required")
	}
	if err := opts.Config.Validate(); err != nil {
		return nil, err
	}
	if opts.Predictor == nil {
		return nil, errors.New("predictor is required")
	}
	if opts.Searcher == nil {
		return nil, errors.New("searcher is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = telemetry.NoopLogger{}
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = telemetry.NoopMetrics{}
	}
	tracer := opts.Tracer
	if tracer == nil {
		tracer = telemetry.NoopTracer{}
	}

	searcher, err := records.NewRestricted(opts.Searcher, opts.Config.RestrictedColumns)
	if err != nil {
		return nil, err
	}
	resolver, err := resolve.New(resolve.Options{
		Searcher: searcher,
		Timeout:  opts.ResolveTimeout,
		Logger:   logger,
	})
	if err != nil {
		return nil, err
	}
	validator, err := routes.NewValidator(opts.Config)
	if err != nil {
		return nil, err
	}
	prompts, err := prompt.NewBuilder(opts.Config)
	if err != nil {
		return nil, err
	}
	planner, err := plan.New(plan.Options{
		Config:         opts.Config,
		Predictor:      opts.Predictor,
		Resolver:       resolver,
		Validator:      validator,
		Prompts:        prompts,
		PredictTimeout: opts.PredictTimeout,
		Logger:         logger,
	})
	if err != nil {
		return nil, err
	}

	request := cache.NewRequest(cache.RequestOptions{
		Store:  opts.RequestStore,
		TTL:    opts.RequestTTL,
		Logger: logger,
	})
	structural, err := cache.NewStructural(cache.StructuralOptions{
		Rebinder: rebinder{resolver: resolver},
		Valid:    validator.Valid,
		TTL:      opts.StructuralTTL,
		Logger:   logger,
	})
	if err != nil {
		return nil, err
	}

	return &Service{
		cfg:       opts.Config,
		planner:   planner,
		resolver:  resolver,
		validator: validator,
		caches:    cache.NewDual(request, structural),
		logger:    logger,
		metrics:   metrics,
		tracer:    tracer,
		now:       time.Now,
	}, nil
}

// Plan handles one planning request.
func (s *Service) Plan(ctx context.Context, req Request) (Response, error) {
	start := s.now()
	ctx, span := s.tracer.Start(ctx, "router.plan")
	defer span.End()

	requestID := uuid.NewString()
	if err := validateRequest(req); err != nil {
		s.metrics.IncCounter("router.plan.rejected", 1)
		return Response{}, err
	}

	normalized := normalize.Query(req.Query)
	key := cache.RequestKey(normalized, req.UserID, req.UserRole)

	if resp, ok := s.fromRequestCache(ctx, key, start); ok {
		s.observe(ctx, requestID, resp, start)
		return resp, nil
	}
	if resp, ok := s.fromStructuralCache(ctx, req, key, start); ok {
		s.observe(ctx, requestID, resp, start)
		return resp, nil
	}

	resp, err := s.planMiss(ctx, req, key, start)
	if err != nil {
		s.logger.Error(ctx, "planning failed", "request_id", requestID, "error", err.Error())
		return Response{}, err
	}
	s.observe(ctx, requestID, resp, start)
	return resp, nil
}

func validateRequest(req Request) error {
	if strings.TrimSpace(req.Query) == "" {
		return fmt.Errorf("%w: query is required", ErrMalformedQuery)
	}
	if utf8.RuneCountInString(req.Query) > MaxQueryLength {
		return fmt.Errorf("%w: query exceeds %d characters", ErrMalformedQuery, MaxQueryLength)
	}
	return nil
}

// fromRequestCache replays a stored response, restamping only the volatile
// performance fields.
func (s *Service) fromRequestCache(ctx context.Context, key string, start time.Time) (Response, bool) {
	payload, ok := s.caches.GetRequest(ctx, key)
	if !ok {
		return Response{}, false
	}
	var resp Response
	if err := json.Unmarshal(payload, &resp); err != nil {
		s.logger.Warn(ctx, "request cache entry corrupt", "error", err.Error())
		return Response{}, false
	}
	// Only the volatile fields are restamped; everything else, the latency
	// level included, replays exactly as stored.
	resp.Performance.DurationMS = s.now().Sub(start).Milliseconds()
	resp.Performance.CacheHits = 1
	resp.Performance.CacheType = "request"
	return resp, true
}

// fromStructuralCache rebuilds a plan from a structural template, then
// re-applies validation and the RBAC clamp for the current caller.
func (s *Service) fromStructuralCache(ctx context.Context, req Request, key string, start time.Time) (Response, bool) {
	rebuilt, ok := s.caches.LookupStructural(ctx, req.Query)
	if !ok {
		return Response{}, false
	}
	if !s.validator.Valid(rebuilt.Route) {
		return Response{}, false
	}
	// The template stores only the primary plan; alternatives are synthesized
	// here so a structural hit answers the same as a miss would.
	alts := s.planner.Alternatives(req.Query, rebuilt, MaxAlternativesLimit)
	s.applyRBAC(&rebuilt, req.UserRole)
	resp := s.buildResponse(req, rebuilt, alts, start, Performance{
		LLMCalls:  0,
		CacheHits: 1,
		CacheType: "structural",
	})
	s.storeAsync(ctx, req, key, resp)
	return resp, true
}

// planMiss runs the planner. Concurrent requests with the same cache key
// share one planner invocation.
func (s *Service) planMiss(ctx context.Context, req Request, key string, start time.Time) (Response, error) {
	type planned struct {
		plan plan.ActionPlan
		alts []plan.Alternative
	}
	v, err, _ := s.flight.Do(key, func() (any, error) {
		p, err := s.planner.Plan(ctx, req.Query, req.Context)
		if err != nil {
			return nil, err
		}
		alts := s.planner.Alternatives(req.Query, p, MaxAlternativesLimit)
		return planned{plan: p, alts: alts}, nil
	})
	if err != nil {
		return Response{}, err
	}
	got := v.(planned)

	// Store the structural template before the per-caller clamp: RBAC is
	// re-applied on every structural hit.
	s.storeStructuralAsync(ctx, req.Query, got.plan)

	p := got.plan
	s.applyRBAC(&p, req.UserRole)

	resp := s.buildResponse(req, p, got.alts, start, Performance{
		LLMCalls:  1,
		CacheHits: 0,
		CacheType: "none",
	})
	s.storeAsync(ctx, req, key, resp)
	return resp, nil
}

// applyRBAC clamps confidence to zero when the matched pattern requires a
// role the caller does not hold. The route stays visible.
func (s *Service) applyRBAC(p *plan.ActionPlan, role string) {
	pattern, ok := s.validator.Match(p.Route)
	if !ok || len(pattern.RequiredRoles) == 0 {
		return
	}
	for _, r := range pattern.RequiredRoles {
		if r == role {
			return
		}
	}
	p.Confidence = 0
	if p.Reasoning != "" && !strings.HasSuffix(p.Reasoning, " ") {
		p.Reasoning += " "
	}
	p.Reasoning += accessDeniedNote
}

func (s *Service) buildResponse(req Request, p plan.ActionPlan, alts []plan.Alternative, start time.Time, perf Performance) Response {
	if len(alts) > req.MaxAlts() {
		alts = alts[:req.MaxAlts()]
	}
	if alts == nil {
		alts = []plan.Alternative{}
	}
	p.Alternatives = nil
	d := s.now().Sub(start)
	perf.DurationMS = d.Milliseconds()
	perf.Level = LatencyLevel(d)
	return Response{
		Success:      true,
		ActionPlan:   p,
		Alternatives: alts,
		Performance:  perf,
		Metadata: Metadata{
			QueryLength: utf8.RuneCountInString(req.Query),
			UserID:      req.UserID,
			UserRole:    req.UserRole,
			Timestamp:   s.now().UTC(),
		},
	}
}

// storeAsync persists the response in the request tier off the request path.
func (s *Service) storeAsync(ctx context.Context, req Request, key string, resp Response) {
	payload, err := json.Marshal(resp)
	if err != nil {
		s.logger.Warn(ctx, "response marshal failed", "error", err.Error())
		return
	}
	bg := context.WithoutCancel(ctx)
	s.stores.Add(1)
	go func() {
		defer s.stores.Done()
		s.caches.SetRequest(bg, key, payload)
	}()
}

func (s *Service) storeStructuralAsync(ctx context.Context, query string, p plan.ActionPlan) {
	bg := context.WithoutCancel(ctx)
	s.stores.Add(1)
	go func() {
		defer s.stores.Done()
		s.caches.StoreStructural(bg, query, p)
	}()
}

// Flush waits for pending cache writes. Mainly for tests and shutdown.
func (s *Service) Flush() {
	s.stores.Wait()
}

func (s *Service) observe(ctx context.Context, requestID string, resp Response, start time.Time) {
	d := s.now().Sub(start)
	s.statsMu.Lock()
	s.requests++
	s.totalDuration += d
	s.totalConfidence += resp.ActionPlan.Confidence
	s.statsMu.Unlock()
	s.metrics.IncCounter("router.plan.requests", 1, "cache", resp.Performance.CacheType)
	s.metrics.RecordTimer("router.plan.duration", d, "cache", resp.Performance.CacheType)
	s.logger.Info(ctx, "planned",
		"request_id", requestID,
		"route", resp.ActionPlan.Route,
		"action", string(resp.ActionPlan.ActionKind),
		"confidence", fmt.Sprintf("%.2f", resp.ActionPlan.Confidence),
		"cache", resp.Performance.CacheType,
		"duration_ms", resp.Performance.DurationMS,
	)
}

// ValidateRoute reports whether a route conforms to a configured pattern,
// and which one.
func (s *Service) ValidateRoute(route string) (site.RoutePattern, bool) {
	return s.validator.Match(route)
}

// Stats reports request totals and cache statistics.
func (s *Service) Stats(ctx context.Context) Stats {
	out := Stats{Cache: s.caches.Stats(ctx)}
	s.statsMu.Lock()
	out.Requests = s.requests
	if s.requests > 0 {
		out.AvgDurationMS = float64(s.totalDuration.Milliseconds()) / float64(s.requests)
		out.AvgConfidence = s.totalConfidence / float64(s.requests)
	}
	s.statsMu.Unlock()
	return out
}

// StructuralKeys returns up to n structural cache keys for debugging.
func (s *Service) StructuralKeys(n int) []string {
	return s.caches.StructuralKeys(n)
}

// ClearCaches empties both cache tiers.
func (s *Service) ClearCaches(ctx context.Context) error {
	return s.caches.ClearAll(ctx)
}

// rebinder adapts the entity resolver to the structural cache's slot
// filling.
type rebinder struct {
	resolver *resolve.Resolver
}

func (r rebinder) Rebind(ctx context.Context, mention, table string, fields []string) (string, string, bool) {
	if len(fields) == 0 {
		fields = []string{"name"}
	}
	matches, err := r.resolver.Resolve(ctx, mention, []string{table}, fields, 1)
	if err != nil || len(matches) == 0 {
		return "", "", false
	}
	m := matches[0]
	if m.Confidence < 0.5 || m.ID == "" {
		return "", "", false
	}
	return m.ID, m.Name, true
}
