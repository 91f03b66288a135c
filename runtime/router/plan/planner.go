package plan

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/wayfind-labs/wayfind/runtime/router/predictor"
	"github.com/wayfind-labs/wayfind/runtime/router/prompt"
	"github.com/wayfind-labs/wayfind/runtime/router/resolve"
	"github.com/wayfind-labs/wayfind/runtime/router/routes"
	"github.com/wayfind-labs/wayfind/runtime/router/site"
	"github.com/wayfind-labs/wayfind/runtime/router/telemetry"
)

const (
	// planTemperature keeps the predictor deterministic-ish.
	planTemperature = 0.1

	// defaultPredictTimeout bounds one predictor call.
	defaultPredictTimeout = 60 * time.Second

	// resolveMinConfidence filters weak entity candidates out of the plan.
	resolveMinConfidence = 0.5

	// resolveMaxResults bounds candidates per entity directive.
	resolveMaxResults = 5

	// repairPenalty is subtracted from confidence when the route needed
	// repair, floored at repairFloor.
	repairPenalty = 0.3
	repairFloor   = 0.1
)

type (
	// Options configures a Planner.
	Options struct {
		// Config is the site configuration. Required.
		Config *site.Configuration

		// Predictor is the model port. Required.
		Predictor predictor.Predictor

		// Resolver resolves entity mentions. Required.
		Resolver *resolve.Resolver

		// Validator validates and repairs routes. Required.
		Validator *routes.Validator

		// Prompts renders planning prompts. Required.
		Prompts *prompt.Builder

		// PredictTimeout bounds one predictor call. Defaults to 60 seconds.
		PredictTimeout time.Duration

		// Logger defaults to a no-op logger.
		Logger telemetry.Logger
	}

	// Planner produces one ActionPlan per query with a single predictor
	// call.
	Planner struct {
		cfg       *site.Configuration
		predictor predictor.Predictor
		resolver  *resolve.Resolver
		validator *routes.Validator
		prompts   *prompt.Builder
		timeout   time.Duration
		logger    telemetry.Logger
	}
)

// New builds a Planner.
func New(opts Options) (*Planner, error) {
	if opts.Config == nil {
		return nil, errors.New("config is required")
	}
	if opts.Predictor == nil {
		return nil, errors.New("predictor is required")
	}
	if opts.Resolver == nil {
		return nil, errors.New("resolver is required")
	}
	if opts.Validator == nil {
		return nil, errors.New("validator is required")
	}
	if opts.Prompts == nil {
		return nil, errors.New("prompt builder is required")
	}
	timeout := opts.PredictTimeout
	if timeout <= 0 {
		timeout = defaultPredictTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = telemetry.NoopLogger{}
	}
	return &Planner{
		cfg:       opts.Config,
		predictor: opts.Predictor,
		resolver:  opts.Resolver,
		validator: opts.Validator,
		prompts:   opts.Prompts,
		timeout:   timeout,
		logger:    logger,
	}, nil
}

// Plan routes one query. Predictor failures degrade to a low-confidence
// fallback plan rather than an error; the only error Plan returns is
// routes.ErrInvalidPlan, when the route is invalid and every repair failed.
func (p *Planner) Plan(ctx context.Context, query string, session map[string]any) (ActionPlan, error) {
	pred := p.predict(ctx, query, session)
	entities := p.resolveEntities(ctx, pred.EntityResolution)

	route, params := p.substitutePlaceholder(pred, entities)
	confidence := pred.Confidence()
	reasoning := pred.Reasoning
	matchedPattern := ""

	if needsRepair(route, p.validator) {
		repair, err := p.validator.Repair(route, repairEntities(entities))
		if err != nil {
			return ActionPlan{}, err
		}
		p.logger.Info(ctx, "route repaired", "from", route, "to", repair.Route)
		route = repair.Route
		matchedPattern = repair.Pattern
		if reasoning != "" {
			reasoning += "; "
		}
		reasoning += repair.Note
		confidence = confidence - repairPenalty
		if confidence < repairFloor {
			confidence = repairFloor
		}
	} else if matched, ok := p.validator.Match(route); ok {
		// Derived from the validated route, never taken from the model: the
		// model's matched_pattern can disagree with its own resolved_route.
		matchedPattern = matched.Template
	}

	return ActionPlan{
		ActionKind:     CoerceActionKind(pred.Intent.ActionType),
		Route:          route,
		Confidence:     clamp01(confidence),
		Parameters:     params,
		Entities:       entities,
		MatchedPattern: matchedPattern,
		Reasoning:      reasoning,
	}, nil
}

// predict calls the model once, converting any failure into the fallback
// prediction.
func (p *Planner) predict(ctx context.Context, query string, session map[string]any) predictor.Prediction {
	rendered := p.prompts.Build(query, session)
	pctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	pred, err := p.predictor.Predict(pctx, rendered, planTemperature)
	if err != nil {
		p.logger.Warn(ctx, "predictor failed", "error", err.Error())
		return predictor.ErrorPrediction(err.Error())
	}
	return pred
}

// resolveEntities runs the resolver for each directive. A directive that
// errors is logged and skipped; resolution failures never sink the plan.
func (p *Planner) resolveEntities(ctx context.Context, directives []predictor.EntityDirective) []EntityMatch {
	var out []EntityMatch
	for _, d := range directives {
		if strings.TrimSpace(d.EntityName) == "" {
			continue
		}
		tables, fields := p.searchTargets(d)
		matches, err := p.resolver.Resolve(ctx, d.EntityName, tables, fields, resolveMaxResults)
		if err != nil {
			p.logger.Warn(ctx, "entity resolution failed",
				"entity", d.EntityName, "error", err.Error())
			continue
		}
		for _, m := range matches {
			if m.Confidence < resolveMinConfidence {
				continue
			}
			out = append(out, matchToEntity(m))
		}
	}
	return out
}

// searchTargets fills in tables and fields from the entity definitions when
// the directive leaves them empty.
func (p *Planner) searchTargets(d predictor.EntityDirective) (tables, fields []string) {
	tables, fields = d.SearchTables, d.SearchFields
	if len(tables) == 0 {
		for _, e := range p.cfg.Entities {
			tables = append(tables, e.Table)
		}
	}
	if len(fields) == 0 {
		fields = []string{"name"}
	}
	return tables, fields
}

// substitutePlaceholder replaces the entity ID placeholder in the route and
// parameters with the first resolved entity's identifier.
func (p *Planner) substitutePlaceholder(pred predictor.Prediction, entities []EntityMatch) (string, []RouteParameter) {
	route := pred.RouteMatching.ResolvedRoute
	id := ""
	if len(entities) > 0 {
		id = entities[0].ID
	}
	if id != "" {
		route = strings.ReplaceAll(route, prompt.EntityIDPlaceholder, id)
	}
	params := make([]RouteParameter, 0, len(pred.RouteMatching.Parameters))
	for _, pv := range pred.RouteMatching.Parameters {
		value, source := pv.Value, CoerceParameterSource(pv.Source)
		if value == prompt.EntityIDPlaceholder && id != "" {
			value, source = id, "entity"
		}
		params = append(params, RouteParameter{
			Name:   pv.Name,
			Value:  value,
			Type:   string(site.CoerceParameterType(pv.Type)),
			Source: source,
		})
	}
	return route, params
}

// needsRepair reports whether the route must go through the repair ladder:
// it is invalid, still carries the entity ID placeholder, or still carries a
// template slot.
func needsRepair(route string, v *routes.Validator) bool {
	if strings.Contains(route, prompt.EntityIDPlaceholder) {
		return true
	}
	if routes.Unresolved(route) {
		return true
	}
	return !v.Valid(route)
}

func repairEntities(entities []EntityMatch) []routes.Entity {
	out := make([]routes.Entity, 0, len(entities))
	for _, e := range entities {
		out = append(out, routes.Entity{Table: e.Table, ID: e.ID, Type: e.EntityType})
	}
	return out
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
