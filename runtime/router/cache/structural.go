package cache

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/wayfind-labs/wayfind/runtime/router/plan"
	"github.com/wayfind-labs/wayfind/runtime/router/telemetry"
)

// DefaultStructuralTTL is the structural-tier entry lifetime.
const DefaultStructuralTTL = 30 * time.Minute

type (
	// Rebinder resolves an entity mention extracted from a query into a
	// concrete record, scoped to the table the original entity came from.
	// Used to fill {ENTITY_ID_i} slots on a structural hit.
	Rebinder interface {
		Rebind(ctx context.Context, mention, table string, fields []string) (id, name string, ok bool)
	}

	// RouteChecker reports whether a rebuilt route is valid. Structural
	// entries are stored and replayed only for valid routes.
	RouteChecker func(route string) bool

	// entitySlot links an {ENTITY_ID_i} route slot to the query placeholder
	// whose value must be re-resolved to fill it.
	entitySlot struct {
		idPlaceholder   string
		namePlaceholder string
		table           string
		fields          []string
	}

	// entry is one stored structural template. The plan inside carries
	// placeholders in its string slots; substitution happens field by field,
	// never over a serialized form.
	entry struct {
		key      string
		template plan.ActionPlan
		slots    []entitySlot
		expires  time.Time
	}

	// Structural is the structural-template tier.
	Structural struct {
		rebinder Rebinder
		valid    RouteChecker
		ttl      time.Duration
		logger   telemetry.Logger
		now      func() time.Time

		mu       sync.Mutex
		byQuery  map[string][]*entry
		hits     uint64
		misses   uint64
	}

	// StructuralOptions configures a Structural tier.
	StructuralOptions struct {
		// Rebinder fills entity slots on a hit. Required when entries carry
		// entities.
		Rebinder Rebinder

		// Valid reports route validity. Required.
		Valid RouteChecker

		// TTL defaults to DefaultStructuralTTL.
		TTL time.Duration

		// Logger defaults to a no-op logger.
		Logger telemetry.Logger
	}
)

// NewStructural builds the structural tier.
func NewStructural(opts StructuralOptions) (*Structural, error) {
	if opts.Valid == nil {
		return nil, fmt.Errorf("route checker is required")
	}
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = DefaultStructuralTTL
	}
	logger := opts.Logger
	if logger == nil {
		logger = telemetry.NoopLogger{}
	}
	return &Structural{
		rebinder: opts.Rebinder,
		valid:    opts.Valid,
		ttl:      ttl,
		logger:   logger,
		now:      time.Now,
		byQuery:  make(map[string][]*entry),
	}, nil
}

// Store derives the structural template of (query, plan) and records it. The
// entry is created only when the plan's route is valid and every entity
// identifier in the route could be linked to a query placeholder.
func (s *Structural) Store(ctx context.Context, query string, p plan.ActionPlan) {
	if p.Route == "" || HasPlaceholder(p.Route) || !s.valid(p.Route) {
		return
	}
	templated := TemplateQuery(query)
	tpl, slots, ok := templatize(p, templated)
	if !ok {
		return
	}
	key := templated.Query + "|" + tpl.Route
	e := &entry{key: key, template: tpl, slots: slots, expires: s.now().Add(s.ttl)}

	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.byQuery[templated.Query]
	for i, existing := range list {
		if existing.key == key {
			list[i] = e
			return
		}
	}
	s.byQuery[templated.Query] = append(list, e)
}

// Lookup probes the tier with a query. On a hit the stored template is
// rebuilt: placeholder values are extracted from the query, entity slots are
// re-resolved through the Rebinder, and the route is checked again. An entry
// whose rebuilt route is invalid or still carries a slot is skipped.
func (s *Structural) Lookup(ctx context.Context, query string) (plan.ActionPlan, bool) {
	templated := TemplateQuery(query)

	s.mu.Lock()
	list := s.evictExpiredLocked(templated.Query)
	candidates := make([]*entry, len(list))
	copy(candidates, list)
	s.mu.Unlock()

	for _, e := range candidates {
		rebuilt, ok := s.rebuild(ctx, e, templated)
		if !ok {
			continue
		}
		s.count(true)
		return rebuilt, true
	}
	s.count(false)
	return plan.ActionPlan{}, false
}

func (s *Structural) rebuild(ctx context.Context, e *entry, templated Templated) (plan.ActionPlan, bool) {
	bindings := make(map[string]string, len(templated.Values)+len(e.slots))
	for ph, value := range templated.Values {
		bindings[ph] = value
	}
	for _, slot := range e.slots {
		mention, ok := templated.Values[slot.namePlaceholder]
		if !ok {
			return plan.ActionPlan{}, false
		}
		id, name, ok := s.rebindEntity(ctx, mention, slot)
		if !ok {
			return plan.ActionPlan{}, false
		}
		bindings[slot.idPlaceholder] = id
		bindings[slot.namePlaceholder] = name
	}

	rebuilt := substitutePlan(e.template, bindings)
	if HasPlaceholder(rebuilt.Route) || !s.valid(rebuilt.Route) {
		return plan.ActionPlan{}, false
	}
	return rebuilt, true
}

func (s *Structural) rebindEntity(ctx context.Context, mention string, slot entitySlot) (id, name string, ok bool) {
	if s.rebinder == nil {
		return "", "", false
	}
	return s.rebinder.Rebind(ctx, mention, slot.table, slot.fields)
}

// evictExpiredLocked drops expired entries for the templated query and
// returns the survivors. Caller holds the mutex.
func (s *Structural) evictExpiredLocked(templatedQuery string) []*entry {
	list := s.byQuery[templatedQuery]
	if len(list) == 0 {
		return nil
	}
	now := s.now()
	live := list[:0]
	for _, e := range list {
		if now.After(e.expires) {
			continue
		}
		live = append(live, e)
	}
	if len(live) == 0 {
		delete(s.byQuery, templatedQuery)
		return nil
	}
	s.byQuery[templatedQuery] = live
	return live
}

// Clear empties the tier.
func (s *Structural) Clear(context.Context) error {
	s.mu.Lock()
	s.byQuery = make(map[string][]*entry)
	s.mu.Unlock()
	return nil
}

// Len returns the number of live entries.
func (s *Structural) Len(context.Context) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	n := 0
	for _, list := range s.byQuery {
		for _, e := range list {
			if !now.After(e.expires) {
				n++
			}
		}
	}
	return n
}

// Keys returns up to n structural keys for debugging, in unspecified order.
func (s *Structural) Keys(n int) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, n)
	for _, list := range s.byQuery {
		for _, e := range list {
			if len(out) == n {
				return out
			}
			out = append(out, e.key)
		}
	}
	return out
}

// Counters returns the accumulated hit and miss counts.
func (s *Structural) Counters() (hits, misses uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits, s.misses
}

func (s *Structural) count(hit bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if hit {
		s.hits++
	} else {
		s.misses++
	}
}

// templatize rewrites the plan's string slots with placeholders: entity IDs
// in the route, parameter values, and entity names. Each entity appearing in
// the route is linked to the query placeholder carrying its mention; an
// entity ID in the route with no linkable placeholder aborts templating.
func templatize(p plan.ActionPlan, templated Templated) (plan.ActionPlan, []entitySlot, bool) {
	tpl := clonePlan(p)
	var slots []entitySlot

	for i, ent := range tpl.Entities {
		if ent.ID == "" || !containsSegment(tpl.Route, ent.ID) {
			continue
		}
		namePH, ok := placeholderForMention(templated, ent.Name)
		if !ok {
			return plan.ActionPlan{}, nil, false
		}
		idPH := fmt.Sprintf("{ENTITY_ID_%d}", len(slots))
		slots = append(slots, entitySlot{
			idPlaceholder:   idPH,
			namePlaceholder: namePH,
			table:           ent.Table,
			fields:          ent.MatchedFields,
		})

		tpl.Route = replaceSegment(tpl.Route, ent.ID, idPH)
		for j := range tpl.Parameters {
			if tpl.Parameters[j].Value == ent.ID {
				tpl.Parameters[j].Value = idPH
			}
		}
		tpl.Entities[i].ID = idPH
		tpl.Entities[i].Name = namePH
		// The raw row belongs to the original entity, not to whatever the
		// slot rebinds to later.
		tpl.Entities[i].Row = nil
	}
	return tpl, slots, true
}

// placeholderForMention finds the query placeholder whose extracted value
// names the entity: equal, contained, or sharing a token.
func placeholderForMention(templated Templated, name string) (string, bool) {
	lowered := strings.ToLower(name)
	best := ""
	for ph, value := range templated.Values {
		if !strings.HasPrefix(ph, "{PERSON_") {
			continue
		}
		v := strings.ToLower(value)
		switch {
		case v == lowered:
			return ph, true
		case strings.Contains(lowered, v) || strings.Contains(v, lowered) || sharesToken(v, lowered):
			if best == "" || ph < best {
				best = ph
			}
		}
	}
	return best, best != ""
}

func sharesToken(a, b string) bool {
	tokens := make(map[string]bool)
	for _, t := range strings.Fields(a) {
		tokens[t] = true
	}
	for _, t := range strings.Fields(b) {
		if tokens[t] {
			return true
		}
	}
	return false
}

// substitutePlan fills placeholders in the plan's string slots. Reasoning is
// left untouched: substituting into free text invites accidental matches.
func substitutePlan(tpl plan.ActionPlan, bindings map[string]string) plan.ActionPlan {
	out := clonePlan(tpl)
	for ph, value := range bindings {
		out.Route = strings.ReplaceAll(out.Route, ph, value)
	}
	for i := range out.Parameters {
		if v, ok := bindings[out.Parameters[i].Value]; ok {
			out.Parameters[i].Value = v
		}
	}
	for i := range out.Entities {
		if v, ok := bindings[out.Entities[i].ID]; ok {
			out.Entities[i].ID = v
		}
		if v, ok := bindings[out.Entities[i].Name]; ok {
			out.Entities[i].Name = v
		}
	}
	return out
}

func clonePlan(p plan.ActionPlan) plan.ActionPlan {
	out := p
	out.Parameters = append([]plan.RouteParameter(nil), p.Parameters...)
	out.Entities = append([]plan.EntityMatch(nil), p.Entities...)
	out.Alternatives = append([]plan.Alternative(nil), p.Alternatives...)
	return out
}

// containsSegment reports whether the route carries the value as a whole
// path segment.
func containsSegment(route, value string) bool {
	for _, seg := range strings.Split(route, "/") {
		if seg == value {
			return true
		}
	}
	return false
}

func replaceSegment(route, value, replacement string) string {
	segs := strings.Split(route, "/")
	for i, seg := range segs {
		if seg == value {
			segs[i] = replacement
		}
	}
	return strings.Join(segs, "/")
}
