package cache

import (
	"context"
	"sync"

	"github.com/wayfind-labs/wayfind/runtime/router/plan"
)

type (
	// Dual bundles the two tiers behind one handle. Inserts go through Dual
	// so ClearAll can be atomic with respect to them.
	Dual struct {
		request    *Request
		structural *Structural

		// gate lets ClearAll exclude concurrent inserts: inserts hold a read
		// lock, ClearAll holds the write lock across both tiers.
		gate sync.RWMutex
	}

	// Stats reports live entry and hit counts per tier.
	Stats struct {
		RequestEntries    int    `json:"request_entries"`
		RequestHits       uint64 `json:"request_hits"`
		RequestMisses     uint64 `json:"request_misses"`
		StructuralEntries int    `json:"structural_entries"`
		StructuralHits    uint64 `json:"structural_hits"`
		StructuralMisses  uint64 `json:"structural_misses"`
	}
)

// NewDual bundles the tiers.
func NewDual(request *Request, structural *Structural) *Dual {
	return &Dual{request: request, structural: structural}
}

// GetRequest probes the request tier.
func (d *Dual) GetRequest(ctx context.Context, key string) ([]byte, bool) {
	return d.request.Get(ctx, key)
}

// SetRequest stores a response payload in the request tier.
func (d *Dual) SetRequest(ctx context.Context, key string, payload []byte) {
	d.gate.RLock()
	defer d.gate.RUnlock()
	d.request.Set(ctx, key, payload)
}

// LookupStructural probes the structural tier.
func (d *Dual) LookupStructural(ctx context.Context, query string) (plan.ActionPlan, bool) {
	return d.structural.Lookup(ctx, query)
}

// StoreStructural records a plan's structural template.
func (d *Dual) StoreStructural(ctx context.Context, query string, p plan.ActionPlan) {
	d.gate.RLock()
	defer d.gate.RUnlock()
	d.structural.Store(ctx, query, p)
}

// ClearAll empties both tiers atomically with respect to inserts.
func (d *Dual) ClearAll(ctx context.Context) error {
	d.gate.Lock()
	defer d.gate.Unlock()
	if err := d.request.Clear(ctx); err != nil {
		return err
	}
	return d.structural.Clear(ctx)
}

// Stats reports per-tier counts.
func (d *Dual) Stats(ctx context.Context) Stats {
	reqHits, reqMisses := d.request.Counters()
	strHits, strMisses := d.structural.Counters()
	return Stats{
		RequestEntries:    d.request.Len(ctx),
		RequestHits:       reqHits,
		RequestMisses:     reqMisses,
		StructuralEntries: d.structural.Len(ctx),
		StructuralHits:    strHits,
		StructuralMisses:  strMisses,
	}
}

// StructuralKeys returns up to n structural keys for debugging.
func (d *Dual) StructuralKeys(n int) []string {
	return d.structural.Keys(n)
}
