// Package commute loads origin-destination commuting records and aggregates
// them to county-pair totals within the modeled jurisdictions.
package commute

import (
	"math"
	"sort"

	"github.com/rotisserie/eris"

	"github.com/sells-group/spatial-prep/internal/fips"
)

// ErrMalformedFlow marks a commuting record that cannot be interpreted.
var ErrMalformedFlow = eris.New("commute: malformed flow")

// Flow is one raw commuting record. Origin and Destination are full
// geographic identifiers whose first 2 characters are the jurisdiction part
// and first 5 the county code.
type Flow struct {
	Origin      string
	Destination string
	Volume      float64
}

// Pair identifies an ordered county pair.
type Pair struct {
	Origin      int64
	Destination int64
}

// PairFlow is the total flow observed for one ordered county pair.
type PairFlow struct {
	Origin      int64
	Destination int64
	Flow        float64
}

// Aggregator filters flows to the modeled jurisdictions and sums them per
// county pair. Batches may be added in any order; totals do not depend on it.
type Aggregator struct {
	modeled map[string]bool
	totals  map[Pair]float64
	seen    int
	kept    int
}

// NewAggregator creates an Aggregator for the given modeled jurisdictions.
func NewAggregator(js []fips.Jurisdiction) *Aggregator {
	modeled := make(map[string]bool, len(js))
	for _, j := range js {
		modeled[j.FIPS] = true
	}
	return &Aggregator{modeled: modeled, totals: make(map[Pair]float64)}
}

// Add folds a batch of flows into the totals. Flows whose origin or
// destination lies outside the modeled set are skipped; cross-jurisdiction
// flows between two modeled jurisdictions are kept.
func (a *Aggregator) Add(flows ...Flow) error {
	for _, f := range flows {
		a.seen++

		if math.IsNaN(f.Volume) || math.IsInf(f.Volume, 0) || f.Volume < 0 {
			return eris.Wrapf(ErrMalformedFlow, "volume %v for %s->%s", f.Volume, f.Origin, f.Destination)
		}

		ost, oco, err := fips.SplitFull(f.Origin)
		if err != nil {
			return eris.Wrapf(ErrMalformedFlow, "origin: %v", err)
		}
		dst, dco, err := fips.SplitFull(f.Destination)
		if err != nil {
			return eris.Wrapf(ErrMalformedFlow, "destination: %v", err)
		}
		if !a.modeled[ost] || !a.modeled[dst] {
			continue
		}

		oid, err := fips.CountyID(ost, oco)
		if err != nil {
			return eris.Wrapf(ErrMalformedFlow, "origin: %v", err)
		}
		did, err := fips.CountyID(dst, dco)
		if err != nil {
			return eris.Wrapf(ErrMalformedFlow, "destination: %v", err)
		}

		a.totals[Pair{Origin: oid, Destination: did}] += f.Volume
		a.kept++
	}
	return nil
}

// Stats returns how many flows were seen and how many survived filtering.
func (a *Aggregator) Stats() (seen, kept int) {
	return a.seen, a.kept
}

// Pairs returns one row per observed county pair, ordered by origin then destination.
func (a *Aggregator) Pairs() []PairFlow {
	out := make([]PairFlow, 0, len(a.totals))
	for p, v := range a.totals {
		out = append(out, PairFlow{Origin: p.Origin, Destination: p.Destination, Flow: v})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Origin != out[j].Origin {
			return out[i].Origin < out[j].Origin
		}
		return out[i].Destination < out[j].Destination
	})
	return out
}

// Aggregate is a one-shot Add + Pairs.
func Aggregate(flows []Flow, js []fips.Jurisdiction) ([]PairFlow, error) {
	a := NewAggregator(js)
	if err := a.Add(flows...); err != nil {
		return nil, err
	}
	return a.Pairs(), nil
}
