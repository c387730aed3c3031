package sdr

import (
	"context"
	"sync/atomic"
	"time"

	"go.opencensus.io/stats"
	"go.opencensus.io/stats/view"
	"go.opencensus.io/tag"
)

var (
	phaseKey, _  = tag.NewKey("phase")
	resultKey, _ = tag.NewKey("result")
	pre          = "porep_"
)

var activePhases = map[string]*atomic.Int64{
	"seal":   new(atomic.Int64),
	"tree_d": new(atomic.Int64),
	"labels": new(atomic.Int64),
	"encode": new(atomic.Int64),
	"tree_c": new(atomic.Int64),
	"tree_r": new(atomic.Int64),
	"prove":  new(atomic.Int64),
	"verify": new(atomic.Int64),
	"unseal": new(atomic.Int64),
}

var Measures = struct {
	ActivePhase   *stats.Int64Measure
	PhaseDuration *stats.Float64Measure
	Verifications *stats.Int64Measure
}{
	ActivePhase:   stats.Int64(pre+"active", "Number of operations in each phase", stats.UnitDimensionless),
	PhaseDuration: stats.Float64(pre+"phase_duration_ms", "Duration of each phase", stats.UnitMilliseconds),
	Verifications: stats.Int64(pre+"verifications", "Verification results", stats.UnitDimensionless),
}

var Views = []*view.View{
	{Measure: Measures.ActivePhase, Aggregation: view.LastValue(), TagKeys: []tag.Key{phaseKey}},
	{Measure: Measures.PhaseDuration, Aggregation: view.Distribution(1, 10, 100, 1000, 10000, 60000, 600000), TagKeys: []tag.Key{phaseKey}},
	{Measure: Measures.Verifications, Aggregation: view.Count(), TagKeys: []tag.Key{resultKey}},
}

func init() {
	if err := view.Register(Views...); err != nil {
		panic(err)
	}
}

// trackPhase marks phase active and returns a func recording its duration.
func trackPhase(ctx context.Context, phase string) func() {
	start := time.Now()
	ctr := activePhases[phase]
	_ = stats.RecordWithTags(ctx, []tag.Mutator{tag.Upsert(phaseKey, phase)}, Measures.ActivePhase.M(ctr.Add(1)))

	return func() {
		mut := []tag.Mutator{tag.Upsert(phaseKey, phase)}
		_ = stats.RecordWithTags(ctx, mut, Measures.ActivePhase.M(ctr.Add(-1)))
		_ = stats.RecordWithTags(ctx, mut, Measures.PhaseDuration.M(float64(time.Since(start).Milliseconds())))
		log.Debugw("phase done", "phase", phase, "took", time.Since(start))
	}
}

func recordVerification(ctx context.Context, ok bool) {
	res := "reject"
	if ok {
		res = "accept"
	}
	_ = stats.RecordWithTags(ctx, []tag.Mutator{tag.Upsert(resultKey, res)}, Measures.Verifications.M(1))
}
