package ffi

import (
	"context"
	"sync/atomic"
	"time"

	"go.opencensus.io/stats"
	"go.opencensus.io/stats/view"
	"go.opencensus.io/tag"
)

var (
	opKey, _     = tag.NewKey("op")
	resultKey, _ = tag.NewKey("result")
	pre          = "porep_ffi_"
)

var outstandingHandles atomic.Int64

var Measures = struct {
	Outstanding *stats.Int64Measure
	Calls       *stats.Int64Measure
}{
	Outstanding: stats.Int64(pre+"outstanding_handles", "Number of handles not yet released by the host", stats.UnitDimensionless),
	Calls:       stats.Int64(pre+"calls", "Boundary calls by operation and result", stats.UnitDimensionless),
}

func init() {
	err := view.Register(
		&view.View{Measure: Measures.Outstanding, Aggregation: view.LastValue()},
		&view.View{Measure: Measures.Calls, Aggregation: view.Count(), TagKeys: []tag.Key{opKey, resultKey}},
	)
	if err != nil {
		panic(err)
	}

	go func() {
		for {
			stats.Record(context.Background(), Measures.Outstanding.M(outstandingHandles.Load()))

			time.Sleep(5 * time.Second)
		}
	}()
}

func recordCall(op string, err error) {
	res := "ok"
	if err != nil {
		res = errorKind(err)
	}
	_ = stats.RecordWithTags(context.Background(), []tag.Mutator{tag.Upsert(opKey, op), tag.Upsert(resultKey, res)}, Measures.Calls.M(1))
}
