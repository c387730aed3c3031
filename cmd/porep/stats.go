package main

import (
	"strings"

	"github.com/samber/lo"
	"go.opencensus.io/stats/view"
	"go.opencensus.io/tag"
)

// logExporter writes every reported view row to the log.
type logExporter struct{}

func (logExporter) ExportView(vd *view.Data) {
	for _, row := range vd.Rows {
		tags := strings.Join(lo.Map(row.Tags, func(t tag.Tag, _ int) string {
			return t.Key.Name() + "=" + t.Value
		}), ",")

		switch d := row.Data.(type) {
		case *view.CountData:
			log.Infow("stat", "view", vd.View.Name, "tags", tags, "count", d.Value)
		case *view.LastValueData:
			log.Infow("stat", "view", vd.View.Name, "tags", tags, "value", d.Value)
		case *view.DistributionData:
			log.Infow("stat", "view", vd.View.Name, "tags", tags, "count", d.Count, "mean", d.Mean, "max", d.Max)
		default:
			log.Infow("stat", "view", vd.View.Name, "tags", tags)
		}
	}
}
