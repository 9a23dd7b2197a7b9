package main

import (
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

// plotResults renders per-engine latency bars, grouped by operation.
func plotResults(results []BenchResult, path string) error {
	p := plot.New()
	p.Title.Text = "secondary index latency"
	p.Y.Label.Text = "ns / op"

	ops := []string{"Build", "RangeScan"}
	engines := []string{"btindex", "pebble"}

	byKey := make(map[string]int64, len(results))
	for _, r := range results {
		byKey[r.Engine+"/"+r.Operation] = r.LatencyNs
	}

	w := vg.Points(24)
	offsets := []vg.Length{-w / 2, w / 2}
	for ei, engine := range engines {
		values := make(plotter.Values, len(ops))
		for oi, op := range ops {
			values[oi] = float64(byKey[engine+"/"+op])
		}
		bars, err := plotter.NewBarChart(values, w)
		if err != nil {
			return err
		}
		bars.Offset = offsets[ei]
		bars.Color = plotutil.Color(ei)
		p.Add(bars)
		p.Legend.Add(engine, bars)
	}

	p.NominalX(ops...)
	p.Legend.Top = true
	return p.Save(6*vg.Inch, 4*vg.Inch, path)
}
