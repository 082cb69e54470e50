package report

import (
	"fmt"
	"image/color"
	"io"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/balance-lab/forceplate/internal/db"
	"github.com/balance-lab/forceplate/internal/scale"
)

// axisLimit bounds both CoP axes; the projection stays within [-1, 1].
const axisLimit = 1.5

// WritePNG saves the CoP trail of samples as a PNG at path, with the last
// position marked.
func WritePNG(path, title string, samples []db.Sample) error {
	if len(samples) == 0 {
		return ErrNoSamples
	}
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "X"
	p.Y.Label.Text = "Y"
	p.X.Min, p.X.Max = -axisLimit, axisLimit
	p.Y.Min, p.Y.Max = -axisLimit, axisLimit
	p.Add(plotter.NewGrid())

	pts := make(plotter.XYs, len(samples))
	for i, s := range samples {
		pts[i] = plotter.XY{X: s.CoP.X, Y: s.CoP.Y}
	}
	trail, err := plotter.NewLine(pts)
	if err != nil {
		return err
	}
	trail.Color = color.RGBA{B: 255, A: 128}
	trail.Width = vg.Points(1)

	last, err := plotter.NewScatter(pts[len(pts)-1:])
	if err != nil {
		return err
	}
	last.Color = color.RGBA{R: 255, A: 255}
	last.Radius = vg.Points(5)

	p.Add(trail, last)
	p.Legend.Add("History Trail", trail)
	p.Legend.Add("Current Position", last)
	p.Legend.Top = true

	if err := p.Save(6*vg.Inch, 6*vg.Inch, path); err != nil {
		return fmt.Errorf("save CoP plot: %w", err)
	}
	return nil
}

// WriteHTML renders an interactive page with the CoP trace and, for weights
// recordings, the per-corner weights over time.
func WriteHTML(w io.Writer, title string, samples []db.Sample) error {
	if len(samples) == 0 {
		return ErrNoSamples
	}
	sum, err := Summarize(samples)
	if err != nil {
		return err
	}

	trace := make([]opts.ScatterData, len(samples))
	for i, s := range samples {
		trace[i] = opts.ScatterData{Value: []interface{}{s.CoP.X, s.CoP.Y}}
	}
	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: title, Width: "720px", Height: "720px"}),
		charts.WithTitleOpts(opts.Title{Title: "Centre of Pressure", Subtitle: sum.String()}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Min: -axisLimit, Max: axisLimit, Name: "X", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Min: -axisLimit, Max: axisLimit, Name: "Y", NameLocation: "middle", NameGap: 30}),
	)
	scatter.AddSeries("cop", trace, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 4}))

	page := components.NewPage()
	page.PageTitle = title
	page.AddCharts(scatter)

	if samples[0].Weights != nil {
		page.AddCharts(weightsChart(samples))
	}
	return page.Render(w)
}

func weightsChart(samples []db.Sample) *charts.Line {
	start := samples[0].At
	xs := make([]string, len(samples))
	var series [4][]opts.LineData
	for i, s := range samples {
		xs[i] = fmt.Sprintf("%.2f", s.At.Sub(start).Seconds())
		for c := range series {
			var v float64
			if s.Weights != nil {
				v = s.Weights[c]
			}
			series[c] = append(series[c], opts.LineData{Value: v})
		}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "900px", Height: "400px"}),
		charts.WithTitleOpts(opts.Title{Title: "Corner weights (lbs)"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "s"}),
	)
	line.SetXAxis(xs)
	for c, data := range series {
		line.AddSeries(scale.CornerNames[c], data)
	}
	return line
}
