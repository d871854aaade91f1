package graphing

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"strings"

	"ProcGraph/pkg/exporting"
	"ProcGraph/pkg/utilization"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

const (
	defaultWidth  = 12 * vg.Inch
	defaultHeight = 4 * vg.Inch

	mib = 1 << 20
)

// seriesLabel names a series in legends.
func seriesLabel(s utilization.Series) string {
	return fmt.Sprintf("pid %d", s.PID)
}

// createUtilizationChart plots CPU percent against seconds since the first
// sample, one line per process.
func createUtilizationChart(res *utilization.Result) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: "CPU Utilization", Subtitle: "% of one CPU"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Type: "scroll", Top: "bottom"}),
		charts.WithXAxisOpts(opts.XAxis{Type: "value", Name: "Time (s)"}),
		charts.WithYAxisOpts(opts.YAxis{Type: "value", Name: "%"}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider", Start: 0, End: 100}),
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "500px"}),
	)
	for _, s := range res.Series {
		data := make([]opts.LineData, len(s.Points))
		for i, p := range s.Points {
			data[i] = opts.LineData{Value: []interface{}{p.Offset, p.Utilization * 100}}
		}
		line.AddSeries(seriesLabel(s), data,
			charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}),
		)
	}
	return line
}

// createMemoryChart plots resident memory in MiB.
func createMemoryChart(res *utilization.Result) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: "Resident Memory", Subtitle: "MiB"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Type: "scroll", Top: "bottom"}),
		charts.WithXAxisOpts(opts.XAxis{Type: "value", Name: "Time (s)"}),
		charts.WithYAxisOpts(opts.YAxis{Type: "value", Name: "MiB"}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider", Start: 0, End: 100}),
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "400px"}),
	)
	for _, s := range res.Series {
		data := make([]opts.LineData, len(s.Points))
		for i, p := range s.Points {
			data[i] = opts.LineData{Value: []interface{}{p.Offset, float64(p.RSS) / mib}}
		}
		line.AddSeries(seriesLabel(s), data,
			charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}),
		)
	}
	line.SetSeriesOptions(charts.WithAreaStyleOpts(opts.AreaStyle{Opacity: opts.Float(0.1)}))
	return line
}

// RenderUtilizationHTML writes a standalone page with the utilization and
// memory charts and a per-process summary table.
func RenderUtilizationHTML(w io.Writer, title string, res *utilization.Result) error {
	if len(res.Series) == 0 {
		return fmt.Errorf("no usage samples to chart")
	}

	page := components.NewPage()
	page.PageTitle = title
	page.AddCharts(createUtilizationChart(res), createMemoryChart(res))

	var buf strings.Builder
	if err := page.Render(&buf); err != nil {
		return fmt.Errorf("failed to render charts: %w", err)
	}

	summary, err := renderSummaryHTML(title, Summarize(res))
	if err != nil {
		return err
	}
	styles, err := renderStylesAndScripts()
	if err != nil {
		return err
	}

	html := buf.String()
	html = strings.Replace(html, "<body>", "<body>\n"+summary, 1)
	html = strings.Replace(html, "</head>", styles+"</head>", 1)
	_, err = io.WriteString(w, html)
	return err
}

// SaveUtilizationHTML writes the page to path atomically.
func SaveUtilizationHTML(path, title string, res *utilization.Result) error {
	return exporting.WriteFileAtomic(path, func(w io.Writer) error {
		return RenderUtilizationHTML(w, title, res)
	})
}

// RenderUtilizationPNG draws the utilization series as a static line plot.
func RenderUtilizationPNG(w io.Writer, title string, res *utilization.Result) error {
	if len(res.Series) == 0 {
		return fmt.Errorf("no usage samples to chart")
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Time (s)"
	p.Y.Label.Text = "CPU (%)"
	p.Legend.Top = true

	for i, s := range res.Series {
		pts := make(plotter.XYs, len(s.Points))
		for j, pt := range s.Points {
			pts[j] = plotter.XY{X: pt.Offset, Y: pt.Utilization * 100}
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return fmt.Errorf("pid %d: %w", s.PID, err)
		}
		line.Color = plotutil.Color(i)
		p.Add(line)
		p.Legend.Add(seriesLabel(s), line)
	}
	p.Add(plotter.NewGrid())

	wt, err := p.WriterTo(defaultWidth, defaultHeight, "png")
	if err != nil {
		return fmt.Errorf("failed to create png writer: %w", err)
	}
	var buf bytes.Buffer
	if _, err := wt.WriteTo(&buf); err != nil {
		return fmt.Errorf("failed to encode utilization image: %w", err)
	}
	_, err = buf.WriteTo(w)
	return err
}

// SaveUtilizationPNG writes the plot to path atomically.
func SaveUtilizationPNG(path, title string, res *utilization.Result) error {
	return exporting.WriteFileAtomic(path, func(w io.Writer) error {
		return RenderUtilizationPNG(w, title, res)
	})
}

// ProcessSummary condenses one series for the report table.
type ProcessSummary struct {
	PID         int32
	PPID        int32
	Samples     int
	Duration    float64
	MeanPercent float64
	PeakPercent float64
	PeakRSS     uint64
}

// Summarize reduces every series to one table row, in series order.
func Summarize(res *utilization.Result) []ProcessSummary {
	out := make([]ProcessSummary, 0, len(res.Series))
	for _, s := range res.Series {
		sum := ProcessSummary{PID: s.PID, PPID: s.PPID, Samples: len(s.Points)}
		if n := len(s.Points); n > 0 {
			sum.Duration = s.Points[n-1].Time - s.Points[0].Time
		}
		var total float64
		for _, p := range s.Points {
			total += p.Utilization
			sum.PeakRSS = max(sum.PeakRSS, p.RSS)
		}
		if len(s.Points) > 1 {
			// the first point has no baseline
			sum.MeanPercent = total / float64(len(s.Points)-1) * 100
		}
		sum.PeakPercent = s.Peak() * 100
		if math.IsNaN(sum.MeanPercent) {
			sum.MeanPercent = 0
		}
		out = append(out, sum)
	}
	return out
}
