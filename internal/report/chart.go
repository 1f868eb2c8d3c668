package report

import (
	"bytes"
	"errors"
	"fmt"
	"image/color"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/focalmetrics/internal/fsutil"
)

// ErrUnsupportedChart is returned for chart paths with an unknown extension.
var ErrUnsupportedChart = errors.New("report: unsupported chart format")

// Chart formats, selected by file extension.
const (
	FormatPNG  = "png"
	FormatSVG  = "svg"
	FormatHTML = "html"
)

// ChartFormat maps a path's extension to a chart format.
func ChartFormat(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return FormatPNG, nil
	case ".svg":
		return FormatSVG, nil
	case ".html", ".htm":
		return FormatHTML, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedChart, path)
}

// Chart is a titled histogram ready for rendering.
type Chart struct {
	Title     string
	Subtitle  string
	ValueName string // x axis label
	Histogram Histogram
}

// Render writes the chart in the given format.
func (c Chart) Render(w io.Writer, format string) error {
	switch format {
	case FormatPNG, FormatSVG:
		return c.renderPlot(w, format)
	case FormatHTML:
		return c.renderHTML(w)
	}
	return fmt.Errorf("%w: %q", ErrUnsupportedChart, format)
}

func (c Chart) renderPlot(w io.Writer, format string) error {
	p := plot.New()
	p.Title.Text = c.Title
	p.X.Label.Text = c.ValueName
	p.Y.Label.Text = "Cells"

	if len(c.Histogram.Buckets) > 0 {
		bins := make([]plotter.HistogramBin, len(c.Histogram.Buckets))
		for i, b := range c.Histogram.Buckets {
			bins[i] = plotter.HistogramBin{Min: b.Min, Max: b.Max, Weight: float64(b.Count)}
		}
		// A constant raster has one bucket of zero width.
		if len(bins) == 1 && bins[0].Max-bins[0].Min < 1e-9 {
			bins[0].Min -= 0.5
			bins[0].Max = bins[0].Min + 1
		}
		h := &plotter.Histogram{
			Bins:      bins,
			Width:     bins[0].Max - bins[0].Min,
			FillColor: color.RGBA{R: 49, G: 104, B: 142, A: 255},
			LineStyle: plotter.DefaultLineStyle,
		}
		p.Add(h)
	}

	wt, err := p.WriterTo(8*vg.Inch, 4*vg.Inch, format)
	if err != nil {
		return fmt.Errorf("render %s: %w", format, err)
	}
	_, err = wt.WriteTo(w)
	return err
}

func (c Chart) renderHTML(w io.Writer) error {
	labels := make([]string, len(c.Histogram.Buckets))
	data := make([]opts.BarData, len(c.Histogram.Buckets))
	for i, b := range c.Histogram.Buckets {
		labels[i] = strconv.FormatFloat(b.Min, 'g', 4, 64)
		data[i] = opts.BarData{Value: b.Count}
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: c.Title, Width: "100%", Height: "600px"}),
		charts.WithTitleOpts(opts.Title{Title: c.Title, Subtitle: c.Subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: c.ValueName, NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Cells"}),
	)
	bar.SetXAxis(labels).AddSeries("cells", data)
	return bar.Render(w)
}

// EncodeChart renders c in the format named by path's extension.
func EncodeChart(path string, c Chart) ([]byte, error) {
	format, err := ChartFormat(path)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := c.Render(&buf, format); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteChart atomically stores a chart produced by EncodeChart.
func WriteChart(fsys fsutil.FileSystem, path string, data []byte) error {
	return fsys.WriteAtomic(path, 0o644, func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	})
}
