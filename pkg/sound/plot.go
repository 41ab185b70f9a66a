package sound

import (
	"bytes"
	"fmt"
	"image/color"
	"time"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

func (t *Track) PlotRMS(format string) ([]byte, error) {
	window := 50 * time.Millisecond
	rms := t.RMS(window)
	return createPlot(fmt.Sprintf("rms %s", t.Duration), rms, 0, 1, format)
}

func (t *Track) PlotWave(format string) ([]byte, error) {
	window := 50 * time.Millisecond
	resampled := t.Resample(window)
	return createPlot(fmt.Sprintf("wave %s", t.Duration), resampled, -1, 1, format)
}

// PlotSpectrum renders byte magnitudes per frequency bin as a bar chart.
// Rate is the sample rate the bins were computed at and is used for the title.
func PlotSpectrum(bins []float64, rate int, format string) ([]byte, error) {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("spectrum 0-%d Hz", rate/2)
	p.X.Label.Text = "bin"
	p.Y.Label.Text = "magnitude"
	p.Y.Min = 0
	p.Y.Max = 255

	bars, err := plotter.NewBarChart(plotter.Values(bins), vg.Points(2))
	if err != nil {
		return nil, fmt.Errorf("sound: couldn't create bar chart: %w", err)
	}
	bars.LineStyle.Width = vg.Length(0)
	bars.Color = color.RGBA{R: 159, G: 122, B: 234, A: 255}
	p.Add(bars)
	return save(p, format)
}

func createPlot(title string, data []float64, min, max float64, format string) ([]byte, error) {
	p := plot.New()
	p.Y.Min = min
	p.Y.Max = max
	p.Title.Text = title
	p.X.Label.Text = "time"
	p.Y.Label.Text = "data"

	l, err := plotter.NewLine(makePoints(data))
	if err != nil {
		return nil, fmt.Errorf("sound: couldn't create line plotter: %w", err)
	}
	l.LineStyle.Width = vg.Points(1)
	p.Add(l)
	return save(p, format)
}

func save(p *plot.Plot, format string) ([]byte, error) {
	if format == "" {
		format = "png"
	}
	c, err := p.WriterTo(4*vg.Inch, 4*vg.Inch, format)
	if err != nil {
		return nil, fmt.Errorf("sound: couldn't create plot: %w", err)
	}
	var buf bytes.Buffer
	if _, err := c.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("sound: couldn't write plot: %w", err)
	}
	return buf.Bytes(), nil
}

func makePoints(samples []float64) plotter.XYs {
	pts := make(plotter.XYs, len(samples))
	for i, v := range samples {
		pts[i].X = float64(i)
		pts[i].Y = v
	}
	return pts
}
