// Package lumastats summarizes the luma distribution of analyzed sources.
package lumastats

import (
	"fmt"
	"image/color"
	"path/filepath"
	"sort"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	ferrors "github.com/five82/framecomp/internal/errors"
	"github.com/five82/framecomp/internal/frame"
	"github.com/five82/framecomp/internal/reporter"
	"github.com/five82/framecomp/internal/util"
)

// maxChartPoints bounds the number of points drawn per source.
const maxChartPoints = 4000

// Series is the per-frame luma of one source.
type Series struct {
	Name   string
	Frames []frame.Info
}

// Summarize computes the luma statistics of one source.
func Summarize(s Series) reporter.LumaStats {
	out := reporter.LumaStats{Source: s.Name, Frames: len(s.Frames)}
	if len(s.Frames) == 0 {
		return out
	}

	lumas := make([]float64, len(s.Frames))
	for i, f := range s.Frames {
		lumas[i] = f.AverageLuma
		switch f.Class {
		case frame.ClassDark:
			out.Dark++
		case frame.ClassLight:
			out.Light++
		default:
			out.Random++
		}
	}

	out.Mean, out.StdDev = stat.MeanStdDev(lumas, nil)
	if len(lumas) == 1 {
		out.StdDev = 0
	}

	sort.Float64s(lumas)
	out.Median = stat.Quantile(0.5, stat.Empirical, lumas, nil)
	out.P10 = stat.Quantile(0.1, stat.Empirical, lumas, nil)
	out.P90 = stat.Quantile(0.9, stat.Empirical, lumas, nil)
	return out
}

var palette = []color.RGBA{
	{R: 31, G: 119, B: 180, A: 255},
	{R: 255, G: 127, B: 14, A: 255},
	{R: 44, G: 160, B: 44, A: 255},
	{R: 214, G: 39, B: 40, A: 255},
	{R: 148, G: 103, B: 189, A: 255},
	{R: 140, G: 86, B: 75, A: 255},
}

// WriteChart plots the luma timeline of every series to a PNG at path,
// with the dark and light class boundaries drawn as dashed lines.
func WriteChart(path string, series []Series) error {
	if len(series) == 0 {
		return ferrors.NewIOError("no luma data to plot", nil)
	}
	if err := util.EnsureDirectory(filepath.Dir(path)); err != nil {
		return ferrors.NewIOError("cannot create chart directory", err)
	}

	p := plot.New()
	p.Title.Text = "Average luma per frame"
	p.X.Label.Text = "Frame"
	p.Y.Label.Text = "Luma"
	p.Y.Min, p.Y.Max = 0, 1

	longest := 0
	for i, s := range series {
		if len(s.Frames) == 0 {
			continue
		}
		longest = max(longest, len(s.Frames))
		line, err := plotter.NewLine(points(s.Frames))
		if err != nil {
			return ferrors.NewIOError(fmt.Sprintf("cannot plot %s", s.Name), err)
		}
		line.Width = vg.Points(1)
		line.Color = palette[i%len(palette)]
		p.Add(line)
		p.Legend.Add(s.Name, line)
	}

	for _, b := range []struct {
		name string
		y    float64
	}{
		{"dark max", frame.DarkMax},
		{"light min", frame.LightMin},
	} {
		bound, err := plotter.NewLine(plotter.XYs{{X: 0, Y: b.y}, {X: float64(max(longest-1, 1)), Y: b.y}})
		if err != nil {
			return ferrors.NewIOError("cannot plot class boundary", err)
		}
		bound.Width = vg.Points(0.5)
		bound.Dashes = []vg.Length{vg.Points(4), vg.Points(4)}
		bound.Color = color.Gray{Y: 128}
		p.Add(bound)
		p.Legend.Add(b.name, bound)
	}

	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10
	p.Add(plotter.NewGrid())

	if err := p.Save(14*vg.Inch, 6*vg.Inch, path); err != nil {
		return ferrors.NewIOError("cannot save luma chart", err)
	}
	return nil
}

// points converts frames to plot points, striding long sources down to
// maxChartPoints.
func points(frames []frame.Info) plotter.XYs {
	stride := 1
	if len(frames) > maxChartPoints {
		stride = (len(frames) + maxChartPoints - 1) / maxChartPoints
	}
	pts := make(plotter.XYs, 0, len(frames)/stride+1)
	for i := 0; i < len(frames); i += stride {
		pts = append(pts, plotter.XY{X: float64(frames[i].Index), Y: frames[i].AverageLuma})
	}
	return pts
}
