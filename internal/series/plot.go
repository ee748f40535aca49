package series

import (
	"errors"
	"fmt"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

// SavePlot writes the given series as line plots against time since boot.
// The image format follows the file extension (png, svg, pdf...).
func SavePlot(path, title string, series ...*Series) error {
	if len(series) == 0 {
		return errors.New("save plot: no series")
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Time since boot (s)"
	p.Y.Label.Text = series[0].Unit
	for _, s := range series[1:] {
		if s.Unit != series[0].Unit {
			p.Y.Label.Text = ""
			break
		}
	}

	for i, s := range series {
		pts := make(plotter.XYs, 0, s.Len())
		for _, sample := range s.All() {
			pts = append(pts, plotter.XY{X: sample.Time, Y: sample.Value})
		}
		if len(pts) == 0 {
			continue
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return fmt.Errorf("plot %s: %w", s.ID, err)
		}
		line.Color = plotutil.Color(i)
		line.Width = vg.Points(1)
		p.Add(line)
		p.Legend.Add(s.Name, line)
	}
	p.Legend.Top = true

	if err := p.Save(12*vg.Inch, 5*vg.Inch, path); err != nil {
		return fmt.Errorf("save plot %s: %w", path, err)
	}
	return nil
}
