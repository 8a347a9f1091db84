package linefit

import (
	"fmt"
	"image/color"
	"math"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// Plot renders the points and the fitted line in the robot frame and saves
// the figure to path. The output format follows the file extension.
func Plot(points []Point, line Line, path string) error {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("y = %.4f x + %.2f", line.Slope, line.Intercept)
	p.X.Label.Text = "x (cm, forward)"
	p.Y.Label.Text = "y (cm, left)"

	xys := make(plotter.XYs, len(points))
	maxAbs := 1.0
	for i, pt := range points {
		xys[i].X = pt.X()
		xys[i].Y = pt.Y()
		maxAbs = math.Max(maxAbs, math.Max(math.Abs(xys[i].X), math.Abs(xys[i].Y)))
	}

	scatter, err := plotter.NewScatter(xys)
	if err != nil {
		return fmt.Errorf("creating scatter: %w", err)
	}
	scatter.GlyphStyle.Color = color.RGBA{R: 200, A: 255}
	scatter.GlyphStyle.Radius = vg.Points(3)

	fit := plotter.NewFunction(func(x float64) float64 {
		return line.Slope*x + line.Intercept
	})
	fit.Color = color.RGBA{B: 200, A: 255}
	fit.Width = vg.Points(1.5)

	robot, err := plotter.NewScatter(plotter.XYs{{X: 0, Y: 0}})
	if err != nil {
		return fmt.Errorf("creating origin marker: %w", err)
	}

	p.Add(plotter.NewGrid(), scatter, fit, robot)
	p.Legend.Add("sonar", scatter)
	p.Legend.Add("fit", fit)

	limit := maxAbs * 1.1
	p.X.Min, p.X.Max = -limit, limit
	p.Y.Min, p.Y.Max = -limit, limit

	if err := p.Save(5*vg.Inch, 5*vg.Inch, path); err != nil {
		return fmt.Errorf("saving plot: %w", err)
	}
	return nil
}
