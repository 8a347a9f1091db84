package app

import (
	"fmt"
	"io"
	"os"

	"github.com/relabs-tech/wall_follower/internal/linefit"
)

// RunLineFit fits a line to n "range heading" pairs read from path and
// prints it. A plot is saved when plotPath is set.
func RunLineFit(path string, n int, decay float64, plotPath string, out io.Writer) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open points: %w", err)
	}
	defer f.Close()

	pts, err := linefit.ReadPoints(f, n)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	line, err := linefit.Fit(pts, linefit.Weights(pts, decay))
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "y = %.4f x + %.2f\n", line.Slope, line.Intercept)

	if plotPath != "" {
		if err := linefit.Plot(pts, line, plotPath); err != nil {
			return err
		}
		fmt.Fprintf(out, "plot saved to %s\n", plotPath)
	}
	return nil
}
