package main

import (
	"flag"
	"log"
	"os"

	"github.com/relabs-tech/wall_follower/internal/app"
	"github.com/relabs-tech/wall_follower/internal/config"
)

func main() {
	points := flag.String("points", "sonar.txt", "file with one \"range heading\" pair per sonar")
	n := flag.Int("n", 8, "number of pairs to read")
	decay := flag.Float64("decay", config.Defaults().DecayConstant, "weight decay constant (cm²)")
	plotPath := flag.String("plot", "", "save a plot of the fit to this file")
	flag.Parse()

	if err := app.RunLineFit(*points, *n, *decay, *plotPath, os.Stdout); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
