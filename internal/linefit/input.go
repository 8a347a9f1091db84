package linefit

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
)

// ReadPoints parses n whitespace separated "range heading" pairs, range in
// cm and heading in radians, as written by the sonar dump files.
func ReadPoints(r io.Reader, n int) ([]Point, error) {
	sc := bufio.NewScanner(r)
	sc.Split(bufio.ScanWords)

	next := func(what string, i int) (float64, error) {
		if !sc.Scan() {
			if err := sc.Err(); err != nil {
				return 0, err
			}
			return 0, fmt.Errorf("point %d: missing %s", i, what)
		}
		v, err := strconv.ParseFloat(sc.Text(), 64)
		if err != nil {
			return 0, fmt.Errorf("point %d: invalid %s %q: %w", i, what, sc.Text(), err)
		}
		return v, nil
	}

	pts := make([]Point, 0, n)
	for i := 0; i < n; i++ {
		rng, err := next("range", i)
		if err != nil {
			return nil, err
		}
		heading, err := next("heading", i)
		if err != nil {
			return nil, err
		}
		pts = append(pts, Point{Range: rng, Heading: heading})
	}
	return pts, nil
}
