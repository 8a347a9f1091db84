package app

import (
	"context"
	"fmt"
	"image"
	"log"
	"time"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/devices/v3/ssd1306"
	"periph.io/x/devices/v3/ssd1306/image1bit"
	"periph.io/x/host/v3"

	"github.com/relabs-tech/wall_follower/internal/control"
	"github.com/relabs-tech/wall_follower/internal/robot"
)

const (
	displayWidth  = 128
	displayHeight = 64
	lineHeight    = 13
)

// runDisplay shows the follower status on an SSD1306 OLED at the default
// I2C address until ctx is cancelled.
func runDisplay(ctx context.Context, interval time.Duration, state *robot.State, status *liveStatus) error {
	// Initialize periph
	if _, err := host.Init(); err != nil {
		return fmt.Errorf("failed to initialize periph: %w", err)
	}

	bus, err := i2creg.Open("")
	if err != nil {
		return fmt.Errorf("failed to open I2C bus: %w", err)
	}
	defer bus.Close()

	dev, err := ssd1306.NewI2C(bus, &ssd1306.DefaultOpts)
	if err != nil {
		return fmt.Errorf("failed to initialize display: %w", err)
	}
	defer dev.Halt()
	log.Println("display: initialized")

	splash := renderLines("Wall follower", "", "Waiting...")
	if err := dev.Draw(dev.Bounds(), splash, image.Point{}); err != nil {
		log.Printf("display: error showing splash: %v", err)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		st, have := status.get()
		img := renderStatus(state.Snapshot(), st, have)
		if err := dev.Draw(dev.Bounds(), img, image.Point{}); err != nil {
			log.Printf("display: error updating display: %v", err)
		}
	}
}

// statusLines formats up to four display lines.
func statusLines(snap robot.Snapshot, st control.Status, have bool) []string {
	lines := []string{fmt.Sprintf("V*%4.0f", snap.TargetSpeed)}
	if have {
		lines[0] += " " + st.Mode.String()
	}

	if snap.Telemetry == nil {
		return append(lines, "No telemetry")
	}

	p := snap.Telemetry.Pose
	lines = append(lines,
		fmt.Sprintf("X%5d Y%5d", p.X, p.Y),
		fmt.Sprintf("V%4.0f W%5.2f", snap.Command.Translational, snap.Command.Angular),
	)
	if have && st.Mode == control.Following {
		fit := fmt.Sprintf("E%5.1f", st.Error)
		if st.Fallback {
			fit += " old"
		}
		lines = append(lines, fit)
	}
	return lines
}

func renderStatus(snap robot.Snapshot, st control.Status, have bool) *image1bit.VerticalLSB {
	return renderLines(statusLines(snap, st, have)...)
}

func renderLines(lines ...string) *image1bit.VerticalLSB {
	img := image1bit.NewVerticalLSB(image.Rect(0, 0, displayWidth, displayHeight))

	drawer := &font.Drawer{
		Dst:  img,
		Src:  &image.Uniform{image1bit.On},
		Face: basicfont.Face7x13,
	}
	for i, line := range lines {
		if i >= displayHeight/lineHeight {
			break
		}
		drawer.Dot = fixed.P(0, lineHeight*(i+1))
		drawer.DrawString(line)
	}
	return img
}
