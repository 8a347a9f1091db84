package control

import (
	"context"
	"log"
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/wall_follower/internal/linefit"
	"github.com/relabs-tech/wall_follower/internal/monitoring"
	"github.com/relabs-tech/wall_follower/internal/protocol"
	"github.com/relabs-tech/wall_follower/internal/robot"
	"github.com/relabs-tech/wall_follower/internal/sim"
)

var ring = []float64{
	0, 7 * math.Pi / 4, 3 * math.Pi / 2, 5 * math.Pi / 4,
	math.Pi, 3 * math.Pi / 4, math.Pi / 2, math.Pi / 4,
}

func testConfig() Config {
	return Config{
		SensorAngles:  ring,
		SetPoint:      20,
		KE:            0.2,
		KS:            0.01,
		MaxTrans:      200,
		MaxAng:        2,
		DecayConstant: 12500,
		Period:        10 * time.Millisecond,
	}
}

func newController(t *testing.T, cfg Config) *Controller {
	t.Helper()
	c, err := New(cfg)
	require.NoError(t, err)
	return c
}

// wallFrame is what the ring reports while driving parallel to a wall at
// lateral position wallY (positive is left).
func wallFrame(wallY float64) protocol.SensorFrame {
	f := protocol.SensorFrame{Distances: make([]int, len(ring))}
	w := sim.Wall{Y: wallY}
	for i, a := range ring {
		f.Distances[i] = int(math.Round(w.Range(sim.Pose{}, a, 300)))
	}
	return f
}

func TestClamp_PreservesRadius(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	const maxAng = 2.0
	for i := 0; i < 200; i++ {
		trans := 400*rng.Float64() - 200
		ang := (maxAng + 10*rng.Float64() + 1e-6) * math.Copysign(1, rng.Float64()-0.5)

		gotTrans, gotAng := Clamp(trans, ang, maxAng)
		assert.Equal(t, maxAng, math.Abs(gotAng))
		assert.Equal(t, math.Signbit(ang), math.Signbit(gotAng))
		assert.InDelta(t, trans/ang, gotTrans/gotAng, 1e-9)
	}
}

func TestClamp_WithinLimitUnchanged(t *testing.T) {
	trans, ang := Clamp(120, -1.5, 2)
	assert.Equal(t, 120.0, trans)
	assert.Equal(t, -1.5, ang)

	trans, ang = Clamp(120, 2, 2)
	assert.Equal(t, 120.0, trans)
	assert.Equal(t, 2.0, ang)
}

func TestClamp_Example(t *testing.T) {
	trans, ang := Clamp(100, -4, 2)
	assert.Equal(t, 50.0, trans)
	assert.Equal(t, -2.0, ang)
}

func TestRateTerm(t *testing.T) {
	assert.InDelta(t, 100*math.Sin(math.Pi/4), RateTerm(100, 1), 1e-9)
	assert.InDelta(t, -100*math.Sin(math.Pi/4), RateTerm(100, -1), 1e-9)
	assert.InDelta(t, -100*math.Sin(math.Pi/4), RateTerm(-100, -1), 1e-9)
	assert.Equal(t, 0.0, RateTerm(100, 0))
}

func TestStep_IdleWhenNoTargetSpeed(t *testing.T) {
	c := newController(t, testConfig())
	st := c.Step(wallFrame(40), 0)
	assert.Equal(t, Idle, st.Mode)
	assert.Equal(t, protocol.Command{}, st.Command)
}

func TestStep_SteeringSign(t *testing.T) {
	tests := []struct {
		name  string
		wallY float64
		turn  float64 // expected sign of the angular command
	}{
		{"left wall too far", 40, 1},
		{"left wall too close", 10, -1},
		{"right wall too far", -40, -1},
		{"right wall too close", -10, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newController(t, testConfig())
			st := c.Step(wallFrame(tt.wallY), 100)

			require.Equal(t, Following, st.Mode)
			require.False(t, st.Fallback)
			assert.Equal(t, math.Copysign(1, tt.wallY), st.Line.Side())
			assert.InDelta(t, 0, st.Line.Slope, 1e-9)
			assert.Equal(t, tt.turn, math.Copysign(1, st.Command.Angular))

			// |error| is roughly |wall distance - setpoint|
			assert.InDelta(t, math.Abs(tt.wallY)-20, st.Error, 1)
		})
	}
}

func TestStep_OverLimitKeepsCurvature(t *testing.T) {
	c := newController(t, testConfig())
	st := c.Step(wallFrame(40), 100)

	raw := st.Line.Side()*0.2*st.Error + 0.01*st.Rate
	require.Greater(t, math.Abs(raw), 2.0)
	assert.Equal(t, 2.0, st.Command.Angular)
	assert.InDelta(t, 100/raw, st.Command.Translational/st.Command.Angular, 1e-9)
}

func TestStep_OnSetPointDrivesStraight(t *testing.T) {
	cfg := testConfig()
	frame := wallFrame(40)
	line, err := linefit.FitRanges(frame.Distances, ring, cfg.DecayConstant)
	require.NoError(t, err)
	cfg.SetPoint = line.DistanceToOrigin()
	c := newController(t, cfg)

	st := c.Step(frame, 80)
	assert.InDelta(t, 0, st.Command.Angular, 1e-9)
	assert.Equal(t, 80.0, st.Command.Translational)
}

func TestStep_DegenerateFitReusesPreviousLine(t *testing.T) {
	cfg := testConfig()
	cfg.SensorAngles = []float64{math.Pi / 2, 3 * math.Pi / 2, 0}
	c := newController(t, cfg)

	first := c.Step(protocol.SensorFrame{Distances: []int{20, 60, 100}}, 50)
	require.False(t, first.Fallback)

	// a zero range ahead puts every point on the y axis
	second := c.Step(protocol.SensorFrame{Distances: []int{20, 60, 0}}, 50)
	assert.True(t, second.Fallback)
	assert.Equal(t, first.Line, second.Line)
	assert.Equal(t, first.Command, second.Command)
}

func TestStep_DegenerateBeforeAnyFit(t *testing.T) {
	cfg := testConfig()
	cfg.SensorAngles = []float64{math.Pi / 2, 3 * math.Pi / 2}
	c := newController(t, cfg)

	st := c.Step(protocol.SensorFrame{Distances: []int{20, 60}}, 50)
	assert.True(t, st.Fallback)
	assert.Equal(t, linefit.Line{Intercept: 20}, st.Line)
	assert.Equal(t, protocol.Command{Translational: 50}, st.Command)
}

func TestStep_TargetBounded(t *testing.T) {
	cfg := testConfig()
	cfg.KE, cfg.KS = 0, 0
	c := newController(t, cfg)
	st := c.Step(wallFrame(40), 1000)
	assert.Equal(t, 200.0, st.Command.Translational)
}

func TestNew_Validation(t *testing.T) {
	cfg := testConfig()
	cfg.SensorAngles = nil
	_, err := New(cfg)
	assert.Error(t, err)

	cfg = testConfig()
	cfg.MaxAng = 0
	_, err = New(cfg)
	assert.Error(t, err)

	cfg = testConfig()
	cfg.Period = 0
	_, err = New(cfg)
	assert.Error(t, err)
}

func TestModeText(t *testing.T) {
	b, err := Following.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "following", string(b))
	assert.Equal(t, "idle", Idle.String())
}

func TestRun_NoTelemetryCommandsStop(t *testing.T) {
	monitoring.SetLogger(nil)
	defer monitoring.SetLogger(log.Printf)

	state := robot.NewState(200)
	state.SetTargetSpeed(80)
	state.SetCommand(protocol.Command{Translational: 5, Angular: 5})

	c := newController(t, testConfig())
	statuses := make(chan Status, 100)
	c.OnStatus(func(st Status) {
		select {
		case statuses <- st:
		default:
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx, state) }()

	first := <-statuses
	assert.False(t, first.Telemetry)
	assert.Equal(t, protocol.Command{}, first.Command)
	assert.Equal(t, protocol.Command{}, state.Command())

	state.SetTelemetry(wallFrame(40))
	var moving Status
	require.Eventually(t, func() bool {
		for {
			select {
			case st := <-statuses:
				if st.Telemetry {
					moving = st
					return true
				}
			default:
				return false
			}
		}
	}, time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, <-done)

	assert.Equal(t, Following, moving.Mode)
	assert.Greater(t, moving.Command.Angular, 0.0)
}

func TestCycle_StaleDetection(t *testing.T) {
	state := robot.NewState(200)
	state.SetTargetSpeed(50)
	state.SetTelemetry(wallFrame(30))

	c := newController(t, testConfig())
	first := c.cycle(state)
	second := c.cycle(state)
	assert.False(t, first.Stale)
	assert.True(t, second.Stale)
	assert.Equal(t, first.Command, second.Command)
	assert.Equal(t, second.Command, state.Command())
}

func TestStop(t *testing.T) {
	state := robot.NewState(200)
	state.SetCommand(protocol.Command{Translational: 40, Angular: 1})
	Stop(state)
	assert.Equal(t, protocol.Command{}, state.Command())
}
