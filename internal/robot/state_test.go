package robot

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpiotest"

	"github.com/relabs-tech/wall_follower/internal/protocol"
)

func TestState_TelemetryEmptyUntilFirstFrame(t *testing.T) {
	s := NewState(200)
	_, seq, ok := s.Telemetry()
	assert.False(t, ok)
	assert.Zero(t, seq)
	assert.Nil(t, s.Snapshot().Telemetry)
}

func TestState_TelemetryIsCopied(t *testing.T) {
	s := NewState(200)
	in := protocol.SensorFrame{Distances: []int{1, 2, 3}, Pose: protocol.Pose{X: 4}}
	s.SetTelemetry(in)

	in.Distances[0] = 100
	got, seq, ok := s.Telemetry()
	require.True(t, ok)
	assert.Equal(t, uint64(1), seq)
	assert.Equal(t, []int{1, 2, 3}, got.Distances)

	got.Distances[1] = 200
	again, _, _ := s.Telemetry()
	assert.Equal(t, []int{1, 2, 3}, again.Distances)
}

func TestState_SequenceAdvances(t *testing.T) {
	s := NewState(200)
	s.SetTelemetry(protocol.SensorFrame{Distances: []int{1}})
	s.SetTelemetry(protocol.SensorFrame{Distances: []int{2}})
	f, seq, _ := s.Telemetry()
	assert.Equal(t, uint64(2), seq)
	assert.Equal(t, []int{2}, f.Distances)
}

func TestState_TargetSpeedClamped(t *testing.T) {
	s := NewState(200)
	assert.Equal(t, 200.0, s.SetTargetSpeed(500))
	assert.Equal(t, -200.0, s.SetTargetSpeed(-201))
	assert.Equal(t, 35.0, s.SetTargetSpeed(35))
	assert.Equal(t, 35.0, s.TargetSpeed())
}

func TestState_Snapshot(t *testing.T) {
	s := NewState(200)
	s.SetTelemetry(protocol.SensorFrame{Distances: []int{9}})
	s.SetCommand(protocol.Command{Translational: 50, Angular: 0.25})
	s.SetTargetSpeed(60)

	snap := s.Snapshot()
	require.NotNil(t, snap.Telemetry)
	assert.Equal(t, []int{9}, snap.Telemetry.Distances)
	assert.Equal(t, uint64(1), snap.TelemetrySeq)
	assert.False(t, snap.TelemetryTime.IsZero())
	assert.Equal(t, protocol.Command{Translational: 50, Angular: 0.25}, snap.Command)
	assert.Equal(t, 60.0, snap.TargetSpeed)
}

// A reader must always see a command and frame exactly as some writer stored
// them. Run with -race for the full effect.
func TestState_ConcurrentAccessIsAtomic(t *testing.T) {
	s := NewState(200)
	var wg sync.WaitGroup
	stop := make(chan struct{})

	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; ; i++ {
			select {
			case <-stop:
				return
			default:
			}
			v := float64(i % 100)
			s.SetCommand(protocol.Command{Translational: v, Angular: v / 100})
			s.SetTelemetry(protocol.SensorFrame{Distances: []int{i, i, i, i}})
		}
	}()
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			c := s.Command()
			if c.Angular != c.Translational/100 {
				t.Errorf("torn command %+v", c)
				return
			}
			if f, _, ok := s.Telemetry(); ok {
				for _, d := range f.Distances {
					if d != f.Distances[0] {
						t.Errorf("torn frame %v", f.Distances)
						return
					}
				}
			}
		}
	}()

	time.Sleep(50 * time.Millisecond)
	close(stop)
	wg.Wait()
}

type recordingPin struct {
	*gpiotest.Pin
	levels []gpio.Level
	failOn gpio.Level
	fail   bool
}

func (p *recordingPin) Out(l gpio.Level) error {
	if p.fail && l == p.failOn {
		return errors.New("pin busy")
	}
	p.levels = append(p.levels, l)
	return p.Pin.Out(l)
}

func TestPulseReset(t *testing.T) {
	pin := &recordingPin{Pin: &gpiotest.Pin{N: "GPIO4", Num: 4}}
	var sleeps []time.Duration

	err := pulseReset(pin, 50*time.Millisecond, 5*time.Second, func(d time.Duration) {
		sleeps = append(sleeps, d)
	})
	require.NoError(t, err)
	assert.Equal(t, []gpio.Level{gpio.Low, gpio.High}, pin.levels)
	assert.Equal(t, []time.Duration{50 * time.Millisecond, 5 * time.Second}, sleeps)
	assert.Equal(t, gpio.High, pin.Read())
}

func TestPulseReset_PinError(t *testing.T) {
	pin := &recordingPin{Pin: &gpiotest.Pin{N: "GPIO4"}, fail: true, failOn: gpio.High}
	err := pulseReset(pin, 0, 0, func(time.Duration) {})
	assert.ErrorContains(t, err, "reset pin high")
}
