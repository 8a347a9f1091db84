package protocol

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCodec(t *testing.T) *Codec {
	t.Helper()
	c, err := NewCodec(8, DefaultAngularScale, DefaultHeadingScale)
	require.NoError(t, err)
	return c
}

func TestNewCodec_RejectsNonPositiveSonarCount(t *testing.T) {
	_, err := NewCodec(0, 1000, 1000)
	assert.Error(t, err)
}

func TestNewCodec_DefaultScales(t *testing.T) {
	c, err := NewCodec(3, 0, -1)
	require.NoError(t, err)
	assert.Equal(t, DefaultAngularScale, c.angularScale)
	assert.Equal(t, DefaultHeadingScale, c.headingScale)
	assert.Equal(t, 12, c.SensorFrameSize())
}

func TestEncodeCommand_Layout(t *testing.T) {
	c := newTestCodec(t)

	got := c.EncodeCommand(Command{Translational: 100, Angular: -1.5})
	assert.Equal(t, []byte{0x64, 0x00, 0x24, 0xFA}, got)
}

func TestEncodeCommand_Saturates(t *testing.T) {
	c := newTestCodec(t)

	got := c.EncodeCommand(Command{Translational: -40000, Angular: 40})
	assert.Equal(t, []byte{0x00, 0x80, 0xFF, 0x7F}, got)
}

func TestCommandRoundTrip(t *testing.T) {
	c := newTestCodec(t)
	tolerance := 0.5/DefaultAngularScale + 1e-12

	for trans := -200.0; trans <= 200.0; trans += 12.5 {
		for ang := -2.0; ang <= 2.0; ang += 0.0137 {
			frame := c.EncodeCommand(Command{Translational: trans, Angular: ang})
			require.Len(t, frame, CommandFrameSize)

			got, err := c.DecodeCommand(frame)
			require.NoError(t, err)
			assert.InDelta(t, trans, got.Translational, 0.5)
			assert.InDelta(t, ang, got.Angular, tolerance)
		}
	}
}

func TestDecodeSensorFrame_Layout(t *testing.T) {
	c := newTestCodec(t)
	buf := []byte{
		0x01, 0x00, 0x02, 0x00, 0x03, 0x00, 0x04, 0x00,
		0x05, 0x00, 0x06, 0x00, 0x07, 0x00, 0x08, 0x00,
		0xFB, 0xFF, // x = -5
		0x2C, 0x01, // y = 300
		0x23, 0x06, // theta = 1571 / 1000
	}

	got, err := c.DecodeSensorFrame(buf)
	require.NoError(t, err)

	want := SensorFrame{
		Distances: []int{1, 2, 3, 4, 5, 6, 7, 8},
		Pose:      Pose{X: -5, Y: 300, Theta: 1.571},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("DecodeSensorFrame mismatch (-want +got):\n%s", diff)
	}
}

func TestSensorFrameRoundTrip(t *testing.T) {
	c := newTestCodec(t)
	in := SensorFrame{
		Distances: []int{50, 50, 10, 50, 300, 0, 32767, -1},
		Pose:      Pose{X: 1200, Y: -340, Theta: -3.14159},
	}

	buf, err := c.EncodeSensorFrame(in)
	require.NoError(t, err)
	require.Len(t, buf, c.SensorFrameSize())

	out, err := c.DecodeSensorFrame(buf)
	require.NoError(t, err)
	assert.Equal(t, in.Distances, out.Distances)
	assert.Equal(t, in.Pose.X, out.Pose.X)
	assert.Equal(t, in.Pose.Y, out.Pose.Y)
	assert.InDelta(t, in.Pose.Theta, out.Pose.Theta, 0.5/DefaultHeadingScale)
}

func TestEncodeSensorFrame_WrongSonarCount(t *testing.T) {
	c := newTestCodec(t)
	_, err := c.EncodeSensorFrame(SensorFrame{Distances: []int{1, 2}})
	assert.True(t, errors.Is(err, ErrSonarCount))
}

func TestDecodeSensorFrame_Errors(t *testing.T) {
	c := newTestCodec(t)
	size := c.SensorFrameSize()

	tests := []struct {
		name string
		buf  []byte
		want error
	}{
		{"empty", nil, ErrIncompleteFrame},
		{"one short", make([]byte, size-1), ErrIncompleteFrame},
		{"odd trailing byte", make([]byte, size+1), ErrLengthMismatch},
		{"two frames", make([]byte, 2*size), ErrLengthMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := c.DecodeSensorFrame(tt.buf)
			assert.ErrorIs(t, err, tt.want)
			assert.Nil(t, f.Distances, "no partial frame on error")
		})
	}
}

func TestDecodeCommand_Errors(t *testing.T) {
	c := newTestCodec(t)
	_, err := c.DecodeCommand([]byte{1, 2, 3})
	assert.ErrorIs(t, err, ErrIncompleteFrame)
	_, err = c.DecodeCommand([]byte{1, 2, 3, 4, 5})
	assert.ErrorIs(t, err, ErrLengthMismatch)
}

func TestEncodeTuning_Layout(t *testing.T) {
	got := EncodeTuning(Tuning{
		Speed:    20,
		Angular:  0.5,
		Duration: 1500 * time.Millisecond,
		KP:       1.2,
		KI:       0.05,
		KD:       0.01,
	})

	want := []byte{
		0x14, 0x00,
		0x88, 0x13,
		0xDC, 0x05,
		0xE0, 0x2E,
		0xF4, 0x01,
		0x64, 0x00,
	}
	assert.Equal(t, want, got)

	back, err := DecodeTuning(got)
	require.NoError(t, err)
	assert.Equal(t, 20.0, back.Speed)
	assert.Equal(t, 1500*time.Millisecond, back.Duration)
	assert.InDelta(t, 1.2, back.KP, 1e-9)
	assert.InDelta(t, 0.05, back.KI, 1e-9)
	assert.InDelta(t, 0.01, back.KD, 1e-9)
	assert.False(t, math.IsNaN(back.Angular))
}

func TestSensorFrameClone(t *testing.T) {
	f := SensorFrame{Distances: []int{1, 2, 3}}
	g := f.Clone()
	g.Distances[0] = 99
	assert.Equal(t, 1, f.Distances[0])
}
