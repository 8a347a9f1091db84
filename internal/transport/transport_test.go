package transport

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	jserial "github.com/jacobsa/go-serial/serial"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial"

	"github.com/relabs-tech/wall_follower/internal/sim"
)

func TestSend(t *testing.T) {
	port := NewFakePort()
	tr := New(port)
	defer tr.Close()

	n, err := tr.Send([]byte{1, 2, 3, 4})
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, [][]byte{{1, 2, 3, 4}}, port.Writes())
}

func TestSend_ShortWrite(t *testing.T) {
	port := NewFakePort()
	port.ShortWrite = 3
	tr := New(port)
	defer tr.Close()

	n, err := tr.Send([]byte{1, 2, 3, 4})
	assert.ErrorIs(t, err, ErrShortWrite)
	assert.Equal(t, 3, n)

	// single attempt, no retry
	assert.Len(t, port.Writes(), 1)
}

func TestSend_WriteError(t *testing.T) {
	port := NewFakePort()
	boom := errors.New("device unplugged")
	port.WriteError = boom
	tr := New(port)
	defer tr.Close()

	_, err := tr.Send([]byte{1})
	assert.ErrorIs(t, err, boom)
}

func TestReceive_AssemblesFragments(t *testing.T) {
	port := NewFakePort()
	tr := New(port)
	defer tr.Close()

	go func() {
		port.AddReadData([]byte{1, 2, 3})
		time.Sleep(30 * time.Millisecond)
		port.AddReadData([]byte{4, 5, 6})
	}()

	got, err := tr.ReceiveWithTimeout(context.Background(), 6, time.Second)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6}, got)
}

func TestReceive_TimeoutDropsPartialFrame(t *testing.T) {
	port := NewFakePort()
	tr := New(port)
	defer tr.Close()

	port.AddReadData([]byte{9, 9, 9})
	_, err := tr.ReceiveWithTimeout(context.Background(), 8, 80*time.Millisecond)
	require.ErrorIs(t, err, ErrTimeout)

	port.AddReadData([]byte{1, 2, 3, 4, 5, 6, 7, 8})
	got, err := tr.ReceiveWithTimeout(context.Background(), 8, time.Second)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6, 7, 8}, got)
}

func TestReceive_TimeoutOnSilentLine(t *testing.T) {
	tr := New(NewFakePort())
	defer tr.Close()

	start := time.Now()
	_, err := tr.ReceiveWithTimeout(context.Background(), 4, 50*time.Millisecond)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestReceive_SurplusBytesCarryOver(t *testing.T) {
	port := NewFakePort()
	tr := New(port)
	defer tr.Close()

	port.AddReadData([]byte{1, 2, 3, 4, 5, 6, 7, 8})
	first, err := tr.ReceiveWithTimeout(context.Background(), 4, time.Second)
	require.NoError(t, err)
	second, err := tr.ReceiveWithTimeout(context.Background(), 4, time.Second)
	require.NoError(t, err)

	assert.Equal(t, []byte{1, 2, 3, 4}, first)
	assert.Equal(t, []byte{5, 6, 7, 8}, second)
}

func TestReceive_ContextCancelled(t *testing.T) {
	tr := New(NewFakePort())
	defer tr.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := tr.ReceiveWithTimeout(ctx, 4, 5*time.Second)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestReceive_RecoversAfterReadError(t *testing.T) {
	port := NewFakePort()
	boom := errors.New("input/output error")
	port.ReadError = boom
	tr := New(port)
	defer tr.Close()

	_, err := tr.ReceiveWithTimeout(context.Background(), 4, time.Second)
	require.ErrorIs(t, err, boom)

	port.AddReadData([]byte{1, 2, 3, 4})
	got, err := tr.ReceiveWithTimeout(context.Background(), 4, time.Second)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 4}, got)
}

func TestReceive_ReadErrorDropsPartialFrame(t *testing.T) {
	port := NewFakePort()
	tr := New(port)
	defer tr.Close()

	port.AddReadData([]byte{1, 2})
	_, err := tr.ReceiveWithTimeout(context.Background(), 2, time.Second)
	require.NoError(t, err)

	port.AddReadData([]byte{9})
	require.Eventually(t, func() bool {
		// wait for the reader to pick up the stray byte
		return port.readLen() == 0
	}, time.Second, time.Millisecond)
	port.setReadError(errors.New("framing error"))
	_, err = tr.ReceiveWithTimeout(context.Background(), 2, time.Second)
	require.Error(t, err)

	port.AddReadData([]byte{5, 6})
	got, err := tr.ReceiveWithTimeout(context.Background(), 2, time.Second)
	require.NoError(t, err)
	assert.Equal(t, []byte{5, 6}, got)
}

func TestFlush(t *testing.T) {
	port := NewFakePort()
	tr := New(port)
	defer tr.Close()

	port.AddReadData([]byte{1, 2, 3, 4, 5, 6})
	_, err := tr.ReceiveWithTimeout(context.Background(), 4, time.Second)
	require.NoError(t, err)

	require.NoError(t, tr.Flush())
	assert.Equal(t, 1, port.Flushes())

	_, err = tr.ReceiveWithTimeout(context.Background(), 2, 50*time.Millisecond)
	assert.ErrorIs(t, err, ErrTimeout, "surplus bytes must be gone after a flush")
}

func TestClose(t *testing.T) {
	port := NewFakePort()
	tr := New(port)

	require.NoError(t, tr.Close())
	require.NoError(t, tr.Close())
	assert.True(t, port.Closed())

	_, err := tr.Send([]byte{1})
	assert.ErrorIs(t, err, ErrClosed)
	_, err = tr.ReceiveWithTimeout(context.Background(), 1, time.Second)
	assert.Error(t, err)
}

func TestOpen_Validation(t *testing.T) {
	_, err := Open(Options{BaudRate: 9600})
	assert.ErrorContains(t, err, "no serial port")

	_, err = Open(Options{PortName: "/dev/null", BaudRate: 0})
	assert.ErrorContains(t, err, "invalid baud rate")

	_, err = Open(Options{PortName: "/dev/null", BaudRate: 9600, Driver: "usb-magic"})
	assert.ErrorContains(t, err, "unknown serial driver")
}

func TestBugstMode(t *testing.T) {
	mode := bugstMode(Options{BaudRate: 9600})
	assert.Equal(t, &serial.Mode{
		BaudRate: 9600,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}, mode)
}

func TestJacobsaOptions(t *testing.T) {
	tests := []struct {
		poll time.Duration
		want uint
	}{
		{0, 100},
		{20 * time.Millisecond, 100},
		{100 * time.Millisecond, 100},
		{150 * time.Millisecond, 200},
		{time.Second, 1000},
	}
	for _, tt := range tests {
		opts := jacobsaOptions(Options{PortName: "/dev/serial0", BaudRate: 9600, PollInterval: tt.poll})
		assert.Equal(t, tt.want, opts.InterCharacterTimeout, "poll %v", tt.poll)
		assert.Zero(t, opts.MinimumReadSize)
		assert.Equal(t, jserial.PARITY_NONE, opts.ParityMode)
		assert.Equal(t, uint(8), opts.DataBits)
		assert.Equal(t, uint(1), opts.StopBits)
		assert.Equal(t, uint(9600), opts.BaudRate)
	}
}

func TestOpen_Sim(t *testing.T) {
	tr, err := Open(Options{
		Driver:       DriverSim,
		PollInterval: 20 * time.Millisecond,
		Sim:          sim.DefaultConfig([]float64{0, math.Pi / 2}),
	})
	require.NoError(t, err)
	defer tr.Close()

	_, err = tr.Send([]byte{0, 0, 0, 0})
	require.NoError(t, err)
	frame, err := tr.ReceiveWithTimeout(context.Background(), 10, time.Second)
	require.NoError(t, err)

	// front sensor sees nothing, left sensor sees the wall at 40 cm
	assert.Equal(t, []byte{0x2C, 0x01, 0x28, 0x00}, frame[:4])
}

func (f *FakePort) readLen() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.readBuf.Len()
}

func (f *FakePort) setReadError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ReadError = err
}
