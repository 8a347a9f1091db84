// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package transport moves fixed-size frames over the serial link to the robot
// controller. It knows nothing about frame contents and never retries.
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"
)

var (
	// ErrTimeout is returned when no complete frame arrived before the
	// deadline. Partial bytes are dropped.
	ErrTimeout    = errors.New("receive timeout")
	ErrShortWrite = errors.New("short write to serial port")
	ErrClosed     = errors.New("transport closed")
)

// Port is the minimal serial port surface. Real ports should return from Read
// periodically (read timeout) so the reader can notice Close.
type Port interface {
	io.ReadWriteCloser
}

// inputFlusher is implemented by ports able to drop unread input in the
// driver, such as go.bug.st/serial ports.
type inputFlusher interface {
	ResetInputBuffer() error
}

type chunk struct {
	data []byte
	err  error
}

// Transport wraps a Port with frame-sized send and deadline-bound receive.
type Transport struct {
	port Port

	// idle is slept after a read returns io.EOF without data, which is how
	// termios VMIN=0 ports report an expired read timeout.
	idle time.Duration

	startOnce sync.Once
	chunks    chan chunk
	done      chan struct{}
	closeOnce sync.Once

	rxMu    sync.Mutex
	pending []byte
}

// New wraps port. The background reader starts on the first receive.
func New(port Port) *Transport {
	return &Transport{
		port:   port,
		idle:   10 * time.Millisecond,
		chunks: make(chan chunk, 64),
		done:   make(chan struct{}),
	}
}

// Send writes frame in a single attempt and returns the number of bytes the
// port accepted.
func (t *Transport) Send(frame []byte) (int, error) {
	select {
	case <-t.done:
		return 0, ErrClosed
	default:
	}
	n, err := t.port.Write(frame)
	if err != nil {
		return n, fmt.Errorf("serial write: %w", err)
	}
	if n != len(frame) {
		return n, fmt.Errorf("%w: %d of %d bytes", ErrShortWrite, n, len(frame))
	}
	return n, nil
}

// ReceiveWithTimeout blocks until size bytes have arrived, timeout elapses,
// the port reports a read error or ctx is cancelled. On any failure whatever
// was accumulated is discarded, so the next call starts from a clean slate.
// Read errors only fail the current call; the reader keeps polling the port.
func (t *Transport) ReceiveWithTimeout(ctx context.Context, size int, timeout time.Duration) ([]byte, error) {
	t.startOnce.Do(func() { go t.readLoop() })

	t.rxMu.Lock()
	defer t.rxMu.Unlock()

	frame := make([]byte, 0, size)
	take := func(data []byte) {
		need := size - len(frame)
		if len(data) > need {
			t.pending = append(t.pending, data[need:]...)
			data = data[:need]
		}
		frame = append(frame, data...)
	}

	if len(t.pending) > 0 {
		p := t.pending
		t.pending = nil
		take(p)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for len(frame) < size {
		select {
		case <-ctx.Done():
			t.dropInputLocked()
			return nil, ctx.Err()
		case <-timer.C:
			t.dropInputLocked()
			return nil, fmt.Errorf("%w after %v (%d of %d bytes)", ErrTimeout, timeout, len(frame), size)
		case <-t.done:
			return nil, ErrClosed
		case c := <-t.chunks:
			if c.err != nil {
				t.dropInputLocked()
				return nil, fmt.Errorf("serial read: %w", c.err)
			}
			take(c.data)
		}
	}
	return frame, nil
}

// Flush drops all input received so far, both buffered here and, when the
// port supports it, in the driver.
func (t *Transport) Flush() error {
	t.rxMu.Lock()
	defer t.rxMu.Unlock()
	return t.dropInputLocked()
}

// Close stops the reader and closes the port.
func (t *Transport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		close(t.done)
		err = t.port.Close()
	})
	return err
}

func (t *Transport) dropInputLocked() error {
	t.discardLocked()
	if f, ok := t.port.(inputFlusher); ok {
		if err := f.ResetInputBuffer(); err != nil {
			return fmt.Errorf("flush input: %w", err)
		}
	}
	return nil
}

// discardLocked drops buffered input, including read errors reported for
// data that is being thrown away anyway.
func (t *Transport) discardLocked() {
	t.pending = nil
	for {
		select {
		case <-t.chunks:
		default:
			return
		}
	}
}

func (t *Transport) readLoop() {
	buf := make([]byte, 256)
	for {
		n, err := t.port.Read(buf)
		if n > 0 {
			data := make([]byte, n)
			copy(data, buf[:n])
			select {
			case t.chunks <- chunk{data: data}:
			case <-t.done:
				return
			}
		}
		if err == nil {
			continue
		}

		select {
		case <-t.done:
			return
		default:
		}
		if !errors.Is(err, io.EOF) {
			select {
			case t.chunks <- chunk{err: err}:
			case <-t.done:
				return
			}
		}
		time.Sleep(t.idle)
	}
}
