// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package transport

import (
	"bytes"
	"errors"
	"io"
	"sync"
)

// FakePort is an in-memory Port for tests. Reads never block: an empty buffer
// reads as io.EOF, which the Transport treats as an idle line.
type FakePort struct {
	mu sync.Mutex

	readBuf *bytes.Buffer
	writes  [][]byte

	// WriteError is returned by the next Write call if set.
	WriteError error
	// ShortWrite, when positive, caps how many bytes the next Write accepts.
	ShortWrite int
	// ReadError is returned by the next Read call if set.
	ReadError error
	// OnWrite runs after every successful write, outside the port lock, so
	// it may call AddReadData to script a reply.
	OnWrite func(p []byte)

	flushes int
	closed  bool
}

// NewFakePort returns an empty FakePort.
func NewFakePort() *FakePort {
	return &FakePort{readBuf: bytes.NewBuffer(nil)}
}

func (f *FakePort) Read(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return 0, errors.New("serial port closed")
	}
	if f.ReadError != nil {
		err := f.ReadError
		f.ReadError = nil
		return 0, err
	}
	if f.readBuf.Len() == 0 {
		return 0, io.EOF
	}
	return f.readBuf.Read(p)
}

func (f *FakePort) Write(p []byte) (int, error) {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return 0, errors.New("serial port closed")
	}
	if f.WriteError != nil {
		err := f.WriteError
		f.WriteError = nil
		f.mu.Unlock()
		return 0, err
	}
	n := len(p)
	if f.ShortWrite > 0 && f.ShortWrite < n {
		n = f.ShortWrite
		f.ShortWrite = 0
	}
	f.writes = append(f.writes, append([]byte(nil), p[:n]...))
	hook := f.OnWrite
	f.mu.Unlock()

	if hook != nil && n == len(p) {
		hook(p)
	}
	return n, nil
}

func (f *FakePort) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// ResetInputBuffer drops unread data.
func (f *FakePort) ResetInputBuffer() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.readBuf.Reset()
	f.flushes++
	return nil
}

// AddReadData queues data for subsequent reads.
func (f *FakePort) AddReadData(data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.readBuf.Write(data)
}

// Writes returns a copy of every write accepted so far.
func (f *FakePort) Writes() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]byte, len(f.writes))
	for i, w := range f.writes {
		out[i] = append([]byte(nil), w...)
	}
	return out
}

// Flushes reports how many times ResetInputBuffer was called.
func (f *FakePort) Flushes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.flushes
}

// Closed reports whether Close was called.
func (f *FakePort) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}
