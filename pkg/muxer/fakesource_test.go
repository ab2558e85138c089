package muxer

import (
	"context"
	"io"
	"sync"
)

// fakeSource is a canned Source used across pkg/muxer's tests: it plays
// back a fixed slice of Buffers and then returns io.EOF.
type fakeSource struct {
	format  Format
	buffers []Buffer

	mu      sync.Mutex
	pos     int
	started bool
	stopped bool
}

func newFakeSource(format Format, buffers []Buffer) *fakeSource {
	return &fakeSource{format: format, buffers: buffers}
}

func (s *fakeSource) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = true
	return nil
}

func (s *fakeSource) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
}

func (s *fakeSource) Format() Format { return s.format }

func (s *fakeSource) Read(ctx context.Context) (Buffer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pos >= len(s.buffers) {
		return Buffer{}, io.EOF
	}
	b := s.buffers[s.pos]
	s.pos++
	return b, nil
}
