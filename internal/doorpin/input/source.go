// Package input captures credential candidates from every attached input
// device and merges them into one stream.
package input

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
)

var ErrNoDevices = errors.New("no input devices found")

// Candidate is a completed, unverified credential string and the device
// that produced it.
type Candidate struct {
	Value  string
	Device string
}

// Source is one input device. Run blocks, calling emit for every
// completed candidate, until ctx is done (nil error) or the device fails.
type Source interface {
	Name() string
	Run(ctx context.Context, emit func(Candidate)) error
}

// Discover lists the sources to capture from. It is called on every Start
// so that devices plugged in while stopped are picked up.
type Discover func(ctx context.Context) ([]Source, error)

// Static returns a Discover that always yields srcs.
func Static(srcs ...Source) Discover {
	return func(context.Context) ([]Source, error) { return srcs, nil }
}

// LineSource treats every non-empty line of r as a candidate. The
// underlying reader is consumed by one background goroutine for the life
// of the process so that a stopped Run never loses its place in r.
//
// Lines are only delivered to the Run that was active when they were read.
// Anything typed while no Run is receiving is dropped, so a stopped reader
// never replays stale input on its next start.
type LineSource struct {
	name string
	r    io.Reader

	once    sync.Once
	lines   chan stampedLine
	err     error // set before lines is closed
	runs    atomic.Uint64
	active  atomic.Uint64 // id of the receiving Run, 0 when none
	dropped atomic.Int64
}

type stampedLine struct {
	text string
	run  uint64
}

func NewLineSource(name string, r io.Reader) *LineSource {
	return &LineSource{name: name, r: r, lines: make(chan stampedLine)}
}

func (s *LineSource) Name() string { return s.name }

func (s *LineSource) Run(ctx context.Context, emit func(Candidate)) error {
	id := s.runs.Add(1)
	s.active.Store(id)
	defer s.active.CompareAndSwap(id, 0)
	s.once.Do(func() { go s.scan() })

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-s.lines:
			if !ok {
				return fmt.Errorf("line source %s: %w", s.name, s.err)
			}
			if line.run != id {
				s.dropped.Add(1)
				continue
			}
			emit(Candidate{Value: line.text, Device: s.name})
		}
	}
}

func (s *LineSource) scan() {
	sc := bufio.NewScanner(s.r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		id := s.active.Load()
		if id == 0 {
			s.dropped.Add(1)
			continue
		}
		s.lines <- stampedLine{text: line, run: id}
	}
	s.err = sc.Err()
	if s.err == nil {
		s.err = io.EOF
	}
	close(s.lines)
}
