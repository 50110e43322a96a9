package gps

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// Replay plays back a recorded NMEA log, one sentence per interval,
// starting over at the end of the file. Read never blocks; after Close it
// returns io.EOF.
type Replay struct {
	sentences []string
	interval  time.Duration
	now       func() time.Time

	mu      sync.Mutex
	next    int
	due     time.Time
	pending []byte
	closed  bool
}

// NewReplay loads the '$'-prefixed lines of path.
func NewReplay(path string, interval time.Duration) (*Replay, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open replay log: %w", err)
	}
	defer f.Close()

	var sentences []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if strings.HasPrefix(line, "$") {
			sentences = append(sentences, line)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read replay log: %w", err)
	}
	if len(sentences) == 0 {
		return nil, fmt.Errorf("replay log %s has no NMEA sentences", path)
	}
	return newReplay(sentences, interval, time.Now), nil
}

func newReplay(sentences []string, interval time.Duration, now func() time.Time) *Replay {
	return &Replay{sentences: sentences, interval: interval, now: now}
}

func (r *Replay) Read(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return 0, io.EOF
	}
	if len(r.pending) == 0 {
		t := r.now()
		if t.Before(r.due) {
			return 0, nil
		}
		r.due = t.Add(r.interval)
		r.pending = append(r.pending[:0], r.sentences[r.next]...)
		r.pending = append(r.pending, '\r', '\n')
		r.next = (r.next + 1) % len(r.sentences)
	}

	n := copy(p, r.pending)
	r.pending = r.pending[n:]
	return n, nil
}

func (r *Replay) Close() error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	return nil
}
