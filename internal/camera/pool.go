package camera

import (
	"sync"
	"time"

	"github.com/dj-oyu/carcam/internal/logger"
)

// framePool is the fixed set of frame buffers a backend hands out.
type framePool struct {
	free      chan *Frame
	done      chan struct{}
	closeOnce sync.Once
	timeout   time.Duration
	log       logger.Module

	mu          sync.Mutex
	outstanding map[*Frame]struct{}
}

func newFramePool(n int, timeout time.Duration, log logger.Module) *framePool {
	if n <= 0 {
		n = 1
	}
	if timeout <= 0 {
		timeout = time.Second
	}
	p := &framePool{
		free:        make(chan *Frame, n),
		done:        make(chan struct{}),
		timeout:     timeout,
		log:         log,
		outstanding: make(map[*Frame]struct{}, n),
	}
	for range n {
		p.free <- &Frame{}
	}
	return p
}

// get waits for a free buffer. The buffer is not outstanding until lend.
func (p *framePool) get() (*Frame, error) {
	select {
	case <-p.done:
		return nil, ErrClosed
	default:
	}

	t := time.NewTimer(p.timeout)
	defer t.Stop()
	select {
	case fb := <-p.free:
		return fb, nil
	case <-p.done:
		return nil, ErrClosed
	case <-t.C:
		return nil, ErrCaptureTimeout
	}
}

// put returns a buffer obtained from get that was never lent.
func (p *framePool) put(fb *Frame) {
	p.free <- fb
}

func (p *framePool) lend(fb *Frame) {
	p.mu.Lock()
	p.outstanding[fb] = struct{}{}
	p.mu.Unlock()
}

func (p *framePool) release(fb *Frame) {
	if fb == nil {
		return
	}
	p.mu.Lock()
	if _, ok := p.outstanding[fb]; !ok {
		p.mu.Unlock()
		p.log.Warn("Release of frame #%d that is not outstanding", fb.Seq)
		return
	}
	delete(p.outstanding, fb)
	p.mu.Unlock()

	p.free <- fb
}

func (p *framePool) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.outstanding)
}

func (p *framePool) close() {
	p.closeOnce.Do(func() { close(p.done) })
}
