package vehicle

import (
	"io"
	"sync"
	"sync/atomic"

	"github.com/dj-oyu/carcam/internal/logger"
)

// Command is a drive code understood by the motor controller.
type Command string

const (
	Forward  Command = "F"
	Backward Command = "B"
	Left     Command = "L"
	Right    Command = "R"
	Stop     Command = "S"
	Auto     Command = "AUTO"
	Manual   Command = "MANUAL"
)

// Line is the wire form: "/F\n".
func (c Command) Line() string {
	return "/" + string(c) + "\n"
}

// Driver forwards commands to the log and, if set, the motor controller
// link. Link failures are logged and counted only.
type Driver struct {
	log logger.Module

	mu   sync.Mutex
	link io.Writer

	sent     atomic.Uint64
	failures atomic.Uint64
}

// NewDriver returns a driver writing to link; nil logs only.
func NewDriver(link io.Writer) *Driver {
	return &Driver{log: logger.For("Drive"), link: link}
}

// Send emits c. It never fails from the caller's point of view.
func (d *Driver) Send(c Command) {
	line := c.Line()
	d.log.Info("%s", line[:len(line)-1])
	d.sent.Add(1)

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.link == nil {
		return
	}
	if _, err := io.WriteString(d.link, line); err != nil {
		d.failures.Add(1)
		d.log.Warn("Link write %s failed: %v", c, err)
	}
}

// Sent counts every command, delivered to the link or not.
func (d *Driver) Sent() uint64 {
	return d.sent.Load()
}

func (d *Driver) LinkFailures() uint64 {
	return d.failures.Load()
}
