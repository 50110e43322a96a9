package gps

import (
	"fmt"
	"time"

	"go.bug.st/serial"
)

// SerialReadTimeout keeps a drain from blocking once the UART buffer is
// empty.
const SerialReadTimeout = 10 * time.Millisecond

// OpenSerial opens the receiver's UART at baud, 8N1.
func OpenSerial(port string, baud int) (serial.Port, error) {
	p, err := serial.Open(port, &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("open gps serial %s: %w", port, err)
	}
	if err := p.SetReadTimeout(SerialReadTimeout); err != nil {
		p.Close()
		return nil, fmt.Errorf("set read timeout on %s: %w", port, err)
	}
	return p, nil
}
