package vehicle

import (
	"fmt"

	"go.bug.st/serial"
)

// OpenLink opens the motor controller UART, 8N1.
func OpenLink(port string, baud int) (serial.Port, error) {
	p, err := serial.Open(port, &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("open drive link %s: %w", port, err)
	}
	return p, nil
}
