package transport

import (
	"fmt"
	"time"

	"github.com/tarm/serial"
)

// Open opens name (e.g. "/dev/ttyACM0", "COM3") at the gateway's fixed link
// parameters: 57600 baud, 8 data bits, no parity, 1 stop bit, raw mode. The
// baud rate and framing are not configurable; the device does not negotiate
// them.
func Open(name string) (Port, error) {
	if name == "" {
		return nil, fmt.Errorf("transport: device name cannot be empty")
	}

	cfg := &serial.Config{
		Name:        devicePath(name),
		Baud:        57600,
		Size:        8,
		Parity:      serial.ParityNone,
		StopBits:    serial.Stop1,
		ReadTimeout: pollInterval * time.Millisecond,
	}

	p, err := serial.OpenPort(cfg)
	if err != nil {
		return nil, fmt.Errorf("transport: open %s: %w", name, err)
	}

	return &nativePort{port: p}, nil
}

// nativePort wraps the tarm/serial connection.
type nativePort struct {
	port *serial.Port
}

func (p *nativePort) Read(b []byte) (int, error) {
	return p.port.Read(b)
}

// Write retries partial writes until the buffer is fully sent or
// writeDeadlineMillis elapses, matching the teacher's writeMessage bound.
func (p *nativePort) Write(b []byte) (int, error) {
	deadline := time.Now().Add(writeDeadlineMillis * time.Millisecond)
	written := 0
	for written < len(b) {
		n, err := p.port.Write(b[written:])
		written += n
		if err != nil {
			return written, fmt.Errorf("transport: write: %w", err)
		}
		if written >= len(b) {
			break
		}
		if time.Now().After(deadline) {
			return written, fmt.Errorf("transport: write timed out after %d bytes of %d", written, len(b))
		}
	}
	return written, nil
}

func (p *nativePort) Close() error {
	return p.port.Close()
}

func (p *nativePort) Flush() error {
	return p.port.Flush()
}
