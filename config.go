package gwusb

import (
	"io"
	"log"
	"time"
)

// Config holds the connection's settings. DefaultConfig fills every field
// but Device with the protocol's fixed values; Open uses whatever Config it
// is given, so a caller-supplied Config can override the timeouts and the
// logger.
type Config struct {
	// Device is the serial port name (e.g. "/dev/ttyACM0", "COM3").
	Device string

	// ReaderReadyTimeout bounds how long Open waits for the reader task to
	// finish its first setup.
	ReaderReadyTimeout time.Duration

	// RequestTimeout bounds how long a synchronous engine call waits for
	// its matching reply.
	RequestTimeout time.Duration

	// CloseTimeout bounds how long Close waits for the reader task to exit
	// after the stop signal is sent.
	CloseTimeout time.Duration

	// Logger receives reader-task diagnostics: bad-format frame skips,
	// transport-fatal errors, and recovered listener panics. Nil means the
	// default discarding logger.
	Logger *log.Logger
}

// DefaultConfig returns the standard configuration for device, with every
// timeout set to the protocol's fixed 5-second bound and logging disabled.
func DefaultConfig(device string) *Config {
	return &Config{
		Device:             device,
		ReaderReadyTimeout: 5 * time.Second,
		RequestTimeout:     5 * time.Second,
		CloseTimeout:       5 * time.Second,
		Logger:             log.New(io.Discard, "", 0),
	}
}
