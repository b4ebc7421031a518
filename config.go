package serial

import (
	"fmt"
	"time"
)

// WriteMode represents the write synchronization mode
type WriteMode int

const (
	WriteModeBuffered WriteMode = iota // Default: kernel buffers writes
	WriteModeSynced                    // O_SYNC: writes block until hardware transmission
)

// Backend selects the driver used to talk to the device
type Backend int

const (
	BackendNative   Backend = iota // termios via golang.org/x/sys/unix
	BackendPortable                // go.bug.st/serial
)

// String returns the flag spelling of the backend
func (b Backend) String() string {
	switch b {
	case BackendNative:
		return "native"
	case BackendPortable:
		return "portable"
	default:
		return fmt.Sprintf("Backend(%d)", int(b))
	}
}

// ParseBackend converts a flag value into a Backend
func ParseBackend(s string) (Backend, error) {
	switch s {
	case "", "native":
		return BackendNative, nil
	case "portable":
		return BackendPortable, nil
	default:
		return 0, fmt.Errorf("%w: %q (valid: native, portable)", ErrUnknownBackend, s)
	}
}

// Config holds the configuration for a serial port
type Config struct {
	BaudRate int
	DataBits int
	StopBits int
	// WriteTimeout bounds how long a single Write waits for the device to
	// accept data. Zero means a single non-blocking attempt.
	WriteTimeout time.Duration
	WriteMode    WriteMode
	Backend      Backend
}

// Option is a functional option for configuring a serial port
type Option func(*Config) error

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() Config {
	return Config{
		BaudRate:     115200,
		DataBits:     8,
		StopBits:     1,
		WriteTimeout: 0,
		WriteMode:    WriteModeBuffered,
		Backend:      BackendNative,
	}
}

// ResolveConfig applies opts to DefaultConfig, returning the first option
// error. Open resolves its configuration the same way.
func ResolveConfig(opts ...Option) (Config, error) {
	config := DefaultConfig()
	for _, opt := range opts {
		if err := opt(&config); err != nil {
			return Config{}, err
		}
	}
	return config, nil
}

// String renders the configuration in the usual 8N1 shorthand
func (c Config) String() string {
	return fmt.Sprintf("%d %dN%d (backend=%s, write-timeout=%s)",
		c.BaudRate, c.DataBits, c.StopBits, c.Backend, c.WriteTimeout)
}

// WithBaudRate sets the baud rate. Any positive rate is accepted here; the
// native backend additionally rejects rates termios cannot express when the
// port is opened.
func WithBaudRate(rate int) Option {
	return func(c *Config) error {
		if rate <= 0 {
			return ErrInvalidBaudRate
		}
		c.BaudRate = rate
		return nil
	}
}

// WithDataBits sets the number of data bits (5, 6, 7, or 8)
func WithDataBits(bits int) Option {
	return func(c *Config) error {
		if bits < 5 || bits > 8 {
			return ErrInvalidConfig
		}
		c.DataBits = bits
		return nil
	}
}

// WithStopBits sets the number of stop bits (1 or 2)
func WithStopBits(bits int) Option {
	return func(c *Config) error {
		if bits != 1 && bits != 2 {
			return ErrInvalidConfig
		}
		c.StopBits = bits
		return nil
	}
}

// WithWriteTimeout sets how long a write may wait for the device
func WithWriteTimeout(timeout time.Duration) Option {
	return func(c *Config) error {
		if timeout < 0 {
			return ErrInvalidConfig
		}
		c.WriteTimeout = timeout
		return nil
	}
}

// WithSyncWrite enables synchronous writes (O_SYNC) for guaranteed transmission
func WithSyncWrite() Option {
	return func(c *Config) error {
		c.WriteMode = WriteModeSynced
		return nil
	}
}

// WithBackend selects the driver backend
func WithBackend(b Backend) Option {
	return func(c *Config) error {
		if b != BackendNative && b != BackendPortable {
			return ErrUnknownBackend
		}
		c.Backend = b
		return nil
	}
}
