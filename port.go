package serial

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// Port is an open, write-oriented serial connection
type Port interface {
	Write(data []byte) (int, error)
	WriteContext(ctx context.Context, data []byte) (int, error)
	Drain() error
	FlushOutput() error
	Close() error
}

// port is the native termios implementation of Port
type port struct {
	mu     sync.RWMutex
	fd     int
	device string
	config Config
	closed bool
}

// Ensure port implements Port interface at compile time
var _ Port = (*port)(nil)

// baudRates maps integer baud rates to the termios speed constants
var baudRates = map[int]uint32{
	50:      unix.B50,
	75:      unix.B75,
	110:     unix.B110,
	134:     unix.B134,
	150:     unix.B150,
	200:     unix.B200,
	300:     unix.B300,
	600:     unix.B600,
	1200:    unix.B1200,
	1800:    unix.B1800,
	2400:    unix.B2400,
	4800:    unix.B4800,
	9600:    unix.B9600,
	19200:   unix.B19200,
	38400:   unix.B38400,
	57600:   unix.B57600,
	115200:  unix.B115200,
	230400:  unix.B230400,
	460800:  unix.B460800,
	500000:  unix.B500000,
	576000:  unix.B576000,
	921600:  unix.B921600,
	1000000: unix.B1000000,
	1152000: unix.B1152000,
	1500000: unix.B1500000,
	2000000: unix.B2000000,
	2500000: unix.B2500000,
	3000000: unix.B3000000,
	3500000: unix.B3500000,
	4000000: unix.B4000000,
}

// getBaudRate converts an integer baud rate to the unix constant
func getBaudRate(rate int) (uint32, error) {
	speed, ok := baudRates[rate]
	if !ok {
		return 0, fmt.Errorf("%w: %d is not a termios speed", ErrInvalidBaudRate, rate)
	}
	return speed, nil
}

// Open opens a serial port with the given device path and options
func Open(device string, opts ...Option) (Port, error) {
	if device == "" {
		return nil, fmt.Errorf("%w: empty device path", ErrInvalidConfig)
	}

	config, err := ResolveConfig(opts...)
	if err != nil {
		return nil, err
	}

	var p Port
	switch config.Backend {
	case BackendNative:
		p, err = openNative(device, config)
	case BackendPortable:
		p, err = openPortable(device, config)
	default:
		return nil, ErrUnknownBackend
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

func openNative(device string, config Config) (*port, error) {
	// Reject unsupported speeds before touching the device
	if _, err := getBaudRate(config.BaudRate); err != nil {
		return nil, err
	}

	// O_NONBLOCK so a write to a stalled line reports a timeout instead of
	// hanging the caller
	flags := unix.O_RDWR | unix.O_NOCTTY | unix.O_NONBLOCK
	if config.WriteMode == WriteModeSynced {
		flags |= unix.O_SYNC
	}

	fd, err := unix.Open(device, flags, 0)
	if err != nil {
		return nil, classifyOpenError(err)
	}

	if err := configurePort(fd, config); err != nil {
		unix.Close(fd)
		return nil, err
	}

	return &port{
		fd:     fd,
		device: device,
		config: config,
	}, nil
}

// classifyOpenError attaches the matching sentinel to an errno from open(2)
func classifyOpenError(err error) error {
	switch {
	case errors.Is(err, unix.ENOENT), errors.Is(err, unix.ENODEV), errors.Is(err, unix.ENXIO):
		return fmt.Errorf("%w: %w", ErrDeviceNotFound, err)
	case errors.Is(err, unix.EACCES), errors.Is(err, unix.EPERM):
		return fmt.Errorf("%w: %w", ErrPermissionDenied, err)
	case errors.Is(err, unix.EBUSY):
		return fmt.Errorf("%w: %w", ErrDeviceInUse, err)
	default:
		return err
	}
}

// configurePort reads the current termios, applies config and writes it back
func configurePort(fd int, config Config) error {
	termios, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		return fmt.Errorf("failed to get termios: %w", err)
	}

	if err := buildTermios(termios, config); err != nil {
		return err
	}

	if err := unix.IoctlSetTermios(fd, unix.TCSETS, termios); err != nil {
		return fmt.Errorf("failed to set termios: %w", err)
	}
	return nil
}

// buildTermios puts t into raw mode with the framing and speed from config
func buildTermios(t *unix.Termios, config Config) error {
	speed, err := getBaudRate(config.BaudRate)
	if err != nil {
		return err
	}

	var size uint32
	switch config.DataBits {
	case 5:
		size = unix.CS5
	case 6:
		size = unix.CS6
	case 7:
		size = unix.CS7
	case 8:
		size = unix.CS8
	default:
		return fmt.Errorf("%w: data bits %d", ErrInvalidConfig, config.DataBits)
	}

	t.Cflag = size | unix.CREAD | unix.CLOCAL
	switch config.StopBits {
	case 1:
	case 2:
		t.Cflag |= unix.CSTOPB
	default:
		return fmt.Errorf("%w: stop bits %d", ErrInvalidConfig, config.StopBits)
	}

	t.Iflag = 0
	t.Oflag = 0
	t.Lflag = 0

	// Reads are never issued; keep VMIN/VTIME at a non-blocking setting
	t.Cc[unix.VMIN] = 0
	t.Cc[unix.VTIME] = 0

	t.Cflag = (t.Cflag &^ unix.CBAUD) | speed
	t.Ispeed = speed
	t.Ospeed = speed
	return nil
}

// Close closes the serial port
func (p *port) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrPortClosed
	}

	err := unix.Close(p.fd)
	p.closed = true
	return err
}

// Write writes data to the serial port, waiting at most the configured
// write timeout for the device to accept it
func (p *port) Write(data []byte) (int, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return 0, ErrPortClosed
	}

	return p.write(data, p.config.WriteTimeout)
}

// WriteContext writes data with context timeout support
func (p *port) WriteContext(ctx context.Context, data []byte) (int, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return 0, ErrPortClosed
	}

	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	default:
	}

	// Use the shorter of the context deadline and the write timeout
	timeout := p.config.WriteTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout || timeout == 0 {
			timeout = max(remaining, 0)
		}
	}

	n, err := p.write(data, timeout)
	if err != nil && ctx.Err() != nil {
		return n, ctx.Err()
	}
	return n, err
}

func (p *port) write(data []byte, timeout time.Duration) (int, error) {
	deadline := time.Now().Add(timeout)
	written := 0
	for written < len(data) {
		n, err := unix.Write(p.fd, data[written:])
		if n > 0 {
			written += n
		}
		switch {
		case err == nil:
		case errors.Is(err, unix.EINTR):
		case errors.Is(err, unix.EAGAIN):
			remaining := time.Until(deadline)
			if remaining <= 0 {
				return written, ErrWriteTimeout
			}
			if err := waitWritable(p.fd, remaining); err != nil {
				return written, err
			}
		default:
			return written, fmt.Errorf("write %s: %w", p.device, err)
		}
	}
	return written, nil
}

// waitWritable blocks until fd accepts output or timeout elapses
func waitWritable(fd int, timeout time.Duration) error {
	fds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLOUT}}
	ms := int(timeout / time.Millisecond)
	if ms < 1 {
		ms = 1
	}
	for {
		n, err := unix.Poll(fds, ms)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil {
			return fmt.Errorf("poll: %w", err)
		}
		if n == 0 {
			return ErrWriteTimeout
		}
		if fds[0].Revents&(unix.POLLERR|unix.POLLHUP|unix.POLLNVAL) != 0 {
			return fmt.Errorf("poll: device reported revents %#x", fds[0].Revents)
		}
		return nil
	}
}

// Drain waits until all output written to the port has been transmitted
func (p *port) Drain() error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrPortClosed
	}

	return unix.IoctlSetInt(p.fd, unix.TCSBRK, 1)
}

// FlushOutput discards any unwritten output data
func (p *port) FlushOutput() error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrPortClosed
	}

	return unix.IoctlSetInt(p.fd, unix.TCFLSH, unix.TCOFLUSH)
}
