package serial

import (
	"context"
	"errors"
	"os"
)

// Predefined error types for robust error handling
var (
	ErrDeviceNotFound   = errors.New("serial device not found")
	ErrPermissionDenied = errors.New("permission denied accessing serial device")
	ErrDeviceInUse      = errors.New("serial device already in use")
	ErrInvalidBaudRate  = errors.New("invalid baud rate")
	ErrInvalidConfig    = errors.New("invalid serial configuration")
	ErrPortClosed       = errors.New("serial port is closed")
	ErrWriteTimeout     = errors.New("write operation timed out")
	ErrUnknownBackend   = errors.New("unknown serial backend")
)

// timeout is implemented by errors that know whether they are a timeout,
// such as *os.PathError and net.Error.
type timeout interface {
	Timeout() bool
}

// IsTimeout reports whether err is a write timeout. Timeouts are an expected
// outcome of a non-blocking write attempt and callers usually skip them.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrWriteTimeout) ||
		errors.Is(err, os.ErrDeadlineExceeded) ||
		errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var t timeout
	return errors.As(err, &t) && t.Timeout()
}
