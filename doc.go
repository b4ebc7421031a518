// Package serial provides a small, write-oriented serial port driver for
// Linux with two interchangeable backends.
//
// # Basic Usage
//
// Open a serial port with default configuration (115200 8N1):
//
//	port, err := serial.Open("/dev/ttyUSB0")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer port.Close()
//
//	n, err := port.Write([]byte("."))
//
// # Configuration Options
//
// Use functional options for custom configuration:
//
//	port, err := serial.Open("/dev/ttyUSB0",
//	    serial.WithBaudRate(9600),
//	    serial.WithDataBits(7),
//	    serial.WithStopBits(2),
//	    serial.WithWriteTimeout(50*time.Millisecond),
//	)
//
// # Backends
//
// BackendNative (the default) drives the tty directly through termios and
// opens it non-blocking, so a write that the device cannot accept within the
// write timeout fails fast with ErrWriteTimeout. BackendPortable uses
// go.bug.st/serial and enforces the write timeout with a timer:
//
//	port, err := serial.Open("/dev/ttyACM0", serial.WithBackend(serial.BackendPortable))
//
// # Error Handling
//
// Errors wrap the sentinels declared in this package. Timeouts are expected
// on a congested line and are classified with IsTimeout:
//
//	if _, err := port.Write(data); serial.IsTimeout(err) {
//	    // try again on the next tick
//	} else if errors.Is(err, serial.ErrPortClosed) {
//	    // ...
//	}
//
// # Default Configuration
//
//   - BaudRate: 115200
//   - DataBits: 8
//   - StopBits: 1
//   - WriteTimeout: 0 (single non-blocking attempt)
//   - WriteMode: Buffered
//   - Backend: Native
package serial
