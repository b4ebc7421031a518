package serial

import (
	"context"
	"errors"
	"fmt"
	"sync"

	bugst "go.bug.st/serial"
	"go.uber.org/atomic"
)

// bugstPort is the subset of go.bug.st/serial.Port used by the portable backend
type bugstPort interface {
	Write(p []byte) (int, error)
	Drain() error
	ResetOutputBuffer() error
	Close() error
}

// portablePort implements Port on top of go.bug.st/serial. Writes there
// always block, so write timeouts are enforced by racing a timer.
type portablePort struct {
	sp      bugstPort
	device  string
	config  Config
	writeMu sync.Mutex
	closed  atomic.Bool
}

var _ Port = (*portablePort)(nil)

// openBugst is replaced in tests
var openBugst = func(device string, mode *bugst.Mode) (bugstPort, error) {
	return bugst.Open(device, mode)
}

func openPortable(device string, config Config) (*portablePort, error) {
	mode, err := bugstMode(config)
	if err != nil {
		return nil, err
	}

	sp, err := openBugst(device, mode)
	if err != nil {
		return nil, classifyPortError(err)
	}

	return newPortablePort(sp, device, config), nil
}

func newPortablePort(sp bugstPort, device string, config Config) *portablePort {
	return &portablePort{sp: sp, device: device, config: config}
}

// bugstMode translates Config into a go.bug.st/serial Mode
func bugstMode(config Config) (*bugst.Mode, error) {
	mode := &bugst.Mode{
		BaudRate: config.BaudRate,
		DataBits: config.DataBits,
		Parity:   bugst.NoParity,
	}
	switch config.StopBits {
	case 1:
		mode.StopBits = bugst.OneStopBit
	case 2:
		mode.StopBits = bugst.TwoStopBits
	default:
		return nil, fmt.Errorf("%w: stop bits %d", ErrInvalidConfig, config.StopBits)
	}
	return mode, nil
}

// classifyPortError maps go.bug.st/serial error codes onto the package sentinels
func classifyPortError(err error) error {
	var pe *bugst.PortError
	if !errors.As(err, &pe) {
		return err
	}

	var sentinel error
	switch pe.Code() {
	case bugst.PortNotFound:
		sentinel = ErrDeviceNotFound
	case bugst.PermissionDenied:
		sentinel = ErrPermissionDenied
	case bugst.PortBusy:
		sentinel = ErrDeviceInUse
	case bugst.InvalidSpeed:
		sentinel = ErrInvalidBaudRate
	case bugst.InvalidDataBits, bugst.InvalidStopBits:
		sentinel = ErrInvalidConfig
	case bugst.PortClosed:
		sentinel = ErrPortClosed
	default:
		return err
	}
	return fmt.Errorf("%w: %w", sentinel, err)
}

// Write writes data, giving up after the configured write timeout. A zero
// timeout waits for the driver to return.
func (p *portablePort) Write(data []byte) (int, error) {
	return p.WriteContext(context.Background(), data)
}

// WriteContext writes data, giving up when ctx is done or the configured
// write timeout expires, whichever comes first
func (p *portablePort) WriteContext(ctx context.Context, data []byte) (int, error) {
	if p.config.WriteTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.config.WriteTimeout)
		defer cancel()
	}

	if p.closed.Load() {
		return 0, ErrPortClosed
	}

	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	default:
	}

	// A write abandoned by an earlier timeout still owns the line
	if !p.writeMu.TryLock() {
		return 0, ErrWriteTimeout
	}

	type writeResult struct {
		n   int
		err error
	}
	resultCh := make(chan writeResult, 1)

	go func() {
		defer p.writeMu.Unlock()
		n, err := p.sp.Write(data)
		resultCh <- writeResult{n: n, err: err}
	}()

	select {
	case result := <-resultCh:
		if result.err != nil {
			return result.n, classifyPortError(result.err)
		}
		return result.n, nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return 0, ErrWriteTimeout
		}
		return 0, ctx.Err()
	}
}

// Drain waits until all output written to the port has been transmitted
func (p *portablePort) Drain() error {
	if p.closed.Load() {
		return ErrPortClosed
	}
	return p.sp.Drain()
}

// FlushOutput discards any unwritten output data
func (p *portablePort) FlushOutput() error {
	if p.closed.Load() {
		return ErrPortClosed
	}
	return p.sp.ResetOutputBuffer()
}

// Close closes the serial port
func (p *portablePort) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return ErrPortClosed
	}
	return p.sp.Close()
}
