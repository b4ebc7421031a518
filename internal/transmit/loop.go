// Package transmit runs the periodic write loop: one pattern per tick,
// echoed to the console on success.
package transmit

import (
	"context"
	"io"
	"time"

	"github.com/allbin/serial-tx"
	"github.com/rs/zerolog"
)

// WaitFunc blocks for d or until ctx is done, returning ctx.Err() in the
// latter case
type WaitFunc func(ctx context.Context, d time.Duration) error

// contextWriter is implemented by ports whose writes can be abandoned when
// ctx is cancelled, such as serial.Port
type contextWriter interface {
	WriteContext(ctx context.Context, data []byte) (int, error)
}

// flusher is implemented by buffered console writers such as *bufio.Writer
type flusher interface {
	Flush() error
}

// Loop writes Pattern to Port Rate times per second. A zero Rate sends the
// pattern once and returns.
type Loop struct {
	Port    io.Writer
	Pattern []byte
	Rate    uint

	// Out receives a copy of the pattern after every successful write
	Out io.Writer
	Log zerolog.Logger

	Stats *Stats
	Wait  WaitFunc
}

// Period returns the delay between two ticks at rate Hz, truncated to whole
// milliseconds. A zero rate has no period.
func Period(rate uint) time.Duration {
	if rate == 0 {
		return 0
	}
	return time.Duration(1000.0/float64(rate)) * time.Millisecond
}

// Sleep is the default WaitFunc
func Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run alternates between writing and waiting until ctx is cancelled. It
// returns nil after the single write of a zero-rate loop and ctx.Err()
// otherwise.
func (l *Loop) Run(ctx context.Context) error {
	if l.Stats == nil {
		l.Stats = &Stats{}
	}
	if l.Out == nil {
		l.Out = io.Discard
	}
	wait := l.Wait
	if wait == nil {
		wait = Sleep
	}
	period := Period(l.Rate)

	l.Log.Debug().
		Uint("rate", l.Rate).
		Dur("period", period).
		Int("pattern_len", len(l.Pattern)).
		Msg("transmit loop started")

	if err := ctx.Err(); err != nil {
		return err
	}
	for {
		l.tick(ctx)
		if err := ctx.Err(); err != nil {
			return err
		}

		if l.Rate == 0 {
			return nil
		}
		if err := wait(ctx, period); err != nil {
			return err
		}
	}
}

// tick performs one write attempt and reports its outcome. A write cut
// short by ctx is not counted.
func (l *Loop) tick(ctx context.Context) {
	n, err := l.write(ctx)
	if err != nil && ctx.Err() != nil {
		return
	}

	tick := l.Stats.Ticks.Inc()
	switch {
	case err == nil:
		l.Stats.Writes.Inc()
		l.Stats.BytesWritten.Add(uint64(n))
		l.Stats.LastWrite.Store(time.Now())
		l.echo()
	case serial.IsTimeout(err):
		l.Stats.Timeouts.Inc()
	default:
		l.Stats.Errors.Inc()
		l.Log.Error().Err(err).Uint64("tick", tick).Msg("write failed")
	}
}

func (l *Loop) write(ctx context.Context) (int, error) {
	if cw, ok := l.Port.(contextWriter); ok {
		return cw.WriteContext(ctx, l.Pattern)
	}
	return l.Port.Write(l.Pattern)
}

// echo mirrors the pattern to the console without a trailing newline and
// flushes it so progress shows up immediately
func (l *Loop) echo() {
	if _, err := l.Out.Write(l.Pattern); err != nil {
		l.Log.Warn().Err(err).Msg("console write failed")
		return
	}
	if f, ok := l.Out.(flusher); ok {
		if err := f.Flush(); err != nil {
			l.Log.Warn().Err(err).Msg("console flush failed")
		}
	}
}
