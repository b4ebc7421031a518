package transmit

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/allbin/serial-tx"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockPort struct {
	mock.Mock
}

func (m *mockPort) Write(p []byte) (int, error) {
	args := m.Called(p)
	return args.Int(0), args.Error(1)
}

// recordingWait records requested periods and cancels after limit waits
type recordingWait struct {
	periods []time.Duration
	limit   int
	cancel  context.CancelFunc
}

func (r *recordingWait) wait(ctx context.Context, d time.Duration) error {
	r.periods = append(r.periods, d)
	if len(r.periods) >= r.limit {
		r.cancel()
	}
	return ctx.Err()
}

func newLoop(port *mockPort, rate uint, out, logs *bytes.Buffer) *Loop {
	return &Loop{
		Port:    port,
		Pattern: []byte("."),
		Rate:    rate,
		Out:     out,
		Log:     zerolog.New(logs).Level(zerolog.InfoLevel),
		Stats:   &Stats{},
	}
}

func TestPeriod(t *testing.T) {
	tests := []struct {
		rate uint
		want time.Duration
	}{
		{0, 0},
		{1, time.Second},
		{2, 500 * time.Millisecond},
		{3, 333 * time.Millisecond},
		{7, 142 * time.Millisecond},
		{1000, time.Millisecond},
		{2000, 0},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Period(tt.rate), "Period(%d)", tt.rate)
	}
}

func TestRunZeroRateWritesOnce(t *testing.T) {
	port := &mockPort{}
	port.On("Write", []byte(".")).Return(1, nil).Once()

	var out, logs bytes.Buffer
	loop := newLoop(port, 0, &out, &logs)
	waited := false
	loop.Wait = func(context.Context, time.Duration) error {
		waited = true
		return nil
	}

	require.NoError(t, loop.Run(context.Background()))

	port.AssertExpectations(t)
	port.AssertNumberOfCalls(t, "Write", 1)
	assert.False(t, waited, "zero rate must not wait")
	assert.Equal(t, ".", out.String())
	assert.Empty(t, logs.String())
	assert.Equal(t, uint64(1), loop.Stats.Writes.Load())
}

func TestRunSpacesTicksByPeriod(t *testing.T) {
	port := &mockPort{}
	port.On("Write", []byte(".")).Return(1, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rec := &recordingWait{limit: 3, cancel: cancel}

	var out, logs bytes.Buffer
	loop := newLoop(port, 4, &out, &logs)
	loop.Wait = rec.wait

	err := loop.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)

	port.AssertNumberOfCalls(t, "Write", 3)
	assert.Equal(t, []time.Duration{250 * time.Millisecond, 250 * time.Millisecond, 250 * time.Millisecond}, rec.periods)
	assert.Equal(t, "...", out.String())
}

func TestRunIgnoresTimeouts(t *testing.T) {
	port := &mockPort{}
	port.On("Write", mock.Anything).Return(0, serial.ErrWriteTimeout).Times(4)
	port.On("Write", mock.Anything).Return(1, nil).Once()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rec := &recordingWait{limit: 5, cancel: cancel}

	var out, logs bytes.Buffer
	loop := newLoop(port, 10, &out, &logs)
	loop.Wait = rec.wait

	require.ErrorIs(t, loop.Run(ctx), context.Canceled)

	port.AssertExpectations(t)
	assert.Empty(t, logs.String(), "timeouts must not be reported")
	assert.Equal(t, ".", out.String())

	snap := loop.Stats.Snapshot()
	assert.Equal(t, uint64(5), snap.Ticks)
	assert.Equal(t, uint64(4), snap.Timeouts)
	assert.Equal(t, uint64(1), snap.Writes)
	assert.Zero(t, snap.Errors)
}

func TestRunReportsEachError(t *testing.T) {
	port := &mockPort{}
	port.On("Write", mock.Anything).Return(0, errors.New("input/output error")).Times(2)
	port.On("Write", mock.Anything).Return(1, nil).Once()
	port.On("Write", mock.Anything).Return(0, errors.New("device disconnected")).Once()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rec := &recordingWait{limit: 4, cancel: cancel}

	var out, logs bytes.Buffer
	loop := newLoop(port, 1, &out, &logs)
	loop.Wait = rec.wait

	require.ErrorIs(t, loop.Run(ctx), context.Canceled)

	lines := strings.Split(strings.TrimSpace(logs.String()), "\n")
	require.Len(t, lines, 3, "one line per failed tick")
	for _, line := range lines {
		var entry map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		assert.Equal(t, "error", entry["level"])
		assert.Equal(t, "write failed", entry["message"])
	}
	assert.Contains(t, lines[2], "device disconnected")
	assert.Equal(t, ".", out.String())
	assert.Equal(t, uint64(3), loop.Stats.Errors.Load())
}

func TestRunFlushesConsole(t *testing.T) {
	port := &mockPort{}
	port.On("Write", []byte("ping")).Return(4, nil).Once()

	var sink, logs bytes.Buffer
	console := bufio.NewWriter(&sink)

	loop := &Loop{
		Port:    port,
		Pattern: []byte("ping"),
		Out:     console,
		Log:     zerolog.New(&logs).Level(zerolog.InfoLevel),
	}
	require.NoError(t, loop.Run(context.Background()))

	assert.Equal(t, "ping", sink.String(), "output should be visible without an explicit flush")
	assert.Equal(t, uint64(4), loop.Stats.BytesWritten.Load())
}

func TestRunStopsWhenContextAlreadyDone(t *testing.T) {
	port := &mockPort{}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var out, logs bytes.Buffer
	loop := newLoop(port, 1, &out, &logs)

	require.ErrorIs(t, loop.Run(ctx), context.Canceled)
	port.AssertNotCalled(t, "Write", mock.Anything)
}

// stallingPort never completes a write on its own
type stallingPort struct {
	started chan struct{}
	once    sync.Once
}

func (s *stallingPort) Write(p []byte) (int, error) {
	select {}
}

func (s *stallingPort) WriteContext(ctx context.Context, p []byte) (int, error) {
	s.once.Do(func() { close(s.started) })
	<-ctx.Done()
	return 0, ctx.Err()
}

func TestRunCancelsStalledWrite(t *testing.T) {
	port := &stallingPort{started: make(chan struct{})}

	var out, logs bytes.Buffer
	loop := &Loop{
		Port:    port,
		Pattern: []byte("."),
		Rate:    1,
		Out:     &out,
		Log:     zerolog.New(&logs).Level(zerolog.InfoLevel),
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- loop.Run(ctx) }()

	<-port.started
	cancel()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run still blocked after cancel")
	}
	assert.Empty(t, logs.String(), "an interrupted write is not a write error")
	assert.Empty(t, out.String())
	assert.Zero(t, loop.Stats.Ticks.Load())
}

func TestRunDebugLogging(t *testing.T) {
	port := &mockPort{}
	port.On("Write", mock.Anything).Return(1, nil).Once()

	var out, logs bytes.Buffer
	loop := newLoop(port, 0, &out, &logs)
	loop.Log = zerolog.New(&logs).Level(zerolog.DebugLevel)

	require.NoError(t, loop.Run(context.Background()))
	assert.Contains(t, logs.String(), "transmit loop started")
}

func TestSleep(t *testing.T) {
	start := time.Now()
	require.NoError(t, Sleep(context.Background(), 20*time.Millisecond))
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start = time.Now()
	require.ErrorIs(t, Sleep(ctx, time.Hour), context.Canceled)
	assert.Less(t, time.Since(start), time.Second)
}

func TestSnapshotLogObject(t *testing.T) {
	var stats Stats
	stats.Ticks.Add(3)
	stats.Writes.Add(2)
	stats.BytesWritten.Add(10)
	stats.Timeouts.Inc()

	var logs bytes.Buffer
	log := zerolog.New(&logs)
	log.Info().EmbedObject(stats.Snapshot()).Msg("summary")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(logs.Bytes(), &entry))
	assert.EqualValues(t, 3, entry["ticks"])
	assert.EqualValues(t, 2, entry["writes"])
	assert.EqualValues(t, 10, entry["bytes"])
	assert.EqualValues(t, 1, entry["timeouts"])
	assert.EqualValues(t, 0, entry["errors"])
	assert.NotContains(t, entry, "last_write")
}
