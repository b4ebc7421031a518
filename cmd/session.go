/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/allbin/serial-tx"
	"github.com/allbin/serial-tx/internal/transmit"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

var (
	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("99")).
			Bold(true)

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("40")).
			Bold(true)
)

// runSession opens the port and runs the loop until it finishes or the process
// is interrupted. Failing to open the port is the only fatal error.
func (a *app) runSession(cmd *cobra.Command, pc PortConfig, lp LoopParams) error {
	quiet := a.v.GetBool("quiet")

	opts := pc.Options()
	if config, err := serial.ResolveConfig(opts...); err == nil {
		a.log.Debug().
			Str("port", pc.Device).
			Stringer("config", config).
			Bool("sync", config.WriteMode == serial.WriteModeSynced).
			Msg("opening port")
	}

	port, err := a.open(pc.Device, opts...)
	if err != nil {
		return failure(fmt.Errorf("Failed to open \"%s\". Error: %w", pc.Device, err))
	}
	defer func() {
		if err := port.Close(); err != nil {
			a.log.Warn().Err(err).Str("port", pc.Device).Msg("closing port failed")
		}
	}()

	stdout := bufio.NewWriter(cmd.OutOrStdout())
	defer stdout.Flush()

	if !quiet {
		fmt.Fprintf(stdout, "%s Writing '%s' to %s at %d baud at %dHz\n",
			infoStyle.Render("⚡"), lp.Pattern, pc.Device, pc.BaudRate, lp.Rate)
		stdout.Flush()
	}

	// Setup signal handler for Ctrl+C
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		select {
		case <-sigChan:
			// A second signal falls through to the default handler and
			// kills the process
			signal.Stop(sigChan)
			cancel()
		case <-ctx.Done():
		}
	}()

	stats := &transmit.Stats{}
	loop := &transmit.Loop{
		Port:    port,
		Pattern: lp.Pattern,
		Rate:    lp.Rate,
		Out:     stdout,
		Log:     a.log,
		Stats:   stats,
		Wait:    a.wait,
	}

	err = loop.Run(ctx)
	snap := stats.Snapshot()
	a.log.Debug().EmbedObject(snap).Msg("transmit loop finished")

	if err == nil {
		// Single shot: let the pattern leave the UART before Close
		if derr := port.Drain(); derr != nil {
			a.log.Warn().Err(derr).Msg("draining port failed")
		}
	}

	if errors.Is(err, context.Canceled) {
		// Discard whatever is still queued so Close does not block on it
		if ferr := port.FlushOutput(); ferr != nil {
			a.log.Warn().Err(ferr).Msg("flushing port failed")
		}
		if !quiet {
			fmt.Fprintf(cmd.ErrOrStderr(), "\n%s Stopped after %d writes (%d bytes, %d timeouts, %d errors)\n",
				successStyle.Render("✓"), snap.Writes, snap.BytesWritten, snap.Timeouts, snap.Errors)
		}
		return nil
	}
	return err
}
