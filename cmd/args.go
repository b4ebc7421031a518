/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"encoding/hex"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/allbin/serial-tx"
	"github.com/spf13/cobra"
)

var (
	stopBitsChoices = []string{"1", "2"}
	dataBitsChoices = []string{"5", "6", "7", "8"}
)

// PortConfig is the validated serial configuration taken from the command line
type PortConfig struct {
	Device       string
	BaudRate     int
	DataBits     int
	StopBits     int
	WriteTimeout time.Duration
	Backend      serial.Backend

	// Sync opens the device for synchronous writes
	Sync bool
}

// Options converts the configuration into driver options
func (pc PortConfig) Options() []serial.Option {
	opts := []serial.Option{
		serial.WithBaudRate(pc.BaudRate),
		serial.WithDataBits(pc.DataBits),
		serial.WithStopBits(pc.StopBits),
		serial.WithWriteTimeout(pc.WriteTimeout),
		serial.WithBackend(pc.Backend),
	}
	if pc.Sync {
		opts = append(opts, serial.WithSyncWrite())
	}
	return opts
}

// LoopParams controls what is sent and how often
type LoopParams struct {
	Rate    uint // Hz, 0 sends once
	Pattern []byte
}

// portAndBaud validates the two positionals shared by every command
func portAndBaud(cmd *cobra.Command, args []string) error {
	if err := cobra.ExactArgs(2)(cmd, args); err != nil {
		return err
	}
	if args[0] == "" {
		return usageError(fmt.Errorf("the device path must not be empty"))
	}
	if _, err := parseBaud(args[1]); err != nil {
		return usageError(err)
	}
	return nil
}

func parseBaud(s string) (int, error) {
	baud, err := strconv.ParseUint(s, 10, 32)
	if err != nil || baud == 0 {
		return 0, fmt.Errorf("invalid baud rate '%s' specified", s)
	}
	return int(baud), nil
}

// parseChoice accepts s only if it is one of choices
func parseChoice(name, s string, choices []string) (int, error) {
	if !slices.Contains(choices, s) {
		return 0, fmt.Errorf("invalid value '%s' for --%s [possible values: %s]",
			s, name, strings.Join(choices, ", "))
	}
	return strconv.Atoi(s)
}

func parseRate(s string) (uint, error) {
	rate, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid rate '%s' specified (whole Hz, 0 sends once)", s)
	}
	return uint(rate), nil
}

// parsePattern returns the bytes to transmit. In hex mode whitespace and
// 0x prefixes are ignored, so "0x55 0xAA" and "55aa" are equivalent.
func parsePattern(s string, hexMode bool) ([]byte, error) {
	if !hexMode {
		return []byte(s), nil
	}

	s = strings.Join(strings.Fields(s), "")
	s = strings.ReplaceAll(s, "0x", "")
	s = strings.ReplaceAll(s, "0X", "")

	if len(s)%2 != 0 {
		return nil, fmt.Errorf("hex string must have even length")
	}
	data, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid hex pattern: %w", err)
	}
	return data, nil
}

// portConfig resolves the positionals and the driver settings shared by all
// commands. Data and stop bits start at 8N1 and are overridden by transmit.
func (a *app) portConfig(args []string) (PortConfig, error) {
	baud, err := parseBaud(args[1])
	if err != nil {
		return PortConfig{}, err
	}

	backend, err := serial.ParseBackend(a.v.GetString("driver"))
	if err != nil {
		return PortConfig{}, err
	}

	timeout := a.v.GetDuration("write-timeout")
	if timeout < 0 {
		return PortConfig{}, fmt.Errorf("invalid write timeout %s", timeout)
	}

	return PortConfig{
		Device:       args[0],
		BaudRate:     baud,
		DataBits:     8,
		StopBits:     1,
		WriteTimeout: timeout,
		Backend:      backend,
	}, nil
}
