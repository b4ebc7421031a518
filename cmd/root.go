/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/allbin/serial-tx"
	"github.com/allbin/serial-tx/internal/transmit"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// envPrefix namespaces environment overrides, e.g. SERIAL_TX_RATE=5
const envPrefix = "SERIAL_TX"

// app carries the state shared by all commands of one invocation
type app struct {
	v    *viper.Viper
	log  zerolog.Logger
	open func(device string, opts ...serial.Option) (serial.Port, error)
	wait transmit.WaitFunc
}

func newApp() *app {
	return &app{
		v:    viper.New(),
		log:  zerolog.Nop(),
		open: serial.Open,
		wait: transmit.Sleep,
	}
}

// newRootCmd builds the command tree around the shared app state
func newRootCmd(a *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "serial-tx",
		Short: "Write a repeating pattern to a serial port",
		Long: `serial-tx opens a serial port and writes a fixed byte pattern to it on a
fixed schedule, echoing every successful write to the console.

Useful for checking cabling, baud rate and framing against a logic analyser
or a terminal on the other end of the line.

Settings can also come from a config file (--config, or serial-tx.yaml in
$HOME/.config/serial-tx or the working directory) and from SERIAL_TX_*
environment variables, e.g. SERIAL_TX_RATE=10.`,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := a.loadConfig(cmd); err != nil {
				return usageError(err)
			}
			log, err := newLogger(cmd.ErrOrStderr(), a.v.GetString("log-level"), a.v.GetString("log-format"))
			if err != nil {
				return usageError(err)
			}
			a.log = log
			if used := a.v.ConfigFileUsed(); used != "" {
				a.log.Debug().Str("file", used).Msg("loaded config file")
			}
			return nil
		},
	}

	rootCmd.PersistentFlags().String("config", "", "Config file (default: $HOME/.config/serial-tx/serial-tx.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level: trace, debug, info, warn, error")
	rootCmd.PersistentFlags().String("log-format", "console", "Log format: console, json")
	rootCmd.PersistentFlags().BoolP("quiet", "q", false, "Suppress the banner and the exit summary")
	rootCmd.PersistentFlags().String("driver", "native", "Serial driver: native (termios), portable (go.bug.st/serial)")
	rootCmd.PersistentFlags().Duration("write-timeout", 0, "How long one write may wait for the device (0 = single non-blocking attempt)")

	rootCmd.AddCommand(newHeartbeatCmd(a))
	rootCmd.AddCommand(newTransmitCmd(a))

	return rootCmd
}

// loadConfig binds the executing command's flags, then layers the config
// file and environment underneath them
func (a *app) loadConfig(cmd *cobra.Command) error {
	if err := a.v.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	a.v.SetEnvPrefix(envPrefix)
	a.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	a.v.AutomaticEnv()

	if file := a.v.GetString("config"); file != "" {
		a.v.SetConfigFile(file)
		if err := a.v.ReadInConfig(); err != nil {
			return fmt.Errorf("reading config %s: %w", file, err)
		}
		return nil
	}

	a.v.SetConfigName("serial-tx")
	if home, err := os.UserHomeDir(); err == nil {
		a.v.AddConfigPath(filepath.Join(home, ".config", "serial-tx"))
	}
	a.v.AddConfigPath(".")

	if err := a.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("reading config: %w", err)
		}
	}
	return nil
}

// run executes the command line in args and returns the process exit code
func run(ctx context.Context, a *app, args []string, stdout, stderr io.Writer) int {
	rootCmd := newRootCmd(a)
	rootCmd.SetArgs(args)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	err := rootCmd.ExecuteContext(ctx)
	if err == nil {
		return 0
	}

	fmt.Fprintln(stderr, err)

	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		if exitErr.Code == ExitUsage {
			fmt.Fprintf(stderr, "Run '%s --help' for usage.\n", rootCmd.Name())
		}
		return exitErr.Code
	}
	// Flag parsing and argument count errors come straight from cobra
	fmt.Fprintf(stderr, "Run '%s --help' for usage.\n", rootCmd.Name())
	return ExitUsage
}

// Execute runs the root command against the process arguments and returns
// the exit code for main
func Execute() int {
	return run(context.Background(), newApp(), os.Args[1:], os.Stdout, os.Stderr)
}
