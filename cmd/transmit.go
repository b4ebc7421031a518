/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"github.com/spf13/cobra"
)

func newTransmitCmd(a *app) *cobra.Command {
	transmitCmd := &cobra.Command{
		Use:   "transmit <port> <baud>",
		Short: "Write a pattern to a serial port at a configurable rate",
		Long: `Write a string to the serial port repeatedly at --rate Hz, or exactly once
with --rate 0.

Features include:
- Configurable framing (--data-bits, --stop-bits)
- Synchronous writes that return once the driver has sent the data (--sync)
- Any text (--string) or raw bytes (--string with --hex)
- Successful writes are echoed to the console without newlines
- Write timeouts are skipped, other write errors are logged and retried on
  the next tick

Example usage:
  serial-tx transmit /dev/ttyUSB0 9600
  serial-tx transmit /dev/ttyUSB0 9600 --rate 10 --string "U"
  serial-tx transmit /dev/ttyUSB0 115200 --data-bits 7 --stop-bits 2
  serial-tx transmit /dev/ttyUSB0 115200 --rate 0 --hex --string "55 AA 0D 0A"`,
		Args: portAndBaud,
		RunE: func(cmd *cobra.Command, args []string) error {
			pc, err := a.portConfig(args)
			if err != nil {
				return usageError(err)
			}
			if pc.StopBits, err = parseChoice("stop-bits", a.v.GetString("stop-bits"), stopBitsChoices); err != nil {
				return usageError(err)
			}
			if pc.DataBits, err = parseChoice("data-bits", a.v.GetString("data-bits"), dataBitsChoices); err != nil {
				return usageError(err)
			}
			pc.Sync = a.v.GetBool("sync")

			var lp LoopParams
			if lp.Rate, err = parseRate(a.v.GetString("rate")); err != nil {
				return usageError(err)
			}
			if lp.Pattern, err = parsePattern(a.v.GetString("string"), a.v.GetBool("hex")); err != nil {
				return usageError(err)
			}

			return a.runSession(cmd, pc, lp)
		},
	}

	transmitCmd.Flags().String("stop-bits", "1", "Number of stop bits to use: 1, 2")
	transmitCmd.Flags().String("data-bits", "8", "Number of data bits to use: 5, 6, 7, 8")
	transmitCmd.Flags().String("rate", "1", "Frequency (Hz) to repeat transmission of the pattern (0 sends only once)")
	transmitCmd.Flags().String("string", ".", "String to transmit")
	transmitCmd.Flags().Bool("sync", false, "Open the port for synchronous writes (O_SYNC)")
	transmitCmd.Flags().BoolP("hex", "x", false, "Interpret --string as hexadecimal (e.g., '48656c6c6f' for 'Hello')")

	return transmitCmd
}
