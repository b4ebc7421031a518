/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"github.com/spf13/cobra"
)

func newHeartbeatCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "heartbeat <port> <baud>",
		Short: "Write '.' to a serial port at 1Hz",
		Long: `Write a single '.' to the serial port once per second, 8N1, until
interrupted. Every successful write prints a '.' on the console; writes the
device is too busy to accept are skipped silently.

Example usage:
  serial-tx heartbeat /dev/ttyUSB0 115200
  serial-tx heartbeat /dev/ttyACM0 9600 --driver portable`,
		Args: portAndBaud,
		RunE: func(cmd *cobra.Command, args []string) error {
			pc, err := a.portConfig(args)
			if err != nil {
				return usageError(err)
			}
			return a.runSession(cmd, pc, LoopParams{Rate: 1, Pattern: []byte(".")})
		},
	}
}
