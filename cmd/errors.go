/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

// Process exit codes
const (
	ExitOK      = 0
	ExitFailure = 1 // the port could not be opened
	ExitUsage   = 2 // invalid arguments, nothing was opened
)

// ExitError carries the process exit code for err back to main
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

func usageError(err error) error {
	return &ExitError{Code: ExitUsage, Err: err}
}

func failure(err error) error {
	return &ExitError{Code: ExitFailure, Err: err}
}
