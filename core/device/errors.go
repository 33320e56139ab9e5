package device

import (
	"errors"
	"fmt"
)

// StatusBusy is reported while the device is still processing an earlier
// command.
const StatusBusy = -5

// ErrCommand matches every CommandError.
var ErrCommand = errors.New("device command failed")

// CommandError reports a failed device command: a transport error, a
// malformed acknowledgment or a non-zero device status.
type CommandError struct {
	Op      string
	Status  int
	Message string
	Err     error
}

func (e *CommandError) Error() string {
	msg := fmt.Sprintf("%s failed", e.Op)
	if e.Status != 0 {
		msg += fmt.Sprintf(" with status %d", e.Status)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Busy() {
		msg += " (the device is busy, try again shortly)"
	}
	return msg
}

func (e *CommandError) Is(target error) bool { return target == ErrCommand }

func (e *CommandError) Unwrap() error { return e.Err }

// Busy reports whether the device asked for the command to be retried later.
func (e *CommandError) Busy() bool { return e.Status == StatusBusy }

// IsBusy reports whether err is a busy CommandError.
func IsBusy(err error) bool {
	var ce *CommandError
	return errors.As(err, &ce) && ce.Busy()
}
