// internal/protocol/errors.go
package protocol

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownCommand indicates the requested command name is not defined
	// by the active dialect. Nothing is sent.
	ErrUnknownCommand = errors.New("unknown command")

	// ErrNotConnected indicates the connection is closed or was never
	// established.
	ErrNotConnected = errors.New("not connected")

	// ErrUnparsedResponse indicates a framed reply matched no configured
	// response pattern. The reply was received; it just has no structured
	// decoding.
	ErrUnparsedResponse = errors.New("response matched no configured pattern")
)

// Timeout operation kinds.
const (
	OpConnect = "connect"
	OpRead    = "read"
)

// FormatError indicates a command template could not be rendered. The
// command was never sent.
type FormatError struct {
	Command string
	Reason  string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("cannot format command %q: %s", e.Command, e.Reason)
}

// TimeoutError indicates a bounded wait expired. Op identifies which wait:
// OpConnect means no bytes were sent for the call; OpRead means the command
// was sent but its reply was never framed, so its outcome is unknown.
// Partial carries any bytes received before the deadline, for diagnostics.
type TimeoutError struct {
	Op      string
	Partial []byte
}

func (e *TimeoutError) Error() string {
	if len(e.Partial) > 0 {
		return fmt.Sprintf("%s timed out, received partial %q", e.Op, e.Partial)
	}
	return fmt.Sprintf("%s timed out", e.Op)
}

// IsConnectionTimeout reports whether err is a timeout waiting for the
// connection to be established.
func IsConnectionTimeout(err error) bool {
	var te *TimeoutError
	return errors.As(err, &te) && te.Op == OpConnect
}

// IsReadTimeout reports whether err is a timeout waiting for a framed reply.
func IsReadTimeout(err error) bool {
	var te *TimeoutError
	return errors.As(err, &te) && te.Op == OpRead
}
