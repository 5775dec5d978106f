package pop3

import "fmt"

// ProtocolError is returned when the server answers a command with anything
// other than a +OK status line. Raw holds the server's reply verbatim, or ""
// when the connection yielded no reply at all.
type ProtocolError struct {
	Raw string
}

func (e *ProtocolError) Error() string {
	if e.Raw == "" {
		return "pop3: empty server response"
	}
	return fmt.Sprintf("pop3: server error: %s", e.Raw)
}

// StateError is returned when an operation is invoked while the session is in
// a state that forbids it. The session state is left unchanged.
type StateError struct {
	Op     string
	Reason string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("pop3: %s: %s", e.Op, e.Reason)
}

// ArgumentError is returned when a required argument is missing or invalid.
type ArgumentError struct {
	Arg string
}

func (e *ArgumentError) Error() string {
	return fmt.Sprintf("pop3: missing or invalid argument: %s", e.Arg)
}

func errNotConnected(op string) error {
	return &StateError{Op: op, Reason: "not connected"}
}

func errAlreadyConnected(op string) error {
	return &StateError{Op: op, Reason: "already connected"}
}
