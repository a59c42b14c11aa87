package bridge

import (
	"errors"
	"fmt"
)

var (
	ErrTimeout    = errors.New("request timed out")
	ErrNoCallback = errors.New("script did not invoke a callback")
)

// RemoteError is returned when the API answers with status "error".
type RemoteError struct {
	Action  string
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s: remote error: %s", e.Action, e.Message)
}

// TransportError is returned when the request mechanism itself fails.
type TransportError struct {
	Action string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: transport error: %v", e.Action, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

func IsRemote(err error) bool {
	var remoteErr *RemoteError
	return errors.As(err, &remoteErr)
}

func IsTransport(err error) bool {
	var transportErr *TransportError
	return errors.As(err, &transportErr)
}
