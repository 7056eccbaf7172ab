package source

import (
	"errors"
	"fmt"
)

// ConnectionError means the session could not be established or is no
// longer usable. It is fatal to any job driving the session.
type ConnectionError struct {
	Msg string
	Err error
}

func (e *ConnectionError) Error() string {
	if e.Err == nil {
		return e.Msg
	}

	return fmt.Sprintf("%s: %v", e.Msg, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// PathError is a failed listing of one directory.
type PathError struct {
	Path string
	Err  error
}

func (e *PathError) Error() string {
	return fmt.Sprintf("failed to list %s: %v", e.Path, e.Err)
}

func (e *PathError) Unwrap() error {
	return e.Err
}

// TransferError is a failed read of one file. The session stays usable.
type TransferError struct {
	Path string
	Err  error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("failed to transfer %s: %v", e.Path, e.Err)
}

func (e *TransferError) Unwrap() error {
	return e.Err
}

func IsConnectionError(err error) bool {
	var connErr *ConnectionError
	return errors.As(err, &connErr)
}

func IsTransferError(err error) bool {
	var transferErr *TransferError
	return errors.As(err, &transferErr)
}
