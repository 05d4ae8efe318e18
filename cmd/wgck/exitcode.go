package main

import (
	"errors"

	"wg-confkeeper/models"
)

const (
	exitGeneric = 1 + iota
	exitUsage
	exitAddress
	exitClientName
	exitDuplicate
	exitNotFound
	exitMalformed
	exitExternalTool
	exitLocked
)

// usageError marks bad flags or arguments.
type usageError struct {
	err error
}

func (e usageError) Error() string {
	return e.err.Error()
}

func (e usageError) Unwrap() error {
	return e.err
}

func exitCode(err error) int {
	var usage usageError
	switch {
	case errors.As(err, &usage):
		return exitUsage
	case errors.Is(err, models.ErrInvalidAddress), errors.Is(err, models.ErrSubnetExhausted):
		return exitAddress
	case errors.Is(err, models.ErrInvalidClientName):
		return exitClientName
	case errors.Is(err, models.ErrDuplicateKey), errors.Is(err, models.ErrDuplicateName), errors.Is(err, models.ErrExists):
		return exitDuplicate
	case errors.Is(err, models.ErrPeerNotFound):
		return exitNotFound
	case errors.Is(err, models.ErrMalformedDocument):
		return exitMalformed
	case errors.Is(err, models.ErrExternalTool):
		return exitExternalTool
	case errors.Is(err, models.ErrLocked):
		return exitLocked
	default:
		return exitGeneric
	}
}
