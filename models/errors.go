package models

import "errors"

// Sentinel errors, checked with errors.Is by the cli to pick an exit code.
var (
	ErrInvalidAddress    = errors.New("invalid ip address")
	ErrInvalidClientName = errors.New("invalid client name")
	ErrDuplicateKey      = errors.New("public key already registered")
	ErrDuplicateName     = errors.New("client name already registered")
	ErrPeerNotFound      = errors.New("peer not found")
	ErrMalformedDocument = errors.New("malformed config document")
	ErrExternalTool      = errors.New("external tool failure")
	ErrSubnetExhausted   = errors.New("no free address left in subnet")
	ErrLocked            = errors.New("another instance is currently running")
	ErrExists            = errors.New("file already exists")
)
