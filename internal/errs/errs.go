package errs

import "errors"

var (
	ErrTicketNotFound  = errors.New("ticket not found")
	ErrStoreClosed     = errors.New("store is closed")
	ErrCorruptSnapshot = errors.New("corrupt snapshot file")
	ErrUnknownStorage  = errors.New("unknown storage type")
)
