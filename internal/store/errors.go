package store

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrItemNotFound       = errors.New("item not found")
	ErrUserNotFound       = errors.New("user not found")
	ErrAlreadyClaimed     = errors.New("item already claimed")
	ErrNotOwner           = errors.New("item claimed by another executor")
	ErrInvalidTransition  = errors.New("invalid item transition")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrStore              = errors.New("store unavailable")
)

// Unavailable wraps a backing store failure so that it matches ErrStore
// while keeping the driver error reachable through errors.Is/As.
func Unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", op, ErrStore, err)
}
