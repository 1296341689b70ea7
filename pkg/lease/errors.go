package lease

import "errors"

// LeaseHeldError reports that another process holds the named lock.
type LeaseHeldError struct {
	Name string
}

func (e *LeaseHeldError) Error() string {
	return "lock " + e.Name + " is held by another process"
}

// LeaseNotOwnedError reports that a refresh lost the lock, either because it
// expired and was taken over or because the token is wrong.
type LeaseNotOwnedError struct {
	Name string
}

func (e *LeaseNotOwnedError) Error() string {
	return "lock " + e.Name + " is no longer owned"
}

func IsLeaseHeld(err error) bool {
	var target *LeaseHeldError
	return errors.As(err, &target)
}

func IsLeaseNotOwned(err error) bool {
	var target *LeaseNotOwnedError
	return errors.As(err, &target)
}
