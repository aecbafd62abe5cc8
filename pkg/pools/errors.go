package pools

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrPoolClosed is returned by Borrow, Return, Add and SetFactory once Close has been called.
	ErrPoolClosed = errors.New("pool is closed")

	// ErrPoolTimeout is returned when no object became available within the pool timeout.
	// you can check for this error with errors.Is
	ErrPoolTimeout = errors.New("pool timeout")

	// ErrInvalidState is returned when SetFactory is called while objects are still active.
	ErrInvalidState = errors.New("cannot change factory with active objects in the pool")

	// ErrNoFactory is returned when the pool has no object factory to make or destroy with.
	ErrNoFactory = errors.New("pool is missing object factory")

	// ErrNotActive is returned when an object that is not currently borrowed is returned.
	ErrNotActive = errors.New("object is not active in this pool")

	// ErrPoolFull is returned by Add when the pool already holds MaxSize objects.
	ErrPoolFull = errors.New("pool is at max capacity")

	// ErrUnknownKey is returned by a keyed pool when no sub-pool exists for the key.
	ErrUnknownKey = errors.New("no pool exists for key")

	// ErrInvalidConfig is returned when MinSize or MaxSize are negative.
	ErrInvalidConfig = errors.New("pool minsize and maxsize can't be negative")
)

// TimeoutError carries how long Borrow waited before giving up.
type TimeoutError struct {
	Timeout time.Duration
	Type    string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("exceeded the %s timeout while trying to borrow a new %q from the pool", e.Timeout, e.Type)
}

// Is lets errors.Is(err, ErrPoolTimeout) match.
func (e *TimeoutError) Is(target error) bool {
	return target == ErrPoolTimeout
}
