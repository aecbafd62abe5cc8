package tcc

import (
	"context"
	"errors"
	"fmt"
	"net"
)

var (
	// ErrTimedOut matches faults where the node did not answer within its own deadline.
	ErrTimedOut = errors.New("remote request timed out")

	// ErrUnavailable matches faults where not enough replicas (or no host at all) could serve the call.
	ErrUnavailable = errors.New("remote host unavailable")

	// ErrTransport matches connection level failures.
	ErrTransport = errors.New("remote transport error")

	// ErrInvalidRequest matches malformed requests rejected by the node.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrNotFound matches lookups for a column or row that doesn't exist.
	ErrNotFound = errors.New("not found")

	// ErrApplication matches every other fault raised by the node or the operation itself.
	ErrApplication = errors.New("application error")

	ErrInvalidEndpoint    = errors.New("endpoint requires a host and a port between 1 and 65535")
	ErrNoKnownHosts       = errors.New("no known hosts to run the operation against")
	ErrNoNextHost         = errors.New("unable to failover to next host")
	ErrClientClosed       = errors.New("client is closed")
	ErrKeyspaceReleased   = errors.New("keyspace has released its client")
	ErrNoHosts            = errors.New("cluster config requires at least one host")
	ErrNoAvailableHosts   = errors.New("no configured host could provide a client")
	ErrServiceShutdown    = errors.New("cluster service is shutdown")
	ErrUnknownStrategy    = errors.New("unknown strategy")
	ErrUnknownConsistency = errors.New("unknown consistency level")
)

// FaultKind classifies remote faults for the failover executor.
type FaultKind int

const (
	FaultTimedOut FaultKind = iota + 1
	FaultUnavailable
	FaultTransport
	FaultInvalidRequest
	FaultNotFound
	FaultApplication
)

func (k FaultKind) String() string {
	switch k {
	case FaultTimedOut:
		return "TimedOut"
	case FaultUnavailable:
		return "Unavailable"
	case FaultTransport:
		return "Transport"
	case FaultInvalidRequest:
		return "InvalidRequest"
	case FaultNotFound:
		return "NotFound"
	case FaultApplication:
		return "Application"
	default:
		return fmt.Sprintf("FaultKind(%d)", int(k))
	}
}

// Recoverable reports whether retrying on a different ring member may succeed.
func (k FaultKind) Recoverable() bool {
	return k == FaultTimedOut || k == FaultUnavailable || k == FaultTransport
}

func (k FaultKind) sentinel() error {
	switch k {
	case FaultTimedOut:
		return ErrTimedOut
	case FaultUnavailable:
		return ErrUnavailable
	case FaultTransport:
		return ErrTransport
	case FaultInvalidRequest:
		return ErrInvalidRequest
	case FaultNotFound:
		return ErrNotFound
	default:
		return ErrApplication
	}
}

func (k FaultKind) recoverableCounter() ClientCounter {
	switch k {
	case FaultTimedOut:
		return CounterRecoverableTimedOut
	case FaultUnavailable:
		return CounterRecoverableUnavailable
	default:
		return CounterRecoverableTransport
	}
}

// RemoteFault is raised by a RemoteConn to report a fault of a known kind.
type RemoteFault struct {
	Kind FaultKind
	Why  string
}

// NewRemoteFault creates a RemoteFault.
func NewRemoteFault(kind FaultKind, why string) *RemoteFault {
	return &RemoteFault{Kind: kind, Why: why}
}

func (f *RemoteFault) Error() string {
	if f.Why == "" {
		return f.Kind.sentinel().Error()
	}
	return fmt.Sprintf("%s: %s", f.Kind.sentinel(), f.Why)
}

// Is lets errors.Is(err, ErrTimedOut) and friends match on the fault kind.
func (f *RemoteFault) Is(target error) bool {
	return target == f.Kind.sentinel()
}

// OperationError is the typed error surfaced by Execute.
type OperationError struct {
	Op       OperationKind
	Kind     FaultKind
	Endpoint Endpoint
	Err      error
}

func (e *OperationError) Error() string {
	return fmt.Sprintf("%s operation against %s failed (%s): %v", e.Op, e.Endpoint, e.Kind, e.Err)
}

func (e *OperationError) Unwrap() error { return e.Err }

// Is matches the sentinel of the error's kind, so an exhausted pool during failover still
// matches ErrUnavailable.
func (e *OperationError) Is(target error) bool {
	return target == e.Kind.sentinel()
}

// classifyFault maps an error returned by a RemoteConn onto a FaultKind.
func classifyFault(err error) FaultKind {
	var fault *RemoteFault
	if errors.As(err, &fault) {
		return fault.Kind
	}

	// context errors satisfy net.Error, check them first
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return FaultApplication
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return FaultTransport
	}

	return FaultApplication
}
