package tcc

import "context"

// RemoteClient opens connections to ring members. The wire protocol lives behind it.
type RemoteClient interface {
	Open(ctx context.Context, endpoint Endpoint) (RemoteConn, error)
}

// RemoteConn is one open connection to a ring member.
// Invoke and TokenToHostMap report node side faults as *RemoteFault; any net.Error is treated
// as a transport fault.
type RemoteConn interface {
	Invoke(ctx context.Context, request *Request) (*Response, error)

	// TokenToHostMap is the ring discovery call: ring token to the host owning it.
	TokenToHostMap(ctx context.Context) (map[string]string, error)

	Close() error
}
