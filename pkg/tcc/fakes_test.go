package tcc

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/houseofcat/turbocookedcassandra/pkg/pools"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// fakeRemote is a scripted RemoteClient. Each host has a queue of faults that Invoke pops
// before answering successfully.
type fakeRemote struct {
	mu        sync.Mutex
	ring      map[string]string
	ringErr   error
	ringCalls int
	openErr   map[string]error
	faults    map[string][]error
	always    error
	calls     []string
	opened    map[string]int
	closed    map[string]int
}

func newFakeRemote(hosts ...string) *fakeRemote {
	ring := make(map[string]string, len(hosts))
	for i, host := range hosts {
		ring[tokenFor(i)] = host
	}

	return &fakeRemote{
		ring:    ring,
		openErr: make(map[string]error),
		faults:  make(map[string][]error),
		opened:  make(map[string]int),
		closed:  make(map[string]int),
	}
}

func tokenFor(i int) string {
	return string(rune('1'+i)) + "00"
}

func (f *fakeRemote) failNext(host string, errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.faults[host] = append(f.faults[host], errs...)
}

func (f *fakeRemote) Open(ctx context.Context, endpoint Endpoint) (RemoteConn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.openErr[endpoint.Host()]; err != nil {
		return nil, err
	}

	f.opened[endpoint.Host()]++
	return &fakeConn{host: endpoint.Host(), remote: f}, nil
}

func (f *fakeRemote) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]string(nil), f.calls...)
}

func (f *fakeRemote) Closed(host string) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.closed[host]
}

type fakeConn struct {
	host   string
	remote *fakeRemote
}

func (c *fakeConn) Invoke(ctx context.Context, request *Request) (*Response, error) {
	f := c.remote
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, c.host)

	if f.always != nil {
		return nil, f.always
	}

	if queue := f.faults[c.host]; len(queue) > 0 {
		f.faults[c.host] = queue[1:]
		return nil, queue[0]
	}

	response := &Response{Count: 1}
	if request.ColumnPath != nil {
		response.Column = &Column{Name: request.ColumnPath.Column, Value: []byte(c.host)}
	}

	return response, nil
}

func (c *fakeConn) TokenToHostMap(ctx context.Context) (map[string]string, error) {
	f := c.remote
	f.mu.Lock()
	defer f.mu.Unlock()

	f.ringCalls++
	if f.ringErr != nil {
		return nil, f.ringErr
	}

	ring := make(map[string]string, len(f.ring))
	for token, host := range f.ring {
		ring[token] = host
	}
	return ring, nil
}

func (c *fakeConn) Close() error {
	c.remote.mu.Lock()
	defer c.remote.mu.Unlock()

	c.remote.closed[c.host]++
	return nil
}

// mockConn is a testify mock RemoteConn for asserting request shapes.
type mockConn struct {
	mock.Mock
}

func (m *mockConn) Invoke(ctx context.Context, request *Request) (*Response, error) {
	args := m.Called(ctx, request)
	response, _ := args.Get(0).(*Response)
	return response, args.Error(1)
}

func (m *mockConn) TokenToHostMap(ctx context.Context) (map[string]string, error) {
	args := m.Called(ctx)
	ring, _ := args.Get(0).(map[string]string)
	return ring, args.Error(1)
}

func (m *mockConn) Close() error {
	return nil
}

// mockRemote hands out the same mockConn for every endpoint.
type mockRemote struct {
	conn *mockConn
}

func (m *mockRemote) Open(ctx context.Context, endpoint Endpoint) (RemoteConn, error) {
	return m.conn, nil
}

func newTestPool(t *testing.T, remote RemoteClient, config pools.Config) (*ClientPool, *ClientMonitor) {
	t.Helper()

	pool, err := pools.NewKeyedObjectPool[Endpoint, *Client](NewClientFactory(remote, time.Second), config)
	require.NoError(t, err)

	monitor := NewClientMonitor()
	monitor.WatchPool(pool)

	return pool, monitor
}

func mustEndpoint(t *testing.T, host string) Endpoint {
	t.Helper()

	endpoint, err := NewEndpoint(host, 9160)
	require.NoError(t, err)
	return endpoint
}

func newTestKeyspace(
	t *testing.T,
	remote RemoteClient,
	host string,
	policy FailoverPolicy,
	config pools.Config) (*Keyspace, *ClientPool, *ClientMonitor) {

	t.Helper()

	pool, monitor := newTestPool(t, remote, config)

	client, err := pool.Borrow(mustEndpoint(t, host))
	require.NoError(t, err)

	ks, err := NewKeyspace(context.Background(), client, "Keyspace1", ConsistencyOne, policy, pool, monitor)
	require.NoError(t, err)

	return ks, pool, monitor
}

func smallPool() pools.Config {
	return pools.Config{MinSize: 0, MaxSize: 2, Timeout: 1}
}
