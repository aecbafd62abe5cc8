package tcc

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/houseofcat/turbocookedcassandra/pkg/pools"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var (
	timedOut    = NewRemoteFault(FaultTimedOut, "rpc timeout")
	unavailable = NewRemoteFault(FaultUnavailable, "not enough replicas")
	transport   = NewRemoteFault(FaultTransport, "connection reset")
	invalid     = NewRemoteFault(FaultInvalidRequest, "bad column family")
)

func readOp(ctx context.Context, conn RemoteConn) (string, error) {
	response, err := conn.Invoke(ctx, &Request{Method: MethodGet, ColumnPath: &ColumnPath{ColumnFamily: "Standard1", Column: "c"}})
	if err != nil {
		return "", err
	}
	return string(response.Column.Value), nil
}

func TestKeyspaceLearnsRingInTokenOrder(t *testing.T) {
	remote := newFakeRemote("h1", "h2", "h3")
	ks, _, _ := newTestKeyspace(t, remote, "h1", TryAllAvailablePolicy(), smallPool())

	assert.Equal(t, []string{"h1", "h2", "h3"}, ks.KnownHosts())
	assert.Equal(t, []string{"Keyspace1"}, ks.Client().Keyspaces())
}

func TestRingHostsDedupesAndOrdersNumerically(t *testing.T) {
	hosts := ringHosts(map[string]string{
		"1000": "h3",
		"20":   "h2",
		"3":    "h1",
		"400":  "h2",
	})

	assert.Equal(t, []string{"h1", "h2", "h3"}, hosts)
}

func TestFailoverAttemptBound(t *testing.T) {
	for retryCount := 0; retryCount <= 3; retryCount++ {
		for ringSize := 1; ringSize <= 3; ringSize++ {
			t.Run(fmt.Sprintf("N=%d,M=%d", retryCount, ringSize), func(t *testing.T) {
				hosts := []string{"h1", "h2", "h3"}[:ringSize]
				remote := newFakeRemote(hosts...)
				remote.always = timedOut

				ks, _, monitor := newTestKeyspace(t, remote, "h1", NewFailoverPolicy(retryCount, TryAllAvailable), smallPool())

				_, err := Execute(context.Background(), ks, OperationRead, readOp)
				require.Error(t, err)

				expected := retryCount + 1
				if ringSize < expected {
					expected = ringSize
				}

				assert.Len(t, remote.Calls(), expected)
				assert.ErrorIs(t, err, ErrTimedOut)

				var opErr *OperationError
				require.True(t, errors.As(err, &opErr))
				assert.Equal(t, FaultTimedOut, opErr.Kind)
				assert.Equal(t, OperationRead, opErr.Op)

				assert.Equal(t, int64(1), monitor.ReadFailCount())
				assert.Equal(t, int64(expected-1), monitor.RecoverableTimedOutCount())
				assert.Equal(t, int64(expected-1), monitor.SkipHostSuccessCount())
				assert.Equal(t, int64(expected-1), ks.FailoverPolicy().RetriesPerformed())
			})
		}
	}
}

func TestSkipToNextHostCyclesRing(t *testing.T) {
	remote := newFakeRemote("h1", "h2", "h3")
	ks, pool, _ := newTestKeyspace(t, remote, "h2", TryAllAvailablePolicy(), smallPool())

	require.NoError(t, ks.SkipToNextHost())
	assert.Equal(t, "h3", ks.Client().Endpoint().Host())
	assert.Equal(t, 9160, ks.Client().Endpoint().Port())

	require.NoError(t, ks.SkipToNextHost())
	assert.Equal(t, "h1", ks.Client().Endpoint().Host())

	// the errored clients were destroyed, not re-pooled
	assert.Equal(t, 0, pool.IdleCountByKey(mustEndpoint(t, "h2")))
	assert.Equal(t, 0, pool.IdleCountByKey(mustEndpoint(t, "h3")))
	assert.Equal(t, 1, remote.Closed("h2"))
	assert.Equal(t, 1, remote.Closed("h3"))
	assert.Equal(t, 1, pool.ActiveCount())
}

func TestNextHostMatchesByIP(t *testing.T) {
	ks := &Keyspace{knownHosts: []string{"10.0.0.1", "10.0.0.2", "10.0.0.3"}}

	endpoint, err := NewEndpointWithIP("db2", 9160, "10.0.0.2")
	require.NoError(t, err)

	next, ok := ks.nextHost(endpoint)
	assert.True(t, ok)
	assert.Equal(t, "10.0.0.3", next)

	unknown, err := NewEndpoint("db9", 9160)
	require.NoError(t, err)
	_, ok = ks.nextHost(unknown)
	assert.False(t, ok)
}

func TestSkipToNextHostUnknownHost(t *testing.T) {
	remote := newFakeRemote("h1", "h2")
	ks, _, monitor := newTestKeyspace(t, remote, "h1", TryAllAvailablePolicy(), smallPool())
	ks.knownHosts = []string{"h7", "h8"}

	assert.ErrorIs(t, ks.SkipToNextHost(), ErrNoNextHost)
	assert.Equal(t, int64(0), monitor.SkipHostSuccessCount())
}

func TestFailFastIsolation(t *testing.T) {
	remote := newFakeRemote("h1", "h2", "h3")
	remote.failNext("h1", timedOut)

	ks, _, monitor := newTestKeyspace(t, remote, "h1", FailFastPolicy(), smallPool())

	assert.Equal(t, []string{"h1"}, ks.KnownHosts())
	assert.Equal(t, 0, remote.ringCalls)

	_, err := Execute(context.Background(), ks, OperationRead, readOp)
	assert.ErrorIs(t, err, ErrTimedOut)
	assert.Equal(t, []string{"h1"}, remote.Calls())
	assert.Equal(t, int64(0), monitor.SkipHostSuccessCount())
	assert.Equal(t, int64(1), monitor.ReadFailCount())
	assert.Equal(t, "h1", ks.Client().Endpoint().Host())
}

func TestFailoverEndToEnd(t *testing.T) {
	remote := newFakeRemote("h1", "h2", "h3")
	remote.failNext("h1", timedOut, timedOut)
	remote.failNext("h2", unavailable)

	ks, _, monitor := newTestKeyspace(t, remote, "h1", NewFailoverPolicy(2, TryAllAvailable), smallPool())

	value, err := Execute(context.Background(), ks, OperationRead, readOp)
	require.NoError(t, err)

	assert.Equal(t, "h3", value)
	assert.Equal(t, []string{"h1", "h2", "h3"}, remote.Calls())
	assert.Equal(t, int64(1), monitor.RecoverableTimedOutCount())
	assert.Equal(t, int64(1), monitor.RecoverableUnavailableCount())
	assert.Equal(t, int64(2), monitor.SkipHostSuccessCount())
	assert.Equal(t, int64(2), monitor.RecoverableErrorCount())
	assert.Equal(t, int64(0), monitor.ReadFailCount())
	assert.Equal(t, "h3", ks.Client().Endpoint().Host())
}

func TestTransportFaultIsRecoverable(t *testing.T) {
	remote := newFakeRemote("h1", "h2")
	remote.failNext("h1", transport)

	ks, _, monitor := newTestKeyspace(t, remote, "h1", TryOneNextAvailablePolicy(), smallPool())

	value, err := Execute(context.Background(), ks, OperationWrite, readOp)
	require.NoError(t, err)
	assert.Equal(t, "h2", value)
	assert.Equal(t, int64(1), monitor.RecoverableTransportCount())
}

func TestNonRecoverableFaultsAreNotRetried(t *testing.T) {
	cases := []struct {
		name string
		err  error
		kind FaultKind
		is   error
	}{
		{"invalid request", invalid, FaultInvalidRequest, ErrInvalidRequest},
		{"not found", NewRemoteFault(FaultNotFound, ""), FaultNotFound, ErrNotFound},
		{"application", errors.New("boom"), FaultApplication, ErrApplication},
		{"canceled", context.Canceled, FaultApplication, context.Canceled},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			remote := newFakeRemote("h1", "h2", "h3")
			remote.failNext("h1", tc.err)

			ks, _, monitor := newTestKeyspace(t, remote, "h1", TryAllAvailablePolicy(), smallPool())

			_, err := Execute(context.Background(), ks, OperationWrite, readOp)
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.is)

			var opErr *OperationError
			require.True(t, errors.As(err, &opErr))
			assert.Equal(t, tc.kind, opErr.Kind)
			assert.Equal(t, "h1", opErr.Endpoint.Host())

			assert.Equal(t, []string{"h1"}, remote.Calls())
			assert.Equal(t, int64(1), monitor.WriteFailCount())
			assert.Equal(t, int64(0), monitor.SkipHostSuccessCount())
		})
	}
}

func TestPoolExhaustionMidFailover(t *testing.T) {
	remote := newFakeRemote("h1", "h2")
	remote.failNext("h1", timedOut)

	config := pools.Config{MinSize: 0, MaxSize: 1, Timeout: 1}
	ks, pool, monitor := newTestKeyspace(t, remote, "h1", TryAllAvailablePolicy(), config)

	held, err := pool.Borrow(mustEndpoint(t, "h2"))
	require.NoError(t, err)

	_, err = Execute(context.Background(), ks, OperationRead, readOp)
	require.Error(t, err)

	assert.ErrorIs(t, err, ErrUnavailable)
	assert.ErrorIs(t, err, pools.ErrPoolTimeout)
	assert.Equal(t, int64(1), monitor.ReadFailCount())
	assert.Equal(t, int64(1), monitor.PoolExhaustedCount())
	assert.Equal(t, int64(0), monitor.RecoverableTimedOutCount())
	assert.Equal(t, []string{"h2:9160"}, monitor.ExhaustedPoolNames())

	var opErr *OperationError
	require.True(t, errors.As(err, &opErr))
	assert.Equal(t, "h2:9160", opErr.Endpoint.String())

	require.NoError(t, pool.Return(held.Endpoint(), held))
	assert.NoError(t, ks.Release())
}

func TestFailedSkipKeepsCurrentClient(t *testing.T) {
	remote := newFakeRemote("h1", "h2")
	remote.failNext("h1", timedOut)

	config := pools.Config{MinSize: 0, MaxSize: 1, Timeout: 1}
	ks, pool, monitor := newTestKeyspace(t, remote, "h1", TryAllAvailablePolicy(), config)
	current := ks.Client()

	held, err := pool.Borrow(mustEndpoint(t, "h2"))
	require.NoError(t, err)

	_, err = Execute(context.Background(), ks, OperationRead, readOp)
	assert.ErrorIs(t, err, pools.ErrPoolTimeout)

	// still bound to a live, pooled client
	assert.Same(t, current, ks.Client())
	assert.False(t, current.IsClosed())
	assert.False(t, current.HasErrors())
	assert.Equal(t, 1, pool.ActiveCountByKey(mustEndpoint(t, "h1")))
	assert.Equal(t, 0, remote.Closed("h1"))
	assert.Equal(t, []string{"Keyspace1"}, current.Keyspaces())

	require.NoError(t, pool.Return(held.Endpoint(), held))

	value, err := Execute(context.Background(), ks, OperationRead, readOp)
	require.NoError(t, err)
	assert.Equal(t, "h1", value)
	assert.Equal(t, []string{"h1", "h1"}, remote.Calls())
	assert.Equal(t, int64(0), monitor.SkipHostSuccessCount())
	assert.Equal(t, int64(0), monitor.RecoverableTimedOutCount())

	require.NoError(t, ks.Release())
	assert.Equal(t, 1, pool.IdleCountByKey(mustEndpoint(t, "h1")))
}

func TestRingViewReadableWhileSkipBlocks(t *testing.T) {
	remote := newFakeRemote("h1", "h2")

	config := pools.Config{MinSize: 0, MaxSize: 1, Timeout: 2}
	ks, pool, monitor := newTestKeyspace(t, remote, "h1", TryAllAvailablePolicy(), config)

	held, err := pool.Borrow(mustEndpoint(t, "h2"))
	require.NoError(t, err)

	skipped := make(chan error, 1)
	go func() { skipped <- ks.SkipToNextHost() }()

	time.Sleep(100 * time.Millisecond)

	read := make(chan []string, 1)
	go func() { read <- monitor.KnownHosts() }()

	select {
	case hosts := <-read:
		assert.Equal(t, []string{"h1", "h2"}, hosts)
	case <-time.After(500 * time.Millisecond):
		t.Fatal("ring view blocked behind a pending borrow")
	}

	require.NoError(t, pool.Return(held.Endpoint(), held))

	select {
	case err := <-skipped:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("skip did not finish")
	}

	assert.Equal(t, "h2", ks.Client().Endpoint().Host())
	assert.Equal(t, 1, remote.Closed("h1"))
	require.NoError(t, ks.Release())
}

func TestUpdateKnownHostsFailureClearsRing(t *testing.T) {
	conn := &mockConn{}
	conn.On("TokenToHostMap", mock.Anything).Return(map[string]string{"100": "h1", "200": "h2"}, nil).Once()
	conn.On("TokenToHostMap", mock.Anything).Return(nil, transport).Once()

	ks, _, monitor := newTestKeyspace(t, &mockRemote{conn: conn}, "h1", TryAllAvailablePolicy(), smallPool())
	assert.Equal(t, []string{"h1", "h2"}, ks.KnownHosts())

	err := ks.UpdateKnownHosts(context.Background())
	assert.ErrorIs(t, err, ErrTransport)
	assert.Empty(t, ks.KnownHosts())

	_, err = Execute(context.Background(), ks, OperationRead, readOp)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.ErrorIs(t, err, ErrNoKnownHosts)
	assert.Equal(t, int64(1), monitor.ReadFailCount())

	conn.AssertExpectations(t)
	conn.AssertNotCalled(t, "Invoke", mock.Anything, mock.Anything)
}

func TestKeyspaceRelease(t *testing.T) {
	remote := newFakeRemote("h1", "h2")
	ks, pool, monitor := newTestKeyspace(t, remote, "h1", TryAllAvailablePolicy(), smallPool())
	client := ks.Client()

	assert.Equal(t, []string{"h1", "h2"}, monitor.KnownHosts())

	require.NoError(t, ks.Release())
	require.NoError(t, ks.Release())

	assert.Equal(t, 0, pool.ActiveCount())
	assert.Equal(t, 1, pool.IdleCountByKey(mustEndpoint(t, "h1")))
	assert.Empty(t, client.Keyspaces())
	assert.Empty(t, monitor.KnownHosts())

	_, err := Execute(context.Background(), ks, OperationRead, readOp)
	assert.ErrorIs(t, err, ErrKeyspaceReleased)

	var opErr *OperationError
	require.True(t, errors.As(err, &opErr))
	assert.Equal(t, FaultInvalidRequest, opErr.Kind)
	assert.Equal(t, int64(1), monitor.ReadFailCount())
	assert.ErrorIs(t, ks.SkipToNextHost(), ErrKeyspaceReleased)
}
