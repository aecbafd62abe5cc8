package tcc

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/houseofcat/turbocookedcassandra/pkg/pools"
	"go.uber.org/zap"
)

// Keyspace runs operations against one keyspace with ring aware failover.
// A Keyspace is meant to be used by one goroutine at a time; its ring view may be read
// and refreshed concurrently by the ClientMonitor.
type Keyspace struct {
	id          string
	name        string
	consistency ConsistencyLevel
	policy      FailoverPolicy
	pool        *ClientPool
	monitor     *ClientMonitor
	logger      *zap.Logger

	lock       *sync.RWMutex
	client     *Client
	released   bool
	knownHosts []string
}

// NewKeyspace binds a keyspace to client, which must be borrowed from pool, and learns the ring
// according to policy.
func NewKeyspace(
	ctx context.Context,
	client *Client,
	name string,
	consistency ConsistencyLevel,
	policy FailoverPolicy,
	pool *ClientPool,
	monitor *ClientMonitor) (*Keyspace, error) {

	return NewKeyspaceWithLogger(ctx, client, name, consistency, policy, pool, monitor, nil)
}

// NewKeyspaceWithLogger is NewKeyspace with failover logging.
func NewKeyspaceWithLogger(
	ctx context.Context,
	client *Client,
	name string,
	consistency ConsistencyLevel,
	policy FailoverPolicy,
	pool *ClientPool,
	monitor *ClientMonitor,
	logger *zap.Logger) (*Keyspace, error) {

	if client == nil || pool == nil || monitor == nil {
		return nil, errors.New("keyspace requires a client, a client pool and a monitor")
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	ks := &Keyspace{
		id:          uuid.New().String(),
		name:        name,
		consistency: consistency,
		policy:      policy,
		pool:        pool,
		monitor:     monitor,
		logger:      logger.With(zap.String("keyspace", name)),
		lock:        &sync.RWMutex{},
		client:      client,
	}

	client.addKeyspace(ks)
	monitor.registerKeyspace(ks)

	if err := ks.InitFailover(ctx); err != nil {
		// an empty ring view makes every Execute fail fast with ErrNoKnownHosts
		ks.logger.Warn("keyspace starts without known hosts", zap.Error(err))
	}

	return ks, nil
}

func (k *Keyspace) Name() string                  { return k.name }
func (k *Keyspace) Consistency() ConsistencyLevel { return k.consistency }
func (k *Keyspace) FailoverPolicy() FailoverPolicy { return k.policy }

// Client is the client the next attempt will run on.
func (k *Keyspace) Client() *Client {
	k.lock.RLock()
	defer k.lock.RUnlock()

	return k.client
}

// KnownHosts is a copy of the current ring view.
func (k *Keyspace) KnownHosts() []string {
	k.lock.RLock()
	defer k.lock.RUnlock()

	return append([]string(nil), k.knownHosts...)
}

// InitFailover seeds the ring view. FailFast only ever knows the current host.
func (k *Keyspace) InitFailover(ctx context.Context) error {
	if k.policy.Strategy() == FailFast {
		k.lock.Lock()
		k.knownHosts = []string{k.client.Endpoint().Host()}
		k.lock.Unlock()
		return nil
	}

	return k.UpdateKnownHosts(ctx)
}

// UpdateKnownHosts asks the current client for the ring. On failure the ring view is cleared
// rather than left stale.
func (k *Keyspace) UpdateKnownHosts(ctx context.Context) error {
	k.lock.Lock()
	client := k.client
	k.knownHosts = []string{client.Endpoint().Host()}
	k.lock.Unlock()

	tokenMap, err := client.TokenToHostMap(ctx)
	if err != nil {
		k.lock.Lock()
		k.knownHosts = nil
		k.lock.Unlock()

		k.logger.Error("cannot query token map, keyspace is now disconnected",
			zap.String("endpoint", client.Endpoint().String()),
			zap.Error(err))

		return fmt.Errorf("querying token map from %s: %w", client.Endpoint(), err)
	}

	hosts := ringHosts(tokenMap)

	k.lock.Lock()
	k.knownHosts = hosts
	k.lock.Unlock()

	return nil
}

// ringHosts returns the distinct hosts of a token map in token order.
func ringHosts(tokenMap map[string]string) []string {
	tokens := make([]string, 0, len(tokenMap))
	for token := range tokenMap {
		tokens = append(tokens, token)
	}

	// tokens are non-negative integers, order them numerically
	sort.Slice(tokens, func(i, j int) bool {
		if len(tokens[i]) != len(tokens[j]) {
			return len(tokens[i]) < len(tokens[j])
		}
		return tokens[i] < tokens[j]
	})

	seen := make(map[string]struct{}, len(tokens))
	hosts := make([]string, 0, len(tokens))
	for _, token := range tokens {
		host := tokenMap[token]
		if _, ok := seen[host]; ok || host == "" {
			continue
		}
		seen[host] = struct{}{}
		hosts = append(hosts, host)
	}

	return hosts
}

// nextHost is the ring entry after endpoint, cyclically. Must be called with lock held.
func (k *Keyspace) nextHost(endpoint Endpoint) (string, bool) {
	size := len(k.knownHosts)
	for i, host := range k.knownHosts {
		if endpoint.matchesHost(host) {
			return k.knownHosts[(i+1)%size], true
		}
	}
	return "", false
}

// SkipToNextHost borrows a client for the next ring member on the same port, then gives the
// current client back to the pool flagged as errored. When no replacement can be borrowed the
// keyspace stays on its current client.
func (k *Keyspace) SkipToNextHost() error {
	_, err := k.skipToNextHost()
	return err
}

// skipToNextHost also reports the endpoint it tried to borrow from, or the current endpoint
// when the ring has no next host.
func (k *Keyspace) skipToNextHost() (Endpoint, error) {
	k.lock.RLock()
	released := k.released
	current := k.client
	host, ok := k.nextHost(current.Endpoint())
	k.lock.RUnlock()

	if released {
		return current.Endpoint(), ErrKeyspaceReleased
	}
	if !ok {
		return current.Endpoint(), fmt.Errorf("%w: %s is not a known host", ErrNoNextHost, current.Endpoint().Host())
	}

	endpoint, err := NewEndpoint(host, current.Endpoint().Port())
	if err != nil {
		return current.Endpoint(), err
	}

	// Borrow can block for the pool timeout, the ring view stays readable meanwhile.
	next, err := k.pool.Borrow(endpoint)
	if err != nil {
		return endpoint, fmt.Errorf("borrowing client for %s: %w", endpoint, err)
	}

	k.lock.Lock()
	if k.released || k.client != current {
		released = k.released
		k.lock.Unlock()

		if err := k.pool.Return(endpoint, next); err != nil {
			k.logger.Warn("unable to return unused client", zap.String("client", next.ID), zap.Error(err))
		}
		if released {
			return endpoint, ErrKeyspaceReleased
		}
		return endpoint, nil
	}

	k.client = next
	next.addKeyspace(k)
	k.lock.Unlock()

	current.removeKeyspace(k)
	current.MarkAsError()
	if err := k.pool.Return(current.Endpoint(), current); err != nil {
		k.logger.Warn("unable to invalidate client, continuing anyway",
			zap.String("client", current.ID),
			zap.Error(err))
	}

	k.monitor.IncrementCounter(CounterSkipHostSuccess)
	k.policy.IncrementRetryCount()

	k.logger.Info("skipped to next host",
		zap.String("from", current.Endpoint().String()),
		zap.String("to", endpoint.String()))

	return endpoint, nil
}

// Release returns the keyspace's client to the pool. The keyspace can't be used afterwards.
func (k *Keyspace) Release() error {
	k.lock.Lock()
	defer k.lock.Unlock()

	if k.released {
		return nil
	}
	k.released = true

	k.monitor.unregisterKeyspace(k)
	k.client.removeKeyspace(k)

	return k.pool.Return(k.client.Endpoint(), k.client)
}

func (k *Keyspace) isReleased() bool {
	k.lock.RLock()
	defer k.lock.RUnlock()

	return k.released
}

// Operation is a unit of work run against one connection.
type Operation[R any] func(ctx context.Context, conn RemoteConn) (R, error)

// Execute runs op with failover. Attempts are bounded by min(retryCount+1, known hosts).
// Recoverable faults move to the next ring member until the budget runs out; every other fault
// is surfaced at once. Surfaced faults are *OperationError.
func Execute[R any](ctx context.Context, k *Keyspace, kind OperationKind, op Operation[R]) (R, error) {
	var zero R

	if k.isReleased() {
		return zero, k.reject(kind, ErrKeyspaceReleased)
	}

	retries := k.policy.attempts(len(k.KnownHosts()))
	if retries == 0 {
		k.monitor.IncrementCounter(kind.failCounter())
		return zero, k.fail(kind, FaultUnavailable, k.Client().Endpoint(), ErrNoKnownHosts)
	}

	for retries > 0 {
		retries--

		client := k.Client()
		result, err := op(ctx, client.Conn())
		if err == nil {
			return result, nil
		}

		fault := classifyFault(err)
		if !fault.Recoverable() || retries == 0 {
			k.monitor.IncrementCounter(kind.failCounter())
			return zero, k.fail(kind, fault, client.Endpoint(), err)
		}

		k.logger.Warn("recoverable fault, skipping to next host",
			zap.String("endpoint", client.Endpoint().String()),
			zap.Stringer("fault", fault),
			zap.Int("retries", retries),
			zap.Error(err))

		if attempted, skipErr := k.skipToNextHost(); skipErr != nil {
			k.monitor.IncrementCounter(kind.failCounter())
			if errors.Is(skipErr, pools.ErrPoolTimeout) {
				k.monitor.IncrementCounter(CounterPoolExhausted)
			}
			return zero, k.fail(kind, FaultUnavailable, attempted, skipErr)
		}

		k.monitor.IncrementCounter(fault.recoverableCounter())
	}

	return zero, k.fail(kind, FaultUnavailable, k.Client().Endpoint(), ErrNoKnownHosts)
}

// reject surfaces a request that never reached a host.
func (k *Keyspace) reject(kind OperationKind, err error) error {
	k.monitor.IncrementCounter(kind.failCounter())
	return k.fail(kind, FaultInvalidRequest, k.Client().Endpoint(), err)
}

func (k *Keyspace) fail(kind OperationKind, fault FaultKind, endpoint Endpoint, err error) error {
	k.logger.Error("operation failed",
		zap.Stringer("op", kind),
		zap.Stringer("fault", fault),
		zap.String("endpoint", endpoint.String()),
		zap.Error(err))

	return &OperationError{Op: kind, Kind: fault, Endpoint: endpoint, Err: err}
}
